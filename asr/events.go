// Package asr реализует потоковый канал live-транскрипции
// Двунаправленный websocket: наружу аудио чанки, внутрь события реплик
package asr

// Типы сообщений протокола канала
const (
	typeSessionUpdate          = "session.update"
	typeAudioAppend            = "input_audio_buffer.append"
	typeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	typeError                  = "error"
)

// sessionUpdate одноразовое конфигурационное сообщение при открытии канала
type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	InputAudioFormat string            `json:"input_audio_format"` // "pcm16"
	SampleRateHz     int               `json:"sample_rate_hz"`
	TurnDetection    turnDetection     `json:"turn_detection"`
	Transcription    transcriptionOpts `json:"input_audio_transcription"`
}

// turnDetection серверный VAD: пауза silence_duration_ms завершает реплику
type turnDetection struct {
	Type              string `json:"type"` // "server_vad"
	SilenceDurationMs int    `json:"silence_duration_ms"`
}

type transcriptionOpts struct {
	// Инструкция сервису транскрибировать с максимальной точностью
	Quality string `json:"quality"` // "high"
}

// audioAppend аудио чанк, base64 PCM16
type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// serverEvent входящее событие канала
// StartTime опционален - секунды от начала сессии, если сервис его сообщает
type serverEvent struct {
	Type       string   `json:"type"`
	Transcript string   `json:"transcript,omitempty"`
	StartTime  *float64 `json:"start_time,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// TranscriptEvent типизированное событие завершённой реплики
// Транспортная механика отделена от построения Utterance: read pump
// складывает события в канал, consumer loop строит реплики
type TranscriptEvent struct {
	Transcript string
	// StartSec секунды от начала сессии; nil если сервис не сообщил offset
	StartSec *float64
	// ElapsedMs время от старта сессии на момент получения события
	ElapsedMs int64
}

// Utterance завершённая реплика с оффсетами в миллисекундах от начала записи
type Utterance struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}
