package api

import (
	"meetscribe/asr"
	"meetscribe/audio"
	"meetscribe/session"
)

// Message структура WebSocket сообщения управляющего канала
type Message struct {
	Type string `json:"type"`

	// start_session / stop_session параметры
	DeviceID   string `json:"deviceId,omitempty"`
	Save       bool   `json:"save,omitempty"`
	SessionDir string `json:"sessionDir,omitempty"`

	// Ответы
	Recording *session.Recording `json:"recording,omitempty"`
	RecordID  string             `json:"recordId,omitempty"`
	Status    string             `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`

	// Live-превью
	Utterance *asr.Utterance `json:"utterance,omitempty"`

	// Тикающий счётчик для UI
	ElapsedMs int64   `json:"elapsedMs,omitempty"`
	RMS       float64 `json:"rms,omitempty"`

	// Устройства
	Devices []audio.AudioDevice `json:"devices,omitempty"`
}
