// Package ai содержит клиенты внешних сервисов (диаризация, суммаризация)
// и движок сопоставления реплик со спикерами.
package ai

// Utterance реплика ASR с таймстемпами в миллисекундах от начала записи
type Utterance struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// DiarizationSegment сегмент спикера от внешнего сервиса диаризации
// Таймстемпы в секундах (float) от начала аудио - НЕ миллисекунды!
type DiarizationSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// AlignedUtterance реплика с назначенным спикером
// Создаётся движком выравнивания один раз, далее неизменяема
type AlignedUtterance struct {
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

// ActionItem задача из резюме встречи
type ActionItem struct {
	Task        string `json:"task"`
	Responsible string `json:"responsible"`
	Deadline    string `json:"deadline"`
}

// MeetingSummary структурированное резюме встречи
type MeetingSummary struct {
	Summary     string       `json:"summary"`
	Decisions   []string     `json:"decisions"`
	ActionItems []ActionItem `json:"action_items"`
}

// UnknownSpeaker метка когда ни один сегмент не прошёл порог принятия
const UnknownSpeaker = "unknown"
