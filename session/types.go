// Package session владеет состоянием сессии записи и локальным
// накоплением аудио до передачи в финализацию.
package session

import (
	"errors"
	"time"
)

// State состояние сессии записи
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateFinalizing State = "finalizing"
	StateCancelled  State = "cancelled"
)

// ErrEmptyRecording запись остановлена с нулём захваченных байт
// MeetingRecord в этом случае не создаётся
var ErrEmptyRecording = errors.New("empty recording")

// SampleRate целевая частота дискретизации записи (mono 16kHz)
const SampleRate = 16000

// ChunkInterval фиксированная секунда - кадрирование эмиссии чанков
const ChunkInterval = time.Second

// Recording сессия записи: принадлежит исключительно потоку захвата,
// уничтожается при остановке/отмене
type Recording struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	StartTime time.Time `json:"startTime"`
	StopTime  time.Time `json:"stopTime,omitempty"`
}

// Duration длительность по wall-clock старт/стоп
// Намеренно не по счёту фреймов - толерантна к потерянным фреймам
func (r *Recording) Duration() time.Duration {
	if r.StopTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.StopTime.Sub(r.StartTime)
}
