package session

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// MP3Writer стриминговый писатель локального MP3-архива сессии
// Пишется параллельно с накоплением в память: при падении процесса
// аудио не теряется, блоб для выгрузки собирается отдельно
type MP3Writer struct {
	file       *os.File
	encoder    *mp3.Encoder
	filePath   string
	sampleRate int

	// shine кодирует блоками по 1152 сэмпла, копим до кратного размера
	buffer []int16

	samplesWritten int64
	mu             sync.Mutex
	closed         bool
}

// NewMP3Writer создаёт MP3 writer (чистый Go, без FFmpeg)
func NewMP3Writer(filePath string, sampleRate int) (*MP3Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &MP3Writer{
		file:       file,
		encoder:    mp3.NewEncoder(sampleRate, 1),
		filePath:   filePath,
		sampleRate: sampleRate,
		buffer:     make([]int16, 0, 8192),
	}, nil
}

// Write записывает float32 семплы
func (w *MP3Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	for _, s := range samples {
		// Clamp
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}
	w.samplesWritten += int64(len(samples))

	// Пишем блоками по 4 фрейма Layer III
	minBufferSize := 1152 * 4
	if len(w.buffer) >= minBufferSize {
		w.encoder.Write(w.file, w.buffer)
		w.buffer = w.buffer[:0]
	}

	return nil
}

// SamplesWritten количество записанных семплов
func (w *MP3Writer) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// Duration длительность записанного аудио
func (w *MP3Writer) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.samplesWritten) * time.Second / time.Duration(w.sampleRate)
}

// Close дописывает остаток буфера и закрывает файл
func (w *MP3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buffer) > 0 {
		// Дополняем до размера блока нулями
		for len(w.buffer)%1152 != 0 {
			w.buffer = append(w.buffer, 0)
		}
		w.encoder.Write(w.file, w.buffer)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	log.Printf("MP3Writer closed: %s (%d samples)", w.filePath, w.samplesWritten)
	return nil
}

// FilePath путь к файлу архива
func (w *MP3Writer) FilePath() string {
	return w.filePath
}
