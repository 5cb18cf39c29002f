// Package service сервисный слой: сессия захвата и пост-обработка
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"meetscribe/asr"
	"meetscribe/audio"
	"meetscribe/session"
)

// AudioSource источник захваченных семплов (микрофон)
type AudioSource interface {
	Start() error
	Stop() error
	Data() <-chan []float32
	ClearBuffers()
}

// TranscriptStream открытый канал live-транскрипции
type TranscriptStream interface {
	SendAudio(pcm []byte)
	Utterances() []asr.Utterance
	Close() error
}

// StreamDialer открывает канал транскрипции с коллбеками live-превью
type StreamDialer func(ctx context.Context, onUtterance func(asr.Utterance), onWarning func(error)) (TranscriptStream, error)

// ElapsedCallback тикающий счётчик для UI (только side effect)
type ElapsedCallback func(elapsed time.Duration, rms float64)

// Recorder сервис сессии захвата
// Машина состояний: idle -> connecting -> recording -> stopping ->
// {finalizing | cancelled}. Одна активная сессия; конкуренцию стартов
// отсекает вызывающий слой
type Recorder struct {
	source  AudioSource
	dial    StreamDialer
	dataDir string

	mu       sync.Mutex
	rec      *session.Recording
	acc      *session.Accumulator
	archive  *session.MP3Writer
	stream   TranscriptStream
	stopChan chan struct{}
	lastRMS  float64

	// Callbacks
	OnElapsed        ElapsedCallback
	OnUtterance      func(u asr.Utterance)
	OnChannelWarning func(err error)
}

// StopResult данные остановленной сессии, передаются финализатору
type StopResult struct {
	Recording  *session.Recording
	Samples    []float32
	Utterances []asr.Utterance
	ArchiveDir string
}

// NewRecorder создаёт сервис записи
func NewRecorder(source AudioSource, dial StreamDialer, dataDir string) *Recorder {
	return &Recorder{
		source:  source,
		dial:    dial,
		dataDir: dataDir,
	}
}

// Start запрашивает микрофон и открывает канал транскрипции
// При любой ошибке сессия возвращается в idle, ошибка уходит вызывающему
func (r *Recorder) Start(ctx context.Context) (*session.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec != nil {
		return nil, fmt.Errorf("session already active: %s", r.rec.ID)
	}

	rec := &session.Recording{
		ID:    uuid.New().String(),
		State: session.StateConnecting,
	}

	// 1. Микрофон: mono 16kHz с системным шумоподавлением
	r.source.ClearBuffers()
	if err := r.source.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	// 2. Канал live-транскрипции
	stream, err := r.dial(ctx, func(u asr.Utterance) {
		if r.OnUtterance != nil {
			r.OnUtterance(u)
		}
	}, func(err error) {
		// Потеря канала во время записи не фатальна: страдает только
		// live-превью, аудио продолжает накапливаться локально
		if r.OnChannelWarning != nil {
			r.OnChannelWarning(err)
		}
	})
	if err != nil {
		r.source.Stop()
		return nil, err
	}

	// 3. Локальный MP3-архив (supplement, не критичен для записи)
	sessionDir := filepath.Join(r.dataDir, rec.ID)
	var archive *session.MP3Writer
	if mkErr := os.MkdirAll(sessionDir, 0755); mkErr == nil {
		archive, mkErr = session.NewMP3Writer(filepath.Join(sessionDir, "full.mp3"), session.SampleRate)
		if mkErr != nil {
			log.Printf("Recorder: archive writer unavailable: %v", mkErr)
		}
	} else {
		log.Printf("Recorder: failed to create session dir: %v", mkErr)
	}

	rec.State = session.StateRecording
	rec.StartTime = time.Now()

	r.rec = rec
	r.acc = session.NewAccumulator(session.SampleRate)
	r.archive = archive
	r.stream = stream
	r.stopChan = make(chan struct{})

	go r.processAudio(r.acc, r.archive, r.stopChan)
	go r.processChunks(r.acc, stream)

	log.Printf("Recorder: session %s started", rec.ID)
	return rec, nil
}

// processAudio читает семплы захвата: локальное накопление + архив
// Единственная горутина эмиссии - порядок чанков в блобе гарантирован
func (r *Recorder) processAudio(acc *session.Accumulator, archive *session.MP3Writer, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			r.mu.Lock()
			rec, rms := r.rec, r.lastRMS
			r.mu.Unlock()
			if rec != nil && r.OnElapsed != nil {
				r.OnElapsed(rec.Duration(), rms)
			}

		case samples, ok := <-r.source.Data():
			if !ok {
				return
			}
			r.mu.Lock()
			if r.acc != acc {
				// Сессия уже остановлена
				r.mu.Unlock()
				return
			}
			acc.Process(samples)
			r.mu.Unlock()

			if archive != nil {
				if err := archive.Write(samples); err != nil {
					log.Printf("Recorder: archive write failed: %v", err)
				}
			}
		}
	}
}

// processChunks fan-out секундных чанков в ASR канал
// SendAudio не блокирует: сбой доставки не трогает локальное накопление
func (r *Recorder) processChunks(acc *session.Accumulator, stream TranscriptStream) {
	for event := range acc.Output() {
		stream.SendAudio(session.PCM16Bytes(event.Samples))

		r.mu.Lock()
		r.lastRMS = event.RMS
		r.mu.Unlock()
	}
}

// Stop останавливает запись
// save=true: finalizing, данные уходят финализатору
// save=false: cancelled, всё буферизованное отбрасывается
func (r *Recorder) Stop(save bool) (*StopResult, error) {
	r.mu.Lock()
	if r.rec == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("no active session")
	}

	rec := r.rec
	acc := r.acc
	archive := r.archive
	stream := r.stream

	rec.State = session.StateStopping
	close(r.stopChan)
	r.mu.Unlock()

	// Устройство освобождаем сразу - и при save, и при cancel
	r.source.Stop()

	r.mu.Lock()
	// Сессия отвязывается под тем же lock, что и закрытие буфера:
	// запоздавшие фреймы захвата отсекает guard в processAudio, иначе
	// Process отправит чанк в уже закрытый канал
	r.rec = nil
	r.acc = nil
	r.archive = nil
	r.stream = nil
	r.stopChan = nil
	r.lastRMS = 0

	// Хвост буфера доигрываем в канал перед закрытием
	if tail := acc.Flush(); tail != nil {
		stream.SendAudio(session.PCM16Bytes(tail.Samples))
	}
	samples := acc.Samples()
	accumulated := acc.AccumulatedDuration()
	acc.Close()
	r.mu.Unlock()

	stream.Close()
	utterances := stream.Utterances()

	rec.StopTime = time.Now()
	sessionDir := filepath.Join(r.dataDir, rec.ID)

	var result *StopResult
	if save {
		rec.State = session.StateFinalizing
		if archive != nil {
			archive.Close()
		}
		r.saveUtteranceLog(sessionDir, utterances)
		result = &StopResult{
			Recording:  rec,
			Samples:    samples,
			Utterances: utterances,
			ArchiveDir: sessionDir,
		}
		log.Printf("Recorder: session %s stopped, %d utterances, %.1fs audio",
			rec.ID, len(utterances), accumulated.Seconds())
	} else {
		rec.State = session.StateCancelled
		acc.Reset()
		if archive != nil {
			archive.Close()
		}
		os.RemoveAll(sessionDir)
		log.Printf("Recorder: session %s cancelled, buffers discarded", rec.ID)
	}

	return result, nil
}

// Current активная сессия или nil
func (r *Recorder) Current() *session.Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec
}

// IsActive есть ли активная сессия
func (r *Recorder) IsActive() bool {
	return r.Current() != nil
}

// saveUtteranceLog сохраняет лог реплик рядом с архивом (для Reprocess)
func (r *Recorder) saveUtteranceLog(dir string, utterances []asr.Utterance) {
	data, err := json.MarshalIndent(utterances, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "utterances.json"), data, 0644); err != nil {
		log.Printf("Recorder: failed to save utterance log: %v", err)
	}
}
