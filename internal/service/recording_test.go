package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meetscribe/asr"
	"meetscribe/session"
)

// fakeSource источник семплов с ручной подачей
type fakeSource struct {
	mu      sync.Mutex
	data    chan []float32
	started bool
	stops   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: make(chan []float32, 16)}
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.stops++
	return nil
}

func (f *fakeSource) Data() <-chan []float32 { return f.data }

func (f *fakeSource) ClearBuffers() {
	for {
		select {
		case <-f.data:
		default:
			return
		}
	}
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// fakeStream канал транскрипции, фиксирующий отправленные чанки
type fakeStream struct {
	mu         sync.Mutex
	sent       [][]byte
	closed     bool
	utterances []asr.Utterance
}

func (f *fakeStream) SendAudio(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pcm)
}

func (f *fakeStream) Utterances() []asr.Utterance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utterances
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func streamDialer(stream *fakeStream, err error) StreamDialer {
	return func(ctx context.Context, onUtterance func(asr.Utterance), onWarning func(error)) (TranscriptStream, error) {
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// TestRecorder_StartStop полный цикл с сохранением: семплы накапливаются,
// чанки уходят в канал, результат несёт блоб и реплики
func TestRecorder_StartStop(t *testing.T) {
	source := newFakeSource()
	stream := &fakeStream{utterances: []asr.Utterance{{StartMs: 0, EndMs: 1000, Text: "hi"}}}
	r := NewRecorder(source, streamDialer(stream, nil), t.TempDir())

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if rec.State != session.StateRecording {
		t.Errorf("state = %q, expected recording", rec.State)
	}
	if !r.IsActive() {
		t.Error("recorder must be active after start")
	}

	// 1.5 секунды аудио: один полный чанк + хвост
	source.data <- make([]float32, session.SampleRate)
	source.data <- make([]float32, session.SampleRate/2)
	time.Sleep(300 * time.Millisecond)

	result, err := r.Stop(true)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected stop result on save")
	}
	if result.Recording.State != session.StateFinalizing {
		t.Errorf("state = %q, expected finalizing", result.Recording.State)
	}
	if len(result.Samples) != session.SampleRate*3/2 {
		t.Errorf("samples = %d, expected %d", len(result.Samples), session.SampleRate*3/2)
	}
	if len(result.Utterances) != 1 || result.Utterances[0].Text != "hi" {
		t.Errorf("utterances = %v", result.Utterances)
	}

	// Полный чанк + хвост при остановке
	if stream.sentCount() != 2 {
		t.Errorf("sent chunks = %d, expected 2", stream.sentCount())
	}
	if !stream.closed {
		t.Error("stream not closed on stop")
	}
	if source.stopCount() != 1 {
		t.Errorf("source stops = %d, expected 1", source.stopCount())
	}
	if r.IsActive() {
		t.Error("recorder still active after stop")
	}

	// Лог реплик сохранён для Reprocess
	if _, err := os.Stat(filepath.Join(result.ArchiveDir, "utterances.json")); err != nil {
		t.Errorf("utterance log missing: %v", err)
	}
}

// TestRecorder_Cancel остановка без сохранения отбрасывает буферы
// и удаляет каталог сессии
func TestRecorder_Cancel(t *testing.T) {
	source := newFakeSource()
	stream := &fakeStream{}
	dataDir := t.TempDir()
	r := NewRecorder(source, streamDialer(stream, nil), dataDir)

	rec, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.data <- make([]float32, session.SampleRate)
	time.Sleep(200 * time.Millisecond)

	result, err := r.Stop(false)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if result != nil {
		t.Errorf("cancel must not produce a result: %v", result)
	}
	if rec.State != session.StateCancelled {
		t.Errorf("state = %q, expected cancelled", rec.State)
	}
	if _, err := os.Stat(filepath.Join(dataDir, rec.ID)); !os.IsNotExist(err) {
		t.Error("session dir not removed on cancel")
	}
	if r.IsActive() {
		t.Error("recorder still active after cancel")
	}
}

// TestRecorder_SecondStartRejected одна активная сессия
func TestRecorder_SecondStartRejected(t *testing.T) {
	source := newFakeSource()
	r := NewRecorder(source, streamDialer(&fakeStream{}, nil), t.TempDir())

	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(false)

	if _, err := r.Start(context.Background()); err == nil {
		t.Error("second start must be rejected")
	}
}

// TestRecorder_DialFailure канал транскрипции не открылся:
// микрофон освобождается, сессия не стартует
func TestRecorder_DialFailure(t *testing.T) {
	source := newFakeSource()
	dialErr := errors.New("asr unreachable")
	r := NewRecorder(source, streamDialer(nil, dialErr), t.TempDir())

	_, err := r.Start(context.Background())
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
	if source.stopCount() != 1 {
		t.Error("source not released after dial failure")
	}
	if r.IsActive() {
		t.Error("recorder active after failed start")
	}
}

// TestRecorder_StopWithBacklog остановка при необработанном хвосте захвата:
// запоздавшие фреймы не должны попадать в закрытый канал чанков
func TestRecorder_StopWithBacklog(t *testing.T) {
	source := newFakeSource()
	stream := &fakeStream{}
	r := NewRecorder(source, streamDialer(stream, nil), t.TempDir())

	for i := 0; i < 50; i++ {
		if _, err := r.Start(context.Background()); err != nil {
			t.Fatalf("iteration %d: Start failed: %v", i, err)
		}

		// Заполняем очередь захвата целыми секундами и останавливаемся
		// немедленно - processAudio доигрывает их параллельно со Stop
		for j := 0; j < cap(source.data); j++ {
			source.data <- make([]float32, session.SampleRate)
		}

		result, err := r.Stop(true)
		if err != nil {
			t.Fatalf("iteration %d: Stop failed: %v", i, err)
		}
		if result == nil {
			t.Fatalf("iteration %d: expected stop result", i)
		}
		if len(result.Samples)%session.SampleRate != 0 {
			t.Fatalf("iteration %d: partial second in blob: %d samples", i, len(result.Samples))
		}
		if r.IsActive() {
			t.Fatalf("iteration %d: recorder still active", i)
		}
	}
}

// TestRecorder_StopWithoutStart
func TestRecorder_StopWithoutStart(t *testing.T) {
	r := NewRecorder(newFakeSource(), streamDialer(&fakeStream{}, nil), t.TempDir())
	if _, err := r.Stop(true); err == nil {
		t.Error("stop without active session must fail")
	}
}
