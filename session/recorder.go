package session

import (
	"math"
	"time"
)

// ChunkEvent событие готовности чанка фиксированной длины
type ChunkEvent struct {
	// Таймстемпы в миллисекундах от начала записи
	StartMs int64
	EndMs   int64
	Samples []float32
	// RMS уровень для метрики (advisory, не участвует в корректности)
	RMS float64
}

// Accumulator накапливает семплы и нарезает их на чанки фиксированной
// каденции (1 секунда). Это fan-out источник: локальное накопление для
// финального блоба и эмиссия чанков для live ASR-канала.
type Accumulator struct {
	sampleRate int

	accumulated []float32
	emitted     int64

	outputChan chan ChunkEvent
}

// NewAccumulator создаёт буфер накопления
func NewAccumulator(sampleRate int) *Accumulator {
	// Начальная ёмкость на 10 минут записи
	return &Accumulator{
		sampleRate:  sampleRate,
		accumulated: make([]float32, 0, sampleRate*600),
		outputChan:  make(chan ChunkEvent, 10),
	}
}

// Process накапливает входящие семплы и эмитит готовые секундные чанки
// Вызывается из единственной горутины захвата - порядок чанков в блобе
// гарантирован порядком прихода коллбеков
func (a *Accumulator) Process(samples []float32) {
	a.accumulated = append(a.accumulated, samples...)
	a.tryEmit()
}

// tryEmit выдаёт все полные секундные чанки из накопленного
func (a *Accumulator) tryEmit() {
	chunkSamples := int64(ChunkInterval.Seconds() * float64(a.sampleRate))

	for int64(len(a.accumulated))-a.emitted >= chunkSamples {
		a.emitChunk(a.emitted + chunkSamples)
	}
}

func (a *Accumulator) emitChunk(until int64) {
	samples := make([]float32, until-a.emitted)
	copy(samples, a.accumulated[a.emitted:until])

	event := ChunkEvent{
		StartMs: a.emitted * 1000 / int64(a.sampleRate),
		EndMs:   until * 1000 / int64(a.sampleRate),
		Samples: samples,
		RMS:     CalculateRMS(samples),
	}

	// Не блокируемся: переполненная очередь чанков не должна
	// останавливать локальное накопление
	select {
	case a.outputChan <- event:
	default:
	}
	a.emitted = until
}

// Flush выдаёт неполный остаток как финальный чанк (при остановке)
func (a *Accumulator) Flush() *ChunkEvent {
	remaining := int64(len(a.accumulated)) - a.emitted
	if remaining <= 0 {
		return nil
	}

	samples := make([]float32, remaining)
	copy(samples, a.accumulated[a.emitted:])

	event := &ChunkEvent{
		StartMs: a.emitted * 1000 / int64(a.sampleRate),
		EndMs:   int64(len(a.accumulated)) * 1000 / int64(a.sampleRate),
		Samples: samples,
		RMS:     CalculateRMS(samples),
	}
	a.emitted = int64(len(a.accumulated))
	return event
}

// Output канал готовых чанков
func (a *Accumulator) Output() <-chan ChunkEvent {
	return a.outputChan
}

// Samples возвращает все накопленные семплы (финальный блоб)
func (a *Accumulator) Samples() []float32 {
	return a.accumulated
}

// TotalSamples количество накопленных семплов
func (a *Accumulator) TotalSamples() int64 {
	return int64(len(a.accumulated))
}

// AccumulatedDuration длительность накопленного аудио по семплам
func (a *Accumulator) AccumulatedDuration() time.Duration {
	return time.Duration(len(a.accumulated)) * time.Second / time.Duration(a.sampleRate)
}

// Reset сбрасывает состояние буфера (отмена записи)
func (a *Accumulator) Reset() {
	a.accumulated = a.accumulated[:0]
	a.emitted = 0
}

// Close закрывает канал чанков
func (a *Accumulator) Close() {
	close(a.outputChan)
}

// CalculateRMS вычисляет RMS уровень семплов
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s * s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
