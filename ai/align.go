package ai

import (
	"errors"
	"fmt"
	"log"
)

// ErrInvalidUtterance реплика с некорректными таймстемпами (end <= start)
var ErrInvalidUtterance = errors.New("invalid utterance timestamps")

// DefaultIoUThreshold порог принятия IoU по умолчанию
// Значение наблюдаемое, не выведенное - настраивается через конфиг
const DefaultIoUThreshold = 0.30

// Aligner сопоставляет реплики ASR с сегментами диаризации по перекрытию интервалов
type Aligner struct {
	// Threshold минимальный IoU для назначения спикера
	Threshold float64
}

// NewAligner создаёт движок выравнивания с указанным порогом
// При threshold <= 0 используется DefaultIoUThreshold
func NewAligner(threshold float64) *Aligner {
	if threshold <= 0 {
		threshold = DefaultIoUThreshold
	}
	return &Aligner{Threshold: threshold}
}

// ValidateUtterance проверяет инвариант end > start перед выравниванием
func ValidateUtterance(u Utterance) error {
	if u.EndMs <= u.StartMs {
		return fmt.Errorf("%w: start=%dms end=%dms", ErrInvalidUtterance, u.StartMs, u.EndMs)
	}
	return nil
}

// Align назначает спикера каждой реплике
// Невалидные реплики логируются и исключаются, батч не прерывается.
// Пустой список сегментов валиден: все реплики получают спикера "unknown".
// Алгоритм детерминированный: при равном IoU побеждает сегмент,
// встретившийся раньше во входном списке.
func (a *Aligner) Align(utterances []Utterance, segments []DiarizationSegment) []AlignedUtterance {
	aligned := make([]AlignedUtterance, 0, len(utterances))

	for _, u := range utterances {
		if err := ValidateUtterance(u); err != nil {
			log.Printf("Aligner: skipping utterance: %v", err)
			continue
		}
		aligned = append(aligned, a.alignOne(u, segments))
	}

	return aligned
}

// alignOne находит лучший сегмент для одной реплики
// Независимо от остальных реплик - общего изменяемого состояния нет
func (a *Aligner) alignOne(u Utterance, segments []DiarizationSegment) AlignedUtterance {
	// Нормализация единиц: ASR отдаёт миллисекунды, диаризация - секунды.
	// Сводим к секундам ровно в одном месте.
	uStart := float64(u.StartMs) / 1000.0
	uEnd := float64(u.EndMs) / 1000.0

	bestIoU := 0.0
	bestSpeaker := ""

	for _, s := range segments {
		// Строго больше: при равенстве остаётся первый встреченный сегмент
		if iou := intervalIoU(uStart, uEnd, s.Start, s.End); iou > bestIoU {
			bestIoU = iou
			bestSpeaker = s.Speaker
		}
	}

	out := AlignedUtterance{
		StartMs:    u.StartMs,
		EndMs:      u.EndMs,
		Text:       u.Text,
		Speaker:    UnknownSpeaker,
		Confidence: bestIoU, // score сохраняем и ниже порога - для диагностики
	}
	if bestIoU >= a.Threshold && bestSpeaker != "" {
		out.Speaker = bestSpeaker
	}
	return out
}

// intervalIoU вычисляет Intersection-over-Union двух временных интервалов
// Результат всегда в [0, 1]; смежные интервалы (aEnd == bStart) дают 0
func intervalIoU(aStart, aEnd, bStart, bEnd float64) float64 {
	interStart := aStart
	if bStart > interStart {
		interStart = bStart
	}
	interEnd := aEnd
	if bEnd < interEnd {
		interEnd = bEnd
	}

	intersection := interEnd - interStart
	if intersection < 0 {
		intersection = 0
	}

	union := (aEnd - aStart) + (bEnd - bStart) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
