package ai

import (
	"math"
	"reflect"
	"testing"
)

// TestIntervalIoU проверяет границы метрики: результат всегда в [0,1],
// непересекающиеся и смежные интервалы дают 0
func TestIntervalIoU(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd float64
		expected                   float64
	}{
		{"full overlap", 0, 2, 0, 2, 1.0},
		{"no overlap", 0, 1, 2, 3, 0},
		{"adjacent boundary", 0, 2, 2, 4, 0}, // u.end == s.start -> intersection 0
		{"half overlap", 0, 2, 1, 3, 1.0 / 3.0},
		{"contained", 0, 4, 1, 2, 0.25},
		{"zero-length both", 1, 1, 1, 1, 0}, // union 0 -> 0, не NaN
	}

	for _, tt := range tests {
		got := intervalIoU(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("%s: iou = %v, expected %v", tt.name, got, tt.expected)
		}
		if got < 0 || got > 1 {
			t.Errorf("%s: iou %v out of [0,1]", tt.name, got)
		}
	}
}

// TestAlign_FullOverlap сценарий A: реплика полностью совпадает с сегментом
func TestAlign_FullOverlap(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{{StartMs: 0, EndMs: 2000, Text: "hello"}}
	segments := []DiarizationSegment{{Start: 0, End: 2, Speaker: "A"}}

	result := aligner.Align(utterances, segments)
	if len(result) != 1 {
		t.Fatalf("expected 1 aligned utterance, got %d", len(result))
	}
	if result[0].Speaker != "A" {
		t.Errorf("speaker = %q, expected A", result[0].Speaker)
	}
	if math.Abs(result[0].Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %v, expected 1.0", result[0].Confidence)
	}
}

// TestAlign_BestSegmentWins сценарий B: побеждает сегмент с максимальным IoU
func TestAlign_BestSegmentWins(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{{StartMs: 1000, EndMs: 3000, Text: "hi"}}
	segments := []DiarizationSegment{
		{Start: 0, End: 1.5, Speaker: "A"},   // overlap 0.5s / union 2.5s = 0.2
		{Start: 1.5, End: 4, Speaker: "B"},   // overlap 1.5s / union 2.0s = 0.75
	}

	result := aligner.Align(utterances, segments)
	if result[0].Speaker != "B" {
		t.Errorf("speaker = %q, expected B", result[0].Speaker)
	}
	if math.Abs(result[0].Confidence-0.75) > 1e-9 {
		t.Errorf("confidence = %v, expected 0.75", result[0].Confidence)
	}
}

// TestAlign_EmptySegments пустой список сегментов валиден:
// все реплики получают "unknown" с нулевым score
func TestAlign_EmptySegments(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{
		{StartMs: 0, EndMs: 1000, Text: "a"},
		{StartMs: 1000, EndMs: 2000, Text: "b"},
	}

	result := aligner.Align(utterances, nil)
	if len(result) != 2 {
		t.Fatalf("expected 2 aligned utterances, got %d", len(result))
	}
	for i, u := range result {
		if u.Speaker != UnknownSpeaker {
			t.Errorf("[%d] speaker = %q, expected unknown", i, u.Speaker)
		}
		if u.Confidence != 0 {
			t.Errorf("[%d] confidence = %v, expected 0", i, u.Confidence)
		}
	}
}

// TestAlign_BelowThreshold score ниже порога сохраняется для диагностики,
// но спикер остаётся "unknown"
func TestAlign_BelowThreshold(t *testing.T) {
	aligner := NewAligner(0)

	// Единственный сегмент с IoU 0.2 < 0.30
	utterances := []Utterance{{StartMs: 1000, EndMs: 3000, Text: "hi"}}
	segments := []DiarizationSegment{{Start: 0, End: 1.5, Speaker: "A"}}

	result := aligner.Align(utterances, segments)
	if result[0].Speaker != UnknownSpeaker {
		t.Errorf("speaker = %q, expected unknown", result[0].Speaker)
	}
	if math.Abs(result[0].Confidence-0.2) > 1e-9 {
		t.Errorf("confidence = %v, expected 0.2 (retained below threshold)", result[0].Confidence)
	}
}

// TestAlign_TieBreak при равном IoU побеждает сегмент,
// встретившийся раньше во входном списке
func TestAlign_TieBreak(t *testing.T) {
	aligner := NewAligner(0)

	// Реплика 1-3s: оба сегмента дают одинаковое перекрытие
	utterances := []Utterance{{StartMs: 1000, EndMs: 3000, Text: "tie"}}
	segments := []DiarizationSegment{
		{Start: 0, End: 2, Speaker: "first"},  // overlap 1s, union 3s
		{Start: 2, End: 4, Speaker: "second"}, // overlap 1s, union 3s
	}

	for i := 0; i < 10; i++ {
		result := aligner.Align(utterances, segments)
		if result[0].Speaker != "first" {
			t.Fatalf("run %d: speaker = %q, expected first (tie-break)", i, result[0].Speaker)
		}
	}
}

// TestAlign_Deterministic повторный прогон на тех же данных
// даёт идентичный результат
func TestAlign_Deterministic(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{
		{StartMs: 0, EndMs: 1500, Text: "a"},
		{StartMs: 1600, EndMs: 4000, Text: "b"},
		{StartMs: 4200, EndMs: 5000, Text: "c"},
	}
	segments := []DiarizationSegment{
		{Start: 0, End: 1.6, Speaker: "S1"},
		{Start: 1.6, End: 4.1, Speaker: "S2"},
		{Start: 4.1, End: 6, Speaker: "S1"},
	}

	first := aligner.Align(utterances, segments)
	second := aligner.Align(utterances, segments)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("alignment is not deterministic:\n%v\n%v", first, second)
	}
}

// TestAlign_InvalidUtteranceSkipped реплики с end <= start исключаются,
// батч не прерывается
func TestAlign_InvalidUtteranceSkipped(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{
		{StartMs: 0, EndMs: 1000, Text: "ok"},
		{StartMs: 2000, EndMs: 2000, Text: "zero length"},
		{StartMs: 3000, EndMs: 2500, Text: "negative"},
		{StartMs: 4000, EndMs: 5000, Text: "also ok"},
	}
	segments := []DiarizationSegment{{Start: 0, End: 10, Speaker: "A"}}

	result := aligner.Align(utterances, segments)
	if len(result) != 2 {
		t.Fatalf("expected 2 aligned utterances, got %d", len(result))
	}
	if result[0].Text != "ok" || result[1].Text != "also ok" {
		t.Errorf("wrong utterances survived: %v", result)
	}
}

// TestAlign_OrderPreserved порядок вывода совпадает с порядком ввода
func TestAlign_OrderPreserved(t *testing.T) {
	aligner := NewAligner(0)

	utterances := []Utterance{
		{StartMs: 5000, EndMs: 6000, Text: "later"},
		{StartMs: 0, EndMs: 1000, Text: "earlier"}, // джиттер транспорта допустим
	}

	result := aligner.Align(utterances, nil)
	if result[0].Text != "later" || result[1].Text != "earlier" {
		t.Errorf("input order not preserved: %v", result)
	}
}

// TestValidateUtterance проверяет инвариант end > start
func TestValidateUtterance(t *testing.T) {
	if err := ValidateUtterance(Utterance{StartMs: 0, EndMs: 1}); err != nil {
		t.Errorf("valid utterance rejected: %v", err)
	}
	if err := ValidateUtterance(Utterance{StartMs: 5, EndMs: 5}); err == nil {
		t.Error("zero-length utterance accepted")
	}
	if err := ValidateUtterance(Utterance{StartMs: 5, EndMs: 4}); err == nil {
		t.Error("negative-length utterance accepted")
	}
}

// TestNewAligner_DefaultThreshold нулевой и отрицательный порог
// заменяются значением по умолчанию
func TestNewAligner_DefaultThreshold(t *testing.T) {
	if a := NewAligner(0); a.Threshold != DefaultIoUThreshold {
		t.Errorf("threshold = %v, expected %v", a.Threshold, DefaultIoUThreshold)
	}
	if a := NewAligner(0.5); a.Threshold != 0.5 {
		t.Errorf("threshold = %v, expected 0.5", a.Threshold)
	}
}
