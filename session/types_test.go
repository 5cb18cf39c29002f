package session

import (
	"testing"
	"time"
)

// TestRecordingDuration длительность по wall-clock старт/стоп
func TestRecordingDuration(t *testing.T) {
	now := time.Now()
	rec := &Recording{StartTime: now.Add(-10 * time.Second), StopTime: now}
	if d := rec.Duration(); d != 10*time.Second {
		t.Errorf("duration = %v, expected 10s", d)
	}

	// Активная сессия: от старта до текущего момента
	active := &Recording{StartTime: now.Add(-time.Second)}
	if d := active.Duration(); d < time.Second || d > 2*time.Second {
		t.Errorf("active duration = %v, expected ~1s", d)
	}
}
