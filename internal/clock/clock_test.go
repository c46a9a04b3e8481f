package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 2, 28, 23, 59, 0, 0, time.UTC)
	m := NewManual(base)
	m.Advance(2 * time.Minute)

	want := time.Date(2024, 2, 29, 0, 1, 0, 0, time.UTC)
	if got := m.Now(); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}

	m.Set(base)
	if got := m.Now(); !got.Equal(base) {
		t.Fatalf("Now() after Set = %v, want %v", got, base)
	}
}
