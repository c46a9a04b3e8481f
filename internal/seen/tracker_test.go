package seen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opus-domini/catwatch/internal/clock"
)

type failingStore struct {
	loadErr error
}

func (f failingStore) Load(context.Context, string) (Set, error) { return Set{}, f.loadErr }
func (f failingStore) Save(context.Context, string, Set) error  { return nil }
func (f failingStore) Prune(context.Context, string) (int64, error) {
	return 0, nil
}

func TestTrackerLoadFailsSoft(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local))
	ctx := context.Background()

	mem := NewMemoryStore()
	mem.SetRaw("alerts_seen_2024-05-01", "not-a-list")
	tests := []struct {
		name  string
		store Store
	}{
		{"absent", NewMemoryStore()},
		{"unparsable", mem},
		{"unreachable", failingStore{loadErr: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		set, day := NewTracker(tt.store, clk).Load(ctx)
		if set.Len() != 0 {
			t.Errorf("%s: set = %v, want empty", tt.name, set.Sorted())
		}
		if day != "2024-05-01" {
			t.Errorf("%s: day = %q, want 2024-05-01", tt.name, day)
		}
	}
}

func TestTrackerDayIsolation(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 1, 23, 59, 0, 0, time.Local))
	tr := NewTracker(NewMemoryStore(), clk)
	ctx := context.Background()

	set, day := tr.Load(ctx)
	set.Add("2024-05-01|no_cat|Milo|missing")
	if err := tr.Save(ctx, day, set); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clk.Advance(2 * time.Minute)
	if !tr.RolledOver(day) {
		t.Fatal("RolledOver = false after midnight")
	}
	next, nextDay := tr.Load(ctx)
	if nextDay != "2024-05-02" || next.Len() != 0 {
		t.Fatalf("next day = %q %v, want 2024-05-02 empty", nextDay, next.Sorted())
	}
}

func TestTrackerPruneCutoff(t *testing.T) {
	t.Parallel()

	clk := clock.NewManual(time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local))
	mem := NewMemoryStore()
	ctx := context.Background()
	for _, day := range []string{"2024-05-03", "2024-05-04", "2024-05-10"} {
		_ = mem.Save(ctx, "alerts_seen_"+day, NewSet(day))
	}
	removed, err := NewTracker(mem, clk).Prune(ctx, 7)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1 (only 2024-05-03)", removed)
	}
}
