package seen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opus-domini/catwatch/internal/clock"
	"github.com/opus-domini/catwatch/internal/daykey"
)

// Tracker binds a Store to a clock so callers always read and write the
// set of the current calendar day.
type Tracker struct {
	store Store
	clock clock.Clock
}

func NewTracker(st Store, c clock.Clock) *Tracker {
	if c == nil {
		c = clock.System{}
	}
	return &Tracker{store: st, clock: c}
}

func (t *Tracker) Day() string {
	return daykey.TodayStamp(t.clock)
}

// Load returns today's set. Missing, unparsable or unreachable state all
// yield an empty set.
func (t *Tracker) Load(ctx context.Context) (Set, string) {
	day := t.Day()
	set, err := t.store.Load(ctx, daykey.SeenStorageKey(day))
	switch {
	case err == nil:
		return set, day
	case errors.Is(err, ErrNotFound):
	default:
		slog.Warn("seen set load failed, starting empty", "day", day, "err", err)
	}
	return NewSet(), day
}

func (t *Tracker) Save(ctx context.Context, day string, set Set) error {
	return t.store.Save(ctx, daykey.SeenStorageKey(day), set)
}

// Prune drops every set older than retention days before today.
func (t *Tracker) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		retentionDays = 1
	}
	cutoff := t.clock.Now().AddDate(0, 0, -(retentionDays - 1)).Format(daykey.DayLayout)
	return t.store.Prune(ctx, cutoff)
}

func (t *Tracker) Now() time.Time { return t.clock.Now() }

// RolledOver reports whether the calendar day moved past loadedDay.
func (t *Tracker) RolledOver(loadedDay string) bool {
	return t.Day() != loadedDay
}
