package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/clock"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/notify"
	"github.com/opus-domini/catwatch/internal/seen"
)

type fakeSource struct {
	alertsFn func(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error)
}

func (f fakeSource) Alerts(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error) {
	return f.alertsFn(ctx, q)
}

func staticSource(alerts ...backend.Alert) fakeSource {
	return fakeSource{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		return alerts, nil
	}}
}

type countingStore struct {
	seen.Store
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, key string, set seen.Set) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Store.Save(ctx, key, set)
}

type recorder struct {
	mu    sync.Mutex
	items []notify.Notification
}

func (r *recorder) Emit(_ context.Context, n notify.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func newClock() *clock.Manual {
	return clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local))
}

func TestTickDeduplicatesByIdentity(t *testing.T) {
	t.Parallel()

	src := staticSource(
		backend.Alert{ID: 1, Type: backend.TypeNoEating, Cat: "Milo", Message: "ate less than 3 times/day"},
		backend.Alert{ID: 2, Type: backend.TypeNoEating, Cat: "Milo", Message: "ate less than 3 times/day"},
		backend.Alert{ID: 3, Type: backend.TypeLowSleep, Cat: "Milo", Message: "slept 2.0h"},
	)
	st := &countingStore{Store: seen.NewMemoryStore()}
	rec := &recorder{}
	svc := New(src, seen.NewTracker(st, newClock()), Options{Emitter: rec})

	first, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if first.Fetched != 3 || first.Notified != 2 || !first.Changed {
		t.Fatalf("first tick = %+v, want fetched 3 notified 2 changed", first)
	}
	second, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if second.Notified != 0 || second.Changed {
		t.Fatalf("second tick = %+v, want nothing new", second)
	}
	if rec.count() != 2 {
		t.Fatalf("emitted = %d, want 2", rec.count())
	}
	if st.saves != 1 {
		t.Fatalf("saves = %d, want 1 (only on change)", st.saves)
	}
	if rec.items[0].AlertID != 1 || rec.items[1].AlertID != 3 {
		t.Fatalf("emit order = %d,%d, want server order 1,3", rec.items[0].AlertID, rec.items[1].AlertID)
	}
}

func TestTickRenotifiesOnNewDay(t *testing.T) {
	t.Parallel()

	clk := newClock()
	rec := &recorder{}
	src := staticSource(backend.Alert{ID: 9, Type: backend.TypeNoCat, Cat: "Luna", Message: "No cat detected"})
	svc := New(src, seen.NewTracker(seen.NewMemoryStore(), clk), Options{Emitter: rec})

	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	clk.Advance(24 * time.Hour)
	res, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick after rollover: %v", err)
	}
	if res.Day != "2024-05-02" || res.Notified != 1 {
		t.Fatalf("rollover tick = %+v, want one notification on 2024-05-02", res)
	}
	if got := svc.Seen(); len(got) != 1 || got[0] != "2024-05-02|no_cat|Luna|No cat detected" {
		t.Fatalf("seen = %v", got)
	}
}

func TestTickRestoresPersistedSet(t *testing.T) {
	t.Parallel()

	clk := newClock()
	mem := seen.NewMemoryStore()
	src := staticSource(backend.Alert{ID: 1, Type: backend.TypeHighSleep, Cat: "Milo", Message: "slept 20h"})

	if _, err := New(src, seen.NewTracker(mem, clk), Options{}).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	rec := &recorder{}
	restarted := New(src, seen.NewTracker(mem, clk), Options{Emitter: rec})
	if _, err := restarted.Tick(context.Background()); err != nil {
		t.Fatalf("Tick after restart: %v", err)
	}
	if rec.count() != 0 {
		t.Fatalf("emitted after restart = %d, want 0", rec.count())
	}
}

func TestTickFetchFailureLeavesState(t *testing.T) {
	t.Parallel()

	fail := true
	src := fakeSource{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return []backend.Alert{{ID: 1, Type: backend.TypeNoCat, Cat: "Milo", Message: "gone"}}, nil
	}}
	svc := New(src, seen.NewTracker(seen.NewMemoryStore(), newClock()), Options{PollInterval: time.Second})

	if _, err := svc.Tick(context.Background()); err == nil {
		t.Fatal("Tick error = nil, want fetch failure")
	}
	if _, err := svc.Tick(context.Background()); err == nil {
		t.Fatal("Tick error = nil, want fetch failure")
	}
	if got := svc.failureDelay(); got != 4*time.Second {
		t.Fatalf("failureDelay = %v, want 4s after two failures", got)
	}
	if len(svc.Seen()) != 0 {
		t.Fatalf("seen = %v, want empty", svc.Seen())
	}

	fail = false
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := svc.failureDelay(); got != time.Second {
		t.Fatalf("failureDelay after success = %v, want 1s", got)
	}
}

func TestNextDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := nextDelay(time.Minute, 10*time.Minute, tt.failures); got != tt.want {
			t.Errorf("nextDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestTickPublishesBadgeAndChanged(t *testing.T) {
	t.Parallel()

	hub := events.NewHub()
	ch, unsubscribe := hub.Subscribe(8)
	t.Cleanup(unsubscribe)

	src := staticSource(
		backend.Alert{ID: 1, Type: backend.TypeNoCat, Cat: "Milo", Message: "gone"},
		backend.Alert{ID: 2, Type: backend.TypeLowExcrete, Cat: "Luna", Message: "1 times"},
	)
	publish := func(eventType string, payload map[string]any) {
		hub.Publish(events.NewEvent(eventType, payload))
	}
	svc := New(src, seen.NewTracker(seen.NewMemoryStore(), newClock()), Options{Publish: publish})
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	counts := map[string]int{}
	var badge any
	for len(ch) > 0 {
		evt := <-ch
		counts[evt.Type]++
		if evt.Type == events.TypeAlertsBadge {
			badge = evt.Payload["count"]
		}
	}
	if counts[events.TypeAlertNotified] != 2 {
		t.Fatalf("notified events = %d, want 2", counts[events.TypeAlertNotified])
	}
	if counts[events.TypeAlertsChanged] != 2 || counts[events.TypeAlertsBadge] != 2 {
		t.Fatalf("events = %v, want changed and badge on every tick", counts)
	}
	if badge != 2 {
		t.Fatalf("badge count = %v, want 2", badge)
	}
}

func TestTickRecordsIdentity(t *testing.T) {
	t.Parallel()

	var identities []string
	src := staticSource(backend.Alert{ID: 4, Type: backend.TypeNoEating, Cat: "Milo", Message: "hungry"})
	svc := New(src, seen.NewTracker(seen.NewMemoryStore(), newClock()), Options{
		Record: func(_ context.Context, identity string, _ notify.Notification) {
			identities = append(identities, identity)
		},
	})
	if _, err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(identities) != 1 || identities[0] != "2024-05-01|no_eating|Milo|hungry" {
		t.Fatalf("identities = %v", identities)
	}
}

func TestStartReplacesRunningLoop(t *testing.T) {
	t.Parallel()

	ctxs := make(chan context.Context, 4)
	src := fakeSource{alertsFn: func(ctx context.Context, _ backend.AlertQuery) ([]backend.Alert, error) {
		ctxs <- ctx
		return nil, nil
	}}
	svc := New(src, seen.NewTracker(seen.NewMemoryStore(), newClock()), Options{PollInterval: time.Hour})

	svc.Start(context.Background())
	first := waitCtx(t, ctxs)
	svc.Start(context.Background())
	second := waitCtx(t, ctxs)

	if first.Err() == nil {
		t.Fatal("first loop context still live after restart")
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	svc.Stop(stopCtx)
	svc.Stop(stopCtx)
	if second.Err() == nil {
		t.Fatal("second loop context still live after Stop")
	}
}

func waitCtx(t *testing.T, ch <-chan context.Context) context.Context {
	t.Helper()
	select {
	case ctx := <-ch:
		return ctx
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not tick")
		return nil
	}
}
