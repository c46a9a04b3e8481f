package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/session"
)

type fakeBackend struct {
	alertsFn      func(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error)
	markReadFn    func(ctx context.Context, ids []int64) error
	markAllReadFn func(ctx context.Context, cat string) error
	deleteFn      func(ctx context.Context, ids []int64) (backend.DeleteResult, error)
}

func (f *fakeBackend) Alerts(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error) {
	return f.alertsFn(ctx, q)
}

func (f *fakeBackend) MarkRead(ctx context.Context, ids []int64) error {
	if f.markReadFn == nil {
		return nil
	}
	return f.markReadFn(ctx, ids)
}

func (f *fakeBackend) MarkAllRead(ctx context.Context, cat string) error {
	if f.markAllReadFn == nil {
		return nil
	}
	return f.markAllReadFn(ctx, cat)
}

func (f *fakeBackend) Delete(ctx context.Context, ids []int64) (backend.DeleteResult, error) {
	return f.deleteFn(ctx, ids)
}

type fakeRenderer struct {
	mu       sync.Mutex
	groups   []Group
	prompts  []string
	removed  [][]int64
	failures []error
}

func (r *fakeRenderer) RenderGroup(g Group) {
	r.mu.Lock()
	r.groups = append(r.groups, g)
	r.mu.Unlock()
}

func (r *fakeRenderer) RenderPrompt(message string) {
	r.mu.Lock()
	r.prompts = append(r.prompts, message)
	r.mu.Unlock()
}

func (r *fakeRenderer) Remove(ids []int64) {
	r.mu.Lock()
	r.removed = append(r.removed, ids)
	r.mu.Unlock()
}

func (r *fakeRenderer) Failure(_ string, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *fakeRenderer) groupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *fakeRenderer) last() Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[len(r.groups)-1]
}

func miloAlerts() []backend.Alert {
	return []backend.Alert{
		{ID: 1, Type: backend.TypeNoEating, Cat: "Milo", Message: "hungry", IsRead: false},
		{ID: 2, Type: backend.TypeLowSleep, Cat: "Milo", Message: "tired", IsRead: true},
		{ID: 3, Type: backend.TypeNoCat, Cat: "Luna", Message: "gone", IsRead: false},
	}
}

func newController(api *fakeBackend, subject string) (*Controller, *fakeRenderer, *session.Session) {
	sess := session.New()
	sess.Select(subject)
	r := &fakeRenderer{}
	return NewController(api, sess, r), r, sess
}

func TestLoadWithoutSubjectPrompts(t *testing.T) {
	t.Parallel()

	called := false
	api := &fakeBackend{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		called = true
		return nil, nil
	}}
	c, r, _ := newController(api, "")

	if err := c.Load(context.Background()); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("Load error = %v, want ErrNoSubject", err)
	}
	if called {
		t.Fatal("Load fetched without a subject")
	}
	if len(r.prompts) != 1 || r.prompts[0] != "select a cat first" {
		t.Fatalf("prompts = %v", r.prompts)
	}
}

func TestLoadQueriesSubjectIncludingRead(t *testing.T) {
	t.Parallel()

	var got backend.AlertQuery
	api := &fakeBackend{alertsFn: func(_ context.Context, q backend.AlertQuery) ([]backend.Alert, error) {
		got = q
		return miloAlerts(), nil
	}}
	c, r, _ := newController(api, "Milo")

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cat != "Milo" || got.IncludeRead == nil || !*got.IncludeRead {
		t.Fatalf("query = %+v, want cat Milo include_read", got)
	}
	if g := r.last(); g.Cat != "Milo" || len(g.Alerts) != 2 {
		t.Fatalf("rendered = %+v, want Milo with 2 alerts", g)
	}
}

func TestFilterAndRenderUnreadOnly(t *testing.T) {
	t.Parallel()

	fetches := 0
	api := &fakeBackend{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		fetches++
		return miloAlerts(), nil
	}}
	c, _, _ := newController(api, "Milo")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	g := c.FilterAndRender(true)
	if len(g.Alerts) != 1 || g.Alerts[0].ID != 1 {
		t.Fatalf("unread filter = %+v, want only alert 1", g.Alerts)
	}
	for _, a := range g.Alerts {
		if a.IsRead || a.Cat != "Milo" {
			t.Fatalf("filtered alert %+v breaks the filter", a)
		}
	}
	if all := c.FilterAndRender(false); len(all.Alerts) != 2 {
		t.Fatalf("unfiltered = %d alerts, want 2", len(all.Alerts))
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, filtering must not refetch", fetches)
	}
}

func TestDeleteRejectedKeepsCacheAndView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result backend.DeleteResult
		err    error
	}{
		{"zero deleted", backend.DeleteResult{Deleted: 0}, nil},
		{"negative deleted", backend.DeleteResult{Deleted: -1, Message: "nope"}, nil},
		{"transport error", backend.DeleteResult{}, errors.New("connection reset")},
	}
	for _, tt := range tests {
		api := &fakeBackend{
			alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) { return miloAlerts(), nil },
			deleteFn: func(context.Context, []int64) (backend.DeleteResult, error) { return tt.result, tt.err },
		}
		c, r, _ := newController(api, "Milo")
		if err := c.Load(context.Background()); err != nil {
			t.Fatalf("%s: Load: %v", tt.name, err)
		}
		before := len(c.Cached())

		if _, err := c.Delete(context.Background(), []int64{1}); err == nil {
			t.Errorf("%s: Delete error = nil", tt.name)
		}
		if tt.err == nil {
			if _, err := c.Delete(context.Background(), []int64{1}); !errors.Is(err, ErrDeleteRejected) {
				t.Errorf("%s: error = %v, want ErrDeleteRejected", tt.name, err)
			}
		}
		if got := len(c.Cached()); got != before {
			t.Errorf("%s: cache = %d, want %d", tt.name, got, before)
		}
		if len(r.removed) != 0 {
			t.Errorf("%s: view removed %v", tt.name, r.removed)
		}
		if len(r.failures) == 0 {
			t.Errorf("%s: failure not reported", tt.name)
		}
	}
}

func TestDeleteConfirmedRemovesWithoutReload(t *testing.T) {
	t.Parallel()

	fetches := 0
	api := &fakeBackend{
		alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
			fetches++
			return miloAlerts(), nil
		},
		deleteFn: func(_ context.Context, ids []int64) (backend.DeleteResult, error) {
			return backend.DeleteResult{Deleted: len(ids)}, nil
		},
	}
	c, r, _ := newController(api, "Milo")
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, err := c.Delete(context.Background(), []int64{2})
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	for _, a := range c.Cached() {
		if a.ID == 2 {
			t.Fatal("deleted alert still cached")
		}
	}
	if len(r.removed) != 1 || r.removed[0][0] != 2 {
		t.Fatalf("removed = %v, want [[2]]", r.removed)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, delete must not reload", fetches)
	}
}

func TestMarkReadReloads(t *testing.T) {
	t.Parallel()

	fetches := 0
	var marked []int64
	var allCat string
	api := &fakeBackend{
		alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
			fetches++
			return miloAlerts(), nil
		},
		markReadFn:    func(_ context.Context, ids []int64) error { marked = ids; return nil },
		markAllReadFn: func(_ context.Context, cat string) error { allCat = cat; return nil },
	}
	c, _, _ := newController(api, "Milo")

	if err := c.MarkRead(context.Background(), []int64{1}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := c.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if len(marked) != 1 || allCat != "Milo" || fetches != 2 {
		t.Fatalf("marked=%v allCat=%q fetches=%d", marked, allCat, fetches)
	}
}

func TestMarkAllReadWithoutSubject(t *testing.T) {
	t.Parallel()

	c, _, _ := newController(&fakeBackend{}, "")
	if err := c.MarkAllRead(context.Background()); !errors.Is(err, ErrNoSubject) {
		t.Fatalf("MarkAllRead error = %v, want ErrNoSubject", err)
	}
}

func TestOpenNotificationFocusesAlert(t *testing.T) {
	t.Parallel()

	var queries []backend.AlertQuery
	api := &fakeBackend{
		alertsFn: func(_ context.Context, q backend.AlertQuery) ([]backend.Alert, error) {
			queries = append(queries, q)
			return miloAlerts(), nil
		},
		markReadFn: func(context.Context, []int64) error { return errors.New("timeout") },
	}
	c, r, sess := newController(api, "")

	unread, err := c.LoadUnread(context.Background())
	if err != nil {
		t.Fatalf("LoadUnread: %v", err)
	}
	if queries[0].Cat != "" || queries[0].IncludeRead == nil || *queries[0].IncludeRead {
		t.Fatalf("notifications query = %+v, want every cat without read", queries[0])
	}
	if sess.View() != session.ViewNotifications {
		t.Fatalf("view = %q, want notifications", sess.View())
	}

	if err := c.Open(context.Background(), unread[2]); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Subject() != "Luna" || sess.View() != session.ViewAlerts {
		t.Fatalf("session = %q %q, want Luna alerts", sess.Subject(), sess.View())
	}
	if g := r.last(); g.Cat != "Luna" || g.FocusID != 3 {
		t.Fatalf("rendered = %+v, want Luna focused on 3", g)
	}
}

func TestFollowReloadsOnlyInAlertView(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		return miloAlerts(), nil
	}}
	c, r, sess := newController(api, "Milo")
	hub := events.NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Follow(ctx, hub)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Publish until the subscription is live.
	deadline := time.Now().Add(2 * time.Second)
	sess.Show(session.ViewAlerts)
	for r.groupCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("alerts.changed did not trigger a reload")
		}
		hub.Publish(events.NewEvent(events.TypeAlertsChanged, nil))
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatchSeesEventsPublishedBeforeItRuns(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		return miloAlerts(), nil
	}}
	c, r, sess := newController(api, "Milo")
	sess.Show(session.ViewAlerts)
	hub := events.NewHub()

	ch, unsubscribe := hub.Subscribe(4)
	hub.Publish(events.NewEvent(events.TypeAlertsChanged, nil))
	unsubscribe()

	// The channel is closed after the buffered event, so Watch drains it
	// and returns.
	c.Watch(context.Background(), ch)
	if got := r.groupCount(); got != 1 {
		t.Fatalf("renders = %d, want 1", got)
	}
}

func TestPriority(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		backend.TypeNoCat:       PriorityHigh,
		backend.TypeNoEating:    PriorityHigh,
		backend.TypeLowExcrete:  PriorityMedium,
		backend.TypeHighExcrete: PriorityMedium,
		backend.TypeLowSleep:    PriorityLow,
		backend.TypeHighSleep:   PriorityLow,
		"unknown":               "",
	}
	for alertType, want := range tests {
		if got := Priority(alertType); got != want {
			t.Errorf("Priority(%q) = %q, want %q", alertType, got, want)
		}
	}
}

func TestSetUnreadOnlyAppliesOnLoad(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{alertsFn: func(context.Context, backend.AlertQuery) ([]backend.Alert, error) {
		return miloAlerts(), nil
	}}
	c, r, _ := newController(api, "Milo")
	c.SetUnreadOnly(true)
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.groupCount() != 1 || len(r.last().Alerts) != 1 {
		t.Fatalf("rendered %d groups, last %+v", r.groupCount(), r.last())
	}
}
