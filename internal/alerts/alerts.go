// Package alerts drives the alert list of the selected cat and the
// cross-cat notifications view.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/session"
)

// Priority classes of alert types.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

const promptNoSubject = "select a cat first"

var (
	// ErrNoSubject is returned when an operation needs a selected cat.
	ErrNoSubject = errors.New("no cat selected")
	// ErrDeleteRejected is returned when the backend deleted nothing.
	ErrDeleteRejected = errors.New("delete rejected")
)

// Backend defines the alert operations consumed by the controller.
type Backend interface {
	Alerts(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error)
	MarkRead(ctx context.Context, ids []int64) error
	MarkAllRead(ctx context.Context, cat string) error
	Delete(ctx context.Context, ids []int64) (backend.DeleteResult, error)
}

// Group is the rendered alert list. An empty Cat groups every cat.
type Group struct {
	Cat     string
	Alerts  []backend.Alert
	FocusID int64
}

type Renderer interface {
	RenderGroup(g Group)
	RenderPrompt(message string)
	Remove(ids []int64)
	Failure(op string, err error)
}

type subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

type Controller struct {
	api     Backend
	session *session.Session
	render  Renderer

	mu         sync.Mutex
	cache      []backend.Alert
	unreadOnly bool
}

func NewController(api Backend, sess *session.Session, render Renderer) *Controller {
	if sess == nil {
		sess = session.New()
	}
	return &Controller{api: api, session: sess, render: render}
}

// Load replaces the cached list with every alert of the subject cat,
// read ones included, and renders it with the current filter.
func (c *Controller) Load(ctx context.Context) error {
	subject := c.session.Subject()
	if subject == "" {
		c.render.RenderPrompt(promptNoSubject)
		return ErrNoSubject
	}
	list, err := c.api.Alerts(ctx, backend.AlertQuery{Cat: subject, IncludeRead: backend.IncludeRead(true)})
	if err != nil {
		return fmt.Errorf("load alerts for %s: %w", subject, err)
	}
	c.mu.Lock()
	c.cache = list
	unreadOnly := c.unreadOnly
	c.mu.Unlock()

	c.FilterAndRender(unreadOnly)
	return nil
}

// SetUnreadOnly sets the filter used by the next Load without rendering.
func (c *Controller) SetUnreadOnly(unreadOnly bool) {
	c.mu.Lock()
	c.unreadOnly = unreadOnly
	c.mu.Unlock()
}

// FilterAndRender filters the cache client-side and renders one group for
// the subject. The filter sticks for later reloads.
func (c *Controller) FilterAndRender(unreadOnly bool) Group {
	subject := c.session.Subject()

	c.mu.Lock()
	c.unreadOnly = unreadOnly
	filtered := make([]backend.Alert, 0, len(c.cache))
	for _, a := range c.cache {
		if a.Cat != subject {
			continue
		}
		if unreadOnly && a.IsRead {
			continue
		}
		filtered = append(filtered, a)
	}
	c.mu.Unlock()

	g := Group{Cat: subject, Alerts: filtered, FocusID: c.session.FocusID()}
	c.render.RenderGroup(g)
	return g
}

func (c *Controller) MarkRead(ctx context.Context, ids []int64) error {
	if err := c.api.MarkRead(ctx, ids); err != nil {
		c.render.Failure("mark read", err)
		return err
	}
	return c.Load(ctx)
}

func (c *Controller) MarkAllRead(ctx context.Context) error {
	subject := c.session.Subject()
	if subject == "" {
		c.render.RenderPrompt(promptNoSubject)
		return ErrNoSubject
	}
	if err := c.api.MarkAllRead(ctx, subject); err != nil {
		c.render.Failure("mark all read", err)
		return err
	}
	return c.Load(ctx)
}

// Delete removes ids from the cache and the view only when the backend
// confirms at least one deletion. Otherwise both stay unchanged.
func (c *Controller) Delete(ctx context.Context, ids []int64) (int, error) {
	res, err := c.api.Delete(ctx, ids)
	if err == nil && res.Deleted <= 0 {
		err = ErrDeleteRejected
		if res.Message != "" {
			err = fmt.Errorf("%w: %s", ErrDeleteRejected, res.Message)
		}
	}
	if err != nil {
		c.render.Failure("delete", err)
		return 0, err
	}

	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	c.mu.Lock()
	kept := make([]backend.Alert, 0, len(c.cache))
	for _, a := range c.cache {
		if _, ok := drop[a.ID]; !ok {
			kept = append(kept, a)
		}
	}
	c.cache = kept
	c.mu.Unlock()

	c.render.Remove(ids)
	return res.Deleted, nil
}

// Cached returns a copy of the raw cached list.
func (c *Controller) Cached() []backend.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]backend.Alert, len(c.cache))
	copy(out, c.cache)
	return out
}

// LoadUnread renders the notifications view: unread alerts of every cat.
func (c *Controller) LoadUnread(ctx context.Context) ([]backend.Alert, error) {
	c.session.Show(session.ViewNotifications)
	list, err := c.api.Alerts(ctx, backend.AlertQuery{IncludeRead: backend.IncludeRead(false)})
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	c.render.RenderGroup(Group{Alerts: list})
	return list, nil
}

// Open marks alert read and switches to its cat's alert view focused on
// it. A failed mark is logged; the view still opens.
func (c *Controller) Open(ctx context.Context, alert backend.Alert) error {
	if err := c.api.MarkRead(ctx, []int64{alert.ID}); err != nil {
		slog.Warn("mark notification read failed", "alert_id", alert.ID, "err", err)
	}
	c.session.Focus(alert.Cat, alert.ID)
	return c.Load(ctx)
}

// Follow reloads the alert view on every watcher tick until ctx ends.
func (c *Controller) Follow(ctx context.Context, hub subscriber) {
	ch, unsubscribe := hub.Subscribe(8)
	defer unsubscribe()
	c.Watch(ctx, ch)
}

// Watch is Follow over a channel the caller already subscribed, so no
// event published after the subscription is missed.
func (c *Controller) Watch(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Type != events.TypeAlertsChanged || c.session.View() != session.ViewAlerts {
				continue
			}
			if err := c.Load(ctx); err != nil && !errors.Is(err, ErrNoSubject) {
				slog.Warn("alert view refresh failed", "cat", c.session.Subject(), "err", err)
			}
		}
	}
}

func Priority(alertType string) string {
	switch alertType {
	case backend.TypeNoCat, backend.TypeNoEating:
		return PriorityHigh
	case backend.TypeLowExcrete, backend.TypeHighExcrete:
		return PriorityMedium
	case backend.TypeLowSleep, backend.TypeHighSleep:
		return PriorityLow
	default:
		return ""
	}
}
