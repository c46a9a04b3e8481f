// Package refresh keeps the cat list current on a fixed interval.
package refresh

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/session"
)

type catSource interface {
	Cats(ctx context.Context) ([]backend.Cat, error)
}

type Options struct {
	Publish func(eventType string, payload map[string]any)
}

type Refresher struct {
	source  catSource
	session *session.Session
	options Options

	mu   sync.RWMutex
	cats []backend.Cat
}

func New(source catSource, sess *session.Session, options Options) *Refresher {
	if sess == nil {
		sess = session.New()
	}
	return &Refresher{source: source, session: sess, options: options}
}

// Refresh fetches the cats once. Failures are returned so the scheduler
// logs them; the first failure of the session also publishes
// connectivity.lost.
func (r *Refresher) Refresh(ctx context.Context) error {
	list, err := r.source.Cats(ctx)
	if err != nil {
		if r.session.ReportFailure(err) {
			slog.Warn("cat monitor backend unreachable", "err", err)
			r.publish(events.TypeConnectivityLost, map[string]any{"error": err.Error()})
		}
		return err
	}
	cats := Dedupe(list)

	r.mu.Lock()
	r.cats = cats
	r.mu.Unlock()

	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	r.publish(events.TypeCatsUpdated, map[string]any{"count": len(cats), "cats": names})
	return nil
}

func (r *Refresher) Cats() []backend.Cat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]backend.Cat, len(r.cats))
	copy(out, r.cats)
	return out
}

// Dedupe keeps the first cat of every name, preserving order. Cats
// without a name are dropped.
func Dedupe(list []backend.Cat) []backend.Cat {
	seen := make(map[string]struct{}, len(list))
	out := make([]backend.Cat, 0, len(list))
	for _, c := range list {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (r *Refresher) publish(eventType string, payload map[string]any) {
	if r.options.Publish != nil {
		r.options.Publish(eventType, payload)
	}
}
