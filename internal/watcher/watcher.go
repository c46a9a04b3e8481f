// Package watcher polls the backend for alerts and notifies each new
// alert identity once per calendar day.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/daykey"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/notify"
	"github.com/opus-domini/catwatch/internal/seen"
)

const (
	DefaultPollInterval = 60 * time.Second
	DefaultMaxBackoff   = 10 * time.Minute
)

type alertSource interface {
	Alerts(ctx context.Context, q backend.AlertQuery) ([]backend.Alert, error)
}

type Options struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration
	Emitter      notify.Emitter
	Publish      func(eventType string, payload map[string]any)
	// Record is called for every notified alert with its identity key.
	Record func(ctx context.Context, identity string, n notify.Notification)
}

type TickResult struct {
	Day      string
	Fetched  int
	Notified int
	Changed  bool
}

type Service struct {
	source  alertSource
	tracker *seen.Tracker
	options Options

	mu       sync.Mutex
	set      seen.Set
	day      string
	loaded   bool
	failures int

	runMu  sync.Mutex
	stopFn context.CancelFunc
	doneCh chan struct{}
}

func New(source alertSource, tracker *seen.Tracker, options Options) *Service {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.MaxBackoff < options.PollInterval {
		options.MaxBackoff = max(DefaultMaxBackoff, options.PollInterval)
	}
	return &Service{
		source:  source,
		tracker: tracker,
		options: options,
	}
}

// Start runs the poll loop, ticking once immediately. A loop that is
// already running is stopped first.
func (s *Service) Start(parent context.Context) {
	if s == nil {
		return
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked(context.Background())

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.stopFn = cancel
	s.doneCh = done

	go func() {
		defer close(done)
		for {
			delay := s.options.PollInterval
			if _, err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				delay = s.failureDelay()
				slog.Warn("alert poll failed", "err", err, "interval", delay)
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// Stop cancels the loop and waits for it until ctx expires. It is safe to
// call repeatedly.
func (s *Service) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.stopFn == nil {
		return
	}
	s.stopFn()
	select {
	case <-s.doneCh:
	case <-ctx.Done():
	}
	s.stopFn = nil
	s.doneCh = nil
}

// Tick performs one poll. Fetch errors leave the seen set untouched.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	alerts, err := s.source.Alerts(ctx, backend.AlertQuery{})
	if err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		return TickResult{}, err
	}

	s.mu.Lock()
	s.failures = 0
	s.ensureDayLocked(ctx)
	day := s.day

	var fresh []notify.Notification
	var identities []string
	for _, alert := range alerts {
		identity := daykey.IdentityKeyForDay(day, alert)
		if !s.set.Add(identity) {
			continue
		}
		identities = append(identities, identity)
		fresh = append(fresh, notify.Notification{
			AlertID: alert.ID,
			Type:    alert.Type,
			Cat:     alert.Cat,
			Message: alert.Message,
			At:      s.tracker.Now(),
		})
	}
	result := TickResult{Day: day, Fetched: len(alerts), Notified: len(fresh), Changed: len(fresh) > 0}
	if result.Changed {
		if err := s.tracker.Save(ctx, day, s.set); err != nil {
			slog.Warn("seen set save failed", "day", day, "err", err)
		}
	}
	s.mu.Unlock()

	for i, n := range fresh {
		if s.options.Emitter != nil {
			s.options.Emitter.Emit(ctx, n)
		}
		if s.options.Record != nil {
			s.options.Record(ctx, identities[i], n)
		}
		s.publish(events.TypeAlertNotified, map[string]any{
			"alertId": n.AlertID,
			"cat":     n.Cat,
			"type":    n.Type,
			"message": n.Message,
		})
	}
	s.publish(events.TypeAlertsBadge, map[string]any{"count": len(alerts)})
	s.publish(events.TypeAlertsChanged, map[string]any{"notified": len(fresh)})
	return result, nil
}

// ensureDayLocked loads the current day's set on first use and starts an
// empty one when the calendar day moved.
func (s *Service) ensureDayLocked(ctx context.Context) {
	if s.loaded && !s.tracker.RolledOver(s.day) {
		return
	}
	if s.loaded {
		slog.Info("seen set rolled over", "day", s.tracker.Day())
	}
	s.set, s.day = s.tracker.Load(ctx)
	s.loaded = true
}

// Seen reports the identities notified today.
func (s *Service) Seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Sorted()
}

func (s *Service) failureDelay() time.Duration {
	s.mu.Lock()
	failures := s.failures
	s.mu.Unlock()
	return nextDelay(s.options.PollInterval, s.options.MaxBackoff, failures)
}

// nextDelay doubles base for every consecutive failure, capped at limit.
func nextDelay(base, limit time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}

func (s *Service) publish(eventType string, payload map[string]any) {
	if s.options.Publish != nil {
		s.options.Publish(eventType, payload)
	}
}
