package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/clock"
	"github.com/opus-domini/catwatch/internal/config"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/notify"
	"github.com/opus-domini/catwatch/internal/seen"
	"github.com/opus-domini/catwatch/internal/store"
	"github.com/opus-domini/catwatch/internal/watcher"
)

// app holds the dependencies shared by serve and the one-shot commands.
type app struct {
	cfg     config.Config
	clock   clock.Clock
	client  *backend.Client
	store   *store.Store
	seen    seen.Store
	tracker *seen.Tracker
	hub     *events.Hub
	redis   *redis.Client
}

func openApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := store.New(filepath.Join(cfg.DataDir, store.DefaultFileName))
	if err != nil {
		return nil, fmt.Errorf("store init: %w", err)
	}
	a := &app{
		cfg:   cfg,
		clock: clock.System{},
		client: backend.New(backend.Options{
			BaseURL: cfg.APIBase,
			Timeout: cfg.RequestTimeout,
		}),
		store: st,
		hub:   events.NewHub(),
	}

	switch cfg.Seen.Backend {
	case config.SeenBackendRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Seen.RedisAddr})
		a.seen = seen.NewRedisStore(a.redis, time.Duration(cfg.Seen.RetentionDays)*24*time.Hour)
	case config.SeenBackendMemory:
		a.seen = seen.NewMemoryStore()
	default:
		a.seen = seen.NewSQLiteStore(st, a.clock)
	}
	a.tracker = seen.NewTracker(a.seen, a.clock)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.store.Close()
}

func (a *app) publish(eventType string, payload map[string]any) {
	a.hub.Publish(events.NewEvent(eventType, payload))
}

// newWatcher wires popups and toasts written to out into the alert
// watcher. The board must be closed by the caller.
func (a *app) newWatcher(out io.Writer) (*watcher.Service, *notify.ToastBoard) {
	popup := notify.NewPopup(notify.PopupOptions{
		Command: a.cfg.Notify.PopupCommand,
		Stderr:  out,
	})
	popup.RequestPermission()
	board := notify.NewToastBoard(notify.ToastOptions{
		Out:        out,
		Duration:   a.cfg.Notify.ToastDuration,
		MaxVisible: a.cfg.Notify.ToastMaxVisible,
	})
	svc := watcher.New(a.client, a.tracker, watcher.Options{
		PollInterval: a.cfg.Watcher.PollInterval,
		MaxBackoff:   a.cfg.Watcher.MaxBackoff,
		Emitter:      notify.Fanout{popup, board},
		Publish:      a.publish,
		Record:       a.recordNotification,
	})
	return svc, board
}

func (a *app) recordNotification(ctx context.Context, identity string, n notify.Notification) {
	if _, err := a.store.InsertNotification(ctx, store.NotificationWrite{
		AlertID:    n.AlertID,
		Identity:   identity,
		Cat:        n.Cat,
		AlertType:  n.Type,
		Message:    n.Message,
		NotifiedAt: n.At,
	}); err != nil {
		slog.Warn("notification log write failed", "alert_id", n.AlertID, "err", err)
	}
}

// collectGarbage drops seen sets and notification log rows older than the
// retention window.
func (a *app) collectGarbage(ctx context.Context) error {
	days := a.cfg.Seen.RetentionDays
	removed, err := a.tracker.Prune(ctx, days)
	if err != nil {
		return fmt.Errorf("prune seen sets: %w", err)
	}
	cutoff := a.clock.Now().AddDate(0, 0, -days)
	logged, err := a.store.PruneNotificationsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune notification log: %w", err)
	}
	slog.Info("seen state pruned", "count", removed, "log_rows", logged)
	return nil
}
