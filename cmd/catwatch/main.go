package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opus-domini/catwatch/internal/alerts"
	"github.com/opus-domini/catwatch/internal/events"
	"github.com/opus-domini/catwatch/internal/refresh"
	"github.com/opus-domini/catwatch/internal/scheduler"
	"github.com/opus-domini/catwatch/internal/session"
)

const (
	jobCatsRefresh = "cats-refresh"
	jobSeenGC      = "seen-gc"
)

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

type serveOptions struct {
	Cat string
}

func serve(opts serveOptions) int {
	cfg := loadConfigFn()
	initLogger(cfg.LogLevel)

	a, err := openApp(cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := run(ctx, a, opts, os.Stdout, os.Stderr)
	slog.Info("catwatch stopped")
	return exitCode
}

func run(ctx context.Context, a *app, opts serveOptions, out, errOut io.Writer) int {
	sess := session.New()

	watcherService, board := a.newWatcher(out)
	defer board.Close()

	refresher := refresh.New(a.client, sess, refresh.Options{Publish: a.publish})

	jobs := scheduler.New(scheduler.Options{JobTimeout: a.cfg.RequestTimeout})
	if err := jobs.Every(jobCatsRefresh, a.cfg.Refresh.Interval, refresher.Refresh); err != nil {
		slog.Error("schedule cat refresh failed", "err", err)
		return 1
	}
	if err := jobs.Daily(jobSeenGC, a.collectGarbage); err != nil {
		slog.Error("schedule seen gc failed", "err", err)
		return 1
	}

	notices, unsubscribe := a.hub.Subscribe(8)
	defer unsubscribe()
	go printNotices(ctx, notices, out)

	if opts.Cat != "" {
		sess.Select(opts.Cat)
		sess.Show(session.ViewAlerts)
		controller := alerts.NewController(a.client, sess, newTextRenderer(out, errOut))
		updates, stopUpdates := a.hub.Subscribe(8)
		defer stopUpdates()
		if err := controller.Load(ctx); err != nil {
			slog.Warn("alert view load failed", "cat", opts.Cat, "err", err)
		}
		go controller.Watch(ctx, updates)
	}

	if err := jobs.Run(jobCatsRefresh); err != nil {
		slog.Warn("initial cat refresh failed", "err", err)
	}
	if err := jobs.Run(jobSeenGC); err != nil {
		slog.Warn("initial seen gc failed", "err", err)
	}
	jobs.Start()
	for name, next := range jobs.Jobs() {
		slog.Debug("job scheduled", "job", name, "next", next)
	}
	watcherService.Start(ctx)

	slog.Info("catwatch started",
		"api_base", a.cfg.APIBase,
		"data_dir", a.cfg.DataDir,
		"seen_backend", a.cfg.Seen.Backend,
		"interval", a.cfg.Watcher.PollInterval.String(),
		"refresh_interval", a.cfg.Refresh.Interval.String(),
		"cat", opts.Cat,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	watcherService.Stop(stopCtx)
	jobs.Stop(stopCtx)
	return 0
}

// printNotices shows the one-time connectivity notice.
func printNotices(ctx context.Context, ch <-chan events.Event, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Type == events.TypeConnectivityLost {
				printWarning(out, "Cannot reach the cat monitor backend. Check the server and network.")
			}
		}
	}
}

func initLogger(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}
