// Package scheduler runs the named background jobs of catwatch on cron
// schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultJobTimeout = 30 * time.Second

var ErrUnknownJob = errors.New("unknown job")

// Job is one unit of scheduled work. Errors are logged, never fatal.
type Job func(ctx context.Context) error

type Options struct {
	JobTimeout time.Duration
	Location   *time.Location
}

// Service wraps a cron runner; jobs still running when their next slot
// arrives are skipped.
type Service struct {
	cron *cron.Cron
	opts Options

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]cron.EntryID

	startOnce sync.Once
	stopOnce  sync.Once

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(opts Options) *Service {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := slogLogger{}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Service{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		opts:      opts,
		jobs:      make(map[string]Job),
		entries:   make(map[string]cron.EntryID),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
}

// Every schedules fn at a fixed interval. Cron resolution is one second.
func (s *Service) Every(name string, interval time.Duration, fn Job) error {
	if interval < time.Second {
		return fmt.Errorf("job %s: interval %v below 1s", name, interval)
	}
	return s.add(name, "@every "+interval.String(), fn)
}

// Daily schedules fn at local midnight.
func (s *Service) Daily(name string, fn Job) error {
	return s.add(name, "@daily", fn)
}

func (s *Service) add(name, spec string, fn Job) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("job name and func are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := s.run(name, fn); err != nil {
			slog.Warn("scheduled job failed", "job", name, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.jobs[name] = fn
	s.entries[name] = id
	return nil
}

// Run executes a registered job immediately, outside its schedule.
func (s *Service) Run(name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(name, fn)
}

func (s *Service) run(name string, fn Job) error {
	ctx, cancel := context.WithTimeout(s.runCtx, s.opts.JobTimeout)
	defer cancel()
	started := time.Now()
	err := fn(ctx)
	slog.Debug("job finished", "job", name, "duration", time.Since(started))
	return err
}

// Jobs lists registered job names with their next run time.
func (s *Service) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

func (s *Service) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) Start() {
	if s == nil {
		return
	}
	s.startOnce.Do(s.cron.Start)
}

// Stop halts the schedule, cancels running jobs and waits for them until
// ctx expires.
func (s *Service) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		s.runCancel()
		select {
		case <-done.Done():
		case <-ctx.Done():
		}
	})
}

// slogLogger routes cron's logr-style output to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Warn("cron "+msg, append(keysAndValues, "err", err)...)
}
