package notify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const (
	EnvTitle = "CATWATCH_TITLE"
	EnvBody  = "CATWATCH_BODY"

	defaultPopupTimeout = 10 * time.Second
)

type PopupOptions struct {
	// Command is a shell snippet run for every popup. The title and body
	// are exported as CATWATCH_TITLE and CATWATCH_BODY.
	Command string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
	Environ func() []string
}

// Popup raises system-level popups through a user supplied command.
// Permission is resolved once per session: it is granted only when the
// command is set and parses as shell.
type Popup struct {
	opts PopupOptions

	permOnce sync.Once
	granted  bool
	program  *syntax.File
}

func NewPopup(opts PopupOptions) *Popup {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPopupTimeout
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	return &Popup{opts: opts}
}

// RequestPermission resolves the permission on first call and returns the
// cached answer afterwards.
func (p *Popup) RequestPermission() bool {
	p.permOnce.Do(func() {
		command := strings.TrimSpace(p.opts.Command)
		if command == "" {
			slog.Debug("popup notifications disabled, no command configured")
			return
		}
		file, err := syntax.NewParser().Parse(strings.NewReader(command), "popup_command")
		if err != nil {
			slog.Warn("popup command rejected", "err", err)
			return
		}
		p.program = file
		p.granted = true
	})
	return p.granted
}

func (p *Popup) Emit(ctx context.Context, n Notification) {
	if !p.RequestPermission() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	env := append(p.opts.Environ(), EnvTitle+"="+n.Title(), EnvBody+"="+n.Message)
	runner, err := interp.New(
		interp.StdIO(nil, p.opts.Stdout, p.opts.Stderr),
		interp.Env(expand.ListEnviron(env...)),
	)
	if err != nil {
		slog.Warn("popup runner setup failed", "err", err)
		return
	}
	if err := runner.Run(ctx, p.program); err != nil {
		slog.Warn("popup command failed", "cat", n.Cat, "alert_id", n.AlertID, "err", err)
	}
}
