// Package notify delivers best-effort alert notifications to the system
// popup command and to the in-terminal toast board.
package notify

import (
	"context"
	"time"
)

// Notification is one new alert surfaced to the user.
type Notification struct {
	AlertID int64
	Type    string
	Cat     string
	Message string
	At      time.Time
}

func (n Notification) Title() string {
	return "Cat Alert: " + n.Cat
}

// Emitter never reports failures; delivery is best-effort.
type Emitter interface {
	Emit(ctx context.Context, n Notification)
}

// Fanout emits to every emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, n Notification) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, n)
		}
	}
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, n Notification)

func (f EmitterFunc) Emit(ctx context.Context, n Notification) { f(ctx, n) }
