package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultToastDuration = 6 * time.Second

type Toast struct {
	ID      string
	Text    string
	Created time.Time
}

type ToastOptions struct {
	Out      io.Writer
	Duration time.Duration
	// MaxVisible caps the stack; the oldest toast is evicted first. Zero
	// means unlimited.
	MaxVisible int
}

// ToastBoard is a stack of transient in-terminal toasts.
type ToastBoard struct {
	opts ToastOptions

	mu     sync.Mutex
	toasts []Toast
	timers map[string]*time.Timer
}

func NewToastBoard(opts ToastOptions) *ToastBoard {
	if opts.Duration <= 0 {
		opts.Duration = DefaultToastDuration
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.MaxVisible < 0 {
		opts.MaxVisible = 0
	}
	return &ToastBoard{opts: opts, timers: make(map[string]*time.Timer)}
}

func ToastText(n Notification) string {
	return fmt.Sprintf("🚨 %s: %s", n.Cat, n.Message)
}

func (b *ToastBoard) Emit(_ context.Context, n Notification) {
	b.Add(ToastText(n))
}

// Add pushes a toast and schedules its removal. It returns the toast id.
func (b *ToastBoard) Add(text string) string {
	toast := Toast{ID: uuid.NewString(), Text: text, Created: time.Now()}

	b.mu.Lock()
	b.toasts = append(b.toasts, toast)
	b.timers[toast.ID] = time.AfterFunc(b.opts.Duration, func() { b.Remove(toast.ID) })
	if b.opts.MaxVisible > 0 {
		for len(b.toasts) > b.opts.MaxVisible {
			b.dropLocked(b.toasts[0].ID)
		}
	}
	b.mu.Unlock()

	_, _ = fmt.Fprintln(b.opts.Out, text)
	return toast.ID
}

func (b *ToastBoard) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropLocked(id)
}

func (b *ToastBoard) dropLocked(id string) bool {
	if timer, ok := b.timers[id]; ok {
		timer.Stop()
		delete(b.timers, id)
	}
	for i, t := range b.toasts {
		if t.ID == id {
			b.toasts = append(b.toasts[:i], b.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Visible returns the current stack, oldest first.
func (b *ToastBoard) Visible() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Toast, len(b.toasts))
	copy(out, b.toasts)
	return out
}

// Close cancels every pending removal and clears the board.
func (b *ToastBoard) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, timer := range b.timers {
		timer.Stop()
		delete(b.timers, id)
	}
	b.toasts = nil
}
