// Package events fans watcher and refresher state changes out to views.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	TypeAlertsChanged    = "alerts.changed"
	TypeAlertNotified    = "alerts.notified"
	TypeAlertsBadge      = "alerts.badge"
	TypeCatsUpdated      = "cats.updated"
	TypeConnectivityLost = "connectivity.lost"
)

const defaultBuffer = 16

type Event struct {
	EventID   int64          `json:"eventId"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func NewEvent(eventType string, payload map[string]any) Event {
	return Event{Type: eventType, Timestamp: now(), Payload: payload}
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

type subscription struct {
	ch   chan Event
	once sync.Once
}

// Hub delivers each published event to every subscriber without blocking.
// A subscriber whose buffer is full misses the event; Dropped counts them.
type Hub struct {
	mu      sync.RWMutex
	seq     int64
	subs    map[*subscription]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	sub := &subscription{ch: make(chan Event, buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish stamps event with the next sequence id and a timestamp when
// missing, then offers it to every subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	event.EventID = h.seq
	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
