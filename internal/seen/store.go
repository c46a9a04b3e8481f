package seen

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/opus-domini/catwatch/internal/clock"
	"github.com/opus-domini/catwatch/internal/daykey"
	"github.com/opus-domini/catwatch/internal/store"
)

// ErrNotFound is returned by Store.Load when nothing was saved under key.
var ErrNotFound = errors.New("seen set not found")

// Store persists one list-encoded set per storage key.
type Store interface {
	Load(ctx context.Context, key string) (Set, error)
	Save(ctx context.Context, key string, set Set) error
	// Prune drops the sets of every day before day (YYYY-MM-DD).
	Prune(ctx context.Context, before string) (int64, error)
}

type sqliteRepo interface {
	LoadSeenPayload(ctx context.Context, key string) (string, error)
	SaveSeenPayload(ctx context.Context, key, day, payload string, at time.Time) error
	PruneSeenBefore(ctx context.Context, day string) (int64, error)
}

// SQLiteStore keeps seen sets in the local catwatch database. Rows are
// stamped with the clock's time.
type SQLiteStore struct {
	repo  sqliteRepo
	clock clock.Clock
}

func NewSQLiteStore(repo sqliteRepo, c clock.Clock) *SQLiteStore {
	if c == nil {
		c = clock.System{}
	}
	return &SQLiteStore{repo: repo, clock: c}
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Set, error) {
	payload, err := s.repo.LoadSeenPayload(ctx, key)
	if errors.Is(err, store.ErrSeenNotFound) {
		return Set{}, ErrNotFound
	}
	if err != nil {
		return Set{}, err
	}
	return decodeSet(payload)
}

func (s *SQLiteStore) Save(ctx context.Context, key string, set Set) error {
	payload, err := encodeSet(set)
	if err != nil {
		return err
	}
	day, _ := daykey.DayFromStorageKey(key)
	return s.repo.SaveSeenPayload(ctx, key, day, payload, s.clock.Now())
}

func (s *SQLiteStore) Prune(ctx context.Context, before string) (int64, error) {
	return s.repo.PruneSeenBefore(ctx, before)
}

// MemoryStore keeps payloads in process memory. Sets do not survive a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	payloads map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string]string)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Set, error) {
	m.mu.Lock()
	payload, ok := m.payloads[key]
	m.mu.Unlock()
	if !ok {
		return Set{}, ErrNotFound
	}
	return decodeSet(payload)
}

func (m *MemoryStore) Save(_ context.Context, key string, set Set) error {
	payload, err := encodeSet(set)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.payloads[key] = payload
	m.mu.Unlock()
	return nil
}

// SetRaw stores an arbitrary payload under key.
func (m *MemoryStore) SetRaw(key, payload string) {
	m.mu.Lock()
	m.payloads[key] = payload
	m.mu.Unlock()
}

func (m *MemoryStore) Prune(_ context.Context, before string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key := range m.payloads {
		day, ok := daykey.DayFromStorageKey(key)
		if ok && day < before {
			delete(m.payloads, key)
			removed++
		}
	}
	return removed, nil
}
