package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrSeenNotFound is returned when no payload was saved under a key.
var ErrSeenNotFound = errors.New("seen set not found")

// LoadSeenPayload returns the raw list-encoded payload stored under key.
func (s *Store) LoadSeenPayload(ctx context.Context, key string) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM alert_seen WHERE storage_key = ?",
		strings.TrimSpace(key),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSeenNotFound
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

func (s *Store) SaveSeenPayload(ctx context.Context, key, day, payload string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_seen (storage_key, day, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET
		   day = excluded.day,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		strings.TrimSpace(key), day, payload, at.UTC().Format(time.RFC3339),
	)
	return err
}

// PruneSeenBefore removes every seen set whose day sorts before day.
// Day stamps are YYYY-MM-DD so lexical order is calendar order.
func (s *Store) PruneSeenBefore(ctx context.Context, day string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alert_seen WHERE day < ?", day)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) ListSeenDays(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT day FROM alert_seen ORDER BY day ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, rows.Err()
}
