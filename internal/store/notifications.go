package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

// Notification is one alert surfaced to the user by the watcher.
type Notification struct {
	ID         int64  `json:"id"`
	AlertID    int64  `json:"alertId"`
	Identity   string `json:"identity"`
	Cat        string `json:"cat"`
	AlertType  string `json:"alertType"`
	Message    string `json:"message"`
	NotifiedAt string `json:"notifiedAt"`
}

type NotificationWrite struct {
	AlertID    int64
	Identity   string
	Cat        string
	AlertType  string
	Message    string
	NotifiedAt time.Time
}

func (s *Store) InsertNotification(ctx context.Context, write NotificationWrite) (Notification, error) {
	identity := strings.TrimSpace(write.Identity)
	if identity == "" {
		return Notification{}, fmt.Errorf("identity is required")
	}
	at := write.NotifiedAt.UTC()
	if write.NotifiedAt.IsZero() {
		at = time.Now().UTC()
	}
	out := Notification{
		AlertID:    write.AlertID,
		Identity:   identity,
		Cat:        strings.TrimSpace(write.Cat),
		AlertType:  strings.TrimSpace(write.AlertType),
		Message:    strings.TrimSpace(write.Message),
		NotifiedAt: at.Format(time.RFC3339),
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO notification_log (
		alert_id, identity, cat, alert_type, message, notified_at
	) VALUES (?, ?, ?, ?, ?, ?)`,
		out.AlertID, out.Identity, out.Cat, out.AlertType, out.Message, out.NotifiedAt,
	)
	if err != nil {
		return Notification{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Notification{}, err
	}
	out.ID = id
	return out, nil
}

// ListNotifications returns the newest notifications first. An empty cat
// lists every cat.
func (s *Store) ListNotifications(ctx context.Context, cat string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	cat = strings.TrimSpace(cat)

	rows, err := s.db.QueryContext(ctx, `SELECT
		id, alert_id, identity, cat, alert_type, message, notified_at
	FROM notification_log
	WHERE (? = '' OR cat = ?)
	ORDER BY notified_at DESC, id DESC
	LIMIT ?`, cat, cat, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(
			&item.ID,
			&item.AlertID,
			&item.Identity,
			&item.Cat,
			&item.AlertType,
			&item.Message,
			&item.NotifiedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// PruneNotificationsBefore drops log rows older than the cutoff.
func (s *Store) PruneNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM notification_log WHERE notified_at < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
