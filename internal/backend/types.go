package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Alert types emitted by the monitoring backend.
const (
	TypeNoCat       = "no_cat"
	TypeNoEating    = "no_eating"
	TypeLowExcrete  = "low_excrete"
	TypeHighExcrete = "high_excrete"
	TypeLowSleep    = "low_sleep"
	TypeHighSleep   = "high_sleep"
)

// Series names returned by /api/statistics.
const (
	SeriesEatCount     = "eatCount"
	SeriesSleepMinutes = "sleepMinutes"
	SeriesExcreteCount = "excreteCount"
)

type Cat struct {
	Name        string `json:"name"`
	ImageURL    string `json:"image_url"`
	CurrentRoom string `json:"current_room"`
	Status      string `json:"status,omitempty"`
}

type Camera struct {
	Label string `json:"label"`
	Index int    `json:"index"`
}

type Room struct {
	Name    string   `json:"name"`
	Cameras []Camera `json:"cameras"`
}

// Alert is one detected condition for one cat. The client never creates
// alerts; it only observes, flags and deletes them.
type Alert struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Cat       string    `json:"cat"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64           `json:"id"`
		Type      string          `json:"type"`
		Cat       string          `json:"cat"`
		Message   string          `json:"message"`
		CreatedAt string          `json:"created_at"`
		IsRead    json.RawMessage `json:"is_read"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	isRead, err := decodeFlag(raw.IsRead)
	if err != nil {
		return fmt.Errorf("alert %d is_read: %w", raw.ID, err)
	}
	*a = Alert{
		ID:        raw.ID,
		Type:      raw.Type,
		Cat:       raw.Cat,
		Message:   raw.Message,
		CreatedAt: parseCreatedAt(raw.CreatedAt),
		IsRead:    isRead,
	}
	return nil
}

// decodeFlag accepts true/false, 0/1 and their string forms.
func decodeFlag(raw json.RawMessage) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n != 0, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		if v, perr := strconv.ParseBool(strings.TrimSpace(s)); perr == nil {
			return v, nil
		}
	}
	return false, fmt.Errorf("unsupported flag value %s", string(trimmed))
}

func parseCreatedAt(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type AlertQuery struct {
	Cat         string
	IncludeRead *bool
}

// IncludeRead is a helper for building AlertQuery literals.
func IncludeRead(v bool) *bool { return &v }

type DeleteResult struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message,omitempty"`
}

type StatisticsParams struct {
	Cat       string
	Period    string
	Year      string
	Month     string
	StartYear string
	EndYear   string
}

type StatisticsSummary struct {
	TotalSleepHours   float64 `json:"totalSleepHours"`
	TotalEatCount     float64 `json:"totalEatCount"`
	TotalExcreteCount float64 `json:"totalExcreteCount"`
}

// Statistics is the raw, possibly sparse series answered by the backend.
type Statistics struct {
	Labels  []string             `json:"labels"`
	Series  map[string][]float64 `json:"series"`
	Summary StatisticsSummary    `json:"summary"`
}
