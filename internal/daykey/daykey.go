// Package daykey derives calendar-day stamps and the per-day identity
// keys used to deduplicate alert notifications.
package daykey

import (
	"strings"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/clock"
)

const (
	DayLayout     = "2006-01-02"
	seenKeyPrefix = "alerts_seen_"
)

// TodayStamp returns the clock's current local date as YYYY-MM-DD.
func TodayStamp(c clock.Clock) string {
	return c.Now().Format(DayLayout)
}

// SeenStorageKey namespaces the persisted seen-set of one calendar day.
func SeenStorageKey(day string) string {
	return seenKeyPrefix + day
}

// DayFromStorageKey reverses SeenStorageKey.
func DayFromStorageKey(key string) (string, bool) {
	day, ok := strings.CutPrefix(key, seenKeyPrefix)
	if !ok || day == "" {
		return "", false
	}
	return day, true
}

// AlertIdentityKey returns day|type|cat|message. The day is the one the
// alert is observed on, not the day the backend created it.
func AlertIdentityKey(c clock.Clock, alert backend.Alert) string {
	return IdentityKeyForDay(TodayStamp(c), alert)
}

func IdentityKeyForDay(day string, alert backend.Alert) string {
	return day + "|" + alert.Type + "|" + alert.Cat + "|" + alert.Message
}
