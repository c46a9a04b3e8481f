package daykey

import (
	"testing"
	"time"

	"github.com/opus-domini/catwatch/internal/backend"
	"github.com/opus-domini/catwatch/internal/clock"
)

func TestTodayStampUsesLocalCalendarDay(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ICT", 7*3600)
	c := clock.NewManual(time.Date(2025, 9, 22, 23, 30, 0, 0, loc))
	if got := TodayStamp(c); got != "2025-09-22" {
		t.Fatalf("TodayStamp = %q, want 2025-09-22", got)
	}
}

func TestSeenStorageKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key := SeenStorageKey("2025-09-22")
	if key != "alerts_seen_2025-09-22" {
		t.Fatalf("SeenStorageKey = %q", key)
	}
	day, ok := DayFromStorageKey(key)
	if !ok || day != "2025-09-22" {
		t.Fatalf("DayFromStorageKey = %q, %v", day, ok)
	}
	if _, ok := DayFromStorageKey("other_2025-09-22"); ok {
		t.Fatal("foreign key should not parse")
	}
}

func TestAlertIdentityKeyUsesObservationDay(t *testing.T) {
	t.Parallel()

	c := clock.NewManual(time.Date(2025, 9, 23, 8, 0, 0, 0, time.Local))
	alert := backend.Alert{
		ID:        11,
		Type:      backend.TypeNoCat,
		Cat:       "Milo",
		Message:   "Milo not seen for 6 hours",
		CreatedAt: time.Date(2025, 9, 22, 21, 0, 0, 0, time.Local),
	}
	want := "2025-09-23|no_cat|Milo|Milo not seen for 6 hours"
	if got := AlertIdentityKey(c, alert); got != want {
		t.Fatalf("AlertIdentityKey = %q, want %q", got, want)
	}

	other := alert
	other.ID = 12
	if AlertIdentityKey(c, other) != AlertIdentityKey(c, alert) {
		t.Fatal("identity key must not depend on backend id")
	}
}
