package quota

import (
	"testing"
	"time"
)

func TestNextResetAt(t *testing.T) {
	tests := []struct {
		name    string
		current time.Time
		want    time.Time
	}{
		{"mid month", time.Date(2026, time.March, 15, 13, 45, 0, 0, time.UTC), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{"first instant", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{"thirty first never skips a month", time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)},
		{"december rolls the year", time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC), time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{"leap day lands on march first", time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC), time.Date(2028, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{"non utc input is normalized", time.Date(2026, time.May, 31, 23, 0, 0, 0, time.FixedZone("x", -5*3600)), time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextResetAt(tt.current)
			if !got.Equal(tt.want) {
				t.Fatalf("NextResetAt(%s) = %s, want %s", tt.current, got, tt.want)
			}
		})
	}
}

func TestNextResetAfter_SkipsElapsedCycles(t *testing.T) {
	current := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, time.February, 10, 8, 0, 0, 0, time.UTC)

	got := NextResetAfter(current, now)
	want := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if !got.After(now) {
		t.Fatalf("expected next reset after now")
	}
}

func TestNextResetAfter_ExactBoundaryMovesForward(t *testing.T) {
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	got := NextResetAfter(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), now)
	if !got.Equal(time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected %s", got)
	}
}

func TestRemaining(t *testing.T) {
	if got := (&QuotaAccount{Used: 3, Limit: 10}).Remaining(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := (&QuotaAccount{Used: 12, Limit: 10}).Remaining(); got != 0 {
		t.Fatalf("expected 0 when over limit, got %d", got)
	}
}
