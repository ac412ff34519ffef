package domain

import (
	"testing"
	"time"
)

// helper: build a time in given tz and return its UTC
func mustLocalUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func mustLoc(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestInWindow_NilWindowAlwaysOpen(t *testing.T) {
	now := mustLocalUTC(t, "Europe/Paris", 2025, time.May, 5, 3, 17)
	if !InWindow(now, nil, mustLoc(t, "Europe/Paris")) {
		t.Fatal("nil window must be open")
	}
}

func TestInWindow_Table(t *testing.T) {
	const tz = "Europe/Paris"
	loc := mustLoc(t, tz)
	cases := []struct {
		name   string
		w      Window
		hh, mm int
		want   bool
	}{
		{"day start inclusive", Window{"09:00", "22:00"}, 9, 0, true},
		{"day end inclusive", Window{"09:00", "22:00"}, 22, 0, true},
		{"day before start", Window{"09:00", "22:00"}, 8, 59, false},
		{"day after end", Window{"09:00", "22:00"}, 22, 1, false},
		{"overnight evening", Window{"22:00", "06:00"}, 23, 30, true},
		{"overnight morning", Window{"22:00", "06:00"}, 5, 59, true},
		{"overnight end inclusive", Window{"22:00", "06:00"}, 6, 0, true},
		{"overnight midday", Window{"22:00", "06:00"}, 7, 0, false},
		{"single minute", Window{"12:30", "12:30"}, 12, 30, true},
		{"single minute miss", Window{"12:30", "12:30"}, 12, 31, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.w
			now := mustLocalUTC(t, tz, 2025, time.May, 5, tc.hh, tc.mm)
			if got := InWindow(now, &w, loc); got != tc.want {
				t.Fatalf("InWindow(%02d:%02d, %s-%s) = %v, want %v", tc.hh, tc.mm, w.Start, w.End, got, tc.want)
			}
		})
	}
}

func TestInWindow_ExhaustiveMinutes(t *testing.T) {
	for _, bounds := range [][2]int{{9 * 60, 22 * 60}, {22 * 60, 6 * 60}, {0, 1439}, {1439, 0}} {
		start, end := bounds[0], bounds[1]
		for m := 0; m < 1440; m++ {
			var want bool
			if start <= end {
				want = start <= m && m <= end
			} else {
				want = m >= start || m <= end
			}
			if got := inWindowMinutes(m, start, end); got != want {
				t.Fatalf("start=%d end=%d m=%d: got %v want %v", start, end, m, got, want)
			}
		}
	}
}

func TestInWindow_UsesTimezone(t *testing.T) {
	w := &Window{Start: "09:00", End: "10:00"}
	// 09:30 in Tokyo is 00:30 UTC.
	now := mustLocalUTC(t, "Asia/Tokyo", 2025, time.May, 5, 9, 30)
	if !InWindow(now, w, mustLoc(t, "Asia/Tokyo")) {
		t.Fatal("expected inside window in Asia/Tokyo")
	}
	if InWindow(now, w, time.UTC) {
		t.Fatal("expected outside window in UTC")
	}
}

func TestInWindow_MalformedBoundIsClosed(t *testing.T) {
	now := mustLocalUTC(t, "UTC", 2025, time.May, 5, 12, 0)
	if InWindow(now, &Window{Start: "9h", End: "22:00"}, time.UTC) {
		t.Fatal("malformed window must never be open")
	}
}

func TestLoadLocation_Fallbacks(t *testing.T) {
	if got := LoadLocation("Asia/Tokyo", "Europe/Paris").String(); got != "Asia/Tokyo" {
		t.Fatalf("want Asia/Tokyo, got %s", got)
	}
	if got := LoadLocation("Not/AZone", "Europe/Paris").String(); got != "Europe/Paris" {
		t.Fatalf("want Europe/Paris, got %s", got)
	}
	if got := LoadLocation("", ""); got != time.UTC {
		t.Fatalf("want UTC, got %s", got)
	}
}
