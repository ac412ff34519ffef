package domain

import "time"

// MinuteOfDay returns the wall-clock minutes since midnight of t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// LocalDay returns t's calendar date in loc as YYYY-MM-DD.
func LocalDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// InWindow reports whether now falls inside w in the given location.
// A nil window is always open. Both bounds are inclusive; Start > End
// describes an overnight window such as 22:00-06:00.
func InWindow(now time.Time, w *Window, loc *time.Location) bool {
	if w == nil {
		return true
	}
	startM, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	endM, err := ParseClock(w.End)
	if err != nil {
		return false
	}
	return inWindowMinutes(MinuteOfDay(now, loc), startM, endM)
}

func inWindowMinutes(m, startM, endM int) bool {
	if startM <= endM {
		return m >= startM && m <= endM
	}
	// wrap: [start..24h) U [0..end]
	return m >= startM || m <= endM
}

// LoadLocation resolves tz, falling back to fallback and finally UTC.
func LoadLocation(tz, fallback string) *time.Location {
	for _, name := range []string{tz, fallback} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
