package domain

import (
	"fmt"
	"time"
)

// FormatDurationShort renders d as "2h", "1h30m", "5m20s" or "12s".
func FormatDurationShort(d time.Duration) string {
	total := int((d + time.Second - 1) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// TimerState summarizes when the next reminder can go out.
type TimerState struct {
	Ready     bool
	Pending   bool   // no timestamps yet
	FirstAt   string // window start for a never-reminded subscription
	Remaining time.Duration
}

// NextReminder describes the timer of s for status displays.
func NextReminder(s Subscription, cooldown time.Duration, now time.Time) TimerState {
	if _, ok := lastAction(s); !ok {
		if s.Window != nil && s.Window.Start != "" {
			return TimerState{FirstAt: s.Window.Start}
		}
		return TimerState{Pending: true}
	}
	left := Remaining(s, cooldown, now)
	if left == 0 {
		return TimerState{Ready: true}
	}
	return TimerState{Remaining: left}
}
