package domain

import "time"

// DefaultCooldownMinutes applies when a subscription's catalog entry cannot be resolved.
const DefaultCooldownMinutes = 120

// CooldownFor returns the cooldown configured on entry, or the default.
func CooldownFor(entry *VoteURLEntry) time.Duration {
	minutes := DefaultCooldownMinutes
	if entry != nil && entry.CooldownMinutes > 0 {
		minutes = entry.CooldownMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// lastAction is max(LastVotedAt, LastReminderAt); ok is false when neither is set.
func lastAction(s Subscription) (time.Time, bool) {
	var base time.Time
	ok := false
	if s.LastVotedAt != nil {
		base, ok = *s.LastVotedAt, true
	}
	if s.LastReminderAt != nil && (!ok || s.LastReminderAt.After(base)) {
		base, ok = *s.LastReminderAt, true
	}
	return base, ok
}

// Remaining is the time left before another reminder may go out.
// Zero means eligible; a subscription without timestamps is eligible at once.
func Remaining(s Subscription, cooldown time.Duration, now time.Time) time.Duration {
	base, ok := lastAction(s)
	if !ok {
		return 0
	}
	left := base.Add(cooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Eligible is Remaining(...) == 0.
func Eligible(s Subscription, cooldown time.Duration, now time.Time) bool {
	return Remaining(s, cooldown, now) == 0
}
