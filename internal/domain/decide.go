package domain

import "time"

// Reason explains a scheduling decision; it is logged at debug level.
type Reason string

const (
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonWaitingForStart Reason = "waiting_for_window_start"
	ReasonCooldown        Reason = "cooldown"
	ReasonAlreadySent     Reason = "already_sent_today"
	ReasonFirstOfDay      Reason = "first_of_day"
	ReasonVotedAgain      Reason = "voted_since_last_reminder"
)

// Decision is the outcome of evaluating one subscription at one tick.
type Decision struct {
	Fire   bool
	Reason Reason
}

// Decide applies the per-tick rules for a subscription:
//   - outside its window nothing happens;
//   - the first reminder of a local day fires only on the exact window start minute
//     (or on any tick when there is no window);
//   - once a reminder went out today, another one needs a vote newer than that
//     reminder and an elapsed cooldown.
//
// The cooldown gate applies to every fire.
func Decide(s Subscription, cooldown time.Duration, now time.Time, loc *time.Location) Decision {
	if !InWindow(now, s.Window, loc) {
		return Decision{Reason: ReasonOutsideWindow}
	}

	today := LocalDay(now, loc)
	sentToday := s.LastReminderAt != nil && LocalDay(*s.LastReminderAt, loc) == today

	if !sentToday {
		if s.Window != nil {
			startM, err := ParseClock(s.Window.Start)
			if err != nil || MinuteOfDay(now, loc) != startM {
				return Decision{Reason: ReasonWaitingForStart}
			}
		}
		if !Eligible(s, cooldown, now) {
			return Decision{Reason: ReasonCooldown}
		}
		return Decision{Fire: true, Reason: ReasonFirstOfDay}
	}

	if s.LastVotedAt == nil || !s.LastVotedAt.After(*s.LastReminderAt) {
		return Decision{Reason: ReasonAlreadySent}
	}
	if !Eligible(s, cooldown, now) {
		return Decision{Reason: ReasonCooldown}
	}
	return Decision{Fire: true, Reason: ReasonVotedAgain}
}
