package domain

import "time"

// Mode selects how a reminder reaches the subscriber.
type Mode string

const (
	ModeDM      Mode = "dm"
	ModeChannel Mode = "channel"
)

// NormalizeMode maps anything but "channel" to ModeDM.
func NormalizeMode(s string) Mode {
	if Mode(s) == ModeChannel {
		return ModeChannel
	}
	return ModeDM
}

// Window is a daily local-time range ("HH:MM", 24h). Start > End wraps past midnight.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Subscription is one subscriber's reminder configuration and delivery state.
type Subscription struct {
	ID                   string
	UserID               string
	VoteURLID            string
	GuildID              string
	Window               *Window
	Mode                 Mode
	ChannelID            string
	Timezone             string // IANA id; empty means the process default
	LastKnownDisplayName string
	LastVotedAt          *time.Time
	LastReminderAt       *time.Time
}

// Clone returns a deep copy so callers never share pointers with the store.
func (s Subscription) Clone() Subscription {
	out := s
	if s.Window != nil {
		w := *s.Window
		out.Window = &w
	}
	if s.LastVotedAt != nil {
		t := *s.LastVotedAt
		out.LastVotedAt = &t
	}
	if s.LastReminderAt != nil {
		t := *s.LastReminderAt
		out.LastReminderAt = &t
	}
	return out
}

// VoteURLEntry is one vote target in the catalog.
type VoteURLEntry struct {
	ID              string `json:"id" yaml:"id" toml:"id"`
	Label           string `json:"label" yaml:"label" toml:"label" validate:"required"`
	URL             string `json:"url" yaml:"url" toml:"url" validate:"required,url"`
	CooldownMinutes int    `json:"cooldownMinutes" yaml:"cooldownMinutes" toml:"cooldownMinutes" validate:"gt=0"`
	ChannelID       string `json:"channelId,omitempty" yaml:"channelId,omitempty" toml:"channelId,omitempty" validate:"omitempty,channelid"`
}

// Millis converts an optional instant to epoch milliseconds.
func Millis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// FromMillis is the inverse of Millis.
func FromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

// TimePtr is a small helper for building optional instants.
func TimePtr(t time.Time) *time.Time { return &t }
