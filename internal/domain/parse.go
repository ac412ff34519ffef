package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTime      = errors.New("invalid time")
	ErrInvalidWindow    = errors.New("invalid window")
	ErrInvalidURL       = errors.New("invalid url")
	ErrInvalidChannelID = errors.New("invalid channel id")
	ErrInvalidCooldown  = errors.New("invalid cooldown")
)

var (
	clockRe     = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	channelIDRe = regexp.MustCompile(`^-?\d{5,21}$`)
)

// CooldownChoices are the cooldowns offered when a vote URL is created.
var CooldownChoices = []int{60, 120, 180, 240, 720, 1440}

// ParseClock parses a strict 24h "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}

// IsHalfHour reports whether s is a valid clock time on :00 or :30.
func IsHalfHour(s string) bool {
	if _, err := ParseClock(s); err != nil {
		return false
	}
	return strings.HasSuffix(s, ":00") || strings.HasSuffix(s, ":30")
}

// ParseWindow parses "HH:MM-HH:MM" (or with an en dash) into a Window.
// Both bounds must sit on a half hour.
func ParseWindow(s string) (*Window, error) {
	s = strings.TrimSpace(s)
	sep := "–"
	if strings.Contains(s, "-") && !strings.Contains(s, "–") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected HH:MM-HH:MM", ErrInvalidWindow)
	}
	w := &Window{Start: strings.TrimSpace(parts[0]), End: strings.TrimSpace(parts[1])}
	if err := ValidateWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

// ValidateWindow checks that both bounds sit on a half hour. A nil window is valid.
func ValidateWindow(w *Window) error {
	if w == nil {
		return nil
	}
	if !IsHalfHour(w.Start) || !IsHalfHour(w.End) {
		return fmt.Errorf("%w: times must be HH:MM in 30-minute steps", ErrInvalidWindow)
	}
	return nil
}

// NormalizeWindow drops windows with a missing bound.
func NormalizeWindow(w *Window) *Window {
	if w == nil || w.Start == "" || w.End == "" {
		return nil
	}
	return &Window{Start: w.Start, End: w.End}
}

// ValidateTZ checks that the tz is a valid IANA location.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return loc.String(), nil
}

// ValidateURL requires an absolute URL with a scheme and host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// NormalizeChannelID strips mention decoration ("<#123>") and checks the id is numeric.
// Empty input yields an empty id.
func NormalizeChannelID(raw string) (string, error) {
	id := strings.NewReplacer("<", "", "#", "", ">", "").Replace(strings.TrimSpace(raw))
	if id == "" {
		return "", nil
	}
	if !IsChannelID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelID, raw)
	}
	return id, nil
}

// IsChannelID accepts Discord snowflakes and Telegram chat ids.
func IsChannelID(id string) bool {
	return channelIDRe.MatchString(id)
}

// ParseCooldown accepts minutes ("120") or hours ("2h", "2 heures").
func ParseCooldown(s string) (int, error) {
	n := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if n == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCooldown)
	}
	digits := n
	for i, r := range n {
		if r < '0' || r > '9' {
			digits = n[:i]
			break
		}
	}
	minutes, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCooldown, s)
	}
	switch suffix := n[len(digits):]; suffix {
	case "", "m", "min", "minutes":
	case "h", "heure", "heures", "hour", "hours":
		minutes *= 60
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCooldown, s)
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidCooldown)
	}
	return minutes, nil
}

// IsCooldownChoice reports whether minutes is one of CooldownChoices.
func IsCooldownChoice(minutes int) bool {
	for _, c := range CooldownChoices {
		if c == minutes {
			return true
		}
	}
	return false
}
