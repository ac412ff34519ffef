package reminder

import "strings"

// Lang selects the language of user-facing texts.
type Lang string

const (
	LangFR Lang = "fr"
	LangEN Lang = "en"
)

// ParseLang defaults to French, the bot's original audience.
func ParseLang(s string) Lang {
	if strings.EqualFold(strings.TrimSpace(s), "en") {
		return LangEN
	}
	return LangFR
}

// Pick returns fr or en depending on l.
func (l Lang) Pick(fr, en string) string {
	if l == LangEN {
		return en
	}
	return fr
}

func (l Lang) reminderDM() string      { return l.Pick("Rappel de vote !", "Vote reminder!") }
func (l Lang) reminderChannel() string { return l.Pick("Rappel de vote", "Vote reminder") }
func (l Lang) voteNow() string         { return l.Pick("Voter maintenant", "Vote now") }
func (l Lang) resetTimer() string      { return l.Pick("Relancer le timer", "Reset timer") }
