package commands

import (
	"fmt"
	"strings"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/reminder"
)

func helpText(l reminder.Lang) string {
	return strings.Join([]string{
		l.Pick("Rappels de vote. Commandes :", "Vote reminders. Commands:"),
		"/votes" + l.Pick(" - liste des serveurs", " - list vote targets"),
		"/subscribe <id> <HH:MM-HH:MM> [dm|channel] [Region/City]" + l.Pick(" - s’abonner", " - subscribe"),
		"/edit <id> [HH:MM-HH:MM|allday] [dm|channel] [Region/City] [vote=<id>]" + l.Pick(" - modifier", " - edit"),
		"/status" + l.Pick(" - vos abonnements", " - your subscriptions"),
		"/unsubscribe [id|all]" + l.Pick(" - se désabonner", " - unsubscribe"),
		"/voteurl add|edit|delete|default" + l.Pick(" - gérer les serveurs (admins)", " - manage vote targets (admins)"),
	}, "\n")
}

func timerLabel(l reminder.Lang, st domain.TimerState) string {
	switch {
	case st.Pending:
		return l.Pick("Timer : en attente de programmation", "Timer: waiting to be scheduled")
	case st.FirstAt != "":
		return l.Pick("Timer : premier rappel vers ", "Timer: first reminder around ") + st.FirstAt
	case st.Ready:
		return l.Pick("Timer : prêt", "Timer: ready")
	}
	return "Timer: " + domain.FormatDurationShort(st.Remaining)
}

func modeLabel(l reminder.Lang, sub domain.Subscription, channelRef func(string) string) string {
	if sub.Mode != domain.ModeChannel {
		return l.Pick("MP", "DM")
	}
	if sub.ChannelID == "" {
		return "Ping " + l.Pick("(salon non configuré)", "(channel not set)")
	}
	return "Ping " + channelRef(sub.ChannelID)
}

func windowLabel(l reminder.Lang, w *domain.Window) string {
	if w == nil {
		return l.Pick("toute la journée", "all day")
	}
	return w.Start + "-" + w.End
}

func entryLine(l reminder.Lang, e domain.VoteURLEntry, isDefault bool, channelRef func(string) string) string {
	line := fmt.Sprintf("• %s (%s) | %s %s", e.Label, e.ID, l.Pick("délai", "cooldown"),
		domain.FormatDurationShort(domain.CooldownFor(&e)))
	if e.ChannelID != "" {
		line += " | " + channelRef(e.ChannelID)
	}
	if isDefault {
		line += " | " + l.Pick("par défaut", "default")
	}
	return line
}
