// Package commands implements the text commands shared by every transport.
package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/catalog"
	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/reminder"
	"github.com/MrDDream/ReminderVoteBot/internal/store"
)

// Request is an incoming chat message.
type Request struct {
	UserID      string
	GuildID     string
	DisplayName string
	Text        string
}

type Options struct {
	Lang      reminder.Lang
	DefaultTZ string
	// ChannelRef renders a channel id for display; defaults to a Discord mention.
	ChannelRef func(channelID string) string
	// Admins may edit the vote catalog with /voteurl.
	Admins []string
}

type Handler struct {
	svc  *reminder.Service
	opts Options
	log  *zap.Logger
}

func New(svc *reminder.Service, log *zap.Logger, opts Options) *Handler {
	if opts.ChannelRef == nil {
		opts.ChannelRef = func(id string) string { return "<#" + id + ">" }
	}
	return &Handler{svc: svc, opts: opts, log: log}
}

// Handle answers req. ok is false when the text is not a command.
func (h *Handler) Handle(ctx context.Context, req Request) (reply string, ok bool) {
	fields := strings.Fields(req.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	// Telegram appends @botname to commands in groups.
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	switch cmd {
	case "/start", "/help":
		return helpText(h.opts.Lang), true
	case "/votes":
		return h.votes(), true
	case "/subscribe":
		return h.subscribe(ctx, req, args), true
	case "/edit":
		return h.edit(ctx, req.UserID, args), true
	case "/status":
		return h.status(req.UserID), true
	case "/unsubscribe":
		return h.unsubscribe(ctx, req.UserID, args), true
	case "/voteurl":
		if !slices.Contains(h.opts.Admins, req.UserID) {
			return h.opts.Lang.Pick("Commande réservée aux administrateurs.", "Admins only."), true
		}
		return h.voteURL(ctx, req.UserID, args), true
	}
	return "", false
}

func (h *Handler) votes() string {
	l := h.opts.Lang
	cat := h.svc.Catalog()
	entries := cat.Entries()
	if len(entries) == 0 {
		return l.Pick("Aucune URL de vote configurée.", "No vote URL configured.")
	}
	def, _ := cat.Default()
	lines := []string{l.Pick("Serveurs disponibles :", "Available vote targets:")}
	for _, e := range entries {
		lines = append(lines, entryLine(l, e, e.ID == def.ID, h.opts.ChannelRef))
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) subscribe(ctx context.Context, req Request, args []string) string {
	l := h.opts.Lang
	if len(args) < 2 {
		return l.Pick("Usage : /subscribe <id> <HH:MM-HH:MM> [dm|channel] [Region/City]",
			"Usage: /subscribe <id> <HH:MM-HH:MM> [dm|channel] [Region/City]")
	}
	w, err := domain.ParseWindow(args[1])
	if err != nil {
		return l.Pick("Les horaires doivent être au format HH:MM et multiples de 30 minutes.",
			"Times must be HH:MM and in 30-minute increments.")
	}
	mode := domain.ModeDM
	tz := ""
	for _, a := range args[2:] {
		switch strings.ToLower(a) {
		case "dm", "mp":
			mode = domain.ModeDM
		case "channel", "salon":
			mode = domain.ModeChannel
		default:
			tz = a
		}
	}

	sub, err := h.svc.Subscribe(ctx, reminder.SubscribeRequest{
		UserID:      req.UserID,
		GuildID:     req.GuildID,
		VoteURLID:   args[0],
		Window:      w,
		Mode:        mode,
		Timezone:    tz,
		DisplayName: req.DisplayName,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrPersist):
		h.log.Error("subscription not persisted", zap.String("userId", req.UserID), zap.Error(err))
	case errors.Is(err, reminder.ErrUnknownVoteURL):
		return l.Pick("Serveur inconnu. Voir /votes.", "Unknown vote target. See /votes.")
	case errors.Is(err, reminder.ErrNoChannel):
		return l.Pick("Aucun salon configuré pour ce serveur. Choisissez MP ou configurez un salon.",
			"No channel configured for this server. Pick DM or configure a channel.")
	case errors.Is(err, reminder.ErrNoVoteURL):
		return l.Pick("Aucune URL de vote configurée.", "No vote URL configured.")
	default:
		return l.Pick("Fuseau horaire invalide. Exemple : Europe/Paris", "Invalid timezone. Example: Europe/Paris")
	}

	return h.summary(l.Pick("Abonnement créé.", "Subscription created."), sub)
}

func (h *Handler) summary(title string, sub domain.Subscription) string {
	l := h.opts.Lang
	lines := []string{
		title,
		fmt.Sprintf("ID: %s", sub.ID),
		fmt.Sprintf(l.Pick("Serveur : %s", "Server: %s"), sub.VoteURLID),
		fmt.Sprintf(l.Pick("Plage : %s", "Window: %s"), windowLabel(l, sub.Window)),
		"Mode: " + modeLabel(l, sub, h.opts.ChannelRef),
	}
	return strings.Join(lines, "\n")
}

// edit handles /edit <id> [HH:MM-HH:MM|allday] [dm|channel] [Region/City] [vote=<id>].
func (h *Handler) edit(ctx context.Context, userID string, args []string) string {
	l := h.opts.Lang
	if len(args) < 2 {
		return l.Pick("Usage : /edit <id> [HH:MM-HH:MM|allday] [dm|channel] [Region/City] [vote=<id>]",
			"Usage: /edit <id> [HH:MM-HH:MM|allday] [dm|channel] [Region/City] [vote=<id>]")
	}
	var req reminder.EditRequest
	for _, a := range args[1:] {
		lower := strings.ToLower(a)
		switch {
		case lower == "dm" || lower == "mp":
			m := domain.ModeDM
			req.Mode = &m
		case lower == "channel" || lower == "salon":
			m := domain.ModeChannel
			req.Mode = &m
		case lower == "allday" || lower == "journee":
			req.Window = &domain.Window{}
		case strings.HasPrefix(lower, "vote="):
			id := a[len("vote="):]
			req.VoteURLID = &id
		case strings.Contains(a, ":"):
			w, err := domain.ParseWindow(a)
			if err != nil {
				return l.Pick("Les horaires doivent être au format HH:MM et multiples de 30 minutes.",
					"Times must be HH:MM and in 30-minute increments.")
			}
			req.Window = w
		default:
			tz := a
			req.Timezone = &tz
		}
	}

	sub, err := h.svc.Edit(ctx, userID, args[0], req)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrPersist):
		h.log.Error("subscription edit not persisted", zap.String("userId", userID), zap.Error(err))
	case errors.Is(err, reminder.ErrNotFound), errors.Is(err, reminder.ErrNotOwner):
		return l.Pick("Abonnement introuvable.", "Subscription not found.")
	case errors.Is(err, reminder.ErrUnknownVoteURL):
		return l.Pick("Serveur inconnu. Voir /votes.", "Unknown vote target. See /votes.")
	case errors.Is(err, reminder.ErrNoChannel):
		return l.Pick("Aucun salon configuré pour ce serveur. Choisissez MP ou configurez un salon.",
			"No channel configured for this server. Pick DM or configure a channel.")
	case errors.Is(err, reminder.ErrNoVoteURL):
		return l.Pick("Aucune URL de vote configurée.", "No vote URL configured.")
	case errors.Is(err, domain.ErrInvalidWindow):
		return l.Pick("Les horaires doivent être au format HH:MM et multiples de 30 minutes.",
			"Times must be HH:MM and in 30-minute increments.")
	default:
		return l.Pick("Fuseau horaire invalide. Exemple : Europe/Paris", "Invalid timezone. Example: Europe/Paris")
	}
	return h.summary(l.Pick("Abonnement modifié.", "Subscription updated."), sub)
}

func (h *Handler) status(userID string) string {
	l := h.opts.Lang
	subs := h.svc.Subscriptions(userID)
	if len(subs) == 0 {
		return l.Pick("Aucun abonnement actif.", "No active subscriptions.")
	}
	cat := h.svc.Catalog()
	lines := []string{fmt.Sprintf(l.Pick("Nombre d’abonnements : %d", "Number of subscriptions: %d"), len(subs))}
	for i, sub := range subs {
		label := l.Pick("Serveur inconnu", "Unknown server")
		cooldown := l.Pick("inconnu", "unknown")
		if e, ok := cat.Lookup(sub.VoteURLID); ok {
			label = fmt.Sprintf("%s (%s)", e.Label, e.ID)
			cooldown = fmt.Sprintf("%dm", e.CooldownMinutes)
		}
		tz := sub.Timezone
		if tz == "" {
			tz = h.opts.DefaultTZ
		}
		lines = append(lines, fmt.Sprintf("%d. %s | %s | TZ %s | %s | %s | %s",
			i+1, label, windowLabel(l, sub.Window), tz, modeLabel(l, sub, h.opts.ChannelRef),
			cooldown, timerLabel(l, h.svc.Timer(sub))))
		lines = append(lines, "   id: "+sub.ID)
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) unsubscribe(ctx context.Context, userID string, args []string) string {
	l := h.opts.Lang
	subs := h.svc.Subscriptions(userID)
	if len(subs) == 0 {
		return l.Pick("Aucun abonnement.", "No subscriptions.")
	}

	target := ""
	switch {
	case len(args) > 0 && strings.EqualFold(args[0], "all"):
		n, err := h.svc.UnsubscribeAll(ctx, userID)
		if err != nil {
			h.log.Error("unsubscribe all", zap.String("userId", userID), zap.Error(err))
		}
		return fmt.Sprintf(l.Pick("%d abonnement(s) supprimé(s).", "%d subscription(s) removed."), n)
	case len(args) > 0:
		target = args[0]
	case len(subs) == 1:
		target = subs[0].ID
	default:
		return l.Pick("Plusieurs abonnements : précisez l’id (voir /status) ou « all ».",
			"Several subscriptions: give the id (see /status) or \"all\".")
	}

	err := h.svc.Unsubscribe(ctx, userID, target)
	switch {
	case err == nil:
	case errors.Is(err, reminder.ErrNotFound), errors.Is(err, reminder.ErrNotOwner):
		return l.Pick("Abonnement introuvable.", "Subscription not found.")
	default:
		h.log.Error("unsubscribe", zap.String("userId", userID), zap.Error(err))
	}
	return l.Pick("Abonnement supprimé.", "Subscription removed.")
}

// Reset handles the reset button of a reminder. ok is false when data is
// not a reset action.
func (h *Handler) Reset(ctx context.Context, actorID, data string) (reply string, ok bool) {
	action, subID, found := strings.Cut(data, "|")
	if !found || action != reminder.ResetAction {
		return "", false
	}
	l := h.opts.Lang
	_, err := h.svc.MarkVoted(ctx, actorID, subID)
	switch {
	case err == nil, errors.Is(err, store.ErrPersist):
		if err != nil {
			h.log.Error("vote mark not persisted", zap.String("subscriptionId", subID), zap.Error(err))
		}
		return l.Pick("Timer relancé. Cliquez sur « Voter maintenant » pour ouvrir la page.",
			"Timer reset. Use \"Vote now\" to open the page."), true
	case errors.Is(err, reminder.ErrNotFound):
		return l.Pick("Abonnement introuvable ou expiré.", "Subscription not found or expired."), true
	case errors.Is(err, reminder.ErrNotOwner):
		return l.Pick("Ce bouton est réservé au destinataire du rappel.", "This button is reserved for the reminder recipient."), true
	case errors.Is(err, reminder.ErrNoVoteURL):
		return l.Pick("Aucune URL de vote configurée.", "No vote URL configured."), true
	}
	h.log.Error("reset timer", zap.String("subscriptionId", subID), zap.Error(err))
	return l.Pick("Erreur interne. Merci de réessayer.", "Internal error. Please try again."), true
}

// voteURL handles the catalog administration commands:
//
//	/voteurl add url=<url> cooldown=<minutes|Nh> [channel=<id>] <label...>
//	/voteurl edit <id> [url=<url>] [cooldown=<minutes|Nh>] [channel=<id|none>] [label...]
//	/voteurl delete <id>
//	/voteurl default <id>
func (h *Handler) voteURL(ctx context.Context, actorID string, args []string) string {
	l := h.opts.Lang
	usage := l.Pick("Usage : /voteurl add|edit|delete|default ...", "Usage: /voteurl add|edit|delete|default ...")
	if len(args) == 0 {
		return usage
	}
	log := h.log.With(zap.String("userId", actorID))

	switch strings.ToLower(args[0]) {
	case "add":
		in, err := parseEntryArgs(catalog.EntryInput{}, args[1:])
		if err != nil {
			return entryError(l, err)
		}
		e, n, err := h.svc.AddVoteURL(ctx, in)
		if err != nil && e.ID == "" {
			return entryError(l, err)
		}
		if err != nil {
			log.Error("vote url add", zap.String("voteUrlId", e.ID), zap.Error(err))
		}
		log.Info("vote url added", zap.String("voteUrlId", e.ID), zap.Int("adopted", n))
		return fmt.Sprintf(l.Pick("Serveur ajouté : %s", "Vote target added: %s"), entryLine(l, e, false, h.opts.ChannelRef))
	case "edit":
		if len(args) < 2 {
			return usage
		}
		cur, ok := h.svc.Catalog().Lookup(args[1])
		if !ok {
			return l.Pick("Serveur inconnu. Voir /votes.", "Unknown vote target. See /votes.")
		}
		in, err := parseEntryArgs(catalog.EntryInput{
			Label:           cur.Label,
			URL:             cur.URL,
			CooldownMinutes: cur.CooldownMinutes,
			ChannelID:       cur.ChannelID,
		}, args[2:])
		if err != nil {
			return entryError(l, err)
		}
		e, n, err := h.svc.UpdateVoteURL(ctx, cur.ID, in)
		if err != nil && e.ID == "" {
			return entryError(l, err)
		}
		if err != nil {
			log.Error("vote url edit", zap.String("voteUrlId", cur.ID), zap.Error(err))
		}
		return fmt.Sprintf(l.Pick("Serveur modifié (%d abonnement(s) mis à jour) : %s", "Vote target updated (%d subscription(s) updated): %s"),
			n, entryLine(l, e, false, h.opts.ChannelRef))
	case "delete":
		if len(args) < 2 {
			return usage
		}
		n, err := h.svc.DeleteVoteURL(ctx, args[1])
		if errors.Is(err, catalog.ErrNotFound) {
			return l.Pick("Serveur inconnu. Voir /votes.", "Unknown vote target. See /votes.")
		}
		if err != nil {
			log.Error("vote url delete", zap.String("voteUrlId", args[1]), zap.Error(err))
		}
		return fmt.Sprintf(l.Pick("Serveur supprimé (%d abonnement(s) concernés).", "Vote target deleted (%d subscription(s) affected)."), n)
	case "default":
		if len(args) < 2 {
			return usage
		}
		n, err := h.svc.SetDefaultVoteURL(ctx, args[1])
		if errors.Is(err, catalog.ErrNotFound) {
			return l.Pick("Serveur inconnu. Voir /votes.", "Unknown vote target. See /votes.")
		}
		if err != nil {
			log.Error("vote url default", zap.String("voteUrlId", args[1]), zap.Error(err))
		}
		return fmt.Sprintf(l.Pick("Serveur par défaut : %s (%d abonnement(s) rattachés).", "Default vote target: %s (%d subscription(s) attached)."), args[1], n)
	}
	return usage
}

// parseEntryArgs applies key=value options to in; other words form the label.
func parseEntryArgs(in catalog.EntryInput, args []string) (catalog.EntryInput, error) {
	var label []string
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			label = append(label, a)
			continue
		}
		switch strings.ToLower(key) {
		case "url":
			in.URL = val
		case "cooldown":
			m, err := domain.ParseCooldown(val)
			if err != nil {
				return in, err
			}
			in.CooldownMinutes = m
		case "channel":
			if strings.EqualFold(val, "none") {
				val = ""
			}
			in.ChannelID = val
		default:
			label = append(label, a)
		}
	}
	if len(label) > 0 {
		in.Label = strings.Join(label, " ")
	}
	return in, nil
}

func entryError(l reminder.Lang, err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCooldown):
		return fmt.Sprintf(l.Pick("Délai invalide. Choix : %v minutes.", "Invalid cooldown. Choices: %v minutes."), domain.CooldownChoices)
	case errors.Is(err, domain.ErrInvalidChannelID):
		return l.Pick("Identifiant de salon invalide.", "Invalid channel id.")
	case errors.Is(err, domain.ErrInvalidURL):
		return l.Pick("URL invalide (http(s)://...).", "Invalid URL (http(s)://...).")
	}
	return l.Pick("Entrée invalide : ", "Invalid entry: ") + err.Error()
}
