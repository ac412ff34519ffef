// Package reminder builds and sends vote reminders and owns the subscription
// lifecycle operations that keep the store, catalog and scheduler in step.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
)

var ErrNoVoteURL = errors.New("no vote url configured")

// ResetAction prefixes the callback data of the reset button.
const ResetAction = "reminder-reset"

// Catalog is the read side of the vote URL catalog.
type Catalog interface {
	Resolve(id string) (domain.VoteURLEntry, bool)
	CooldownFor(voteURLID string) time.Duration
	URLFor(voteURLID string) string
}

type Deliverer interface {
	Deliver(ctx context.Context, t delivery.Target, msg delivery.Message) bool
}

type NotifierOptions struct {
	PublicBaseURL string
	Lang          Lang
	Now           func() time.Time
}

// Notifier turns a due subscription into a delivered reminder.
type Notifier struct {
	catalog    Catalog
	names      *Names
	codec      *token.Codec
	out        Deliverer
	lang       Lang
	publicBase string
	log        *zap.Logger
	now        func() time.Time
}

func NewNotifier(cat Catalog, names *Names, codec *token.Codec, out Deliverer, log *zap.Logger, opts NotifierOptions) *Notifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		catalog:    cat,
		names:      names,
		codec:      codec,
		out:        out,
		lang:       opts.Lang,
		publicBase: strings.TrimRight(opts.PublicBaseURL, "/"),
		log:        log,
		now:        opts.Now,
	}
}

// VoteURL is the subscriber's vote page with their display name in the
// pseudo query parameter.
func (n *Notifier) VoteURL(ctx context.Context, sub domain.Subscription) (string, error) {
	base := n.catalog.URLFor(sub.VoteURLID)
	if base == "" {
		return "", ErrNoVoteURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoVoteURL, err)
	}
	q := u.Query()
	q.Set("pseudo", n.names.Lookup(ctx, sub.GuildID, sub.UserID, sub.LastKnownDisplayName))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedirectURL is the signed link through the web redirect, or "" when no
// public base URL is configured.
func (n *Notifier) RedirectURL(sub domain.Subscription) (string, error) {
	if n.publicBase == "" {
		return "", nil
	}
	tok, err := n.codec.Sign(token.NewPayload(sub.UserID, sub.GuildID, n.now().UnixMilli()))
	if err != nil {
		return "", err
	}
	return n.publicBase + "/v?t=" + url.QueryEscape(tok), nil
}

// SendReminder delivers one reminder for sub and reports whether it reached
// the user.
func (n *Notifier) SendReminder(ctx context.Context, sub domain.Subscription) bool {
	fields := []zap.Field{
		zap.String("subscriptionId", sub.ID),
		zap.String("userId", sub.UserID),
		zap.String("voteUrlId", sub.VoteURLID),
	}
	if !domain.Eligible(sub, n.catalog.CooldownFor(sub.VoteURLID), n.now()) {
		n.log.Debug("reminder still in cooldown", fields...)
		return false
	}
	voteURL, err := n.VoteURL(ctx, sub)
	if err != nil {
		n.log.Warn("no vote url for reminder", append(fields, zap.Error(err))...)
		return false
	}
	redirect, err := n.RedirectURL(sub)
	if err != nil {
		n.log.Error("sign redirect token", append(fields, zap.Error(err))...)
		return false
	}

	msg := delivery.Message{
		Text:        n.lang.reminderDM(),
		ChannelText: n.lang.reminderChannel(),
		Buttons:     n.buttons(sub, redirect, voteURL),
	}
	return n.out.Deliver(ctx, n.target(sub), msg)
}

func (n *Notifier) buttons(sub domain.Subscription, redirect, voteURL string) []delivery.Button {
	if redirect != "" {
		return []delivery.Button{{Label: n.lang.voteNow(), URL: redirect}}
	}
	return []delivery.Button{
		{Label: n.lang.voteNow(), URL: voteURL},
		{Label: n.lang.resetTimer(), Action: ResetAction + "|" + sub.ID},
	}
}

func (n *Notifier) target(sub domain.Subscription) delivery.Target {
	channelID := sub.ChannelID
	if channelID == "" {
		if e, ok := n.catalog.Resolve(sub.VoteURLID); ok {
			channelID = e.ChannelID
		}
	}
	return delivery.Target{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		GuildID:        sub.GuildID,
		Mode:           sub.Mode,
		ChannelID:      channelID,
	}
}
