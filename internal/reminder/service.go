package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/catalog"
	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/store"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
)

var (
	ErrNotSubscribed  = errors.New("user has no subscription")
	ErrNotFound       = errors.New("subscription not found")
	ErrNotOwner       = errors.New("subscription belongs to another user")
	ErrUnknownVoteURL = errors.New("unknown vote url")
	ErrNoChannel      = errors.New("no channel configured for this vote url")
	ErrTokenExpired   = errors.New("token expired")
)

// Scheduler is what the service needs from the evaluator registry.
type Scheduler interface {
	Schedule(sub domain.Subscription) error
	Unschedule(id string)
	ScheduleAll(subs []domain.Subscription) int
}

type ServiceOptions struct {
	// TokenMaxAge rejects redirect tokens older than this; zero disables it.
	TokenMaxAge time.Duration
	Now         func() time.Time
}

// Service applies user and admin actions to subscriptions.
type Service struct {
	store       *store.Store
	catalog     *catalog.Catalog
	sched       Scheduler
	notifier    *Notifier
	log         *zap.Logger
	tokenMaxAge time.Duration
	now         func() time.Time
}

func NewService(st *store.Store, cat *catalog.Catalog, sched Scheduler, notifier *Notifier, log *zap.Logger, opts ServiceOptions) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:       st,
		catalog:     cat,
		sched:       sched,
		notifier:    notifier,
		log:         log,
		tokenMaxAge: opts.TokenMaxAge,
		now:         opts.Now,
	}
}

// Start schedules every stored subscription.
func (s *Service) Start() int {
	return s.sched.ScheduleAll(s.store.List())
}

func (s *Service) Catalog() *catalog.Catalog { return s.catalog }

func (s *Service) Subscriptions(userID string) []domain.Subscription {
	return s.store.ForUser(userID)
}

// Timer describes when sub's next reminder can go out.
func (s *Service) Timer(sub domain.Subscription) domain.TimerState {
	return domain.NextReminder(sub, s.catalog.CooldownFor(sub.VoteURLID), s.now())
}

func (s *Service) schedule(sub domain.Subscription) {
	if sub.UserID == "" || sub.VoteURLID == "" {
		s.sched.Unschedule(sub.ID)
		return
	}
	if err := s.sched.Schedule(sub); err != nil {
		s.log.Error("schedule failed", zap.String("subscriptionId", sub.ID), zap.Error(err))
	}
}

// --- Subscriber actions ---

type SubscribeRequest struct {
	UserID      string
	GuildID     string
	VoteURLID   string // empty selects the default entry
	Window      *domain.Window
	Mode        domain.Mode
	Timezone    string
	DisplayName string
}

// Subscribe creates a subscription. The vote timestamp is pre-seeded one
// cooldown in the past so the first reminder is not held back.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (domain.Subscription, error) {
	entry, err := s.entryFor(req.VoteURLID)
	if err != nil {
		return domain.Subscription{}, err
	}
	tz, err := optionalTZ(req.Timezone)
	if err != nil {
		return domain.Subscription{}, err
	}
	mode := domain.NormalizeMode(string(req.Mode))
	channelID := ""
	if mode == domain.ModeChannel {
		if entry.ChannelID == "" {
			return domain.Subscription{}, ErrNoChannel
		}
		channelID = entry.ChannelID
	}
	voted := s.now().Add(-domain.CooldownFor(&entry))
	sub, err := s.store.Add(ctx, domain.Subscription{
		UserID:               req.UserID,
		VoteURLID:            entry.ID,
		GuildID:              req.GuildID,
		Window:               domain.NormalizeWindow(req.Window),
		Mode:                 mode,
		ChannelID:            channelID,
		Timezone:             tz,
		LastKnownDisplayName: req.DisplayName,
		LastVotedAt:          &voted,
	})
	if err != nil && !errors.Is(err, store.ErrPersist) {
		return domain.Subscription{}, err
	}
	s.schedule(sub)
	s.log.Info("user subscribed",
		zap.String("subscriptionId", sub.ID),
		zap.String("userId", sub.UserID),
		zap.String("voteUrlId", sub.VoteURLID),
		zap.String("mode", string(sub.Mode)),
		zap.String("channelId", sub.ChannelID),
	)
	return sub, err
}

func (s *Service) entryFor(id string) (domain.VoteURLEntry, error) {
	if id == "" {
		if e, ok := s.catalog.Default(); ok {
			return e, nil
		}
		return domain.VoteURLEntry{}, ErrNoVoteURL
	}
	if e, ok := s.catalog.Lookup(id); ok {
		return e, nil
	}
	return domain.VoteURLEntry{}, fmt.Errorf("%w: %s", ErrUnknownVoteURL, id)
}

// EditRequest carries the fields to change; nil leaves a field as is.
// A Window with empty bounds clears the window.
type EditRequest struct {
	VoteURLID *string
	Window    *domain.Window
	Mode      *domain.Mode
	Timezone  *string
}

// Edit changes one of the user's subscriptions and reschedules it.
func (s *Service) Edit(ctx context.Context, userID, subID string, req EditRequest) (domain.Subscription, error) {
	cur, err := s.owned(userID, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	voteURLID := cur.VoteURLID
	if req.VoteURLID != nil {
		voteURLID = *req.VoteURLID
	}
	entry, err := s.entryFor(voteURLID)
	if err != nil {
		return domain.Subscription{}, err
	}
	mode := cur.Mode
	if req.Mode != nil {
		mode = domain.NormalizeMode(string(*req.Mode))
	}
	if mode == domain.ModeChannel && entry.ChannelID == "" {
		return domain.Subscription{}, ErrNoChannel
	}
	tz := cur.Timezone
	if req.Timezone != nil {
		if tz, err = optionalTZ(*req.Timezone); err != nil {
			return domain.Subscription{}, err
		}
	}
	window := cur.Window
	if req.Window != nil {
		window = domain.NormalizeWindow(req.Window)
		if err := domain.ValidateWindow(window); err != nil {
			return domain.Subscription{}, err
		}
	}

	sub, found, err := s.store.Update(ctx, subID, func(x *domain.Subscription) {
		x.VoteURLID = entry.ID
		x.Mode = mode
		x.ChannelID = ""
		if mode == domain.ModeChannel {
			x.ChannelID = entry.ChannelID
		}
		x.Window = window
		x.Timezone = tz
	})
	if !found {
		return domain.Subscription{}, ErrNotFound
	}
	s.schedule(sub)
	return sub, err
}

// Unsubscribe removes one of the user's subscriptions.
func (s *Service) Unsubscribe(ctx context.Context, userID, subID string) error {
	if _, err := s.owned(userID, subID); err != nil {
		return err
	}
	s.sched.Unschedule(subID)
	_, err := s.store.Remove(ctx, subID)
	return err
}

// UnsubscribeAll removes every subscription of the user.
func (s *Service) UnsubscribeAll(ctx context.Context, userID string) (int, error) {
	for _, sub := range s.store.ForUser(userID) {
		s.sched.Unschedule(sub.ID)
	}
	return s.store.RemoveAllForUser(ctx, userID)
}

// MarkVoted restarts the cooldown of subID; only its owner may do so.
func (s *Service) MarkVoted(ctx context.Context, actorID, subID string) (domain.Subscription, error) {
	cur, err := s.owned(actorID, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if _, err := s.notifier.VoteURL(ctx, cur); err != nil {
		return domain.Subscription{}, err
	}
	now := s.now()
	sub, found, err := s.store.Update(ctx, subID, func(x *domain.Subscription) {
		x.LastVotedAt = domain.TimePtr(now)
	})
	if !found {
		return domain.Subscription{}, ErrNotFound
	}
	s.schedule(sub)
	s.log.Info("vote marked", zap.String("subscriptionId", subID), zap.String("userId", actorID))
	return sub, err
}

// optionalTZ validates tz; empty means the bot's default zone.
func optionalTZ(tz string) (string, error) {
	if tz == "" {
		return "", nil
	}
	return domain.ValidateTZ(tz)
}

func (s *Service) owned(userID, subID string) (domain.Subscription, error) {
	sub, ok := s.store.Get(subID)
	if !ok {
		return domain.Subscription{}, ErrNotFound
	}
	if sub.UserID != userID {
		return domain.Subscription{}, ErrNotOwner
	}
	return sub, nil
}

// RecordVisit resolves the redirect target for a verified token and records
// the visit as a vote. The vote is only recorded once a URL was found.
func (s *Service) RecordVisit(ctx context.Context, p token.Payload) (string, error) {
	if p.UID == "" {
		return "", token.ErrInvalid
	}
	if s.tokenMaxAge > 0 && s.now().Sub(time.UnixMilli(p.IAT)) > s.tokenMaxAge {
		return "", ErrTokenExpired
	}
	sub, ok := s.visitSubscription(p)
	if !ok {
		return "", ErrNotSubscribed
	}
	target, err := s.notifier.VoteURL(ctx, sub)
	if err != nil {
		return "", err
	}
	now := s.now()
	if _, _, err := s.store.Update(ctx, sub.ID, func(x *domain.Subscription) {
		x.LastVotedAt = domain.TimePtr(now)
	}); err != nil {
		return "", err
	}
	s.log.Info("vote redirect",
		zap.String("subscriptionId", sub.ID),
		zap.String("userId", sub.UserID),
		zap.String("guildId", sub.GuildID),
	)
	return target, nil
}

// visitSubscription prefers the subscription in the token's guild.
func (s *Service) visitSubscription(p token.Payload) (domain.Subscription, bool) {
	subs := s.store.ForUser(p.UID)
	if len(subs) == 0 {
		return domain.Subscription{}, false
	}
	if gid := p.GuildID(); gid != "" {
		for _, sub := range subs {
			if sub.GuildID == gid {
				return sub, true
			}
		}
	}
	return subs[0], true
}

// --- Catalog administration ---

// AddVoteURL adds a catalog entry. When it becomes the default, subscriptions
// without a vote URL adopt it.
func (s *Service) AddVoteURL(ctx context.Context, in catalog.EntryInput) (domain.VoteURLEntry, int, error) {
	entry, becameDefault, err := s.catalog.Add(in)
	if err != nil {
		return domain.VoteURLEntry{}, 0, err
	}
	if !becameDefault {
		return entry, 0, nil
	}
	n, err := s.adoptOrphans(ctx, entry)
	return entry, n, err
}

// SetDefaultVoteURL makes id the default entry; subscriptions without a vote
// URL adopt it.
func (s *Service) SetDefaultVoteURL(ctx context.Context, id string) (int, error) {
	if err := s.catalog.SetDefault(id); err != nil {
		return 0, err
	}
	entry, ok := s.catalog.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return s.adoptOrphans(ctx, entry)
}

func (s *Service) adoptOrphans(ctx context.Context, entry domain.VoteURLEntry) (int, error) {
	updated, err := s.store.UpdateWhere(ctx,
		func(sub domain.Subscription) bool { return sub.VoteURLID == "" },
		func(x *domain.Subscription) { repoint(x, entry) },
	)
	for _, sub := range updated {
		s.schedule(sub)
	}
	return len(updated), err
}

// UpdateVoteURL edits an entry; channel-mode dependents follow its channel.
func (s *Service) UpdateVoteURL(ctx context.Context, id string, in catalog.EntryInput) (domain.VoteURLEntry, int, error) {
	entry, err := s.catalog.Update(id, in)
	if err != nil {
		return domain.VoteURLEntry{}, 0, err
	}
	n, err := s.followEntry(ctx, entry)
	return entry, n, err
}

// DeleteVoteURL removes an entry. Dependents move to the fallback entry, or
// are deleted when the catalog is now empty.
func (s *Service) DeleteVoteURL(ctx context.Context, id string) (int, error) {
	fallback, ok, err := s.catalog.Delete(id)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, err
	}
	n, cascadeErr := s.cascadeRemoved(ctx, id, fallback, ok)
	s.sched.ScheduleAll(s.store.List())
	return n, errors.Join(err, cascadeErr)
}

// ApplyCatalog reconciles subscriptions after the catalog file changed on disk.
func (s *Service) ApplyCatalog(ctx context.Context, ch catalog.Change) {
	fallback, ok := s.catalog.Default()
	for _, id := range ch.Removed {
		if _, err := s.cascadeRemoved(ctx, id, fallback, ok); err != nil {
			s.log.Error("catalog cascade", zap.String("voteUrlId", id), zap.Error(err))
		}
	}
	for _, e := range ch.Updated {
		if _, err := s.followEntry(ctx, e); err != nil {
			s.log.Error("catalog update cascade", zap.String("voteUrlId", e.ID), zap.Error(err))
		}
	}
	s.sched.ScheduleAll(s.store.List())
}

func (s *Service) followEntry(ctx context.Context, entry domain.VoteURLEntry) (int, error) {
	updated, err := s.store.UpdateWhere(ctx,
		func(sub domain.Subscription) bool { return sub.VoteURLID == entry.ID },
		func(x *domain.Subscription) { repoint(x, entry) },
	)
	for _, sub := range updated {
		s.schedule(sub)
	}
	return len(updated), err
}

func (s *Service) cascadeRemoved(ctx context.Context, id string, fallback domain.VoteURLEntry, ok bool) (int, error) {
	dependent := func(sub domain.Subscription) bool { return sub.VoteURLID == id }
	if ok {
		updated, err := s.store.UpdateWhere(ctx, dependent, func(x *domain.Subscription) { repoint(x, fallback) })
		return len(updated), err
	}
	for _, sub := range s.store.List() {
		if dependent(sub) {
			s.sched.Unschedule(sub.ID)
		}
	}
	removed, err := s.store.RemoveWhere(ctx, dependent)
	return len(removed), err
}

func repoint(x *domain.Subscription, entry domain.VoteURLEntry) {
	x.VoteURLID = entry.ID
	if x.Mode == domain.ModeChannel {
		x.ChannelID = entry.ChannelID
	}
}
