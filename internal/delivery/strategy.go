package delivery

import (
	"context"
	"fmt"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

// Strategy is one way of getting a message to a subscriber.
type Strategy interface {
	Name() string
	Applicable(t Target) bool
	Deliver(ctx context.Context, t Target, msg Message) error
}

// ChannelStrategy posts in the subscription's channel.
type ChannelStrategy struct {
	Transport Transport
}

func (ChannelStrategy) Name() string { return "channel" }

func (ChannelStrategy) Applicable(t Target) bool {
	return t.Mode == domain.ModeChannel && t.ChannelID != ""
}

func (s ChannelStrategy) Deliver(ctx context.Context, t Target, msg Message) error {
	info, err := s.Transport.ResolveChannel(ctx, t.ChannelID)
	if err != nil {
		return fmt.Errorf("resolve channel %s: %w", t.ChannelID, err)
	}
	if !info.Postable {
		return fmt.Errorf("%w: %s", ErrChannelNotUsable, t.ChannelID)
	}
	return s.Transport.PostToChannel(ctx, info.ID, t.UserID, msg)
}

// DirectStrategy messages the user privately. It always applies.
type DirectStrategy struct {
	Transport Transport
}

func (DirectStrategy) Name() string { return "direct" }

func (DirectStrategy) Applicable(Target) bool { return true }

func (s DirectStrategy) Deliver(ctx context.Context, t Target, msg Message) error {
	return s.Transport.SendDirect(ctx, t.UserID, msg)
}
