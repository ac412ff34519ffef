// Package delivery sends reminder messages through the chat platform, trying
// the subscriber's preferred route first and falling back to a direct message.
package delivery

import (
	"context"
	"errors"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelNotUsable = errors.New("channel cannot receive posts")
	ErrNoChannel        = errors.New("no channel configured")
)

// Button is either a link (URL set) or a callback carrying Action.
type Button struct {
	Label  string
	URL    string
	Action string
}

// Message is one reminder. ChannelText is used for channel posts, where the
// transport prefixes a mention of the user; Text is used for direct messages.
type Message struct {
	Text        string
	ChannelText string
	Buttons     []Button
}

// Target says who the message is for and where the subscriber wants it.
type Target struct {
	SubscriptionID string
	UserID         string
	GuildID        string
	Mode           domain.Mode
	ChannelID      string // own or inherited from the catalog entry
}

// ChannelInfo is what the platform reports about a channel.
type ChannelInfo struct {
	ID       string
	Name     string
	Postable bool
}

// Transport is the outbound half of a chat platform.
type Transport interface {
	Name() string
	ResolveChannel(ctx context.Context, channelID string) (ChannelInfo, error)
	// PostToChannel posts msg in channelID, mentioning userID.
	PostToChannel(ctx context.Context, channelID, userID string, msg Message) error
	SendDirect(ctx context.Context, userID string, msg Message) error
}
