// Package discord connects the bot to Discord: reminder delivery over REST
// and command handling over the gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
)

// restAPI is the subset of *discordgo.Session the transport calls.
type restAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

type Transport struct {
	api restAPI
}

func NewTransport(s *discordgo.Session) *Transport {
	return &Transport{api: s}
}

func (t *Transport) Name() string { return "discord" }

// ResolveChannel accepts guild text and announcement channels.
func (t *Transport) ResolveChannel(ctx context.Context, channelID string) (delivery.ChannelInfo, error) {
	ch, err := t.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return delivery.ChannelInfo{}, fmt.Errorf("%w: %w", delivery.ErrChannelNotFound, err)
		}
		return delivery.ChannelInfo{}, err
	}
	if ch == nil {
		return delivery.ChannelInfo{}, delivery.ErrChannelNotFound
	}
	return delivery.ChannelInfo{
		ID:       ch.ID,
		Name:     ch.Name,
		Postable: ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews,
	}, nil
}

func (t *Transport) PostToChannel(ctx context.Context, channelID, userID string, msg delivery.Message) error {
	_, err := t.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    "<@" + userID + "> " + msg.ChannelText,
		Components: components(msg.Buttons),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{userID},
		},
	}, discordgo.WithContext(ctx))
	return err
}

func (t *Transport) SendDirect(ctx context.Context, userID string, msg delivery.Message) error {
	dm, err := t.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	_, err = t.api.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{
		Content:    msg.Text,
		Components: components(msg.Buttons),
	}, discordgo.WithContext(ctx))
	return err
}

// DisplayName prefers the guild nickname, then the global display name,
// then the username.
func (t *Transport) DisplayName(ctx context.Context, guildID, userID string) (string, error) {
	if guildID != "" {
		m, err := t.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err == nil && m != nil {
			if m.Nick != "" {
				return m.Nick, nil
			}
			if m.User != nil {
				return userName(m.User), nil
			}
		}
	}
	u, err := t.api.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return userName(u), nil
}

func userName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func components(buttons []delivery.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		if b.URL != "" {
			row.Components = append(row.Components, discordgo.Button{
				Label: b.Label,
				Style: discordgo.LinkButton,
				URL:   b.URL,
			})
			continue
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			Style:    discordgo.PrimaryButton,
			CustomID: b.Action,
		})
	}
	return []discordgo.MessageComponent{row}
}

func isNotFound(err error) bool {
	var rerr *discordgo.RESTError
	return errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound
}
