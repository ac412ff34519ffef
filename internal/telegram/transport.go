package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
)

// Transport sends reminders through the Bot API. Telegram private chats share
// the user's id, so a direct message goes to chat id == user id.
type Transport struct {
	bot *tgbotapi.BotAPI
}

func NewTransport(bot *tgbotapi.BotAPI) *Transport {
	return &Transport{bot: bot}
}

func (t *Transport) Name() string { return "telegram" }

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q", s)
	}
	return id, nil
}

// ResolveChannel accepts groups, supergroups and channels.
func (t *Transport) ResolveChannel(ctx context.Context, channelID string) (delivery.ChannelInfo, error) {
	if err := ctx.Err(); err != nil {
		return delivery.ChannelInfo{}, err
	}
	id, err := parseID(channelID)
	if err != nil {
		return delivery.ChannelInfo{}, err
	}
	chat, err := t.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return delivery.ChannelInfo{}, fmt.Errorf("%w: %w", delivery.ErrChannelNotFound, err)
	}
	return delivery.ChannelInfo{
		ID:       channelID,
		Name:     chat.Title,
		Postable: chat.IsGroup() || chat.IsSuperGroup() || chat.IsChannel(),
	}, nil
}

func (t *Transport) PostToChannel(ctx context.Context, channelID, userID string, msg delivery.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseID(channelID)
	if err != nil {
		return err
	}
	text := mention(userID) + " " + html.EscapeString(msg.ChannelText)
	return t.send(chatID, text, msg.Buttons)
}

func (t *Transport) SendDirect(ctx context.Context, userID string, msg delivery.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseID(userID)
	if err != nil {
		return err
	}
	return t.send(chatID, html.EscapeString(msg.Text), msg.Buttons)
}

func (t *Transport) send(chatID int64, text string, buttons []delivery.Button) error {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeHTML
	if kb, ok := inlineKeyboard(buttons); ok {
		m.ReplyMarkup = kb
	}
	_, err := t.bot.Send(m)
	return err
}

// DisplayName returns the member's name in the group guildID, or the user's
// own name for private chats.
func (t *Transport) DisplayName(ctx context.Context, guildID, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	uid, err := parseID(userID)
	if err != nil {
		return "", err
	}
	if guildID != "" {
		gid, err := parseID(guildID)
		if err != nil {
			return "", err
		}
		member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: gid, UserID: uid},
		})
		if err != nil {
			return "", err
		}
		return userName(member.User), nil
	}
	chat, err := t.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: uid}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName), nil
}

func userName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.UserName
}

func mention(userID string) string {
	return `<a href="tg://user?id=` + html.EscapeString(userID) + `">🔔</a>`
}
