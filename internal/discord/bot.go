package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/commands"
)

// NewSession creates a gateway session with the intents the bot needs:
// guild metadata for channel lookups and direct messages for commands.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsDirectMessages
	return s, nil
}

// Bot routes gateway events to the shared command handler.
type Bot struct {
	session *discordgo.Session
	cmds    *commands.Handler
	log     *zap.Logger
}

func NewBot(s *discordgo.Session, cmds *commands.Handler, log *zap.Logger) *Bot {
	b := &Bot{session: s, cmds: cmds, log: log}
	s.AddHandler(b.handleReady)
	s.AddHandler(b.handleMessageCreate)
	s.AddHandler(b.handleInteraction)
	return b
}

// Run opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return err
	}
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("discord session ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
}

// handleMessageCreate answers commands sent in direct messages.
func (b *Bot) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID != "" {
		return
	}
	reply, ok := b.cmds.Handle(context.Background(), commands.Request{
		UserID:      m.Author.ID,
		DisplayName: userName(m.Author),
		Text:        strings.TrimSpace(m.Content),
	})
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.log.Warn("reply failed", zap.String("channelId", m.ChannelID), zap.Error(err))
	}
}

// handleInteraction serves the reset button of reminders.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	actor := interactionUser(i)
	if actor == nil {
		return
	}
	reply, ok := b.cmds.Reset(context.Background(), actor.ID, i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	data := &discordgo.InteractionResponseData{Content: reply}
	if i.GuildID != "" {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		b.log.Warn("interaction reply failed", zap.String("userId", actor.ID), zap.Error(err))
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
