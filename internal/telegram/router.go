package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/MrDDream/ReminderVoteBot/internal/commands"
)

// Router wires Telegram updates to the shared command handler.
type Router struct {
	bot  *tgbotapi.BotAPI
	log  *zap.Logger
	cmds *commands.Handler
}

func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, cmds *commands.Handler) *Router {
	return &Router{bot: bot, log: log, cmds: cmds}
}

// Run consumes long-polling updates until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := r.bot.GetUpdatesChan(u)
	defer r.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd := <-updCh:
			r.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate routes a single update.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		r.handleMessage(ctx, upd.Message)
		return
	}
	if upd.CallbackQuery != nil && upd.CallbackQuery.From != nil {
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	req := commands.Request{
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		DisplayName: userName(msg.From),
		Text:        strings.TrimSpace(msg.Text),
	}
	// Groups act as guilds: reminders can be posted there.
	if !msg.Chat.IsPrivate() {
		req.GuildID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	reply, ok := r.cmds.Handle(ctx, req)
	if !ok {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	if msg.Chat.IsPrivate() {
		out.ReplyMarkup = mainMenuKeyboard()
	}
	if _, err := r.bot.Send(out); err != nil {
		r.log.Warn("reply failed", zap.Int64("chatID", msg.Chat.ID), zap.Error(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	reply, ok := r.cmds.Reset(ctx, strconv.FormatInt(cb.From.ID, 10), cb.Data)
	if !ok {
		// Unknown callback: just stop the client spinner.
		reply = ""
	}
	if _, err := r.bot.Request(tgbotapi.NewCallback(cb.ID, reply)); err != nil {
		r.log.Warn("answer callback failed", zap.Error(err))
	}
}
