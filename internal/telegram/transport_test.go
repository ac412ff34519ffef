package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
)

// fakeAPI is a minimal Bot API server. chats maps chat_id to a chat type.
type fakeAPI struct {
	mu    sync.Mutex
	chats map[string]string
	calls map[string][]url.Values
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)
	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.PostForm)
	f.mu.Unlock()

	var result any
	switch method {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "bot", "username": "bot"}
	case "getChat":
		typ, ok := f.chats[r.PostForm.Get("chat_id")]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"})
			return
		}
		result = map[string]any{"id": 0, "type": typ, "title": "Votes", "first_name": "Ann", "last_name": "Lee"}
	case "getChatMember":
		result = map[string]any{"status": "member", "user": map[string]any{"id": 7, "is_bot": false, "first_name": "Ann", "username": "ann"}}
	case "sendMessage":
		result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1, "type": "private"}}
	default:
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) sent(method string) []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func newTestTransport(t *testing.T) (*Transport, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{
		chats: map[string]string{"-1001234567": "supergroup", "7": "private"},
		calls: make(map[string][]url.Values),
	}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("TOKEN", srv.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	return NewTransport(bot), api
}

func TestTransport_ResolveChannel(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	info, err := tr.ResolveChannel(ctx, "-1001234567")
	if err != nil || !info.Postable {
		t.Fatalf("supergroup = %+v, %v", info, err)
	}
	info, err = tr.ResolveChannel(ctx, "7")
	if err != nil || info.Postable {
		t.Fatalf("private chat = %+v, %v", info, err)
	}
	if _, err := tr.ResolveChannel(ctx, "-1009999999"); !errors.Is(err, delivery.ErrChannelNotFound) {
		t.Fatalf("unknown chat err = %v", err)
	}
	if _, err := tr.ResolveChannel(ctx, "abc"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTransport_SendWithButtons(t *testing.T) {
	tr, api := newTestTransport(t)
	msg := delivery.Message{
		Text:        "Vote reminder!",
		ChannelText: "Vote reminder",
		Buttons: []delivery.Button{
			{Label: "Vote now", URL: "https://vote.example"},
			{Label: "Reset timer", Action: "reminder-reset|abc"},
		},
	}
	if err := tr.SendDirect(context.Background(), "7", msg); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if err := tr.PostToChannel(context.Background(), "-1001234567", "7", msg); err != nil {
		t.Fatalf("PostToChannel: %v", err)
	}

	sent := api.sent("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("sendMessage calls = %d", len(sent))
	}
	dm, post := sent[0], sent[1]
	if dm.Get("chat_id") != "7" || dm.Get("text") != "Vote reminder!" || dm.Get("parse_mode") != "HTML" {
		t.Fatalf("dm = %v", dm)
	}
	if !strings.Contains(dm.Get("reply_markup"), `"callback_data":"reminder-reset|abc"`) ||
		!strings.Contains(dm.Get("reply_markup"), `"url":"https://vote.example"`) {
		t.Fatalf("keyboard = %s", dm.Get("reply_markup"))
	}
	if post.Get("chat_id") != "-1001234567" || !strings.Contains(post.Get("text"), "tg://user?id=7") ||
		!strings.HasSuffix(post.Get("text"), "Vote reminder") {
		t.Fatalf("post = %v", post)
	}
}

func TestTransport_DisplayName(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()
	if name, err := tr.DisplayName(ctx, "-1001234567", "7"); err != nil || name != "Ann" {
		t.Fatalf("member name = %q, %v", name, err)
	}
	if name, err := tr.DisplayName(ctx, "", "7"); err != nil || name != "Ann Lee" {
		t.Fatalf("private name = %q, %v", name, err)
	}
}

func TestTransport_CancelledContext(t *testing.T) {
	tr, api := newTestTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.SendDirect(ctx, "7", delivery.Message{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(api.sent("sendMessage")) != 0 {
		t.Fatalf("sent despite cancelled context")
	}
}
