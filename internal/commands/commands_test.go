package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/MrDDream/ReminderVoteBot/internal/catalog"
	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/reminder"
	"github.com/MrDDream/ReminderVoteBot/internal/store"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
)

const testCatalog = `{"voteUrls":[
  {"id":"srv","label":"Server","url":"https://srv.example/vote","cooldownMinutes":120,"channelId":"123456789012345678"},
  {"id":"other","label":"Other","url":"https://other.example/vote","cooldownMinutes":60}
],"defaultVoteUrlId":"srv"}`

type nopScheduler struct{}

func (nopScheduler) Schedule(domain.Subscription) error { return nil }

func (nopScheduler) Unschedule(string) {}

func (nopScheduler) ScheduleAll(subs []domain.Subscription) int { return len(subs) }

type nopDeliverer struct{}

func (nopDeliverer) Deliver(context.Context, delivery.Target, delivery.Message) bool { return true }

func newHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	log := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := catalog.Open(path, "")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	st := store.New(store.NewMemoryRepo(), log)
	now := func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) }
	notifier := reminder.NewNotifier(cat, reminder.NewNames(nil), token.NewCodec("s"), nopDeliverer{}, log,
		reminder.NotifierOptions{Lang: reminder.LangEN, Now: now})
	svc := reminder.NewService(st, cat, nopScheduler{}, notifier, log, reminder.ServiceOptions{Now: now})
	return New(svc, log, Options{Lang: reminder.LangEN, DefaultTZ: "Europe/Paris", Admins: []string{"admin"}}), st
}

func handle(t *testing.T, h *Handler, user, text string) string {
	t.Helper()
	reply, ok := h.Handle(context.Background(), Request{UserID: user, GuildID: "g1", Text: text})
	if !ok {
		t.Fatalf("%q not handled", text)
	}
	return reply
}

func TestHandle_NonCommandIgnored(t *testing.T) {
	h, _ := newHandler(t)
	for _, text := range []string{"", "hello", "/unknown"} {
		if _, ok := h.Handle(context.Background(), Request{UserID: "u1", Text: text}); ok {
			t.Fatalf("%q should not be handled", text)
		}
	}
}

func TestHandle_Votes(t *testing.T) {
	h, _ := newHandler(t)
	reply := handle(t, h, "u1", "/votes")
	for _, want := range []string{"Server (srv)", "cooldown 2h", "<#123456789012345678>", "default", "Other (other)", "cooldown 1h"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestHandle_Subscribe(t *testing.T) {
	h, st := newHandler(t)
	reply := handle(t, h, "u1", "/subscribe@ReminderBot srv 09:00-21:00 channel Europe/Paris")
	if !strings.HasPrefix(reply, "Subscription created.") {
		t.Fatalf("reply = %q", reply)
	}
	subs := st.ForUser("u1")
	if len(subs) != 1 {
		t.Fatalf("subs = %+v", subs)
	}
	got := subs[0]
	if got.Mode != domain.ModeChannel || got.ChannelID != "123456789012345678" || got.Timezone != "Europe/Paris" || got.GuildID != "g1" {
		t.Fatalf("subscription = %+v", got)
	}
	if !strings.Contains(reply, "Ping <#123456789012345678>") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandle_SubscribeErrors(t *testing.T) {
	h, st := newHandler(t)
	cases := []struct {
		text string
		want string
	}{
		{"/subscribe", "Usage"},
		{"/subscribe srv 09:15-21:00", "30-minute"},
		{"/subscribe srv nine-ten", "30-minute"},
		{"/subscribe nope 09:00-10:00", "Unknown vote target"},
		{"/subscribe other 09:00-10:00 channel", "No channel configured"},
		{"/subscribe srv 09:00-10:00 dm Nowhere/City", "Invalid timezone"},
	}
	for _, tc := range cases {
		if reply := handle(t, h, "u1", tc.text); !strings.Contains(reply, tc.want) {
			t.Fatalf("%q: reply = %q, want %q", tc.text, reply, tc.want)
		}
	}
	if len(st.List()) != 0 {
		t.Fatalf("failed commands stored subscriptions")
	}
}

func TestHandle_StatusAndUnsubscribe(t *testing.T) {
	h, st := newHandler(t)
	if reply := handle(t, h, "u1", "/status"); reply != "No active subscriptions." {
		t.Fatalf("empty status = %q", reply)
	}
	handle(t, h, "u1", "/subscribe srv 09:00-21:00")
	handle(t, h, "u1", "/subscribe other 22:00-06:00")

	reply := handle(t, h, "u1", "/status")
	for _, want := range []string{"Number of subscriptions: 2", "Server (srv)", "09:00-21:00", "TZ Europe/Paris", "DM", "120m", "Timer: ready", "22:00-06:00"} {
		if !strings.Contains(reply, want) {
			t.Fatalf("status missing %q:\n%s", want, reply)
		}
	}

	if reply := handle(t, h, "u1", "/unsubscribe"); !strings.Contains(reply, "Several subscriptions") {
		t.Fatalf("ambiguous unsubscribe = %q", reply)
	}
	id := st.ForUser("u1")[0].ID
	if reply := handle(t, h, "u2", "/unsubscribe "+id); reply != "No subscriptions." {
		t.Fatalf("foreign unsubscribe = %q", reply)
	}
	if reply := handle(t, h, "u1", "/unsubscribe "+id); reply != "Subscription removed." {
		t.Fatalf("unsubscribe = %q", reply)
	}
	if reply := handle(t, h, "u1", "/unsubscribe all"); reply != "1 subscription(s) removed." {
		t.Fatalf("unsubscribe all = %q", reply)
	}
	if len(st.List()) != 0 {
		t.Fatalf("left = %+v", st.List())
	}
}

func TestReset_OwnerOnly(t *testing.T) {
	h, st := newHandler(t)
	handle(t, h, "u1", "/subscribe srv 09:00-21:00")
	id := st.ForUser("u1")[0].ID
	ctx := context.Background()

	if _, ok := h.Reset(ctx, "u1", "status-edit"); ok {
		t.Fatalf("foreign action handled")
	}
	if reply, _ := h.Reset(ctx, "u2", reminder.ResetAction+"|"+id); !strings.Contains(reply, "reserved") {
		t.Fatalf("intruder reply = %q", reply)
	}
	if reply, _ := h.Reset(ctx, "u1", reminder.ResetAction+"|missing"); !strings.Contains(reply, "not found") {
		t.Fatalf("missing reply = %q", reply)
	}
	reply, ok := h.Reset(ctx, "u1", reminder.ResetAction+"|"+id)
	if !ok || !strings.HasPrefix(reply, "Timer reset.") {
		t.Fatalf("reset reply = %q", reply)
	}
	got, _ := st.Get(id)
	if got.LastVotedAt == nil || got.LastVotedAt.Hour() != 9 {
		t.Fatalf("LastVotedAt = %v", got.LastVotedAt)
	}
}

func TestHandle_Edit(t *testing.T) {
	h, st := newHandler(t)
	handle(t, h, "u1", "/subscribe other 09:00-21:00")
	id := st.ForUser("u1")[0].ID

	reply := handle(t, h, "u1", "/edit "+id+" 22:00-06:30 channel vote=srv Europe/London")
	if !strings.HasPrefix(reply, "Subscription updated.") {
		t.Fatalf("reply = %q", reply)
	}
	got, _ := st.Get(id)
	if got.VoteURLID != "srv" || got.Mode != domain.ModeChannel || got.Timezone != "Europe/London" {
		t.Fatalf("edited = %+v", got)
	}
	if got.Window == nil || got.Window.Start != "22:00" || got.Window.End != "06:30" {
		t.Fatalf("window = %+v", got.Window)
	}

	cases := []struct {
		user string
		text string
		want string
	}{
		{"u1", "/edit " + id, "Usage"},
		{"u1", "/edit " + id + " 09:15-10:00", "30-minute"},
		{"u1", "/edit " + id + " vote=nope", "Unknown vote target"},
		{"u1", "/edit " + id + " vote=other channel", "No channel configured"},
		{"u1", "/edit " + id + " Nowhere/City", "Invalid timezone"},
		{"u2", "/edit " + id + " dm", "Subscription not found"},
	}
	for _, tc := range cases {
		if reply := handle(t, h, tc.user, tc.text); !strings.Contains(reply, tc.want) {
			t.Fatalf("%q: reply = %q, want %q", tc.text, reply, tc.want)
		}
	}
	if kept, _ := st.Get(id); kept.Window.Start != "22:00" || kept.VoteURLID != "srv" {
		t.Fatalf("rejected edits changed the subscription: %+v", kept)
	}

	handle(t, h, "u1", "/edit "+id+" allday dm")
	if got, _ := st.Get(id); got.Window != nil || got.Mode != domain.ModeDM || got.ChannelID != "" {
		t.Fatalf("allday dm = %+v", got)
	}
}

func TestHandle_VoteURLAdminOnly(t *testing.T) {
	h, _ := newHandler(t)
	if reply := handle(t, h, "u1", "/voteurl delete srv"); reply != "Admins only." {
		t.Fatalf("reply = %q", reply)
	}
	if _, ok := h.svc.Catalog().Lookup("srv"); !ok {
		t.Fatalf("non-admin deleted an entry")
	}
}

func TestHandle_VoteURLAdd(t *testing.T) {
	h, _ := newHandler(t)
	reply := handle(t, h, "admin", "/voteurl add url=https://new.example/vote?ref=bot cooldown=1h New Site")
	if !strings.Contains(reply, "New Site (new-site)") {
		t.Fatalf("reply = %q", reply)
	}
	e, ok := h.svc.Catalog().Lookup("new-site")
	if !ok || e.CooldownMinutes != 60 || e.URL != "https://new.example/vote?ref=bot" {
		t.Fatalf("entry = %+v, %v", e, ok)
	}

	cases := []struct {
		text string
		want string
	}{
		{"/voteurl", "Usage"},
		{"/voteurl add url=https://x.example/vote cooldown=45 X", "Invalid cooldown"},
		{"/voteurl add url=https://x.example/vote cooldown=soon X", "Invalid cooldown"},
		{"/voteurl add url=https://x.example/vote cooldown=60 channel=abc X", "Invalid channel id"},
		{"/voteurl add url=notaurl cooldown=60 Bad", "Invalid"},
	}
	for _, tc := range cases {
		if reply := handle(t, h, "admin", tc.text); !strings.Contains(reply, tc.want) {
			t.Fatalf("%q: reply = %q, want %q", tc.text, reply, tc.want)
		}
	}
	if n := len(h.svc.Catalog().Entries()); n != 3 {
		t.Fatalf("entries = %d", n)
	}
}

func TestHandle_VoteURLEditDefaultDelete(t *testing.T) {
	h, st := newHandler(t)
	handle(t, h, "u1", "/subscribe srv 09:00-21:00 channel")
	id := st.ForUser("u1")[0].ID

	reply := handle(t, h, "admin", "/voteurl edit srv channel=<#876543210987654321>")
	if !strings.Contains(reply, "1 subscription(s) updated") {
		t.Fatalf("edit reply = %q", reply)
	}
	got, _ := st.Get(id)
	if got.ChannelID != "876543210987654321" {
		t.Fatalf("dependent channel = %q", got.ChannelID)
	}
	if e, _ := h.svc.Catalog().Lookup("srv"); e.Label != "Server" || e.CooldownMinutes != 120 {
		t.Fatalf("edit lost fields: %+v", e)
	}
	if reply := handle(t, h, "admin", "/voteurl edit nope url=https://x.example"); !strings.Contains(reply, "Unknown vote target") {
		t.Fatalf("unknown edit = %q", reply)
	}

	if reply := handle(t, h, "admin", "/voteurl default other"); !strings.HasPrefix(reply, "Default vote target: other") {
		t.Fatalf("default reply = %q", reply)
	}
	if def, _ := h.svc.Catalog().Default(); def.ID != "other" {
		t.Fatalf("default = %s", def.ID)
	}

	reply = handle(t, h, "admin", "/voteurl delete srv")
	if reply != "Vote target deleted (1 subscription(s) affected)." {
		t.Fatalf("delete reply = %q", reply)
	}
	if got, _ := st.Get(id); got.VoteURLID != "other" {
		t.Fatalf("dependent not re-pointed: %+v", got)
	}
	if reply := handle(t, h, "admin", "/voteurl delete srv"); !strings.Contains(reply, "Unknown vote target") {
		t.Fatalf("second delete = %q", reply)
	}
}
