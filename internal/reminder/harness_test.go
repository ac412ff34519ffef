package reminder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/MrDDream/ReminderVoteBot/internal/catalog"
	"github.com/MrDDream/ReminderVoteBot/internal/delivery"
	"github.com/MrDDream/ReminderVoteBot/internal/domain"
	"github.com/MrDDream/ReminderVoteBot/internal/store"
	"github.com/MrDDream/ReminderVoteBot/internal/token"
)

var testNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

const (
	testChannel = "123456789012345678"
	testCatalog = `{"voteUrls":[
  {"id":"srv","label":"Server","url":"https://srv.example/vote","cooldownMinutes":120,"channelId":"123456789012345678"},
  {"id":"other","label":"Other","url":"https://other.example/vote?ref=bot","cooldownMinutes":60}
],"defaultVoteUrlId":"srv"}`
)

type fakeDeliverer struct {
	ok      bool
	targets []delivery.Target
	msgs    []delivery.Message
}

func (f *fakeDeliverer) Deliver(_ context.Context, t delivery.Target, msg delivery.Message) bool {
	f.targets = append(f.targets, t)
	f.msgs = append(f.msgs, msg)
	return f.ok
}

type fakeNames struct {
	names map[string]string
	err   error
	calls int
}

func (f *fakeNames) DisplayName(_ context.Context, guildID, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if n, ok := f.names[guildID+"|"+userID]; ok {
		return n, nil
	}
	return "", errors.New("unknown member")
}

type fakeScheduler struct {
	mu          sync.Mutex
	st          *store.Store
	scheduled   map[string]int
	unscheduled []string

	// ids still present in the store when Unschedule was called
	presentOnUnschedule []string
}

func (f *fakeScheduler) Schedule(sub domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[sub.ID]++
	return nil
}

func (f *fakeScheduler) Unschedule(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unscheduled = append(f.unscheduled, id)
	if _, ok := f.st.Get(id); ok {
		f.presentOnUnschedule = append(f.presentOnUnschedule, id)
	}
}

func (f *fakeScheduler) ScheduleAll(subs []domain.Subscription) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = make(map[string]int)
	for _, s := range subs {
		f.scheduled[s.ID]++
	}
	return len(subs)
}

type harness struct {
	svc      *Service
	notifier *Notifier
	st       *store.Store
	repo     *store.MemoryRepo
	cat      *catalog.Catalog
	sched    *fakeScheduler
	out      *fakeDeliverer
	names    *fakeNames
	codec    *token.Codec
}

type harnessOpts struct {
	publicBase  string
	catalogJSON string
	maxAge      time.Duration
}

func newHarness(t *testing.T, o harnessOpts, subs ...domain.Subscription) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if o.catalogJSON != "" {
		if err := os.WriteFile(path, []byte(o.catalogJSON), 0o644); err != nil {
			t.Fatalf("write catalog: %v", err)
		}
	}
	cat, err := catalog.Open(path, "")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	repo := store.NewMemoryRepo(subs...)
	st := store.New(repo, log)
	if err := st.Load(context.Background()); err != nil {
		t.Fatalf("load store: %v", err)
	}

	h := &harness{
		st:    st,
		repo:  repo,
		cat:   cat,
		sched: &fakeScheduler{st: st, scheduled: make(map[string]int)},
		out:   &fakeDeliverer{ok: true},
		names: &fakeNames{names: map[string]string{"g1|u1": "Alice"}},
		codec: token.NewCodec("secret"),
	}
	now := func() time.Time { return testNow }
	h.notifier = NewNotifier(cat, NewNames(h.names), h.codec, h.out, log, NotifierOptions{
		PublicBaseURL: o.publicBase,
		Lang:          LangEN,
		Now:           now,
	})
	h.svc = NewService(st, cat, h.sched, h.notifier, log, ServiceOptions{TokenMaxAge: o.maxAge, Now: now})
	return h
}

func sub(id, userID, guildID, voteURLID string) domain.Subscription {
	return domain.Subscription{
		ID:        id,
		UserID:    userID,
		GuildID:   guildID,
		VoteURLID: voteURLID,
		Mode:      domain.ModeDM,
	}
}
