package delivery

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

type fakeTransport struct {
	channels   map[string]ChannelInfo
	resolveErr error
	postErr    error
	directErr  error

	posts   []string
	directs []string
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) ResolveChannel(_ context.Context, id string) (ChannelInfo, error) {
	if f.resolveErr != nil {
		return ChannelInfo{}, f.resolveErr
	}
	info, ok := f.channels[id]
	if !ok {
		return ChannelInfo{}, ErrChannelNotFound
	}
	return info, nil
}

func (f *fakeTransport) PostToChannel(_ context.Context, channelID, userID string, _ Message) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, channelID+"/"+userID)
	return nil
}

func (f *fakeTransport) SendDirect(_ context.Context, userID string, _ Message) error {
	if f.directErr != nil {
		return f.directErr
	}
	f.directs = append(f.directs, userID)
	return nil
}

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestDeliver_ChannelMode(t *testing.T) {
	tr := &fakeTransport{channels: map[string]ChannelInfo{"100": {ID: "100", Postable: true}}}
	log, _ := newObserved()
	d := NewDispatcher(tr, 0, log)

	ok := d.Deliver(context.Background(), Target{SubscriptionID: "s", UserID: "u", Mode: domain.ModeChannel, ChannelID: "100"}, Message{Text: "hi"})
	if !ok {
		t.Fatalf("expected delivery")
	}
	if len(tr.posts) != 1 || tr.posts[0] != "100/u" {
		t.Fatalf("posts = %v", tr.posts)
	}
	if len(tr.directs) != 0 {
		t.Fatalf("direct should not be attempted: %v", tr.directs)
	}
}

func TestDeliver_FallsBackToDirect(t *testing.T) {
	cases := []struct {
		name string
		tr   *fakeTransport
	}{
		{"not found", &fakeTransport{channels: map[string]ChannelInfo{}}},
		{"not postable", &fakeTransport{channels: map[string]ChannelInfo{"100": {ID: "100"}}}},
		{"resolve error", &fakeTransport{resolveErr: errors.New("boom")}},
		{"post error", &fakeTransport{channels: map[string]ChannelInfo{"100": {ID: "100", Postable: true}}, postErr: errors.New("forbidden")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, logs := newObserved()
			d := NewDispatcher(tc.tr, 0, log)
			ok := d.Deliver(context.Background(), Target{SubscriptionID: "s", UserID: "u", Mode: domain.ModeChannel, ChannelID: "100"}, Message{})
			if !ok {
				t.Fatalf("expected fallback delivery")
			}
			if len(tc.tr.directs) != 1 {
				t.Fatalf("direct attempts = %d", len(tc.tr.directs))
			}
			failed := logs.FilterMessage("delivery strategy failed").All()
			if len(failed) != 1 {
				t.Fatalf("failure logs = %d", len(failed))
			}
			ctx := failed[0].ContextMap()
			if ctx["subscriptionId"] != "s" || ctx["channelId"] != "100" || ctx["strategy"] != "channel" {
				t.Fatalf("log fields = %v", ctx)
			}
		})
	}
}

func TestDeliver_DMModeSkipsChannel(t *testing.T) {
	tr := &fakeTransport{channels: map[string]ChannelInfo{"100": {ID: "100", Postable: true}}}
	log, _ := newObserved()
	d := NewDispatcher(tr, 0, log)
	if !d.Deliver(context.Background(), Target{UserID: "u", Mode: domain.ModeDM, ChannelID: "100"}, Message{}) {
		t.Fatalf("expected delivery")
	}
	if len(tr.posts) != 0 || len(tr.directs) != 1 {
		t.Fatalf("posts=%v directs=%v", tr.posts, tr.directs)
	}
}

func TestDeliver_ChannelModeWithoutChannel(t *testing.T) {
	tr := &fakeTransport{}
	log, _ := newObserved()
	d := NewDispatcher(tr, 0, log)
	if !d.Deliver(context.Background(), Target{UserID: "u", Mode: domain.ModeChannel}, Message{}) {
		t.Fatalf("expected direct delivery")
	}
	if len(tr.directs) != 1 {
		t.Fatalf("directs = %v", tr.directs)
	}
}

func TestDeliver_AllFail(t *testing.T) {
	tr := &fakeTransport{directErr: errors.New("dms closed")}
	log, logs := newObserved()
	d := NewDispatcher(tr, 0, log)
	if d.Deliver(context.Background(), Target{SubscriptionID: "s", UserID: "u", Mode: domain.ModeDM}, Message{}) {
		t.Fatalf("expected failure")
	}
	if logs.FilterMessage("reminder not delivered").Len() != 1 {
		t.Fatalf("missing final error log")
	}
}

func TestDeliver_RespectsCancelledContext(t *testing.T) {
	tr := &fakeTransport{}
	log, _ := newObserved()
	d := NewDispatcher(tr, 1, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The first token is available immediately; drain it so Wait must block.
	d.limiter.Allow()
	if d.Deliver(ctx, Target{UserID: "u", Mode: domain.ModeDM}, Message{}) {
		t.Fatalf("expected cancelled delivery to fail")
	}
	if len(tr.directs) != 0 {
		t.Fatalf("direct attempted after cancel")
	}
}
