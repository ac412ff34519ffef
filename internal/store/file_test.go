package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFileRepo_SeedsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	repo, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	subs, err := repo.LoadSubscriptions(context.Background())
	if err != nil || len(subs) != 0 {
		t.Fatalf("want empty, got %d (%v)", len(subs), err)
	}
}

func TestFileRepo_CopiesLegacyFileAndMigratesUserList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, legacyFile), `["111","222"]`)
	repo, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	subs, err := repo.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(subs) != 2 || subs[0].UserID != "111" || subs[1].UserID != "222" {
		t.Fatalf("unexpected migration result: %+v", subs)
	}
	if !strings.HasPrefix(subs[1].ID, "sub1-") || subs[0].Mode != domain.ModeDM {
		t.Fatalf("unexpected defaults: %+v", subs[1])
	}
	raw, _ := os.ReadFile(filepath.Join(dir, subscriptionsFile))
	if !strings.Contains(string(raw), `"userId": "111"`) {
		t.Fatalf("migrated file not rewritten: %s", raw)
	}
}

func TestFileRepo_MigratesNestedRecordsAndAliases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, subscriptionsFile), `[
		{"userId":"u1","subscriptions":[
			{"id":"x","urlId":"srv","tz":"Asia/Tokyo","mode":"channel","channelId":"123456789012345678"},
			{"id":"y","window":{"start":"09:00","end":"21:00"}}
		]},
		null
	]`)
	repo, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	subs, err := repo.LoadSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("want 2, got %d", len(subs))
	}
	x, y := subs[0], subs[1]
	if x.UserID != "u1" || x.VoteURLID != "srv" || x.Timezone != "Asia/Tokyo" || x.Mode != domain.ModeChannel {
		t.Fatalf("aliases not applied: %+v", x)
	}
	if y.UserID != "u1" || y.Window == nil || y.Window.End != "21:00" {
		t.Fatalf("nested record lost: %+v", y)
	}
}

func TestFileRepo_SaveUsesEpochMillisAndNulls(t *testing.T) {
	dir := t.TempDir()
	repo, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.UnixMilli(1746435600123).UTC()
	in := []domain.Subscription{{ID: "a", UserID: "u", Mode: domain.ModeDM, LastVotedAt: &at}}
	if err := repo.SaveSubscriptions(context.Background(), in); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, subscriptionsFile))
	var decoded []map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0]["lastVotedAt"].(float64) != 1746435600123 {
		t.Fatalf("want epoch ms, got %v", decoded[0]["lastVotedAt"])
	}
	if decoded[0]["lastReminderAt"] != nil || decoded[0]["window"] != nil {
		t.Fatalf("want nulls, got %v / %v", decoded[0]["lastReminderAt"], decoded[0]["window"])
	}

	out, err := repo.LoadSubscriptions(context.Background())
	if err != nil || len(out) != 1 || !out[0].LastVotedAt.Equal(at) {
		t.Fatalf("round trip failed: %+v (%v)", out, err)
	}
}
