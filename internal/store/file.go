package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

const (
	subscriptionsFile = "subscriptions.json"
	legacyFile        = "subscribers.json"
)

// fileRecord is the on-disk shape of one subscription (timestamps in epoch ms).
type fileRecord struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"userId"`
	VoteURLID            *string        `json:"voteUrlId"`
	Window               *domain.Window `json:"window"`
	Mode                 string         `json:"mode"`
	ChannelID            *string        `json:"channelId"`
	Timezone             *string        `json:"timezone"`
	GuildID              *string        `json:"guildId"`
	LastKnownDisplayName *string        `json:"lastKnownDisplayName"`
	LastVotedAt          *int64         `json:"lastVotedAt"`
	LastReminderAt       *int64         `json:"lastReminderAt"`
}

// legacyRecord accepts every historical layout: flat records, the old
// urlId/tz aliases, and per-user records nesting a subscriptions array.
type legacyRecord struct {
	fileRecord
	URLID         *string        `json:"urlId"`
	TZ            *string        `json:"tz"`
	Subscriptions []legacyRecord `json:"subscriptions"`
}

// FileRepo stores subscriptions as an indented JSON array in dir.
type FileRepo struct {
	dir string
}

// OpenFile prepares dir and seeds subscriptions.json, copying the legacy
// subscribers.json when only that one exists.
func OpenFile(dir string) (*FileRepo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r := &FileRepo{dir: dir}
	if _, err := os.Stat(r.path()); errors.Is(err, fs.ErrNotExist) {
		if legacy, err := os.ReadFile(filepath.Join(dir, legacyFile)); err == nil {
			if err := writeAtomic(r.path(), legacy); err != nil {
				return nil, err
			}
		} else if err := writeAtomic(r.path(), []byte("[]")); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *FileRepo) path() string { return filepath.Join(r.dir, subscriptionsFile) }

func (r *FileRepo) Close() error { return nil }

// LoadSubscriptions reads the file, migrating older layouts in place.
func (r *FileRepo) LoadSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	raw, err := os.ReadFile(r.path())
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", subscriptionsFile, err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	// v1: a plain array of user ids.
	if bytes.HasPrefix(bytes.TrimSpace(items[0]), []byte(`"`)) {
		var userIDs []string
		if err := json.Unmarshal(raw, &userIDs); err != nil {
			return nil, fmt.Errorf("decode legacy user list: %w", err)
		}
		subs := make([]domain.Subscription, 0, len(userIDs))
		for i, uid := range userIDs {
			subs = append(subs, fromLegacy(legacyRecord{fileRecord: fileRecord{UserID: uid}}, i))
		}
		return subs, r.SaveSubscriptions(ctx, subs)
	}

	var subs []domain.Subscription
	for _, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			continue
		}
		var rec legacyRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		if rec.Subscriptions != nil {
			for _, nested := range rec.Subscriptions {
				nested.UserID = rec.UserID
				subs = append(subs, fromLegacy(nested, len(subs)))
			}
			continue
		}
		subs = append(subs, fromLegacy(rec, len(subs)))
	}
	if len(subs) != len(items) {
		return subs, r.SaveSubscriptions(ctx, subs)
	}
	return subs, nil
}

// SaveSubscriptions rewrites the whole file.
func (r *FileRepo) SaveSubscriptions(_ context.Context, subs []domain.Subscription) error {
	recs := make([]fileRecord, 0, len(subs))
	for _, s := range subs {
		recs = append(recs, toFile(s))
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(r.path(), data)
}

func fromLegacy(rec legacyRecord, index int) domain.Subscription {
	id := rec.ID
	if id == "" {
		id = fmt.Sprintf("sub%d-%s", index, uuid.NewString())
	}
	voteURLID := deref(rec.VoteURLID)
	if voteURLID == "" {
		voteURLID = deref(rec.URLID)
	}
	tz := deref(rec.Timezone)
	if tz == "" {
		tz = deref(rec.TZ)
	}
	return domain.Subscription{
		ID:                   id,
		UserID:               rec.UserID,
		VoteURLID:            voteURLID,
		GuildID:              deref(rec.GuildID),
		Window:               domain.NormalizeWindow(rec.Window),
		Mode:                 domain.NormalizeMode(rec.Mode),
		ChannelID:            deref(rec.ChannelID),
		Timezone:             tz,
		LastKnownDisplayName: deref(rec.LastKnownDisplayName),
		LastVotedAt:          domain.FromMillis(rec.LastVotedAt),
		LastReminderAt:       domain.FromMillis(rec.LastReminderAt),
	}
}

func toFile(s domain.Subscription) fileRecord {
	return fileRecord{
		ID:                   s.ID,
		UserID:               s.UserID,
		VoteURLID:            ref(s.VoteURLID),
		Window:               s.Window,
		Mode:                 string(s.Mode),
		ChannelID:            ref(s.ChannelID),
		Timezone:             ref(s.Timezone),
		GuildID:              ref(s.GuildID),
		LastKnownDisplayName: ref(s.LastKnownDisplayName),
		LastVotedAt:          domain.Millis(s.LastVotedAt),
		LastReminderAt:       domain.Millis(s.LastReminderAt),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ref maps "" to null so the file keeps the original layout.
func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// writeAtomic writes through a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
