// Package catalog holds the vote targets subscriptions point at.
package catalog

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"

	"github.com/MrDDream/ReminderVoteBot/internal/domain"
)

var (
	ErrInvalidEntry = errors.New("invalid vote url entry")
	ErrNotFound     = errors.New("vote url entry not found")
)

// Catalog is the single writer of the vote URL list. Every mutation is
// written back to its file.
type Catalog struct {
	mu        sync.RWMutex
	path      string
	format    format
	fallback  string // DEFAULT_VOTE_URL
	entries   []domain.VoteURLEntry
	defaultID string
	baseURL   string
	lastHash  uint64
	validate  *validator.Validate
	now       func() time.Time
}

// Open loads the catalog file at path, creating an empty one when missing.
// fallbackURL is used as the vote URL while the catalog has no entry.
func Open(path, fallbackURL string) (*Catalog, error) {
	f, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		path:     path,
		format:   f,
		fallback: fallbackURL,
		validate: newValidator(),
		now:      time.Now,
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.baseURL = fallbackURL
		if err := c.saveLocked(); err != nil {
			return nil, err
		}
		return c, nil
	}
	if _, err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("channelid", func(fl validator.FieldLevel) bool {
		return domain.IsChannelID(fl.Field().String())
	})
	return v
}

// Path is the backing file.
func (c *Catalog) Path() string { return c.path }

// Entries returns the ordered entries.
func (c *Catalog) Entries() []domain.VoteURLEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.VoteURLEntry(nil), c.entries...)
}

// Lookup finds an entry by exact id.
func (c *Catalog) Lookup(id string) (domain.VoteURLEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.findLocked(id); e != nil {
		return *e, true
	}
	return domain.VoteURLEntry{}, false
}

// Default returns the explicit default when it still exists, else the first entry.
func (c *Catalog) Default() (domain.VoteURLEntry, bool) {
	return c.Resolve("")
}

// Resolve finds id, falling back to the default entry, then the first one.
func (c *Catalog) Resolve(id string) (domain.VoteURLEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.resolveLocked(id); e != nil {
		return *e, true
	}
	return domain.VoteURLEntry{}, false
}

func (c *Catalog) resolveLocked(id string) *domain.VoteURLEntry {
	if len(c.entries) == 0 {
		return nil
	}
	if id != "" {
		if e := c.findLocked(id); e != nil {
			return e
		}
	}
	if c.defaultID != "" {
		if e := c.findLocked(c.defaultID); e != nil {
			return e
		}
	}
	return &c.entries[0]
}

func (c *Catalog) findLocked(id string) *domain.VoteURLEntry {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return &c.entries[i]
		}
	}
	return nil
}

// CooldownFor resolves the cooldown of the entry a subscription points at.
func (c *Catalog) CooldownFor(voteURLID string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CooldownFor(c.resolveLocked(voteURLID))
}

// URLFor returns the vote URL for voteURLID, or the legacy base URL.
func (c *Catalog) URLFor(voteURLID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.resolveLocked(voteURLID); e != nil && e.URL != "" {
		return e.URL
	}
	return c.baseURL
}

// --- Mutations ---

// EntryInput is the user-supplied part of an entry.
type EntryInput struct {
	Label           string
	URL             string
	CooldownMinutes int
	ChannelID       string
}

func (c *Catalog) build(id string, in EntryInput) (domain.VoteURLEntry, error) {
	channelID, err := domain.NormalizeChannelID(in.ChannelID)
	if err != nil {
		return domain.VoteURLEntry{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	e := domain.VoteURLEntry{
		ID:              id,
		Label:           in.Label,
		URL:             in.URL,
		CooldownMinutes: in.CooldownMinutes,
		ChannelID:       channelID,
	}
	if err := c.check(e); err != nil {
		return domain.VoteURLEntry{}, err
	}
	return e, nil
}

func (c *Catalog) check(e domain.VoteURLEntry) error {
	if err := c.validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEntry, e.ID, err)
	}
	if err := domain.ValidateURL(e.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return nil
}

// Add appends a new entry with a slug id derived from its label. The first
// entry of an empty catalog becomes the default (becameDefault).
func (c *Catalog) Add(in EntryInput) (entry domain.VoteURLEntry, becameDefault bool, err error) {
	if !domain.IsCooldownChoice(in.CooldownMinutes) {
		return domain.VoteURLEntry{}, false, fmt.Errorf("%w: %w: allowed %v", ErrInvalidEntry, domain.ErrInvalidCooldown, domain.CooldownChoices)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.build(c.newIDLocked(in.Label), in)
	if err != nil {
		return domain.VoteURLEntry{}, false, err
	}
	c.entries = append(c.entries, e)
	if c.defaultID == "" {
		c.defaultID = e.ID
		becameDefault = true
	}
	c.syncBaseURLLocked()
	return e, becameDefault, c.saveLocked()
}

// Update replaces the editable fields of entry id.
func (c *Catalog) Update(id string, in EntryInput) (domain.VoteURLEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.findLocked(id)
	if cur == nil {
		return domain.VoteURLEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e, err := c.build(id, in)
	if err != nil {
		return domain.VoteURLEntry{}, err
	}
	*cur = e
	c.syncBaseURLLocked()
	return e, c.saveLocked()
}

// Delete removes entry id and returns the fallback dependents should move to;
// ok is false when the catalog is now empty.
func (c *Catalog) Delete(id string) (fallback domain.VoteURLEntry, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := -1
	for i := range c.entries {
		if c.entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.VoteURLEntry{}, false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.entries = append(c.entries[:idx:idx], c.entries[idx+1:]...)
	if c.findLocked(c.defaultID) == nil {
		c.defaultID = ""
		if len(c.entries) > 0 {
			c.defaultID = c.entries[0].ID
		}
	}
	c.syncBaseURLLocked()
	if e := c.resolveLocked(""); e != nil {
		fallback, ok = *e, true
	}
	return fallback, ok, c.saveLocked()
}

// SetDefault marks id as the default entry.
func (c *Catalog) SetDefault(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findLocked(id) == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	c.defaultID = id
	c.syncBaseURLLocked()
	return c.saveLocked()
}

func (c *Catalog) newIDLocked(label string) string {
	base := slug.Make(label)
	if base == "" {
		base = "vote-" + strconv.FormatInt(c.now().UnixMilli(), 10)
	}
	if c.findLocked(base) == nil {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if c.findLocked(candidate) == nil {
			return candidate
		}
	}
}

func (c *Catalog) syncBaseURLLocked() {
	if e := c.resolveLocked(c.defaultID); e != nil {
		c.baseURL = e.URL
		return
	}
	if c.baseURL == "" {
		c.baseURL = c.fallback
	}
}

// --- Persistence ---

// Change describes what a reload did to the entry list.
type Change struct {
	Removed []string
	Updated []domain.VoteURLEntry
	Added   []string
}

// Empty reports whether the reload changed nothing.
func (ch Change) Empty() bool {
	return len(ch.Removed) == 0 && len(ch.Updated) == 0 && len(ch.Added) == 0
}

// Reload re-reads the file. Identical content is skipped; an invalid file is
// rejected and the previous entries stay active.
func (c *Catalog) Reload() (Change, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return Change{}, err
	}
	h := hashBytes(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastHash != 0 && h == c.lastHash {
		return Change{}, nil
	}
	var doc Document
	if err := c.format.unmarshal(raw, &doc); err != nil {
		return Change{}, fmt.Errorf("decode catalog %s: %w", filepath.Base(c.path), err)
	}
	entries, defaultID, baseURL := normalizeDocument(doc, c.fallback)
	for _, e := range entries {
		if err := c.check(e); err != nil {
			return Change{}, err
		}
	}

	change := diff(c.entries, entries)
	c.entries, c.defaultID, c.baseURL = entries, defaultID, baseURL
	c.lastHash = h
	return change, nil
}

func (c *Catalog) saveLocked() error {
	doc := Document{
		VoteBaseURL:      c.baseURL,
		VoteURLs:         c.entries,
		DefaultVoteURLID: c.defaultID,
	}
	if doc.VoteURLs == nil {
		doc.VoteURLs = []domain.VoteURLEntry{}
	}
	raw, err := c.format.marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	c.lastHash = hashBytes(raw)
	return nil
}

// normalizeDocument repairs ids, labels, urls, cooldowns and the default id.
func normalizeDocument(doc Document, fallback string) ([]domain.VoteURLEntry, string, string) {
	baseURL := doc.VoteBaseURL
	if baseURL == "" {
		baseURL = fallback
	}
	entries := make([]domain.VoteURLEntry, 0, len(doc.VoteURLs))
	for i, e := range doc.VoteURLs {
		if e.ID == "" {
			e.ID = fmt.Sprintf("entry-%d", i+1)
		}
		if e.Label == "" {
			e.Label = fmt.Sprintf("Option %d", i+1)
		}
		if e.URL == "" {
			e.URL = baseURL
		}
		if e.CooldownMinutes <= 0 {
			e.CooldownMinutes = domain.DefaultCooldownMinutes
		}
		if id, err := domain.NormalizeChannelID(e.ChannelID); err == nil {
			e.ChannelID = id
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return entries, "", baseURL
	}
	defaultID := doc.DefaultVoteURLID
	found := false
	for _, e := range entries {
		if e.ID == defaultID {
			found = true
			if e.URL != "" {
				baseURL = e.URL
			}
		}
	}
	if !found {
		defaultID = entries[0].ID
		baseURL = entries[0].URL
	}
	return entries, defaultID, baseURL
}

func diff(before, after []domain.VoteURLEntry) Change {
	var ch Change
	old := make(map[string]domain.VoteURLEntry, len(before))
	for _, e := range before {
		old[e.ID] = e
	}
	seen := make(map[string]bool, len(after))
	for _, e := range after {
		seen[e.ID] = true
		prev, ok := old[e.ID]
		switch {
		case !ok:
			ch.Added = append(ch.Added, e.ID)
		case prev != e:
			ch.Updated = append(ch.Updated, e)
		}
	}
	for _, e := range before {
		if !seen[e.ID] {
			ch.Removed = append(ch.Removed, e.ID)
		}
	}
	return ch
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
