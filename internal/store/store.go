// Package store is the per-user, per-character persistence layer for spell
// notes, favorites, and usage statistics. Records live in a journal entry
// owned by the engine, one human-editable HTML page per user, and are keyed
// by canonical spell uuid.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockstore -source=store.go

// Service is the persistence store contract.
type Service interface {
	// GetUserDataForSpell returns the record for one spell. An empty actorID
	// aggregates across all of the user's characters. Missing data returns
	// nil, never an error.
	GetUserDataForSpell(ctx context.Context, uuid, userID, actorID string) (*spellbook.UserSpellData, error)

	// SetUserDataForSpell writes a record. Writes always scope to a specific
	// (user, actor) pair.
	SetUserDataForSpell(ctx context.Context, input *SetUserDataInput) error

	// ClearUserData resets a user's tables, or one actor's tables when
	// actorID is set. Refused for GM users.
	ClearUserData(ctx context.Context, userID, actorID string) error

	// ExportUser captures the user's page as a versioned blob
	ExportUser(ctx context.Context, userID string) (*ExportBlob, error)

	// ImportUser restores a previously exported blob
	ImportUser(ctx context.Context, userID string, blob *ExportBlob) error

	// EnsureDocuments creates the folder, journal, intro page, and per-user
	// pages if any are missing. Idempotent.
	EnsureDocuments(ctx context.Context) error

	// InvalidateUser drops the cache entry for a user
	InvalidateUser(userID string)
}

// SetUserDataInput scopes one record write.
type SetUserDataInput struct {
	UUID    string
	UserID  string
	ActorID string
	Data    *spellbook.UserSpellData
}

// ExportBlob is the import/export envelope. HTML is carried bit-for-bit.
type ExportBlob struct {
	Version    int    `json:"version"`
	ExportedAt int64  `json:"exportedAt"`
	UserID     string `json:"userId"`
	HTML       string `json:"html"`
}

type cacheEntry struct {
	data   map[string]map[string]*spellbook.UserSpellData // actorID -> uuid -> record
	pageID string
}

// service implements Service.
type service struct {
	host host.Host
	now  func() int64 // unix millis, injected for export stamps

	mu        sync.RWMutex
	journalID string
	folderID  string
	pageIDs   map[string]string // userID -> pageID
	cache     map[string]*cacheEntry
}

// ServiceConfig holds configuration for the store.
type ServiceConfig struct {
	Host host.Host    // Required
	Now  func() int64 // Optional, unix millis
}

// NewService creates the persistence store service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("store host is required")
	}

	now := cfg.Now
	if now == nil {
		now = func() int64 { return 0 }
	}

	return &service{
		host:    cfg.Host,
		now:     now,
		pageIDs: make(map[string]string),
		cache:   make(map[string]*cacheEntry),
	}
}

// GetUserDataForSpell returns the record for one spell.
func (s *service) GetUserDataForSpell(ctx context.Context, uuid, userID, actorID string) (*spellbook.UserSpellData, error) {
	if uuid == "" {
		return nil, sberr.Validation("spell uuid is required")
	}
	if userID == "" {
		return nil, sberr.Validation("user ID is required")
	}

	data, err := s.loadUserData(ctx, userID)
	if err != nil {
		if sberr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	if actorID != "" {
		rec, ok := data[actorID][uuid]
		if !ok {
			return nil, nil
		}
		return cloneRecord(rec), nil
	}

	return aggregateRecord(data, uuid), nil
}

// aggregateRecord folds one spell's records across every character:
// favorited is OR, notes is the last non-empty in actor-id order, usage is
// summed with lastUsed = max.
func aggregateRecord(data map[string]map[string]*spellbook.UserSpellData, uuid string) *spellbook.UserSpellData {
	var out *spellbook.UserSpellData
	for _, actorID := range sortedActorIDs(data) {
		rec, ok := data[actorID][uuid]
		if !ok {
			continue
		}
		if out == nil {
			out = &spellbook.UserSpellData{}
		}
		out.Favorited = out.Favorited || rec.Favorited
		if rec.Notes != "" {
			out.Notes = rec.Notes
		}
		if rec.UsageStats != nil {
			if out.UsageStats == nil {
				out.UsageStats = &spellbook.UsageStats{}
			}
			out.UsageStats.Count += rec.UsageStats.Count
			out.UsageStats.ContextUsage.Combat += rec.UsageStats.ContextUsage.Combat
			out.UsageStats.ContextUsage.Exploration += rec.UsageStats.ContextUsage.Exploration
			if rec.UsageStats.LastUsed > out.UsageStats.LastUsed {
				out.UsageStats.LastUsed = rec.UsageStats.LastUsed
			}
		}
	}
	return out
}

// SetUserDataForSpell writes a record.
func (s *service) SetUserDataForSpell(ctx context.Context, input *SetUserDataInput) error {
	if input == nil {
		return sberr.Validation("input cannot be nil")
	}
	if input.UUID == "" {
		return sberr.Validation("spell uuid is required")
	}
	if input.UserID == "" {
		return sberr.Validation("user ID is required")
	}
	if input.ActorID == "" {
		return sberr.Validation("writes must scope to an actor")
	}
	if input.Data == nil {
		return sberr.Validation("data cannot be nil")
	}

	page, err := s.userPage(ctx, input.UserID)
	if err != nil {
		return err
	}

	doc, err := ParseDocument(page.Content)
	if err != nil {
		return err
	}
	doc.SetSchemaVersion(spellbook.UserDataSchemaVersion)
	doc.SetSpellData(input.ActorID, input.UUID, s.spellName(input.UUID), input.Data)

	rendered, err := doc.Render()
	if err != nil {
		return err
	}
	page.Content = rendered

	// Invalidate before the write resolves so the next read misses the cache
	// and sees the new value.
	s.InvalidateUser(input.UserID)

	if err := s.host.UpdatePage(ctx, s.cachedJournalID(), page); err != nil {
		return sberr.Wrapf(err, "failed to write user data for '%s'", input.UserID)
	}
	return nil
}

// ClearUserData resets tables.
func (s *service) ClearUserData(ctx context.Context, userID, actorID string) error {
	user, err := s.host.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsGM {
		return sberr.Validation("cannot clear data for GM users")
	}

	page, err := s.userPage(ctx, userID)
	if err != nil {
		if sberr.IsNotFound(err) {
			return nil
		}
		return err
	}

	doc, err := ParseDocument(page.Content)
	if err != nil {
		return err
	}
	if actorID != "" {
		doc.RemoveActor(actorID)
	} else {
		doc.Reset()
	}
	doc.SetSchemaVersion(spellbook.UserDataSchemaVersion)

	rendered, err := doc.Render()
	if err != nil {
		return err
	}
	page.Content = rendered

	s.InvalidateUser(userID)
	return s.host.UpdatePage(ctx, s.cachedJournalID(), page)
}

// ExportUser captures the user's page.
func (s *service) ExportUser(ctx context.Context, userID string) (*ExportBlob, error) {
	page, err := s.userPage(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &ExportBlob{
		Version:    spellbook.UserDataSchemaVersion,
		ExportedAt: s.now(),
		UserID:     userID,
		HTML:       page.Content,
	}, nil
}

// ImportUser restores an exported blob bit-for-bit.
func (s *service) ImportUser(ctx context.Context, userID string, blob *ExportBlob) error {
	if blob == nil {
		return sberr.Validation("import blob cannot be nil")
	}
	if blob.Version != spellbook.UserDataSchemaVersion {
		return sberr.Validationf("unsupported export version %d", blob.Version)
	}
	if blob.UserID != userID {
		return sberr.Validationf("export belongs to user '%s'", blob.UserID)
	}

	page, err := s.userPage(ctx, userID)
	if err != nil {
		return err
	}
	page.Content = blob.HTML

	s.InvalidateUser(userID)
	return s.host.UpdatePage(ctx, s.cachedJournalID(), page)
}

// InvalidateUser drops the cache entry for a user
func (s *service) InvalidateUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, userID)
}

// Internals

func (s *service) cachedJournalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journalID
}

// loadUserData returns the decoded table data for a user, serving from the
// per-user cache when warm.
func (s *service) loadUserData(ctx context.Context, userID string) (map[string]map[string]*spellbook.UserSpellData, error) {
	s.mu.RLock()
	if entry, ok := s.cache[userID]; ok {
		s.mu.RUnlock()
		return entry.data, nil
	}
	s.mu.RUnlock()

	page, err := s.userPage(ctx, userID)
	if err != nil {
		return nil, err
	}

	doc, err := ParseDocument(page.Content)
	if err != nil {
		return nil, err
	}
	data := doc.Data()

	s.mu.Lock()
	s.cache[userID] = &cacheEntry{data: data, pageID: page.ID}
	s.mu.Unlock()
	return data, nil
}

// userPage locates the user's page, discovering the journal on first use.
func (s *service) userPage(ctx context.Context, userID string) (*host.JournalPage, error) {
	journalID, err := s.findJournal(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	pageID, ok := s.pageIDs[userID]
	s.mu.RUnlock()

	if ok {
		page, err := s.host.GetPage(ctx, journalID, pageID)
		if err == nil {
			return page, nil
		}
		if !sberr.IsNotFound(err) {
			return nil, err
		}
		// Page id went stale; fall through to a rescan.
	}

	pages, err := s.host.ListPages(ctx, journalID)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page.Flags.UserData && page.Flags.UserID == userID {
			s.mu.Lock()
			s.pageIDs[userID] = page.ID
			s.mu.Unlock()
			return page, nil
		}
	}
	return nil, sberr.NotFoundf("no user data page for user '%s'", userID)
}

// findJournal locates the store's journal entry by flag.
func (s *service) findJournal(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.journalID != "" {
		id := s.journalID
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	journals, err := s.host.ListJournals(ctx)
	if err != nil {
		return "", err
	}
	for _, entry := range journals {
		if entry.Flags.UserDataJournal {
			s.mu.Lock()
			s.journalID = entry.ID
			s.mu.Unlock()
			return entry.ID, nil
		}
	}
	return "", sberr.NotFound("user data journal does not exist")
}

// spellName resolves a display name for new rows; the uuid tail is good
// enough when nothing is loaded.
func (s *service) spellName(uuid string) string {
	if spell, ok := s.host.ResolveUUIDSync(uuid); ok && spell.Name != "" {
		return spell.Name
	}
	parts := strings.Split(uuid, ".")
	return parts[len(parts)-1]
}

func cloneRecord(rec *spellbook.UserSpellData) *spellbook.UserSpellData {
	if rec == nil {
		return nil
	}
	out := *rec
	if rec.UsageStats != nil {
		stats := *rec.UsageStats
		out.UsageStats = &stats
	}
	return &out
}

