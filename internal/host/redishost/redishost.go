// Package redishost is a Redis-backed implementation of the host adapter
// for headless runs: world documents live as JSON records under the
// "spellbook:" prefix, with index sets for listing. Library spells are
// cached in memory so sync uuid resolution stays off I/O.
package redishost

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/uuid"
)

type handlerEntry struct {
	id      int
	handler host.EventHandler
}

// Host implements host.Host over Redis.
type Host struct {
	client redis.UniversalClient
	ids    uuid.Generator

	// Sync uuid resolution serves from this cache only; ResolveUUID fills it.
	cacheMu    sync.RWMutex
	spellCache map[string]*host.Spell

	handlerMu sync.Mutex
	handlers  map[string][]handlerEntry
	handlerID int
}

// Config holds configuration for the Redis host.
type Config struct {
	Client        redis.UniversalClient
	UUIDGenerator uuid.Generator // Optional, defaults to google uuid
}

// New creates a Redis-backed host.
func New(cfg *Config) *Host {
	if cfg == nil {
		panic("redishost.Config cannot be nil")
	}
	if cfg.Client == nil {
		panic("Redis client cannot be nil")
	}

	gen := cfg.UUIDGenerator
	if gen == nil {
		gen = uuid.NewGoogleUUIDGenerator()
	}

	return &Host{
		client:     cfg.Client,
		ids:        gen,
		spellCache: make(map[string]*host.Spell),
		handlers:   make(map[string][]handlerEntry),
	}
}

// Key builders

func actorKey(id string) string        { return fmt.Sprintf("spellbook:actor:%s", id) }
func actorItemsKey(id string) string   { return fmt.Sprintf("spellbook:actor:%s:items", id) }
func actorFlagsKey(id string) string   { return fmt.Sprintf("spellbook:actor:%s:flags", id) }
func favoritesKey(id string) string    { return fmt.Sprintf("spellbook:actor:%s:favorites", id) }
func userKey(id string) string         { return fmt.Sprintf("spellbook:user:%s", id) }
func userFlagsKey(id string) string    { return fmt.Sprintf("spellbook:user:%s:flags", id) }
func journalKey(id string) string      { return fmt.Sprintf("spellbook:journal:%s", id) }
func journalPagesKey(id string) string { return fmt.Sprintf("spellbook:journal:%s:pages", id) }
func folderKey(id string) string       { return fmt.Sprintf("spellbook:folder:%s", id) }
func spellKey(uuid string) string      { return fmt.Sprintf("spellbook:spell:%s", uuid) }

const (
	actorsIndexKey   = "spellbook:actors"
	usersIndexKey    = "spellbook:users"
	journalsIndexKey = "spellbook:journals"
	foldersIndexKey  = "spellbook:folders"
	spellsIndexKey   = "spellbook:spells"
	settingsKey      = "spellbook:settings"
	combatKey        = "spellbook:combat"
	chatLogKey       = "spellbook:chatlog"
)

// Generic record helpers

func (h *Host) getRecord(ctx context.Context, key string, out any, what string) error {
	data, err := h.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return sberr.NotFoundf("%s not found", what)
	}
	if err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to read "+what)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return sberr.Wrapf(err, "failed to decode %s", what)
	}
	return nil
}

func (h *Host) setRecord(ctx context.Context, key string, value any, what string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return sberr.Wrapf(err, "failed to encode %s", what)
	}
	if err := h.client.Set(ctx, key, data, 0).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to write "+what)
	}
	return nil
}

func (h *Host) listRecords(ctx context.Context, indexKey string, keyFn func(string) string) ([][]byte, error) {
	ids, err := h.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to read index "+indexKey)
	}

	var out [][]byte
	for _, id := range ids {
		data, err := h.client.Get(ctx, keyFn(id)).Result()
		if err == redis.Nil {
			continue // index can lag a deleted record
		}
		if err != nil {
			return nil, sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to read record "+id)
		}
		out = append(out, []byte(data))
	}
	return out, nil
}

// Fixture helpers for the harness

// PutActor stores an actor and indexes it.
func (h *Host) PutActor(ctx context.Context, actor *host.Actor) error {
	if err := h.setRecord(ctx, actorKey(actor.ID), actor, "actor"); err != nil {
		return err
	}
	if err := h.client.SAdd(ctx, actorsIndexKey, actor.ID).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to index actor")
	}
	return nil
}

// PutUser stores a user and indexes it.
func (h *Host) PutUser(ctx context.Context, user *host.User) error {
	if err := h.setRecord(ctx, userKey(user.ID), user, "user"); err != nil {
		return err
	}
	if err := h.client.SAdd(ctx, usersIndexKey, user.ID).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to index user")
	}
	return nil
}

// SetActiveCombat stores (or clears, with nil) the active combat.
func (h *Host) SetActiveCombat(ctx context.Context, combat *host.Combat) error {
	if combat == nil {
		if err := h.client.Del(ctx, combatKey).Err(); err != nil {
			return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to clear combat")
		}
		return nil
	}
	return h.setRecord(ctx, combatKey, combat, "combat")
}

// ActorStore

// GetActor retrieves an actor by id
func (h *Host) GetActor(ctx context.Context, actorID string) (*host.Actor, error) {
	if actorID == "" {
		return nil, sberr.Validation("actor ID is required")
	}
	var actor host.Actor
	if err := h.getRecord(ctx, actorKey(actorID), &actor, fmt.Sprintf("actor '%s'", actorID)); err != nil {
		return nil, err
	}
	return &actor, nil
}

// ListActors lists all character-type actors
func (h *Host) ListActors(ctx context.Context) ([]*host.Actor, error) {
	records, err := h.listRecords(ctx, actorsIndexKey, actorKey)
	if err != nil {
		return nil, err
	}

	var out []*host.Actor
	for _, data := range records {
		var actor host.Actor
		if err := json.Unmarshal(data, &actor); err != nil {
			return nil, sberr.Wrap(err, "failed to decode actor")
		}
		if actor.Type == host.ActorTypeCharacter {
			out = append(out, &actor)
		}
	}
	return out, nil
}

// GetActorFavorites returns the actor-level favorites list
func (h *Host) GetActorFavorites(ctx context.Context, actorID string) ([]host.FavoriteEntry, error) {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return nil, err
	}

	var entries []host.FavoriteEntry
	err := h.getRecord(ctx, favoritesKey(actorID), &entries, "favorites")
	if sberr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SetActorFavorites replaces the actor-level favorites list
func (h *Host) SetActorFavorites(ctx context.Context, actorID string, entries []host.FavoriteEntry) error {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return err
	}
	return h.setRecord(ctx, favoritesKey(actorID), entries, "favorites")
}

// ItemStore

func (h *Host) loadItems(ctx context.Context, actorID string) (map[string]*host.SpellItem, error) {
	items := make(map[string]*host.SpellItem)
	err := h.getRecord(ctx, actorItemsKey(actorID), &items, "actor items")
	if err != nil && !sberr.IsNotFound(err) {
		return nil, err
	}
	return items, nil
}

// GetActorSpellItems returns all spell-type items on the actor
func (h *Host) GetActorSpellItems(ctx context.Context, actorID string) ([]*host.SpellItem, error) {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return nil, err
	}

	items, err := h.loadItems(ctx, actorID)
	if err != nil {
		return nil, err
	}

	out := make([]*host.SpellItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out, nil
}

// CreateActorSpellItems embeds copies of spells onto the actor
func (h *Host) CreateActorSpellItems(ctx context.Context, actorID string, newItems []*host.SpellItem) error {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return err
	}

	items, err := h.loadItems(ctx, actorID)
	if err != nil {
		return err
	}
	addItems(items, newItems, actorID, h.ids)
	return h.setRecord(ctx, actorItemsKey(actorID), items, "actor items")
}

func addItems(items map[string]*host.SpellItem, newItems []*host.SpellItem, actorID string, ids uuid.Generator) {
	for _, item := range newItems {
		copied := *item
		if copied.ID == "" {
			copied.ID = ids.New()
		}
		if copied.UUID == "" {
			copied.UUID = "Actor." + actorID + ".Item." + copied.ID
		}
		items[copied.ID] = &copied
	}
}

// DeleteActorItems removes embedded items by id; missing ids are ignored
func (h *Host) DeleteActorItems(ctx context.Context, actorID string, itemIDs []string) error {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return err
	}

	items, err := h.loadItems(ctx, actorID)
	if err != nil {
		return err
	}
	for _, id := range itemIDs {
		delete(items, id)
	}
	return h.setRecord(ctx, actorItemsKey(actorID), items, "actor items")
}

// FlagStore

func (h *Host) getFlag(ctx context.Context, key, field string, out any) (bool, error) {
	data, err := h.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to read flag "+field)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, sberr.Wrapf(err, "failed to decode flag '%s'", field)
	}
	return true, nil
}

func (h *Host) setFlag(ctx context.Context, key, field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return sberr.Wrapf(err, "failed to encode flag '%s'", field)
	}
	if err := h.client.HSet(ctx, key, field, data).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to write flag "+field)
	}
	return nil
}

// GetActorFlag reads a flag into out, reporting whether it was set
func (h *Host) GetActorFlag(ctx context.Context, actorID, key string, out any) (bool, error) {
	return h.getFlag(ctx, actorFlagsKey(actorID), key, out)
}

// SetActorFlag writes a flag
func (h *Host) SetActorFlag(ctx context.Context, actorID, key string, value any) error {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return err
	}
	return h.setFlag(ctx, actorFlagsKey(actorID), key, value)
}

// UnsetActorFlag removes a flag; removing an absent flag is a no-op
func (h *Host) UnsetActorFlag(ctx context.Context, actorID, key string) error {
	if err := h.client.HDel(ctx, actorFlagsKey(actorID), key).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to unset flag "+key)
	}
	return nil
}

// GetUserFlag reads a user-scoped flag into out
func (h *Host) GetUserFlag(ctx context.Context, userID, key string, out any) (bool, error) {
	return h.getFlag(ctx, userFlagsKey(userID), key, out)
}

// SetUserFlag writes a user-scoped flag
func (h *Host) SetUserFlag(ctx context.Context, userID, key string, value any) error {
	if _, err := h.GetUser(ctx, userID); err != nil {
		return err
	}
	return h.setFlag(ctx, userFlagsKey(userID), key, value)
}

// JournalStore

// GetJournal retrieves a journal entry by id
func (h *Host) GetJournal(ctx context.Context, journalID string) (*host.JournalEntry, error) {
	var entry host.JournalEntry
	if err := h.getRecord(ctx, journalKey(journalID), &entry, fmt.Sprintf("journal '%s'", journalID)); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListJournals lists every journal entry in the world
func (h *Host) ListJournals(ctx context.Context) ([]*host.JournalEntry, error) {
	records, err := h.listRecords(ctx, journalsIndexKey, journalKey)
	if err != nil {
		return nil, err
	}

	var out []*host.JournalEntry
	for _, data := range records {
		var entry host.JournalEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, sberr.Wrap(err, "failed to decode journal")
		}
		out = append(out, &entry)
	}
	return out, nil
}

// CreateJournal creates a journal entry and returns its id
func (h *Host) CreateJournal(ctx context.Context, entry *host.JournalEntry) (string, error) {
	copied := *entry
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	if err := h.setRecord(ctx, journalKey(copied.ID), &copied, "journal"); err != nil {
		return "", err
	}
	if err := h.client.SAdd(ctx, journalsIndexKey, copied.ID).Err(); err != nil {
		return "", sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to index journal")
	}
	return copied.ID, nil
}

// UpdateJournal rewrites a journal entry's metadata
func (h *Host) UpdateJournal(ctx context.Context, entry *host.JournalEntry) error {
	if _, err := h.GetJournal(ctx, entry.ID); err != nil {
		return err
	}
	return h.setRecord(ctx, journalKey(entry.ID), entry, "journal")
}

func (h *Host) loadPages(ctx context.Context, journalID string) (map[string]*host.JournalPage, error) {
	pages := make(map[string]*host.JournalPage)
	err := h.getRecord(ctx, journalPagesKey(journalID), &pages, "journal pages")
	if err != nil && !sberr.IsNotFound(err) {
		return nil, err
	}
	return pages, nil
}

// GetPage retrieves a page by journal and page id
func (h *Host) GetPage(ctx context.Context, journalID, pageID string) (*host.JournalPage, error) {
	pages, err := h.loadPages(ctx, journalID)
	if err != nil {
		return nil, err
	}
	page, ok := pages[pageID]
	if !ok {
		return nil, sberr.NotFoundf("page '%s' not found in journal '%s'", pageID, journalID)
	}
	return page, nil
}

// ListPages lists all pages of a journal entry
func (h *Host) ListPages(ctx context.Context, journalID string) ([]*host.JournalPage, error) {
	if _, err := h.GetJournal(ctx, journalID); err != nil {
		return nil, err
	}

	pages, err := h.loadPages(ctx, journalID)
	if err != nil {
		return nil, err
	}

	out := make([]*host.JournalPage, 0, len(pages))
	for _, page := range pages {
		out = append(out, page)
	}
	return out, nil
}

// CreatePage adds a page to a journal entry and returns its id
func (h *Host) CreatePage(ctx context.Context, journalID string, page *host.JournalPage) (string, error) {
	if _, err := h.GetJournal(ctx, journalID); err != nil {
		return "", err
	}

	pages, err := h.loadPages(ctx, journalID)
	if err != nil {
		return "", err
	}

	copied := *page
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	pages[copied.ID] = &copied
	if err := h.setRecord(ctx, journalPagesKey(journalID), pages, "journal pages"); err != nil {
		return "", err
	}
	return copied.ID, nil
}

// UpdatePage rewrites a page's content, flags, and ownership
func (h *Host) UpdatePage(ctx context.Context, journalID string, page *host.JournalPage) error {
	pages, err := h.loadPages(ctx, journalID)
	if err != nil {
		return err
	}
	if _, ok := pages[page.ID]; !ok {
		return sberr.NotFoundf("page '%s' not found in journal '%s'", page.ID, journalID)
	}
	copied := *page
	pages[page.ID] = &copied
	return h.setRecord(ctx, journalPagesKey(journalID), pages, "journal pages")
}

// DeletePage removes a page; missing pages are a no-op
func (h *Host) DeletePage(ctx context.Context, journalID, pageID string) error {
	pages, err := h.loadPages(ctx, journalID)
	if err != nil {
		return err
	}
	if _, ok := pages[pageID]; !ok {
		return nil
	}
	delete(pages, pageID)
	return h.setRecord(ctx, journalPagesKey(journalID), pages, "journal pages")
}

// GetFolder retrieves a folder by id
func (h *Host) GetFolder(ctx context.Context, folderID string) (*host.Folder, error) {
	var folder host.Folder
	if err := h.getRecord(ctx, folderKey(folderID), &folder, fmt.Sprintf("folder '%s'", folderID)); err != nil {
		return nil, err
	}
	return &folder, nil
}

// ListFolders lists all journal folders
func (h *Host) ListFolders(ctx context.Context) ([]*host.Folder, error) {
	records, err := h.listRecords(ctx, foldersIndexKey, folderKey)
	if err != nil {
		return nil, err
	}

	var out []*host.Folder
	for _, data := range records {
		var folder host.Folder
		if err := json.Unmarshal(data, &folder); err != nil {
			return nil, sberr.Wrap(err, "failed to decode folder")
		}
		out = append(out, &folder)
	}
	return out, nil
}

// CreateFolder creates a folder and returns its id
func (h *Host) CreateFolder(ctx context.Context, folder *host.Folder) (string, error) {
	copied := *folder
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	if err := h.setRecord(ctx, folderKey(copied.ID), &copied, "folder"); err != nil {
		return "", err
	}
	if err := h.client.SAdd(ctx, foldersIndexKey, copied.ID).Err(); err != nil {
		return "", sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to index folder")
	}
	return copied.ID, nil
}

// MoveJournalToFolder reparents a journal entry
func (h *Host) MoveJournalToFolder(ctx context.Context, journalID, folderID string) error {
	entry, err := h.GetJournal(ctx, journalID)
	if err != nil {
		return err
	}
	if folderID != "" {
		if _, err := h.GetFolder(ctx, folderID); err != nil {
			return err
		}
	}
	entry.FolderID = folderID
	return h.setRecord(ctx, journalKey(journalID), entry, "journal")
}

// UserStore

// GetUser retrieves a user by id
func (h *Host) GetUser(ctx context.Context, userID string) (*host.User, error) {
	var user host.User
	if err := h.getRecord(ctx, userKey(userID), &user, fmt.Sprintf("user '%s'", userID)); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers lists every user
func (h *Host) ListUsers(ctx context.Context) ([]*host.User, error) {
	records, err := h.listRecords(ctx, usersIndexKey, userKey)
	if err != nil {
		return nil, err
	}

	var out []*host.User
	for _, data := range records {
		var user host.User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, sberr.Wrap(err, "failed to decode user")
		}
		out = append(out, &user)
	}
	return out, nil
}

// SettingsSource

// GetSetting returns a setting value, reporting whether it is set. Read
// failures degrade to "unset": settings always have defaults.
func (h *Host) GetSetting(ctx context.Context, key string) (string, bool) {
	value, err := h.client.HGet(ctx, settingsKey, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("RedisHost: failed to read setting %s: %v", key, err)
		return "", false
	}
	return value, true
}

// SetSetting stores a setting value
func (h *Host) SetSetting(ctx context.Context, key, value string) error {
	if err := h.client.HSet(ctx, settingsKey, key, value).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to write setting "+key)
	}
	return nil
}

// Events are process-local; a headless run is a single process.

// OnEvent registers a handler; the returned function unregisters it.
func (h *Host) OnEvent(name string, handler host.EventHandler) func() {
	h.handlerMu.Lock()
	defer h.handlerMu.Unlock()

	h.handlerID++
	id := h.handlerID
	h.handlers[name] = append(h.handlers[name], handlerEntry{id: id, handler: handler})

	return func() {
		h.handlerMu.Lock()
		defer h.handlerMu.Unlock()
		entries := h.handlers[name]
		for i, e := range entries {
			if e.id == id {
				h.handlers[name] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// EmitEvent fires an event at every registered handler.
func (h *Host) EmitEvent(name string, payload any) {
	h.handlerMu.Lock()
	entries := make([]handlerEntry, len(h.handlers[name]))
	copy(entries, h.handlers[name])
	h.handlerMu.Unlock()

	for _, e := range entries {
		e.handler(payload)
	}
}

// Notifier

// Notify shows a toast to the current user. Headless runs only log.
func (h *Host) Notify(ctx context.Context, level host.NotifyLevel, message string) {
	log.Printf("RedisHost: notify [%s] %s", level, message)
}

// EmitChat posts a chat message
func (h *Host) EmitChat(ctx context.Context, msg *host.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return sberr.Wrap(err, "failed to encode chat message")
	}
	if err := h.client.RPush(ctx, chatLogKey, data).Err(); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to append chat message")
	}
	return nil
}

// UUIDResolver

// ResolveUUID resolves a uuid, loading from Redis and filling the sync cache.
func (h *Host) ResolveUUID(ctx context.Context, uuid string) (*host.Spell, error) {
	if spell, ok := h.ResolveUUIDSync(uuid); ok {
		return spell, nil
	}

	var spell host.Spell
	err := h.getRecord(ctx, spellKey(uuid), &spell, fmt.Sprintf("spell '%s'", uuid))
	if err == nil {
		h.cacheMu.Lock()
		h.spellCache[uuid] = &spell
		h.cacheMu.Unlock()
		copied := spell
		return &copied, nil
	}
	if !sberr.IsNotFound(err) {
		return nil, err
	}

	// Fall back to embedded items.
	parsed, perr := h.ParseUUID(uuid)
	if perr != nil || !parsed.Embedded {
		return nil, sberr.NotFoundf("uuid '%s' did not resolve", uuid)
	}

	parts := strings.Split(uuid, ".")
	if len(parts) < 4 {
		return nil, sberr.NotFoundf("uuid '%s' did not resolve", uuid)
	}
	actorID := parts[1]

	items, ierr := h.loadItems(ctx, actorID)
	if ierr != nil {
		return nil, ierr
	}
	for _, item := range items {
		if item.UUID != uuid {
			continue
		}
		resolved := &host.Spell{
			UUID:       item.UUID,
			SourceUUID: item.SourceUUID,
			Name:       item.Name,
			Level:      item.Level,
			School:     item.School,
			Properties: item.Properties,
		}
		h.cacheMu.Lock()
		h.spellCache[uuid] = resolved
		h.cacheMu.Unlock()
		copied := *resolved
		return &copied, nil
	}
	return nil, sberr.NotFoundf("uuid '%s' did not resolve", uuid)
}

// ResolveUUIDSync resolves from the in-process cache only
func (h *Host) ResolveUUIDSync(uuid string) (*host.Spell, bool) {
	h.cacheMu.RLock()
	defer h.cacheMu.RUnlock()
	spell, ok := h.spellCache[uuid]
	if !ok {
		return nil, false
	}
	copied := *spell
	return &copied, true
}

// ParseUUID decomposes a uuid without resolving it
func (h *Host) ParseUUID(uuid string) (host.ParsedUUID, error) {
	parts := strings.Split(uuid, ".")
	if len(parts) < 2 {
		return host.ParsedUUID{}, sberr.Validationf("malformed uuid '%s'", uuid)
	}
	return host.ParsedUUID{
		Collection: parts[0],
		DocumentID: parts[len(parts)-1],
		Embedded:   parts[0] == "Actor",
	}, nil
}

// CombatSource

// ActiveCombat returns the active combat or nil
func (h *Host) ActiveCombat(ctx context.Context) *host.Combat {
	var combat host.Combat
	err := h.getRecord(ctx, combatKey, &combat, "combat")
	if err != nil {
		return nil
	}
	return &combat
}

// LibraryWriter

// AddLibrarySpells stores spells and warms the sync resolution cache.
func (h *Host) AddLibrarySpells(ctx context.Context, spells []*host.Spell) error {
	for _, spell := range spells {
		if err := h.setRecord(ctx, spellKey(spell.UUID), spell, "spell"); err != nil {
			return err
		}
		if err := h.client.SAdd(ctx, spellsIndexKey, spell.UUID).Err(); err != nil {
			return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to index spell")
		}
	}

	h.cacheMu.Lock()
	for _, spell := range spells {
		copied := *spell
		h.spellCache[spell.UUID] = &copied
	}
	h.cacheMu.Unlock()
	return nil
}

// BatchUpdater

// ApplyActorBatch applies flags, deletions, and creations via one pipeline
// so observers see a single consistent write.
func (h *Host) ApplyActorBatch(ctx context.Context, actorID string, batch *host.ActorBatch) error {
	if _, err := h.GetActor(ctx, actorID); err != nil {
		return err
	}

	items, err := h.loadItems(ctx, actorID)
	if err != nil {
		return err
	}
	for _, id := range batch.DeleteItemIDs {
		delete(items, id)
	}
	addItems(items, batch.CreateItems, actorID, h.ids)

	itemsData, err := json.Marshal(items)
	if err != nil {
		return sberr.Wrap(err, "failed to encode actor items")
	}

	pipe := h.client.TxPipeline()
	for key, value := range batch.Flags {
		data, merr := json.Marshal(value)
		if merr != nil {
			return sberr.Wrapf(merr, "failed to encode flag '%s'", key)
		}
		pipe.HSet(ctx, actorFlagsKey(actorID), key, data)
	}
	for _, key := range batch.UnsetFlags {
		pipe.HDel(ctx, actorFlagsKey(actorID), key)
	}
	pipe.Set(ctx, actorItemsKey(actorID), itemsData, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to apply actor batch")
	}
	return nil
}
