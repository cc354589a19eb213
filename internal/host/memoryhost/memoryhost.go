// Package memoryhost is a map-backed implementation of the host adapter.
// It drives the service test suites and the headless harness when no Redis
// is configured. Reads hand out copies so callers cannot mutate shared
// state behind the lock.
package memoryhost

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/uuid"
)

type handlerEntry struct {
	id      int
	handler host.EventHandler
}

// Host is an in-memory implementation of host.Host and host.BatchUpdater.
type Host struct {
	mu sync.RWMutex

	actors     map[string]*host.Actor
	items      map[string]map[string]*host.SpellItem // actorID -> itemID
	favorites  map[string][]host.FavoriteEntry
	actorFlags map[string]map[string]json.RawMessage
	userFlags  map[string]map[string]json.RawMessage
	journals   map[string]*host.JournalEntry
	pages      map[string]map[string]*host.JournalPage // journalID -> pageID
	folders    map[string]*host.Folder
	users      map[string]*host.User
	settings   map[string]string
	library    map[string]*host.Spell // compendium spells by uuid
	combat     *host.Combat

	handlers  map[string][]handlerEntry
	handlerID int

	chatLog       []*host.ChatMessage
	notifications []string

	ids uuid.Generator
}

// Config holds configuration for the in-memory host.
type Config struct {
	UUIDGenerator uuid.Generator // Optional, defaults to google uuid
}

// New creates an empty in-memory host.
func New(cfg *Config) *Host {
	gen := uuid.Generator(uuid.NewGoogleUUIDGenerator())
	if cfg != nil && cfg.UUIDGenerator != nil {
		gen = cfg.UUIDGenerator
	}

	return &Host{
		actors:     make(map[string]*host.Actor),
		items:      make(map[string]map[string]*host.SpellItem),
		favorites:  make(map[string][]host.FavoriteEntry),
		actorFlags: make(map[string]map[string]json.RawMessage),
		userFlags:  make(map[string]map[string]json.RawMessage),
		journals:   make(map[string]*host.JournalEntry),
		pages:      make(map[string]map[string]*host.JournalPage),
		folders:    make(map[string]*host.Folder),
		users:      make(map[string]*host.User),
		settings:   make(map[string]string),
		library:    make(map[string]*host.Spell),
		handlers:   make(map[string][]handlerEntry),
		ids:        gen,
	}
}

// Fixture helpers

// AddActor registers an actor.
func (h *Host) AddActor(actor *host.Actor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *actor
	h.actors[actor.ID] = &copied
}

// AddUser registers a user.
func (h *Host) AddUser(user *host.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *user
	h.users[user.ID] = &copied
}

// AddLibrarySpell registers a compendium spell resolvable by uuid.
func (h *Host) AddLibrarySpell(spell *host.Spell) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *spell
	h.library[spell.UUID] = &copied
}

// AddLibrarySpells implements host.LibraryWriter for the seeder.
func (h *Host) AddLibrarySpells(ctx context.Context, spells []*host.Spell) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, spell := range spells {
		copied := *spell
		h.library[spell.UUID] = &copied
	}
	return nil
}

// AddSpellItem embeds a spell item on an actor, assigning ids as needed.
func (h *Host) AddSpellItem(actorID string, item *host.SpellItem) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addItemLocked(actorID, item)
}

func (h *Host) addItemLocked(actorID string, item *host.SpellItem) string {
	copied := *item
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	if copied.UUID == "" {
		copied.UUID = "Actor." + actorID + ".Item." + copied.ID
	}
	if h.items[actorID] == nil {
		h.items[actorID] = make(map[string]*host.SpellItem)
	}
	h.items[actorID][copied.ID] = &copied
	return copied.ID
}

// SetActiveCombat installs (or clears, with nil) the active combat.
func (h *Host) SetActiveCombat(combat *host.Combat) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.combat = combat
}

// ChatLog returns every chat message emitted so far.
func (h *Host) ChatLog() []*host.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*host.ChatMessage, len(h.chatLog))
	copy(out, h.chatLog)
	return out
}

// Notifications returns every toast emitted so far.
func (h *Host) Notifications() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.notifications))
	copy(out, h.notifications)
	return out
}

// ActorStore

// GetActor retrieves an actor by id
func (h *Host) GetActor(ctx context.Context, actorID string) (*host.Actor, error) {
	if actorID == "" {
		return nil, sberr.Validation("actor ID is required")
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	actor, ok := h.actors[actorID]
	if !ok {
		return nil, sberr.NotFoundf("actor '%s' not found", actorID).
			WithMeta("actor_id", actorID)
	}

	copied := *actor
	return &copied, nil
}

// ListActors lists all character-type actors
func (h *Host) ListActors(ctx context.Context) ([]*host.Actor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*host.Actor
	for _, actor := range h.actors {
		if actor.Type != host.ActorTypeCharacter {
			continue
		}
		copied := *actor
		out = append(out, &copied)
	}
	return out, nil
}

// GetActorFavorites returns the actor-level favorites list
func (h *Host) GetActorFavorites(ctx context.Context, actorID string) ([]host.FavoriteEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.actors[actorID]; !ok {
		return nil, sberr.NotFoundf("actor '%s' not found", actorID)
	}

	out := make([]host.FavoriteEntry, len(h.favorites[actorID]))
	copy(out, h.favorites[actorID])
	return out, nil
}

// SetActorFavorites replaces the actor-level favorites list
func (h *Host) SetActorFavorites(ctx context.Context, actorID string, entries []host.FavoriteEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.actors[actorID]; !ok {
		return sberr.NotFoundf("actor '%s' not found", actorID)
	}

	copied := make([]host.FavoriteEntry, len(entries))
	copy(copied, entries)
	h.favorites[actorID] = copied
	return nil
}

// ItemStore

// GetActorSpellItems returns all spell-type items on the actor
func (h *Host) GetActorSpellItems(ctx context.Context, actorID string) ([]*host.SpellItem, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.actors[actorID]; !ok {
		return nil, sberr.NotFoundf("actor '%s' not found", actorID)
	}

	var out []*host.SpellItem
	for _, item := range h.items[actorID] {
		copied := *item
		out = append(out, &copied)
	}
	return out, nil
}

// CreateActorSpellItems embeds copies of spells onto the actor
func (h *Host) CreateActorSpellItems(ctx context.Context, actorID string, items []*host.SpellItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.actors[actorID]; !ok {
		return sberr.NotFoundf("actor '%s' not found", actorID)
	}

	for _, item := range items {
		h.addItemLocked(actorID, item)
	}
	return nil
}

// DeleteActorItems removes embedded items by id; missing ids are ignored
func (h *Host) DeleteActorItems(ctx context.Context, actorID string, itemIDs []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.actors[actorID]; !ok {
		return sberr.NotFoundf("actor '%s' not found", actorID)
	}

	for _, id := range itemIDs {
		delete(h.items[actorID], id)
	}
	return nil
}

// FlagStore

// GetActorFlag reads a flag into out, reporting whether it was set
func (h *Host) GetActorFlag(ctx context.Context, actorID, key string, out any) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return readFlag(h.actorFlags[actorID], key, out)
}

// SetActorFlag writes a flag
func (h *Host) SetActorFlag(ctx context.Context, actorID, key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.actors[actorID]; !ok {
		return sberr.NotFoundf("actor '%s' not found", actorID)
	}
	if h.actorFlags[actorID] == nil {
		h.actorFlags[actorID] = make(map[string]json.RawMessage)
	}
	return writeFlag(h.actorFlags[actorID], key, value)
}

// UnsetActorFlag removes a flag; removing an absent flag is a no-op
func (h *Host) UnsetActorFlag(ctx context.Context, actorID, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.actorFlags[actorID], key)
	return nil
}

// GetUserFlag reads a user-scoped flag into out
func (h *Host) GetUserFlag(ctx context.Context, userID, key string, out any) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return readFlag(h.userFlags[userID], key, out)
}

// SetUserFlag writes a user-scoped flag
func (h *Host) SetUserFlag(ctx context.Context, userID, key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.users[userID]; !ok {
		return sberr.NotFoundf("user '%s' not found", userID)
	}
	if h.userFlags[userID] == nil {
		h.userFlags[userID] = make(map[string]json.RawMessage)
	}
	return writeFlag(h.userFlags[userID], key, value)
}

func readFlag(flags map[string]json.RawMessage, key string, out any) (bool, error) {
	raw, ok := flags[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, sberr.Wrapf(err, "failed to decode flag '%s'", key)
	}
	return true, nil
}

func writeFlag(flags map[string]json.RawMessage, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return sberr.Wrapf(err, "failed to encode flag '%s'", key)
	}
	flags[key] = raw
	return nil
}

// JournalStore

// GetJournal retrieves a journal entry by id
func (h *Host) GetJournal(ctx context.Context, journalID string) (*host.JournalEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entry, ok := h.journals[journalID]
	if !ok {
		return nil, sberr.NotFoundf("journal '%s' not found", journalID)
	}
	copied := *entry
	copied.Ownership = entry.Ownership.Clone()
	return &copied, nil
}

// ListJournals lists every journal entry in the world
func (h *Host) ListJournals(ctx context.Context) ([]*host.JournalEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*host.JournalEntry
	for _, entry := range h.journals {
		copied := *entry
		copied.Ownership = entry.Ownership.Clone()
		out = append(out, &copied)
	}
	return out, nil
}

// CreateJournal creates a journal entry and returns its id
func (h *Host) CreateJournal(ctx context.Context, entry *host.JournalEntry) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	copied := *entry
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	copied.Ownership = entry.Ownership.Clone()
	h.journals[copied.ID] = &copied
	h.pages[copied.ID] = make(map[string]*host.JournalPage)
	return copied.ID, nil
}

// UpdateJournal rewrites a journal entry's metadata
func (h *Host) UpdateJournal(ctx context.Context, entry *host.JournalEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.journals[entry.ID]; !ok {
		return sberr.NotFoundf("journal '%s' not found", entry.ID)
	}
	copied := *entry
	copied.Ownership = entry.Ownership.Clone()
	h.journals[entry.ID] = &copied
	return nil
}

// GetPage retrieves a page by journal and page id
func (h *Host) GetPage(ctx context.Context, journalID, pageID string) (*host.JournalPage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	page, ok := h.pages[journalID][pageID]
	if !ok {
		return nil, sberr.NotFoundf("page '%s' not found in journal '%s'", pageID, journalID)
	}
	copied := *page
	copied.Ownership = page.Ownership.Clone()
	return &copied, nil
}

// ListPages lists all pages of a journal entry
func (h *Host) ListPages(ctx context.Context, journalID string) ([]*host.JournalPage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.journals[journalID]; !ok {
		return nil, sberr.NotFoundf("journal '%s' not found", journalID)
	}

	var out []*host.JournalPage
	for _, page := range h.pages[journalID] {
		copied := *page
		copied.Ownership = page.Ownership.Clone()
		out = append(out, &copied)
	}
	return out, nil
}

// CreatePage adds a page to a journal entry and returns its id
func (h *Host) CreatePage(ctx context.Context, journalID string, page *host.JournalPage) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.journals[journalID]; !ok {
		return "", sberr.NotFoundf("journal '%s' not found", journalID)
	}

	copied := *page
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	copied.Ownership = page.Ownership.Clone()
	h.pages[journalID][copied.ID] = &copied
	return copied.ID, nil
}

// UpdatePage rewrites a page's content, flags, and ownership
func (h *Host) UpdatePage(ctx context.Context, journalID string, page *host.JournalPage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pages[journalID][page.ID]; !ok {
		return sberr.NotFoundf("page '%s' not found in journal '%s'", page.ID, journalID)
	}
	copied := *page
	copied.Ownership = page.Ownership.Clone()
	h.pages[journalID][page.ID] = &copied
	return nil
}

// DeletePage removes a page; missing pages are a no-op
func (h *Host) DeletePage(ctx context.Context, journalID, pageID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pages[journalID], pageID)
	return nil
}

// GetFolder retrieves a folder by id
func (h *Host) GetFolder(ctx context.Context, folderID string) (*host.Folder, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	folder, ok := h.folders[folderID]
	if !ok {
		return nil, sberr.NotFoundf("folder '%s' not found", folderID)
	}
	copied := *folder
	return &copied, nil
}

// ListFolders lists all journal folders
func (h *Host) ListFolders(ctx context.Context) ([]*host.Folder, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*host.Folder
	for _, folder := range h.folders {
		copied := *folder
		out = append(out, &copied)
	}
	return out, nil
}

// CreateFolder creates a folder and returns its id
func (h *Host) CreateFolder(ctx context.Context, folder *host.Folder) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	copied := *folder
	if copied.ID == "" {
		copied.ID = h.ids.New()
	}
	h.folders[copied.ID] = &copied
	return copied.ID, nil
}

// MoveJournalToFolder reparents a journal entry
func (h *Host) MoveJournalToFolder(ctx context.Context, journalID, folderID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.journals[journalID]
	if !ok {
		return sberr.NotFoundf("journal '%s' not found", journalID)
	}
	if _, ok := h.folders[folderID]; !ok && folderID != "" {
		return sberr.NotFoundf("folder '%s' not found", folderID)
	}
	entry.FolderID = folderID
	return nil
}

// UserStore

// GetUser retrieves a user by id
func (h *Host) GetUser(ctx context.Context, userID string) (*host.User, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	user, ok := h.users[userID]
	if !ok {
		return nil, sberr.NotFoundf("user '%s' not found", userID)
	}
	copied := *user
	return &copied, nil
}

// ListUsers lists every user
func (h *Host) ListUsers(ctx context.Context) ([]*host.User, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*host.User
	for _, user := range h.users {
		copied := *user
		out = append(out, &copied)
	}
	return out, nil
}

// SettingsSource

// GetSetting returns a setting value, reporting whether it is set
func (h *Host) GetSetting(ctx context.Context, key string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.settings[key]
	return v, ok
}

// SetSetting stores a setting value
func (h *Host) SetSetting(ctx context.Context, key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings[key] = value
	return nil
}

// EventBus

// OnEvent registers a handler; the returned function unregisters it.
func (h *Host) OnEvent(name string, handler host.EventHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.handlerID++
	id := h.handlerID
	h.handlers[name] = append(h.handlers[name], handlerEntry{id: id, handler: handler})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		entries := h.handlers[name]
		for i, e := range entries {
			if e.id == id {
				h.handlers[name] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// EmitEvent fires an event at every registered handler, in registration
// order. Used by tests and the harness to simulate host activity.
func (h *Host) EmitEvent(name string, payload any) {
	h.mu.RLock()
	entries := make([]handlerEntry, len(h.handlers[name]))
	copy(entries, h.handlers[name])
	h.mu.RUnlock()

	for _, e := range entries {
		e.handler(payload)
	}
}

// Notifier

// Notify shows a toast to the current user
func (h *Host) Notify(ctx context.Context, level host.NotifyLevel, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, string(level)+": "+message)
	log.Printf("MemoryHost: notify [%s] %s", level, message)
}

// EmitChat posts a chat message
func (h *Host) EmitChat(ctx context.Context, msg *host.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	copied := *msg
	h.chatLog = append(h.chatLog, &copied)
	return nil
}

// UUIDResolver

// ResolveUUID resolves a uuid to a spell, loading from compendia if needed.
// The in-memory host has everything loaded, so it defers to the sync path.
func (h *Host) ResolveUUID(ctx context.Context, uuid string) (*host.Spell, error) {
	if spell, ok := h.ResolveUUIDSync(uuid); ok {
		return spell, nil
	}
	return nil, sberr.NotFoundf("uuid '%s' did not resolve", uuid)
}

// ResolveUUIDSync resolves from already-loaded documents only
func (h *Host) ResolveUUIDSync(uuid string) (*host.Spell, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if spell, ok := h.library[uuid]; ok {
		copied := *spell
		copied.Components = append([]string(nil), spell.Components...)
		copied.Properties = cloneProperties(spell.Properties)
		return &copied, true
	}

	// Embedded item uuids resolve to a spell view carrying the source ref.
	for _, actorItems := range h.items {
		for _, item := range actorItems {
			if item.UUID != uuid {
				continue
			}
			return &host.Spell{
				UUID:       item.UUID,
				SourceUUID: item.SourceUUID,
				Name:       item.Name,
				Level:      item.Level,
				School:     item.School,
				Properties: cloneProperties(item.Properties),
			}, true
		}
	}
	return nil, false
}

func cloneProperties(props map[string]bool) map[string]bool {
	if props == nil {
		return nil
	}
	out := make(map[string]bool, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
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
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.combat
}

// BatchUpdater

// ApplyActorBatch applies flags, deletions, and creations as one update.
func (h *Host) ApplyActorBatch(ctx context.Context, actorID string, batch *host.ActorBatch) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.actors[actorID]; !ok {
		return sberr.NotFoundf("actor '%s' not found", actorID)
	}

	if h.actorFlags[actorID] == nil {
		h.actorFlags[actorID] = make(map[string]json.RawMessage)
	}
	for key, value := range batch.Flags {
		if err := writeFlag(h.actorFlags[actorID], key, value); err != nil {
			return err
		}
	}
	for _, key := range batch.UnsetFlags {
		delete(h.actorFlags[actorID], key)
	}
	for _, id := range batch.DeleteItemIDs {
		delete(h.items[actorID], id)
	}
	for _, item := range batch.CreateItems {
		h.addItemLocked(actorID, item)
	}
	return nil
}
