// Package host defines the only surface through which the engine touches the
// game platform. Every other package depends on these interfaces, never on a
// concrete host.
package host

import "context"

//go:generate mockgen -destination=mock/mock_host.go -package=mockhost -source=host.go

// ActorStore provides read access to actors and their favorites list.
type ActorStore interface {
	// GetActor retrieves an actor by id
	GetActor(ctx context.Context, actorID string) (*Actor, error)

	// ListActors lists all character-type actors
	ListActors(ctx context.Context) ([]*Actor, error)

	// GetActorFavorites returns the actor-level favorites list
	GetActorFavorites(ctx context.Context, actorID string) ([]FavoriteEntry, error)

	// SetActorFavorites replaces the actor-level favorites list
	SetActorFavorites(ctx context.Context, actorID string, entries []FavoriteEntry) error
}

// ItemStore provides access to spell items embedded on actors.
type ItemStore interface {
	// GetActorSpellItems returns all spell-type items on the actor
	GetActorSpellItems(ctx context.Context, actorID string) ([]*SpellItem, error)

	// CreateActorSpellItems embeds copies of spells onto the actor
	CreateActorSpellItems(ctx context.Context, actorID string, items []*SpellItem) error

	// DeleteActorItems removes embedded items by id; missing ids are ignored
	DeleteActorItems(ctx context.Context, actorID string, itemIDs []string) error
}

// FlagStore provides module-scoped flag access on actors and users. Values
// round-trip through JSON; out must be a pointer.
type FlagStore interface {
	// GetActorFlag reads a flag into out, reporting whether it was set
	GetActorFlag(ctx context.Context, actorID, key string, out any) (bool, error)

	// SetActorFlag writes a flag
	SetActorFlag(ctx context.Context, actorID, key string, value any) error

	// UnsetActorFlag removes a flag; removing an absent flag is a no-op
	UnsetActorFlag(ctx context.Context, actorID, key string) error

	// GetUserFlag reads a user-scoped flag into out
	GetUserFlag(ctx context.Context, userID, key string, out any) (bool, error)

	// SetUserFlag writes a user-scoped flag
	SetUserFlag(ctx context.Context, userID, key string, value any) error
}

// JournalStore provides access to journal entries, pages, and folders.
type JournalStore interface {
	// GetJournal retrieves a journal entry by id
	GetJournal(ctx context.Context, journalID string) (*JournalEntry, error)

	// ListJournals lists every journal entry in the world
	ListJournals(ctx context.Context) ([]*JournalEntry, error)

	// CreateJournal creates a journal entry and returns its id
	CreateJournal(ctx context.Context, entry *JournalEntry) (string, error)

	// UpdateJournal rewrites a journal entry's metadata
	UpdateJournal(ctx context.Context, entry *JournalEntry) error

	// GetPage retrieves a page by journal and page id
	GetPage(ctx context.Context, journalID, pageID string) (*JournalPage, error)

	// ListPages lists all pages of a journal entry
	ListPages(ctx context.Context, journalID string) ([]*JournalPage, error)

	// CreatePage adds a page to a journal entry and returns its id
	CreatePage(ctx context.Context, journalID string, page *JournalPage) (string, error)

	// UpdatePage rewrites a page's content, flags, and ownership
	UpdatePage(ctx context.Context, journalID string, page *JournalPage) error

	// DeletePage removes a page; missing pages are a no-op
	DeletePage(ctx context.Context, journalID, pageID string) error

	// GetFolder retrieves a folder by id
	GetFolder(ctx context.Context, folderID string) (*Folder, error)

	// ListFolders lists all journal folders
	ListFolders(ctx context.Context) ([]*Folder, error)

	// CreateFolder creates a folder and returns its id
	CreateFolder(ctx context.Context, folder *Folder) (string, error)

	// MoveJournalToFolder reparents a journal entry
	MoveJournalToFolder(ctx context.Context, journalID, folderID string) error
}

// UserStore provides read access to host users.
type UserStore interface {
	// GetUser retrieves a user by id
	GetUser(ctx context.Context, userID string) (*User, error)

	// ListUsers lists every user
	ListUsers(ctx context.Context) ([]*User, error)
}

// SettingsSource reads and writes world settings. Values are strings; the
// config package owns parsing and defaults.
type SettingsSource interface {
	// GetSetting returns a setting value, reporting whether it is set
	GetSetting(ctx context.Context, key string) (string, bool)

	// SetSetting stores a setting value
	SetSetting(ctx context.Context, key, value string) error
}

// EventHandler processes a host event payload.
type EventHandler func(payload any)

// EventBus registers handlers for host events. The returned function
// unregisters the handler.
type EventBus interface {
	OnEvent(name string, handler EventHandler) (unsubscribe func())
}

// Notifier surfaces messages to users.
type Notifier interface {
	// Notify shows a toast to the current user
	Notify(ctx context.Context, level NotifyLevel, message string)

	// EmitChat posts a chat message
	EmitChat(ctx context.Context, msg *ChatMessage) error
}

// UUIDResolver resolves and parses host uuids.
type UUIDResolver interface {
	// ResolveUUID resolves a uuid to a spell, loading from compendia if needed
	ResolveUUID(ctx context.Context, uuid string) (*Spell, error)

	// ResolveUUIDSync resolves from already-loaded documents only
	ResolveUUIDSync(uuid string) (*Spell, bool)

	// ParseUUID decomposes a uuid without resolving it
	ParseUUID(uuid string) (ParsedUUID, error)
}

// CombatSource exposes the host's active combat, if any.
type CombatSource interface {
	// ActiveCombat returns the active combat or nil
	ActiveCombat(ctx context.Context) *Combat
}

// Host is the full adapter capability set.
type Host interface {
	ActorStore
	ItemStore
	FlagStore
	JournalStore
	UserStore
	SettingsSource
	EventBus
	Notifier
	UUIDResolver
	CombatSource
}

// BatchUpdater is an optional capability: hosts that can apply flag writes,
// item deletions, and item creations as one observable actor update
// implement it. The preparation engine type-asserts for it at commit time.
type BatchUpdater interface {
	ApplyActorBatch(ctx context.Context, actorID string, batch *ActorBatch) error
}

// ActorBatch is a single-commit bundle of actor changes. Order of
// application is flags, then deletions, then creations.
type ActorBatch struct {
	Flags         map[string]any
	UnsetFlags    []string
	DeleteItemIDs []string
	CreateItems   []*SpellItem
}

// LibraryWriter is an optional capability for hosts without a compendium:
// the standard-list seeder loads spell content through it.
type LibraryWriter interface {
	AddLibrarySpells(ctx context.Context, spells []*Spell) error
}

// Confirmer asks the user a yes/no question. Injected so the engine stays
// testable without a real dialog.
type Confirmer interface {
	Confirm(ctx context.Context, title, question string) (bool, error)
}

// Host event names the engine subscribes to.
const (
	EventActivityConsumption = "activityConsumption"
	EventActorUpdated        = "actorUpdated"
	EventChatMessageRendered = "chatMessageRendered"
	EventLongRestCompleted   = "longRestCompleted"
)
