package host

import "time"

// ActorType discriminates host actors; the engine only operates on characters.
type ActorType string

const (
	ActorTypeCharacter ActorType = "character"
	ActorTypeNPC       ActorType = "npc"
)

// ClassInfo describes one spellcasting class on an actor.
type ClassInfo struct {
	Name        string         `json:"name"`
	Progression string         `json:"progression"` // "full", "half", "third", "pact", "none"
	Subclass    string         `json:"subclass,omitempty"`
	ScaleValues map[string]int `json:"scale_values,omitempty"`
}

// Actor is the engine's view of a host actor. Flags are not embedded here;
// they go through FlagStore so reads and writes stay typed.
type Actor struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Type                ActorType            `json:"type"`
	Level               int                  `json:"level"`
	SpellcastingClasses map[string]ClassInfo `json:"spellcasting_classes"`
	OwnerUserIDs        []string             `json:"owner_user_ids,omitempty"`
}

// PreparedMode mirrors the host's item preparation field.
type PreparedMode int

const (
	PreparedNone   PreparedMode = 0
	PreparedYes    PreparedMode = 1
	PreparedAlways PreparedMode = 2
)

// Cast methods the engine must never touch during item sync.
const (
	MethodSpell  = "spell"
	MethodInnate = "innate"
	MethodAtWill = "atwill"
)

// Spell is a library (compendium) spell entry, or an embedded copy when
// SourceUUID is set.
type Spell struct {
	UUID       string          `json:"uuid"`
	SourceUUID string          `json:"source_uuid,omitempty"`
	Name       string          `json:"name"`
	Level      int             `json:"level"`
	School     string          `json:"school,omitempty"`
	Activation string          `json:"activation,omitempty"`
	Range      string          `json:"range,omitempty"`
	Components []string        `json:"components,omitempty"`
	Duration   string          `json:"duration,omitempty"`
	Properties map[string]bool `json:"properties,omitempty"` // "ritual", "concentration"
}

// SpellItem is a spell embedded on an actor.
type SpellItem struct {
	ID          string          `json:"id"`
	UUID        string          `json:"uuid"`
	SourceUUID  string          `json:"source_uuid,omitempty"`
	Name        string          `json:"name"`
	Level       int             `json:"level"`
	School      string          `json:"school,omitempty"`
	Properties  map[string]bool `json:"properties,omitempty"`
	SourceClass string          `json:"source_class,omitempty"`
	Prepared    PreparedMode    `json:"prepared"`
	Method      string          `json:"method,omitempty"`
	CachedFor   string          `json:"cached_for,omitempty"` // granting item uuid; non-empty means granted
}

// Granted reports whether the item was placed on the actor by another item
// (class feature, magic item) rather than by preparation.
func (s *SpellItem) Granted() bool {
	return s.CachedFor != ""
}

// Removable reports whether the preparation engine may delete this item when
// it leaves the prepared set.
func (s *SpellItem) Removable() bool {
	if s.Granted() {
		return false
	}
	if s.Prepared == PreparedAlways {
		return false
	}
	if s.Method == MethodInnate || s.Method == MethodAtWill {
		return false
	}
	return true
}

// OwnershipLevel mirrors the host's document permission levels.
type OwnershipLevel int

const (
	OwnershipNone     OwnershipLevel = 0
	OwnershipLimited  OwnershipLevel = 1
	OwnershipObserver OwnershipLevel = 2
	OwnershipOwner    OwnershipLevel = 3
)

// OwnershipDefaultKey is the pseudo-user key for the default ownership level.
const OwnershipDefaultKey = "default"

// OwnershipMap maps user id (or OwnershipDefaultKey) to a level.
type OwnershipMap map[string]OwnershipLevel

// Clone returns a copy of the ownership map.
func (o OwnershipMap) Clone() OwnershipMap {
	if o == nil {
		return nil
	}
	out := make(OwnershipMap, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// ListType classifies spell-list journal pages.
type ListType string

const (
	ListTypeStandard ListType = "standard"
	ListTypeCustom   ListType = "custom"
	ListTypeMerged   ListType = "merged"
	ListTypeModified ListType = "modified"
)

// PageFlags carries the module-scoped flags the engine stamps on journal
// pages. Zero values are omitted on the wire so foreign flags survive.
type PageFlags struct {
	UserData      bool     `json:"userData,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	IntroPage     bool     `json:"introPage,omitempty"`
	SpellList     bool     `json:"spellList,omitempty"`
	ListType      ListType `json:"listType,omitempty"`
	Identifier    string   `json:"identifier,omitempty"` // class identifier for spell lists
	ActorID       string   `json:"actorId,omitempty"`
	OriginalUUID  string   `json:"originalUuid,omitempty"` // standard list a modified list shadows
	SchemaVersion int      `json:"schemaVersion,omitempty"`
}

// JournalPage is a single page in a journal entry.
type JournalPage struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Content   string       `json:"content"` // HTML body
	Flags     PageFlags    `json:"flags"`
	Ownership OwnershipMap `json:"ownership,omitempty"`
}

// EntryFlags carries module-scoped flags on journal entries.
type EntryFlags struct {
	UserDataJournal  bool `json:"userdataJournal,omitempty"`
	SpellListJournal bool `json:"spellListJournal,omitempty"`
}

// JournalEntry is a host journal document holding pages.
type JournalEntry struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	FolderID  string       `json:"folder_id,omitempty"`
	Flags     EntryFlags   `json:"flags"`
	Ownership OwnershipMap `json:"ownership,omitempty"`
}

// FolderFlags carries module-scoped flags on folders.
type FolderFlags struct {
	UserDataFolder  bool     `json:"userdataFolder,omitempty"`
	SpellListFolder bool     `json:"spellListFolder,omitempty"`
	FolderType      ListType `json:"folderType,omitempty"`
}

// Folder is a host folder for journal entries.
type Folder struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	ParentID string      `json:"parent_id,omitempty"`
	Flags    FolderFlags `json:"flags"`
}

// User is the engine's view of a host user.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGM        bool   `json:"is_gm"`
	CharacterID string `json:"character_id,omitempty"` // assigned character actor
}

// FavoriteEntry is one row in the host's actor-level favorites list.
type FavoriteEntry struct {
	Type string `json:"type"` // "item" for spells
	ID   string `json:"id"`   // embedded item id
	Sort int    `json:"sort"`
}

// ChatFlags routes engine chat messages so the UI layer can attach actions.
type ChatFlags struct {
	MessageType string `json:"messageType,omitempty"` // "update-report" | "migration-report"
}

// ChatMessage is an outbound chat card.
type ChatMessage struct {
	Content   string    `json:"content"`
	WhisperTo []string  `json:"whisper_to,omitempty"` // user ids; empty = public
	Flags     ChatFlags `json:"flags"`
}

// NotifyLevel is a toast severity.
type NotifyLevel string

const (
	NotifyInfo  NotifyLevel = "info"
	NotifyWarn  NotifyLevel = "warn"
	NotifyError NotifyLevel = "error"
)

// Combat is the engine's view of the host's active combat encounter.
type Combat struct {
	ID                string   `json:"id"`
	CombatantActorIDs []string `json:"combatant_actor_ids"`
}

// HasCombatant reports whether the actor participates in the combat.
func (c *Combat) HasCombatant(actorID string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.CombatantActorIDs {
		if id == actorID {
			return true
		}
	}
	return false
}

// CastActivity is the payload of the host's activity-consumption event.
type CastActivity struct {
	ActorID      string    `json:"actor_id"`
	ItemUUID     string    `json:"item_uuid"`
	ItemType     string    `json:"item_type"` // engine filters to "spell"
	ActingUserID string    `json:"acting_user_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ParsedUUID is the decomposed form of a host uuid.
type ParsedUUID struct {
	Collection string // compendium pack or world collection
	DocumentID string
	Embedded   bool // true for actor-embedded copies
}
