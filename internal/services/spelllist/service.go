// Package spelllist resolves the available-spells pool for a class and
// manages the journal-backed spell list documents behind it.
package spelllist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/prepstate"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockspelllist -source=service.go

const (
	listFolderName  = "Spell Lists"
	listJournalName = "Class Spell Lists"
)

// ListInfo describes one spell list page without its content.
type ListInfo struct {
	PageID       string
	Name         string
	Type         host.ListType
	Identifier   string
	ActorID      string
	OriginalUUID string
	SpellCount   int
}

// Service resolves spell pools and manages list documents.
type Service interface {
	// GetClassSpellList produces the candidate pool for a class: custom list
	// refs win, then the built-in list, then any modified overlay.
	GetClassSpellList(ctx context.Context, actor *host.Actor, classID string, rules spellbook.ClassRules) ([]string, error)

	// ReconcileListChange handles preparation fallout when a class's custom
	// list refs are about to change. Returns false when the user cancelled.
	ReconcileListChange(ctx context.Context, actorID, classID string, newListRefs []string) (bool, error)

	// ListSpellLists enumerates every spell list page
	ListSpellLists(ctx context.Context) ([]*ListInfo, error)

	// GetListSpells returns the canonical uuids stored in a list page
	GetListSpells(ctx context.Context, pageID string) ([]string, error)

	// CreateCustomList creates an empty custom list and returns its page id
	CreateCustomList(ctx context.Context, name, identifier, actorID string) (string, error)

	// CreateStandardList creates the built-in list for a class. Used by the
	// seeder; conflicts when the class already has one.
	CreateStandardList(ctx context.Context, classID, name string, uuids []string) (string, error)

	// CreateMergedList creates a list holding the union of the source lists
	CreateMergedList(ctx context.Context, name, identifier string, sourcePageIDs []string) (string, error)

	// DuplicateAsModified copies a standard list into a modified overlay that
	// shadows it. At most one overlay per standard list.
	DuplicateAsModified(ctx context.Context, standardPageID string) (string, error)

	// AddSpellToList appends a spell; duplicates are a no-op
	AddSpellToList(ctx context.Context, pageID, uuid string) error

	// RemoveSpellFromList removes a spell; absence is a no-op
	RemoveSpellFromList(ctx context.Context, pageID, uuid string) error

	// RenameList renames a list page
	RenameList(ctx context.Context, pageID, name string) error

	// DeleteList removes a list page. Standard lists cannot be deleted.
	DeleteList(ctx context.Context, pageID string) error
}

// service implements Service.
type service struct {
	host      host.Host
	confirmer host.Confirmer

	mu        sync.RWMutex
	journalID string
}

// ServiceConfig holds configuration for the spell list service.
type ServiceConfig struct {
	Host      host.Host      // Required
	Confirmer host.Confirmer // Optional; reconciliation commits without confirmation when nil
}

// NewService creates the spell list service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("spelllist host is required")
	}

	return &service{
		host:      cfg.Host,
		confirmer: cfg.Confirmer,
	}
}

// GetClassSpellList produces the candidate pool for a class.
func (s *service) GetClassSpellList(ctx context.Context, actor *host.Actor, classID string, rules spellbook.ClassRules) ([]string, error) {
	if actor == nil {
		return nil, sberr.Validationf("actor is required")
	}

	if len(rules.CustomSpellList) > 0 {
		return s.unionOfPages(ctx, rules.CustomSpellList)
	}

	className := classID
	if info, ok := actor.SpellcastingClasses[classID]; ok && info.Name != "" {
		className = info.Name
	}

	page, err := s.findBuiltInList(ctx, classID, className)
	if err != nil {
		if sberr.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	pool, err := decodeListContent(page)
	if err != nil {
		return nil, err
	}

	// A modified overlay shadows the built-in list entirely; it stores the
	// complete edited set, not a diff.
	overlay, err := s.findModifiedOverlay(ctx, page.ID)
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		return decodeListContent(overlay)
	}
	return pool, nil
}

// ReconcileListChange handles preparation fallout for a custom list change.
func (s *service) ReconcileListChange(ctx context.Context, actorID, classID string, newListRefs []string) (bool, error) {
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return false, err
	}

	newPool, err := s.poolForRefs(ctx, actor, classID, newListRefs)
	if err != nil {
		return false, err
	}
	inPool := make(map[string]bool, len(newPool))
	for _, uuid := range newPool {
		inPool[uuid] = true
	}

	state, err := prepstate.Load(ctx, s.host, actorID)
	if err != nil {
		return false, err
	}

	var orphaned []string
	for _, uuid := range state.ClassUUIDs(classID) {
		if !inPool[uuid] {
			orphaned = append(orphaned, uuid)
		}
	}
	if len(orphaned) == 0 {
		return true, nil
	}

	if s.confirmer != nil {
		question := fmt.Sprintf("Changing this spell list will unprepare %d spell(s) no longer available to %s. Continue?", len(orphaned), classID)
		confirmed, cerr := s.confirmer.Confirm(ctx, "Spell List Change", question)
		if cerr != nil {
			return false, cerr
		}
		if !confirmed {
			return false, nil
		}
	}

	for _, uuid := range orphaned {
		state.Remove(classID, uuid)
	}
	if err := prepstate.Save(ctx, s.host, actorID, state); err != nil {
		return false, err
	}

	if err := s.deleteOrphanedItems(ctx, actorID, classID, orphaned); err != nil {
		return false, err
	}

	log.Printf("SpellList: reconciled list change for %s/%s, unprepared %d spells", actorID, classID, len(orphaned))
	return true, nil
}

// ListSpellLists enumerates every spell list page.
func (s *service) ListSpellLists(ctx context.Context) ([]*ListInfo, error) {
	pages, err := s.listPages(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*ListInfo, 0, len(pages))
	for _, page := range pages {
		uuids, derr := decodeListContent(page)
		if derr != nil {
			log.Printf("SpellList: skipping unreadable list page %s: %v", page.ID, derr)
			continue
		}
		out = append(out, &ListInfo{
			PageID:       page.ID,
			Name:         page.Name,
			Type:         page.Flags.ListType,
			Identifier:   page.Flags.Identifier,
			ActorID:      page.Flags.ActorID,
			OriginalUUID: page.Flags.OriginalUUID,
			SpellCount:   len(uuids),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetListSpells returns the canonical uuids stored in a list page.
func (s *service) GetListSpells(ctx context.Context, pageID string) ([]string, error) {
	page, err := s.getPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return decodeListContent(page)
}

// CreateCustomList creates an empty custom list.
func (s *service) CreateCustomList(ctx context.Context, name, identifier, actorID string) (string, error) {
	if name == "" {
		return "", sberr.Validationf("list name is required")
	}
	return s.createList(ctx, &host.JournalPage{
		Name: name,
		Flags: host.PageFlags{
			SpellList:  true,
			ListType:   host.ListTypeCustom,
			Identifier: identifier,
			ActorID:    actorID,
		},
	}, nil)
}

// CreateStandardList creates the built-in list for a class.
func (s *service) CreateStandardList(ctx context.Context, classID, name string, uuids []string) (string, error) {
	if classID == "" {
		return "", sberr.Validationf("class id is required")
	}
	if name == "" {
		name = listDisplayName(classID)
	}

	pages, err := s.listPages(ctx)
	if err != nil {
		return "", err
	}
	for _, page := range pages {
		if page.Flags.ListType == host.ListTypeStandard && page.Flags.Identifier == classID {
			return "", sberr.Conflictf("class '%s' already has a standard list", classID)
		}
	}

	return s.createList(ctx, &host.JournalPage{
		Name: name,
		Flags: host.PageFlags{
			SpellList:  true,
			ListType:   host.ListTypeStandard,
			Identifier: classID,
		},
	}, uuids)
}

// CreateMergedList creates a list holding the union of the source lists.
func (s *service) CreateMergedList(ctx context.Context, name, identifier string, sourcePageIDs []string) (string, error) {
	if name == "" {
		return "", sberr.Validationf("list name is required")
	}
	if len(sourcePageIDs) == 0 {
		return "", sberr.Validationf("merged list needs at least one source")
	}

	union, err := s.unionOfPages(ctx, sourcePageIDs)
	if err != nil {
		return "", err
	}
	return s.createList(ctx, &host.JournalPage{
		Name: name,
		Flags: host.PageFlags{
			SpellList:  true,
			ListType:   host.ListTypeMerged,
			Identifier: identifier,
		},
	}, union)
}

// DuplicateAsModified copies a standard list into a modified overlay.
func (s *service) DuplicateAsModified(ctx context.Context, standardPageID string) (string, error) {
	original, err := s.getPage(ctx, standardPageID)
	if err != nil {
		return "", err
	}
	if original.Flags.ListType != host.ListTypeStandard {
		return "", sberr.Validationf("only standard lists can be duplicated as modified, got '%s'", original.Flags.ListType)
	}

	existing, err := s.findModifiedOverlay(ctx, standardPageID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", sberr.Conflictf("list '%s' already has a modified overlay", original.Name)
	}

	uuids, err := decodeListContent(original)
	if err != nil {
		return "", err
	}
	return s.createList(ctx, &host.JournalPage{
		Name: original.Name + " (Modified)",
		Flags: host.PageFlags{
			SpellList:    true,
			ListType:     host.ListTypeModified,
			Identifier:   original.Flags.Identifier,
			OriginalUUID: standardPageID,
		},
	}, uuids)
}

// AddSpellToList appends a spell to a list.
func (s *service) AddSpellToList(ctx context.Context, pageID, uuid string) error {
	canonical := identity.Canonicalize(s.host, uuid)
	return s.mutateList(ctx, pageID, func(uuids []string) []string {
		for _, existing := range uuids {
			if existing == canonical {
				return uuids
			}
		}
		return append(uuids, canonical)
	})
}

// RemoveSpellFromList removes a spell from a list.
func (s *service) RemoveSpellFromList(ctx context.Context, pageID, uuid string) error {
	canonical := identity.Canonicalize(s.host, uuid)
	return s.mutateList(ctx, pageID, func(uuids []string) []string {
		out := uuids[:0]
		for _, existing := range uuids {
			if existing != canonical {
				out = append(out, existing)
			}
		}
		return out
	})
}

// RenameList renames a list page.
func (s *service) RenameList(ctx context.Context, pageID, name string) error {
	if name == "" {
		return sberr.Validationf("list name is required")
	}

	page, err := s.getPage(ctx, pageID)
	if err != nil {
		return err
	}
	page.Name = name

	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return err
	}
	return s.host.UpdatePage(ctx, journalID, page)
}

// DeleteList removes a list page.
func (s *service) DeleteList(ctx context.Context, pageID string) error {
	page, err := s.getPage(ctx, pageID)
	if err != nil {
		return err
	}
	if page.Flags.ListType == host.ListTypeStandard {
		return sberr.Validationf("standard lists cannot be deleted")
	}

	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return err
	}
	return s.host.DeletePage(ctx, journalID, pageID)
}

// poolForRefs resolves the pool a set of custom refs would produce; empty
// refs fall back to the built-in list, matching GetClassSpellList.
func (s *service) poolForRefs(ctx context.Context, actor *host.Actor, classID string, refs []string) ([]string, error) {
	if len(refs) > 0 {
		return s.unionOfPages(ctx, refs)
	}
	rules := spellbook.ClassRules{}
	return s.GetClassSpellList(ctx, actor, classID, rules)
}

func (s *service) deleteOrphanedItems(ctx context.Context, actorID, classID string, orphaned []string) error {
	items, err := s.host.GetActorSpellItems(ctx, actorID)
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(orphaned))
	for _, uuid := range orphaned {
		drop[uuid] = true
	}

	var itemIDs []string
	for _, item := range items {
		if !item.Removable() {
			continue
		}
		if item.SourceClass != "" && item.SourceClass != classID {
			continue
		}
		if drop[identity.CanonicalizeItem(item)] {
			itemIDs = append(itemIDs, item.ID)
		}
	}
	if len(itemIDs) == 0 {
		return nil
	}
	return s.host.DeleteActorItems(ctx, actorID, itemIDs)
}

func (s *service) unionOfPages(ctx context.Context, pageIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pageID := range pageIDs {
		page, err := s.getPage(ctx, pageID)
		if err != nil {
			if sberr.IsNotFound(err) {
				log.Printf("SpellList: referenced list %s is missing, skipping", pageID)
				continue
			}
			return nil, err
		}
		uuids, err := decodeListContent(page)
		if err != nil {
			return nil, err
		}
		for _, uuid := range uuids {
			if !seen[uuid] {
				seen[uuid] = true
				out = append(out, uuid)
			}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// findBuiltInList locates the standard or merged list for a class, matching
// on the identifier first and the class name second.
func (s *service) findBuiltInList(ctx context.Context, classID, className string) (*host.JournalPage, error) {
	pages, err := s.listPages(ctx)
	if err != nil {
		return nil, err
	}

	lowerName := strings.ToLower(className)
	var byName *host.JournalPage
	for _, page := range pages {
		if page.Flags.ListType != host.ListTypeStandard && page.Flags.ListType != host.ListTypeMerged {
			continue
		}
		if page.Flags.Identifier == classID {
			return page, nil
		}
		if byName == nil && strings.ToLower(page.Flags.Identifier) == lowerName {
			byName = page
		}
	}
	if byName != nil {
		return byName, nil
	}
	return nil, sberr.NotFoundf("no built-in spell list for class '%s'", classID)
}

func (s *service) findModifiedOverlay(ctx context.Context, originalPageID string) (*host.JournalPage, error) {
	pages, err := s.listPages(ctx)
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		if page.Flags.ListType == host.ListTypeModified && page.Flags.OriginalUUID == originalPageID {
			return page, nil
		}
	}
	return nil, nil
}

func (s *service) createList(ctx context.Context, page *host.JournalPage, uuids []string) (string, error) {
	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return "", err
	}

	content, err := encodeListContent(uuids)
	if err != nil {
		return "", err
	}
	page.Content = content

	id, err := s.host.CreatePage(ctx, journalID, page)
	if err != nil {
		return "", sberr.Wrapf(err, "failed to create spell list '%s'", page.Name)
	}
	return id, nil
}

func (s *service) mutateList(ctx context.Context, pageID string, mutate func([]string) []string) error {
	page, err := s.getPage(ctx, pageID)
	if err != nil {
		return err
	}
	if page.Flags.ListType == host.ListTypeStandard {
		return sberr.Validationf("standard lists are read-only; duplicate as modified first")
	}

	uuids, err := decodeListContent(page)
	if err != nil {
		return err
	}

	content, err := encodeListContent(mutate(uuids))
	if err != nil {
		return err
	}
	page.Content = content

	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return err
	}
	return s.host.UpdatePage(ctx, journalID, page)
}

func (s *service) getPage(ctx context.Context, pageID string) (*host.JournalPage, error) {
	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return nil, err
	}
	page, err := s.host.GetPage(ctx, journalID, pageID)
	if err != nil {
		return nil, err
	}
	if !page.Flags.SpellList {
		return nil, sberr.NotFoundf("page '%s' is not a spell list", pageID)
	}
	return page, nil
}

func (s *service) listPages(ctx context.Context) ([]*host.JournalPage, error) {
	journalID, err := s.ensureJournal(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := s.host.ListPages(ctx, journalID)
	if err != nil {
		return nil, err
	}

	out := pages[:0]
	for _, page := range pages {
		if page.Flags.SpellList {
			out = append(out, page)
		}
	}
	return out, nil
}

// ensureJournal finds or creates the spell list journal, caching its id.
func (s *service) ensureJournal(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.journalID != "" {
		id := s.journalID
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	journals, err := s.host.ListJournals(ctx)
	if err != nil {
		return "", sberr.Wrap(err, "failed to list journals")
	}
	for _, journal := range journals {
		if journal.Flags.SpellListJournal {
			s.setJournalID(journal.ID)
			return journal.ID, nil
		}
	}

	folderID, err := s.ensureFolder(ctx)
	if err != nil {
		return "", err
	}

	id, err := s.host.CreateJournal(ctx, &host.JournalEntry{
		Name:     listJournalName,
		FolderID: folderID,
		Flags:    host.EntryFlags{SpellListJournal: true},
	})
	if err != nil {
		return "", sberr.Wrap(err, "failed to create spell list journal")
	}
	s.setJournalID(id)
	return id, nil
}

func (s *service) ensureFolder(ctx context.Context) (string, error) {
	folders, err := s.host.ListFolders(ctx)
	if err != nil {
		return "", sberr.Wrap(err, "failed to list folders")
	}
	for _, folder := range folders {
		if folder.Flags.SpellListFolder {
			return folder.ID, nil
		}
	}

	id, err := s.host.CreateFolder(ctx, &host.Folder{
		Name:  listFolderName,
		Flags: host.FolderFlags{SpellListFolder: true},
	})
	if err != nil {
		return "", sberr.Wrap(err, "failed to create spell list folder")
	}
	return id, nil
}

func (s *service) setJournalID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journalID = id
}

// List page content is a JSON array of canonical uuids.
func decodeListContent(page *host.JournalPage) ([]string, error) {
	if strings.TrimSpace(page.Content) == "" {
		return []string{}, nil
	}
	var uuids []string
	if err := json.Unmarshal([]byte(page.Content), &uuids); err != nil {
		return nil, sberr.Wrapf(err, "spell list page '%s' has unreadable content", page.ID)
	}
	return uuids, nil
}

func encodeListContent(uuids []string) (string, error) {
	if uuids == nil {
		uuids = []string{}
	}
	raw, err := json.Marshal(uuids)
	if err != nil {
		return "", sberr.Wrap(err, "failed to encode spell list content")
	}
	return string(raw), nil
}
