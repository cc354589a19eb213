// Package favorites bridges the per-user favorited bit to the host's native
// actor-level favorites list, and exposes the thin favorites/notes facade
// over the persistence store.
package favorites

import (
	"context"
	"log"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/store"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockfavorites -source=service.go

// favoriteEntryType is the host's entry type for embedded items.
const favoriteEntryType = "item"

// Service is the favorites sync plus the favorites/notes facade.
type Service interface {
	// AddSpellToActorFavorites favorites the embedded copy of a spell.
	// Returns false when the actor has no embedded copy.
	AddSpellToActorFavorites(ctx context.Context, actorID, uuid string) (bool, error)

	// RemoveSpellFromActorFavorites unfavorites the embedded copy
	RemoveSpellFromActorFavorites(ctx context.Context, actorID, uuid string) (bool, error)

	// ProcessFavoritesFromForm rebuilds the actor's spell-typed favorites
	// from the store, preserving non-spell favorites verbatim. One actor
	// update.
	ProcessFavoritesFromForm(ctx context.Context, actorID, userID string) error

	// GetFavorite reads the favorited bit for a spell
	GetFavorite(ctx context.Context, uuid, userID, actorID string) (bool, error)

	// SetFavorite writes the favorited bit for a spell
	SetFavorite(ctx context.Context, uuid, userID, actorID string, favorited bool) error

	// GetNotes reads the notes for a spell
	GetNotes(ctx context.Context, uuid, userID, actorID string) (string, error)

	// SetNotes writes the notes for a spell
	SetNotes(ctx context.Context, uuid, userID, actorID string, notes string) error
}

// service implements Service.
type service struct {
	host  host.Host
	store store.Service
}

// ServiceConfig holds configuration for the favorites service.
type ServiceConfig struct {
	Host  host.Host     // Required
	Store store.Service // Required
}

// NewService creates the favorites service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("favorites host is required")
	}
	if cfg.Store == nil {
		panic("favorites store is required")
	}

	return &service{
		host:  cfg.Host,
		store: cfg.Store,
	}
}

// AddSpellToActorFavorites favorites the embedded copy of a spell.
func (s *service) AddSpellToActorFavorites(ctx context.Context, actorID, uuid string) (bool, error) {
	item, err := s.findEmbeddedItem(ctx, actorID, uuid)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	entries, err := s.host.GetActorFavorites(ctx, actorID)
	if err != nil {
		return false, sberr.Wrap(err, "failed to read actor favorites")
	}

	maxSort := 0
	for _, entry := range entries {
		if entry.Type == favoriteEntryType && entry.ID == item.ID {
			return true, nil
		}
		if entry.Sort > maxSort {
			maxSort = entry.Sort
		}
	}

	entries = append(entries, host.FavoriteEntry{
		Type: favoriteEntryType,
		ID:   item.ID,
		Sort: maxSort + 1,
	})
	if err := s.host.SetActorFavorites(ctx, actorID, entries); err != nil {
		return false, sberr.Wrap(err, "failed to write actor favorites")
	}
	return true, nil
}

// RemoveSpellFromActorFavorites unfavorites the embedded copy.
func (s *service) RemoveSpellFromActorFavorites(ctx context.Context, actorID, uuid string) (bool, error) {
	item, err := s.findEmbeddedItem(ctx, actorID, uuid)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	entries, err := s.host.GetActorFavorites(ctx, actorID)
	if err != nil {
		return false, sberr.Wrap(err, "failed to read actor favorites")
	}

	kept := entries[:0]
	removed := false
	for _, entry := range entries {
		if entry.Type == favoriteEntryType && entry.ID == item.ID {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	if !removed {
		return true, nil
	}

	if err := s.host.SetActorFavorites(ctx, actorID, kept); err != nil {
		return false, sberr.Wrap(err, "failed to write actor favorites")
	}
	return true, nil
}

// ProcessFavoritesFromForm rebuilds spell-typed favorites from the store.
func (s *service) ProcessFavoritesFromForm(ctx context.Context, actorID, userID string) error {
	items, err := s.host.GetActorSpellItems(ctx, actorID)
	if err != nil {
		return err
	}

	entries, err := s.host.GetActorFavorites(ctx, actorID)
	if err != nil {
		return sberr.Wrap(err, "failed to read actor favorites")
	}

	spellItemIDs := make(map[string]bool, len(items))
	for _, item := range items {
		spellItemIDs[item.ID] = true
	}

	// Non-spell favorites survive untouched, in their original order.
	kept := make([]host.FavoriteEntry, 0, len(entries))
	maxSort := 0
	for _, entry := range entries {
		if entry.Type == favoriteEntryType && spellItemIDs[entry.ID] {
			continue
		}
		kept = append(kept, entry)
		if entry.Sort > maxSort {
			maxSort = entry.Sort
		}
	}

	favorited := 0
	for _, item := range items {
		data, derr := s.store.GetUserDataForSpell(ctx, identity.CanonicalizeItem(item), userID, actorID)
		if derr != nil {
			return derr
		}
		if data == nil || !data.Favorited {
			continue
		}
		maxSort++
		kept = append(kept, host.FavoriteEntry{
			Type: favoriteEntryType,
			ID:   item.ID,
			Sort: maxSort,
		})
		favorited++
	}

	if err := s.host.SetActorFavorites(ctx, actorID, kept); err != nil {
		return sberr.Wrap(err, "failed to write actor favorites")
	}

	log.Printf("Favorites: synced %d favorited spells for actor %s", favorited, actorID)
	return nil
}

// GetFavorite reads the favorited bit for a spell.
func (s *service) GetFavorite(ctx context.Context, uuid, userID, actorID string) (bool, error) {
	data, err := s.store.GetUserDataForSpell(ctx, uuid, userID, actorID)
	if err != nil {
		return false, err
	}
	return data != nil && data.Favorited, nil
}

// SetFavorite writes the favorited bit for a spell.
func (s *service) SetFavorite(ctx context.Context, uuid, userID, actorID string, favorited bool) error {
	return s.updateUserData(ctx, uuid, userID, actorID, func(data *spellbook.UserSpellData) {
		data.Favorited = favorited
	})
}

// GetNotes reads the notes for a spell.
func (s *service) GetNotes(ctx context.Context, uuid, userID, actorID string) (string, error) {
	data, err := s.store.GetUserDataForSpell(ctx, uuid, userID, actorID)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	return data.Notes, nil
}

// SetNotes writes the notes for a spell.
func (s *service) SetNotes(ctx context.Context, uuid, userID, actorID string, notes string) error {
	return s.updateUserData(ctx, uuid, userID, actorID, func(data *spellbook.UserSpellData) {
		data.Notes = notes
	})
}

func (s *service) updateUserData(ctx context.Context, uuid, userID, actorID string, mutate func(*spellbook.UserSpellData)) error {
	data, err := s.store.GetUserDataForSpell(ctx, uuid, userID, actorID)
	if err != nil {
		return err
	}
	if data == nil {
		data = &spellbook.UserSpellData{}
	}
	mutate(data)

	return s.store.SetUserDataForSpell(ctx, &store.SetUserDataInput{
		UUID:    uuid,
		UserID:  userID,
		ActorID: actorID,
		Data:    data,
	})
}

// findEmbeddedItem locates the actor's embedded copy of a spell by canonical
// uuid. Nil when the actor has no copy.
func (s *service) findEmbeddedItem(ctx context.Context, actorID, uuid string) (*host.SpellItem, error) {
	canonical := identity.Canonicalize(s.host, uuid)

	items, err := s.host.GetActorSpellItems(ctx, actorID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if identity.CanonicalizeItem(item) == canonical {
			return item, nil
		}
	}
	return nil, nil
}
