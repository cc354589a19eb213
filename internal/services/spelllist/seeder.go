package spelllist

import (
	"context"
	"log"
	"strings"

	"github.com/Sayshal/spell-book/internal/clients/dnd5e"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

// Seeder populates standard spell lists from SRD content, for hosts that
// ship without a compendium of their own.
type Seeder struct {
	host    host.Host
	content dnd5e.Client
	lists   Service
}

// SeederConfig holds configuration for the seeder.
type SeederConfig struct {
	Host    host.Host    // Required
	Content dnd5e.Client // Required
	Lists   Service      // Required
}

// NewSeeder creates a standard-list seeder.
func NewSeeder(cfg *SeederConfig) *Seeder {
	if cfg == nil || cfg.Host == nil {
		panic("seeder host is required")
	}
	if cfg.Content == nil {
		panic("seeder content client is required")
	}
	if cfg.Lists == nil {
		panic("seeder list service is required")
	}

	return &Seeder{
		host:    cfg.Host,
		content: cfg.Content,
		lists:   cfg.Lists,
	}
}

// SeedStandardLists creates one standard list page per class, loading the
// spell content into the host library when it supports that. Classes that
// already have a standard list are skipped, so re-running is safe.
func (s *Seeder) SeedStandardLists(ctx context.Context, classes []string) error {
	existing, err := s.lists.ListSpellLists(ctx)
	if err != nil {
		return err
	}
	seeded := make(map[string]bool)
	for _, info := range existing {
		if info.Type == host.ListTypeStandard {
			seeded[info.Identifier] = true
		}
	}

	writer, canWrite := s.host.(host.LibraryWriter)

	for _, classID := range classes {
		if seeded[classID] {
			continue
		}
		if err := s.seedClass(ctx, classID, writer, canWrite); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedClass(ctx context.Context, classID string, writer host.LibraryWriter, canWrite bool) error {
	refs, err := s.content.ListSpellsByClass(classID)
	if err != nil {
		return sberr.WrapWithCode(err, sberr.CodeUnavailable, "failed to list SRD spells for class '"+classID+"'")
	}

	uuids := make([]string, 0, len(refs))
	spells := make([]*host.Spell, 0, len(refs))
	for _, ref := range refs {
		if canWrite {
			spell, gerr := s.content.GetSpell(ref.Key)
			if gerr != nil {
				return sberr.WrapWithCode(gerr, sberr.CodeUnavailable, "failed to fetch SRD spell '"+ref.Key+"'")
			}
			spells = append(spells, spell)
			uuids = append(uuids, spell.UUID)
			continue
		}
		uuids = append(uuids, dnd5e.SpellUUIDPrefix+ref.Key)
	}

	if canWrite && len(spells) > 0 {
		if err := writer.AddLibrarySpells(ctx, spells); err != nil {
			return sberr.Wrap(err, "failed to load SRD spells into the host library")
		}
	}

	if _, err := s.lists.CreateStandardList(ctx, classID, "", uuids); err != nil {
		return err
	}

	log.Printf("SpellList: seeded standard list for %s (%d spells)", classID, len(uuids))
	return nil
}

func listDisplayName(classID string) string {
	if classID == "" {
		return "Spell List"
	}
	return strings.ToUpper(classID[:1]) + classID[1:] + " Spell List"
}
