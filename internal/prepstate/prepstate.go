// Package prepstate owns the two preparation flags: the authoritative
// per-class map and its flat projection. The cantrip manager, preparation
// engine, and spell list resolver all mutate preparation through this one
// type, which keeps the projection invariant in a single place.
package prepstate

import (
	"context"
	"sort"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
)

// State is the in-memory form of an actor's preparation flags.
type State struct {
	// byClass holds "classId:uuid" keys per class, matching the flag shape.
	byClass map[string][]string
}

// Load reads preparation flags for an actor.
func Load(ctx context.Context, flags host.FlagStore, actorID string) (*State, error) {
	byClass := make(map[string][]string)
	if _, err := flags.GetActorFlag(ctx, actorID, spellbook.FlagPreparedSpellsByClass, &byClass); err != nil {
		return nil, sberr.Wrap(err, "failed to read prepared spells flag")
	}
	if byClass == nil {
		byClass = make(map[string][]string)
	}
	return &State{byClass: byClass}, nil
}

// ClassUUIDs returns the canonical uuids prepared for a class.
func (s *State) ClassUUIDs(classID string) []string {
	keys := s.byClass[classID]
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, identity.StripClassPrefix(key))
	}
	return out
}

// Classes returns every class with at least one prepared spell, sorted.
func (s *State) Classes() []string {
	out := make([]string, 0, len(s.byClass))
	for classID, keys := range s.byClass {
		if len(keys) > 0 {
			out = append(out, classID)
		}
	}
	sort.Strings(out)
	return out
}

// Has reports whether a uuid is prepared for a class.
func (s *State) Has(classID, uuid string) bool {
	for _, key := range s.byClass[classID] {
		if identity.StripClassPrefix(key) == uuid {
			return true
		}
	}
	return false
}

// SetClass replaces a class's prepared set with canonical uuids.
func (s *State) SetClass(classID string, uuids []string) {
	keys := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		keys = append(keys, identity.ClassSpellKey(classID, uuid))
	}
	s.byClass[classID] = keys
}

// Add prepares one uuid for a class if not already present.
func (s *State) Add(classID, uuid string) {
	if s.Has(classID, uuid) {
		return
	}
	s.byClass[classID] = append(s.byClass[classID], identity.ClassSpellKey(classID, uuid))
}

// Remove unprepares one uuid for a class.
func (s *State) Remove(classID, uuid string) {
	keys := s.byClass[classID]
	out := keys[:0]
	for _, key := range keys {
		if identity.StripClassPrefix(key) != uuid {
			out = append(out, key)
		}
	}
	s.byClass[classID] = out
}

// DropClass erases a class's preparation entirely.
func (s *State) DropClass(classID string) {
	delete(s.byClass, classID)
}

// Flat regenerates the flat projection: every canonical uuid across classes,
// in class order.
func (s *State) Flat() []string {
	var out []string
	for _, classID := range s.Classes() {
		out = append(out, s.ClassUUIDs(classID)...)
	}
	return out
}

// Verify checks the projection invariant against a candidate flat list.
// A mismatch is an engine bug, reported as an internal error.
func (s *State) Verify(flat []string) error {
	want := s.Flat()
	if len(want) != len(flat) {
		return sberr.Internalf("flat projection has %d entries, per-class union has %d", len(flat), len(want))
	}

	counts := make(map[string]int, len(want))
	for _, uuid := range want {
		counts[uuid]++
	}
	for _, uuid := range flat {
		counts[uuid]--
		if counts[uuid] < 0 {
			return sberr.Internalf("flat projection contains '%s' more often than the per-class union", uuid)
		}
	}
	return nil
}

// FlagValues returns both flags for a batched actor update.
func (s *State) FlagValues() map[string]any {
	return map[string]any{
		spellbook.FlagPreparedSpellsByClass: s.byClass,
		spellbook.FlagPreparedSpells:        s.Flat(),
	}
}

// Save writes both flags, per-class map first so a reader that races the
// two writes still sees a derivable projection.
func Save(ctx context.Context, flags host.FlagStore, actorID string, s *State) error {
	if err := flags.SetActorFlag(ctx, actorID, spellbook.FlagPreparedSpellsByClass, s.byClass); err != nil {
		return sberr.Wrap(err, "failed to write per-class preparation flag")
	}
	if err := flags.SetActorFlag(ctx, actorID, spellbook.FlagPreparedSpells, s.Flat()); err != nil {
		return sberr.Wrap(err, "failed to write flat preparation flag")
	}
	return nil
}
