// Package testutils holds fixture builders shared by the engine's tests.
package testutils

import (
	"fmt"

	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
)

// Well-known fixture ids.
const (
	GMUserID     = "user-gm"
	PlayerUserID = "user-player"
)

// NewHost builds an in-memory host with one GM and one player.
func NewHost() *memoryhost.Host {
	h := memoryhost.New(nil)
	h.AddUser(&host.User{ID: GMUserID, Name: "Gamemaster", IsGM: true})
	h.AddUser(&host.User{ID: PlayerUserID, Name: "Rosa", IsGM: false})
	return h
}

// NewWizard builds a single-class wizard with sane scale values.
func NewWizard(id string, level int) *host.Actor {
	return &host.Actor{
		ID:    id,
		Name:  "Elandra",
		Type:  host.ActorTypeCharacter,
		Level: level,
		SpellcastingClasses: map[string]host.ClassInfo{
			"wizard": {
				Name:        "Wizard",
				Progression: "full",
				ScaleValues: map[string]int{
					"cantrips-known": 3 + level/10,
					"max-prepared":   level + 3,
				},
			},
		},
		OwnerUserIDs: []string{PlayerUserID},
	}
}

// NewCleric builds a single-class cleric.
func NewCleric(id string, level int) *host.Actor {
	return &host.Actor{
		ID:    id,
		Name:  "Brother Aldous",
		Type:  host.ActorTypeCharacter,
		Level: level,
		SpellcastingClasses: map[string]host.ClassInfo{
			"cleric": {
				Name:        "Cleric",
				Progression: "full",
				ScaleValues: map[string]int{
					"cantrips-known": 3,
					"max-prepared":   level + 2,
				},
			},
		},
		OwnerUserIDs: []string{PlayerUserID},
	}
}

// NewSpell builds a library spell.
func NewSpell(uuid, name string, level int) *host.Spell {
	return &host.Spell{
		UUID:   uuid,
		Name:   name,
		Level:  level,
		School: "evocation",
	}
}

// SpellUUID builds a compendium-shaped uuid from a short key.
func SpellUUID(key string) string {
	return fmt.Sprintf("Compendium.dnd5e.spells.Item.%s", key)
}
