package dnd5e

import "github.com/Sayshal/spell-book/internal/host"

//go:generate mockgen -destination=mock/mock_client.go -package=mockdnd5e . Client

// Client fetches SRD spell content. The standard-list seeder uses it to
// populate hosts that have no compendium of their own.
type Client interface {
	// GetSpell retrieves a spell by key
	GetSpell(key string) (*host.Spell, error)

	// ListSpellsByClass lists the keys and names of every spell available
	// to a class
	ListSpellsByClass(classKey string) ([]*SpellReference, error)
}

// SpellReference is a lightweight pointer to a spell.
type SpellReference struct {
	Key  string
	Name string
}
