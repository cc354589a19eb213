// Package dnd5e wraps the SRD API behind a spell-content interface.
package dnd5e

import (
	"fmt"
	"net/http"
	"strings"

	apiDnd5e "github.com/fadedpez/dnd5e-api/clients/dnd5e"
	"github.com/fadedpez/dnd5e-api/entities"

	"github.com/Sayshal/spell-book/internal/host"
)

// SpellUUIDPrefix is the compendium-style uuid namespace for seeded spells.
const SpellUUIDPrefix = "Compendium.dnd5e.spells.Item."

// defaultBaseURL is the public SRD API root.
const defaultBaseURL = "https://www.dnd5eapi.co/api/2014/"

type client struct {
	client apiDnd5e.Interface
}

// Config holds configuration for the SRD client.
type Config struct {
	HttpClient *http.Client
	BaseURL    string // Optional, defaults to the public SRD API
}

// New creates a Client backed by the SRD API.
func New(cfg *Config) (Client, error) {
	httpClient := http.DefaultClient
	baseURL := defaultBaseURL
	if cfg != nil {
		if cfg.HttpClient != nil {
			httpClient = cfg.HttpClient
		}
		if cfg.BaseURL != "" {
			baseURL = cfg.BaseURL
		}
	}

	apiClient, err := apiDnd5e.NewDND5eAPI(&apiDnd5e.DND5eAPIConfig{
		Client:  httpClient,
		BaseURL: baseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dnd5e api client: %w", err)
	}

	return &client{client: apiClient}, nil
}

// GetSpell retrieves a spell by key
func (c *client) GetSpell(key string) (*host.Spell, error) {
	apiSpell, err := c.client.GetSpell(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get spell %s: %w", key, err)
	}
	return convertSpell(apiSpell), nil
}

// ListSpellsByClass lists all spells available to a class
func (c *client) ListSpellsByClass(classKey string) ([]*SpellReference, error) {
	spells, err := c.client.ListSpells(&apiDnd5e.ListSpellsInput{
		Class: classKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list spells for class %s: %w", classKey, err)
	}

	result := make([]*SpellReference, len(spells))
	for i, ref := range spells {
		result[i] = &SpellReference{
			Key:  ref.Key,
			Name: ref.Name,
		}
	}
	return result, nil
}

// convertSpell converts an API spell to the host record
func convertSpell(apiSpell *entities.Spell) *host.Spell {
	spell := &host.Spell{
		UUID:       SpellUUIDPrefix + apiSpell.Key,
		Name:       apiSpell.Name,
		Level:      apiSpell.SpellLevel,
		Activation: apiSpell.CastingTime,
		Range:      apiSpell.Range,
		Duration:   apiSpell.Duration,
		Properties: map[string]bool{},
	}

	if apiSpell.Concentration {
		spell.Properties["concentration"] = true
	}
	if apiSpell.Ritual {
		spell.Properties["ritual"] = true
	}
	if apiSpell.SpellSchool != nil {
		spell.School = strings.ToLower(apiSpell.SpellSchool.Name)
	}

	return spell
}
