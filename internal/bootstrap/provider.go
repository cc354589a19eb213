// Package bootstrap wires the engine together and runs its session
// lifecycle: migrations, document setup, and host hooks.
package bootstrap

import (
	"github.com/Sayshal/spell-book/internal/clients/dnd5e"
	"github.com/Sayshal/spell-book/internal/clock"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/migrations"
	"github.com/Sayshal/spell-book/internal/reporting"
	"github.com/Sayshal/spell-book/internal/services/cantrips"
	"github.com/Sayshal/spell-book/internal/services/favorites"
	"github.com/Sayshal/spell-book/internal/services/loadout"
	"github.com/Sayshal/spell-book/internal/services/preferences"
	"github.com/Sayshal/spell-book/internal/services/preparation"
	"github.com/Sayshal/spell-book/internal/services/rules"
	"github.com/Sayshal/spell-book/internal/services/spelllist"
	"github.com/Sayshal/spell-book/internal/services/usage"
	"github.com/Sayshal/spell-book/internal/store"
)

// Provider holds all engine service instances.
type Provider struct {
	Store       store.Service
	Rules       rules.Service
	SpellLists  spelllist.Service
	Cantrips    cantrips.Service
	Preparation preparation.Service
	Loadouts    loadout.Service
	Favorites   favorites.Service
	Preferences preferences.Service
	Usage       *usage.Tracker
	Migrations  *migrations.Runner
	Reporter    reporting.Reporter
	Seeder      *spelllist.Seeder
}

// ProviderConfig holds configuration for creating the engine.
type ProviderConfig struct {
	Host      host.Host      // Required
	Confirmer host.Confirmer // Optional; destructive list changes skip confirmation when nil
	Content   dnd5e.Client   // Optional; the seeder is nil without it
	Clock     clock.Clock    // Optional, defaults to real time
}

// NewProvider creates the engine with all services wired.
func NewProvider(cfg *ProviderConfig) *Provider {
	if cfg == nil || cfg.Host == nil {
		panic("bootstrap host is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	storeService := store.NewService(&store.ServiceConfig{
		Host: cfg.Host,
		Now:  func() int64 { return clk.Now().UnixMilli() },
	})

	listService := spelllist.NewService(&spelllist.ServiceConfig{
		Host:      cfg.Host,
		Confirmer: cfg.Confirmer,
	})

	rulesService := rules.NewService(&rules.ServiceConfig{
		Host:       cfg.Host,
		Reconciler: listService,
	})

	cantripService := cantrips.NewService(&cantrips.ServiceConfig{
		Host:  cfg.Host,
		Rules: rulesService,
	})

	favoritesService := favorites.NewService(&favorites.ServiceConfig{
		Host:  cfg.Host,
		Store: storeService,
	})

	reporter := reporting.New(&reporting.Config{Host: cfg.Host})

	preparationService := preparation.NewService(&preparation.ServiceConfig{
		Host:      cfg.Host,
		Rules:     rulesService,
		Cantrips:  cantripService,
		Favorites: favoritesService,
		Reporter:  reporter,
	})

	loadoutService := loadout.NewService(&loadout.ServiceConfig{
		Host:  cfg.Host,
		Clock: clk,
	})

	preferencesService := preferences.NewService(&preferences.ServiceConfig{
		Host: cfg.Host,
	})

	tracker := usage.NewTracker(&usage.TrackerConfig{
		Host:  cfg.Host,
		Store: storeService,
		Clock: clk,
	})

	runner := migrations.NewRunner(&migrations.RunnerConfig{
		Host:     cfg.Host,
		Reporter: reporter,
	})

	var seeder *spelllist.Seeder
	if cfg.Content != nil {
		seeder = spelllist.NewSeeder(&spelllist.SeederConfig{
			Host:    cfg.Host,
			Content: cfg.Content,
			Lists:   listService,
		})
	}

	return &Provider{
		Store:       storeService,
		Rules:       rulesService,
		SpellLists:  listService,
		Cantrips:    cantripService,
		Preparation: preparationService,
		Loadouts:    loadoutService,
		Favorites:   favoritesService,
		Preferences: preferencesService,
		Usage:       tracker,
		Migrations:  runner,
		Reporter:    reporter,
		Seeder:      seeder,
	}
}
