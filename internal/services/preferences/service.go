// Package preferences exposes the small per-actor preference flags that sit
// outside the rule records: spellcasting focus and party mode.
package preferences

import (
	"context"

	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockpreferences -source=service.go

// Service reads and writes actor preference flags.
type Service interface {
	// GetSpellcastingFocus returns the actor's chosen focus, "" when unset
	GetSpellcastingFocus(ctx context.Context, actorID string) (string, error)

	// SetSpellcastingFocus stores the focus. Values outside the configured
	// options are rejected; "" clears the flag.
	SetSpellcastingFocus(ctx context.Context, actorID, focus string) error

	// IsPartyMode reports whether the actor shows the party spell view
	IsPartyMode(ctx context.Context, actorID string) (bool, error)

	// SetPartyMode toggles the party spell view
	SetPartyMode(ctx context.Context, actorID string, enabled bool) error
}

// service implements Service.
type service struct {
	host host.Host
}

// ServiceConfig holds configuration for the preferences service.
type ServiceConfig struct {
	Host host.Host // Required
}

// NewService creates the preferences service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("preferences host is required")
	}
	return &service{host: cfg.Host}
}

// GetSpellcastingFocus returns the actor's chosen focus.
func (s *service) GetSpellcastingFocus(ctx context.Context, actorID string) (string, error) {
	var focus string
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagSpellcastingFocus, &focus); err != nil {
		return "", sberr.Wrap(err, "failed to read spellcasting focus flag")
	}
	return focus, nil
}

// SetSpellcastingFocus stores the focus.
func (s *service) SetSpellcastingFocus(ctx context.Context, actorID, focus string) error {
	if focus == "" {
		return s.host.UnsetActorFlag(ctx, actorID, spellbook.FlagSpellcastingFocus)
	}

	settings := config.LoadSettings(ctx, s.host)
	valid := false
	for _, option := range settings.AvailableFocusOptions {
		if option == focus {
			valid = true
			break
		}
	}
	if !valid {
		return sberr.Validationf("'%s' is not an available focus option", focus)
	}

	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagSpellcastingFocus, focus); err != nil {
		return sberr.Wrap(err, "failed to write spellcasting focus flag")
	}
	return nil
}

// IsPartyMode reports whether the actor shows the party spell view.
func (s *service) IsPartyMode(ctx context.Context, actorID string) (bool, error) {
	var enabled bool
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagPartyModeEnabled, &enabled); err != nil {
		return false, sberr.Wrap(err, "failed to read party mode flag")
	}
	return enabled, nil
}

// SetPartyMode toggles the party spell view.
func (s *service) SetPartyMode(ctx context.Context, actorID string, enabled bool) error {
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagPartyModeEnabled, enabled); err != nil {
		return sberr.Wrap(err, "failed to write party mode flag")
	}
	return nil
}
