// Package config owns the value domains and defaults of every world setting
// the engine consumes, plus the environment configuration of the headless
// harness. Defaults are legacy-compatible: a world that never opened the
// settings form behaves like earlier releases.
package config

import (
	"context"
	"strconv"
	"strings"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	"github.com/Sayshal/spell-book/internal/host"
)

// Settings is the parsed world configuration.
type Settings struct {
	SpellcastingRuleSet       spellbook.RuleSet
	CantripScaleValues        []string
	EnableUsageTracking       bool
	OverLimitEnforcement      spellbook.EnforcementMode
	SuppressMigrationWarnings bool
	AvailableFocusOptions     []string
}

// Defaults returns the legacy-compatible settings.
func Defaults() Settings {
	return Settings{
		SpellcastingRuleSet:       spellbook.RuleSetLegacy,
		CantripScaleValues:        []string{"cantrips-known", "cantrips"},
		EnableUsageTracking:       true,
		OverLimitEnforcement:      spellbook.EnforcementNotifyGM,
		SuppressMigrationWarnings: false,
		AvailableFocusOptions:     []string{"arcane focus", "component pouch", "holy symbol"},
	}
}

// LoadSettings reads world settings through the host, falling back to
// defaults for unset or out-of-domain values. It never fails: a corrupt
// setting value degrades to its default.
func LoadSettings(ctx context.Context, source host.SettingsSource) Settings {
	s := Defaults()

	if v, ok := source.GetSetting(ctx, spellbook.SettingSpellcastingRuleSet); ok {
		if rs := spellbook.RuleSet(v); rs.Valid() {
			s.SpellcastingRuleSet = rs
		}
	}

	if v, ok := source.GetSetting(ctx, spellbook.SettingCantripScaleValues); ok {
		if keys := splitCSV(v); len(keys) > 0 {
			s.CantripScaleValues = keys
		}
	}

	if v, ok := source.GetSetting(ctx, spellbook.SettingEnableUsageTracking); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.EnableUsageTracking = b
		}
	}

	if v, ok := source.GetSetting(ctx, spellbook.SettingOverLimitEnforcement); ok {
		switch m := spellbook.EnforcementMode(v); m {
		case spellbook.EnforcementStrict, spellbook.EnforcementNotifyGM, spellbook.EnforcementUnenforced:
			s.OverLimitEnforcement = m
		}
	}

	if v, ok := source.GetSetting(ctx, spellbook.SettingSuppressMigrationWarning); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.SuppressMigrationWarnings = b
		}
	}

	if v, ok := source.GetSetting(ctx, spellbook.SettingAvailableFocusOptions); ok {
		if opts := splitCSV(v); len(opts) > 0 {
			s.AvailableFocusOptions = opts
		}
	}

	return s
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
