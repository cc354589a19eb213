// Package spellbook holds the persisted data shapes of the spell book
// engine: class rule records, preparation flags, swap tracking, loadouts,
// and per-user spell metadata. Serialization tokens match the shapes earlier
// releases wrote, so flags on existing worlds keep loading.
package spellbook

// RuleSet selects the edition defaults applied to class rule records.
type RuleSet string

const (
	RuleSetLegacy RuleSet = "legacy"
	RuleSetModern RuleSet = "modern"
)

// Valid reports whether the rule set is a known token.
func (r RuleSet) Valid() bool {
	return r == RuleSetLegacy || r == RuleSetModern
}

// SwapTiming says when a class may swap prepared spells or cantrips.
type SwapTiming string

const (
	SwapNone     SwapTiming = "none"
	SwapLevelUp  SwapTiming = "levelUp"
	SwapLongRest SwapTiming = "longRest"
)

// RitualCasting says which spells a class may ritual-cast.
type RitualCasting string

const (
	RitualNone     RitualCasting = "none"
	RitualPrepared RitualCasting = "prepared"
	RitualAlways   RitualCasting = "always"
)

// EnforcementMode controls how over-limit preparation is handled.
type EnforcementMode string

const (
	EnforcementStrict     EnforcementMode = "strict"
	EnforcementNotifyGM   EnforcementMode = "notify_gm"
	EnforcementUnenforced EnforcementMode = "unenforced"
)

// ClassRules is the per-actor, per-class rule record.
type ClassRules struct {
	CantripSwapping             SwapTiming    `json:"cantripSwapping"`
	SpellSwapping               SwapTiming    `json:"spellSwapping"`
	RitualCasting               RitualCasting `json:"ritualCasting"`
	ShowCantrips                bool          `json:"showCantrips"`
	CustomSpellList             []string      `json:"customSpellList"`
	SpellPreparationBonus       int           `json:"spellPreparationBonus"`
	CantripPreparationBonus     int           `json:"cantripPreparationBonus"`
	ForceWizardMode             bool          `json:"forceWizardMode"`
	SpellLearningCostMultiplier int           `json:"spellLearningCostMultiplier"`
	SpellLearningTimeMultiplier int           `json:"spellLearningTimeMultiplier"`
}

// ClassRulesPatch is a partial update; nil fields are left unchanged.
type ClassRulesPatch struct {
	CantripSwapping             *SwapTiming    `json:"cantripSwapping,omitempty"`
	SpellSwapping               *SwapTiming    `json:"spellSwapping,omitempty"`
	RitualCasting               *RitualCasting `json:"ritualCasting,omitempty"`
	ShowCantrips                *bool          `json:"showCantrips,omitempty"`
	CustomSpellList             *[]string      `json:"customSpellList,omitempty"`
	SpellPreparationBonus       *int           `json:"spellPreparationBonus,omitempty"`
	CantripPreparationBonus     *int           `json:"cantripPreparationBonus,omitempty"`
	ForceWizardMode             *bool          `json:"forceWizardMode,omitempty"`
	SpellLearningCostMultiplier *int           `json:"spellLearningCostMultiplier,omitempty"`
	SpellLearningTimeMultiplier *int           `json:"spellLearningTimeMultiplier,omitempty"`
}

// Apply overlays the patch on a rule record and returns the result.
func (p *ClassRulesPatch) Apply(rules ClassRules) ClassRules {
	if p == nil {
		return rules
	}
	if p.CantripSwapping != nil {
		rules.CantripSwapping = *p.CantripSwapping
	}
	if p.SpellSwapping != nil {
		rules.SpellSwapping = *p.SpellSwapping
	}
	if p.RitualCasting != nil {
		rules.RitualCasting = *p.RitualCasting
	}
	if p.ShowCantrips != nil {
		rules.ShowCantrips = *p.ShowCantrips
	}
	if p.CustomSpellList != nil {
		rules.CustomSpellList = append([]string(nil), (*p.CustomSpellList)...)
	}
	if p.SpellPreparationBonus != nil {
		rules.SpellPreparationBonus = *p.SpellPreparationBonus
	}
	if p.CantripPreparationBonus != nil {
		rules.CantripPreparationBonus = *p.CantripPreparationBonus
	}
	if p.ForceWizardMode != nil {
		rules.ForceWizardMode = *p.ForceWizardMode
	}
	if p.SpellLearningCostMultiplier != nil {
		rules.SpellLearningCostMultiplier = *p.SpellLearningCostMultiplier
	}
	if p.SpellLearningTimeMultiplier != nil {
		rules.SpellLearningTimeMultiplier = *p.SpellLearningTimeMultiplier
	}
	return rules
}

// SwapState tracks the one allowed unlearn and learn inside a swap window.
// OriginalChecked is frozen when the window opens.
type SwapState struct {
	HasUnlearned    bool     `json:"hasUnlearned"`
	Unlearned       string   `json:"unlearned,omitempty"`
	HasLearned      bool     `json:"hasLearned"`
	Learned         string   `json:"learned,omitempty"`
	OriginalChecked []string `json:"originalChecked"`
}

// WasOriginallyChecked reports whether the uuid was prepared when the swap
// window opened.
func (s *SwapState) WasOriginallyChecked(uuid string) bool {
	for _, u := range s.OriginalChecked {
		if u == uuid {
			return true
		}
	}
	return false
}

// ClassSwapTracking holds per-window swap state for one class.
type ClassSwapTracking struct {
	LevelUp  *SwapState `json:"levelUp,omitempty"`
	LongRest *SwapState `json:"longRest,omitempty"`
}

// SwapTracking maps class identifier to swap state.
type SwapTracking map[string]*ClassSwapTracking

// Loadout is a named snapshot of a prepared-spell set. Timestamps are unix
// milliseconds to match the shape earlier releases persisted.
type Loadout struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	ClassIdentifier    string   `json:"classIdentifier,omitempty"`
	SpellConfiguration []string `json:"spellConfiguration"`
	CreatedAt          int64    `json:"createdAt"`
	UpdatedAt          int64    `json:"updatedAt"`
}

// ContextUsage splits cast counts by situation.
type ContextUsage struct {
	Combat      int `json:"combat"`
	Exploration int `json:"exploration"`
}

// UsageStats accumulates casts of one spell. LastUsed is unix milliseconds.
type UsageStats struct {
	Count        int          `json:"count"`
	LastUsed     int64        `json:"lastUsed,omitempty"`
	ContextUsage ContextUsage `json:"contextUsage"`
}

// UserSpellData is the per-user, per-character metadata for one spell,
// keyed by canonical uuid.
type UserSpellData struct {
	Notes      string      `json:"notes,omitempty"`
	Favorited  bool        `json:"favorited,omitempty"`
	UsageStats *UsageStats `json:"usageStats,omitempty"`
}

// Empty reports whether the record carries no information.
func (d *UserSpellData) Empty() bool {
	if d == nil {
		return true
	}
	return d.Notes == "" && !d.Favorited && (d.UsageStats == nil || d.UsageStats.Count == 0)
}

// ChangeResult is the data-shaped outcome of a rule check. It is never an
// error: disallowed changes are normal control flow.
type ChangeResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Reasons returned in ChangeResult. These are stable tokens the UI maps to
// localized strings.
const (
	ReasonMaxCantripsReached = "MaxCantripsReached"
	ReasonMaxSpellsReached   = "MaxSpellsReached"
	ReasonOutsideSwapWindow  = "OutsideSwapWindow"
	ReasonOnlyOneSwap        = "OnlyOneSwap"
	ReasonUnlearnFirst       = "UnlearnFirst"
	ReasonClassNotFound      = "ClassNotFound"
	ReasonLongRestWizardOnly = "LongRestWizardOnly"
)

// Allowed is the ChangeResult for an accepted change.
var Allowed = ChangeResult{Allowed: true}

// Denied builds a ChangeResult for a rejected change.
func Denied(reason string) ChangeResult {
	return ChangeResult{Allowed: false, Reason: reason}
}
