package spellbook

import "encoding/json"

// Class identifiers with edition-specific defaults. Anything else falls
// through to the generic row.
const (
	ClassWizard    = "wizard"
	ClassCleric    = "cleric"
	ClassDruid     = "druid"
	ClassPaladin   = "paladin"
	ClassRanger    = "ranger"
	ClassBard      = "bard"
	ClassSorcerer  = "sorcerer"
	ClassWarlock   = "warlock"
	ClassArtificer = "artificer"
)

// Wizard spell-copying economy: gp and hours per spell level.
const (
	defaultLearningCostMultiplier = 50
	defaultLearningTimeMultiplier = 2
)

type editionRow struct {
	cantripSwap SwapTiming
	spellSwap   SwapTiming
	ritual      RitualCasting
}

var legacyDefaults = map[string]editionRow{
	ClassWizard:    {SwapNone, SwapLongRest, RitualAlways},
	ClassCleric:    {SwapNone, SwapLongRest, RitualPrepared},
	ClassDruid:     {SwapNone, SwapLongRest, RitualPrepared},
	ClassPaladin:   {SwapNone, SwapLongRest, RitualNone},
	ClassRanger:    {SwapNone, SwapLevelUp, RitualNone},
	ClassBard:      {SwapNone, SwapLevelUp, RitualPrepared},
	ClassSorcerer:  {SwapNone, SwapLevelUp, RitualNone},
	ClassWarlock:   {SwapNone, SwapLevelUp, RitualNone},
	ClassArtificer: {SwapNone, SwapLongRest, RitualNone},
}

var legacyOther = editionRow{SwapNone, SwapLevelUp, RitualNone}

var modernDefaults = map[string]editionRow{
	ClassWizard:    {SwapLongRest, SwapLongRest, RitualAlways},
	ClassCleric:    {SwapLevelUp, SwapLongRest, RitualNone},
	ClassDruid:     {SwapLevelUp, SwapLongRest, RitualNone},
	ClassPaladin:   {SwapNone, SwapLongRest, RitualNone},
	ClassRanger:    {SwapNone, SwapLongRest, RitualNone},
	ClassBard:      {SwapLevelUp, SwapLevelUp, RitualNone},
	ClassSorcerer:  {SwapLevelUp, SwapLevelUp, RitualNone},
	ClassWarlock:   {SwapLevelUp, SwapLevelUp, RitualNone},
	ClassArtificer: {SwapLevelUp, SwapLongRest, RitualNone},
}

var modernOther = editionRow{SwapLevelUp, SwapLevelUp, RitualNone}

// DefaultClassRules returns the edition default record for a class. Unknown
// identifiers get the generic row.
func DefaultClassRules(ruleSet RuleSet, classID string) ClassRules {
	table, other := legacyDefaults, legacyOther
	if ruleSet == RuleSetModern {
		table, other = modernDefaults, modernOther
	}

	row, ok := table[classID]
	if !ok {
		row = other
	}

	showCantrips := classID != ClassPaladin && classID != ClassRanger

	return ClassRules{
		CantripSwapping:             row.cantripSwap,
		SpellSwapping:               row.spellSwap,
		RitualCasting:               row.ritual,
		ShowCantrips:                showCantrips,
		CustomSpellList:             []string{},
		SpellLearningCostMultiplier: defaultLearningCostMultiplier,
		SpellLearningTimeMultiplier: defaultLearningTimeMultiplier,
	}
}

// MergeStoredOverDefaults overlays a stored rule record, possibly written by
// an older release with fewer fields, onto edition defaults. Fields present
// in the stored JSON win; absent fields take the default. This is the
// "existing fields are preserved field-by-field" contract.
func MergeStoredOverDefaults(defaults ClassRules, storedRaw json.RawMessage) (ClassRules, error) {
	if len(storedRaw) == 0 {
		return defaults, nil
	}

	base, err := json.Marshal(defaults)
	if err != nil {
		return defaults, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return defaults, err
	}

	var stored map[string]json.RawMessage
	if err := json.Unmarshal(storedRaw, &stored); err != nil {
		return defaults, err
	}
	for k, v := range stored {
		if string(v) == "null" {
			continue
		}
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return defaults, err
	}

	var result ClassRules
	if err := json.Unmarshal(out, &result); err != nil {
		return defaults, err
	}
	if result.CustomSpellList == nil {
		result.CustomSpellList = []string{}
	}
	return result, nil
}
