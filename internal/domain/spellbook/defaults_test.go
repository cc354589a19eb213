package spellbook_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
)

func TestDefaultClassRulesByEdition(t *testing.T) {
	legacy := spellbook.DefaultClassRules(spellbook.RuleSetLegacy, spellbook.ClassWizard)
	assert.Equal(t, spellbook.SwapNone, legacy.CantripSwapping)
	assert.Equal(t, spellbook.SwapLongRest, legacy.SpellSwapping)
	assert.Equal(t, spellbook.RitualAlways, legacy.RitualCasting)

	modern := spellbook.DefaultClassRules(spellbook.RuleSetModern, spellbook.ClassWizard)
	assert.Equal(t, spellbook.SwapLongRest, modern.CantripSwapping)

	// Clerics keep ritual access only in the legacy tables.
	assert.Equal(t, spellbook.RitualPrepared, spellbook.DefaultClassRules(spellbook.RuleSetLegacy, spellbook.ClassCleric).RitualCasting)
	assert.Equal(t, spellbook.RitualNone, spellbook.DefaultClassRules(spellbook.RuleSetModern, spellbook.ClassCleric).RitualCasting)
}

func TestDefaultClassRulesGenericRow(t *testing.T) {
	got := spellbook.DefaultClassRules(spellbook.RuleSetLegacy, "bloodhunter")
	assert.Equal(t, spellbook.SwapNone, got.CantripSwapping)
	assert.Equal(t, spellbook.SwapLevelUp, got.SpellSwapping)
	assert.Equal(t, spellbook.RitualNone, got.RitualCasting)
	assert.True(t, got.ShowCantrips)
	assert.NotNil(t, got.CustomSpellList)
}

func TestHalfCastersHideCantrips(t *testing.T) {
	for _, ruleSet := range []spellbook.RuleSet{spellbook.RuleSetLegacy, spellbook.RuleSetModern} {
		assert.False(t, spellbook.DefaultClassRules(ruleSet, spellbook.ClassPaladin).ShowCantrips)
		assert.False(t, spellbook.DefaultClassRules(ruleSet, spellbook.ClassRanger).ShowCantrips)
		assert.True(t, spellbook.DefaultClassRules(ruleSet, spellbook.ClassBard).ShowCantrips)
	}
}

func TestDefaultLearningMultipliers(t *testing.T) {
	got := spellbook.DefaultClassRules(spellbook.RuleSetLegacy, spellbook.ClassWizard)
	assert.Equal(t, 50, got.SpellLearningCostMultiplier)
	assert.Equal(t, 2, got.SpellLearningTimeMultiplier)
}

func TestMergeStoredFieldsWin(t *testing.T) {
	defaults := spellbook.DefaultClassRules(spellbook.RuleSetLegacy, spellbook.ClassWizard)

	merged, err := spellbook.MergeStoredOverDefaults(defaults, json.RawMessage(`{"spellPreparationBonus":3,"ritualCasting":"none"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, merged.SpellPreparationBonus)
	assert.Equal(t, spellbook.RitualNone, merged.RitualCasting)
	// Absent fields keep the defaults.
	assert.Equal(t, spellbook.SwapLongRest, merged.SpellSwapping)
	assert.Equal(t, 50, merged.SpellLearningCostMultiplier)
}

func TestMergeSkipsNullFields(t *testing.T) {
	defaults := spellbook.DefaultClassRules(spellbook.RuleSetLegacy, spellbook.ClassWizard)

	merged, err := spellbook.MergeStoredOverDefaults(defaults, json.RawMessage(`{"customSpellList":null,"ritualCasting":null}`))
	require.NoError(t, err)
	assert.Equal(t, spellbook.RitualAlways, merged.RitualCasting)
	assert.NotNil(t, merged.CustomSpellList)
	assert.Empty(t, merged.CustomSpellList)
}

func TestMergeEmptyRecordIsDefaults(t *testing.T) {
	defaults := spellbook.DefaultClassRules(spellbook.RuleSetModern, spellbook.ClassSorcerer)

	merged, err := spellbook.MergeStoredOverDefaults(defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, merged)
}
