package spellbook

// ModuleID scopes every flag, setting, and document the engine owns.
const ModuleID = "spell-book"

// Actor flag keys. These names are load-bearing: they match what the engine
// has always written, so worlds migrate forward without rewrites.
const (
	FlagClassRules            = "classRules"
	FlagRuleSetOverride       = "ruleSetOverride"
	FlagPreparedSpells        = "preparedSpells"
	FlagPreparedSpellsByClass = "preparedSpellsByClass"
	FlagPreviousLevel         = "previousLevel"
	FlagPreviousCantripMax    = "previousCantripMax"
	FlagCantripSwapTracking   = "cantripSwapTracking"
	FlagSpellLoadouts         = "spellLoadouts"
	FlagSpellcastingFocus     = "spellcastingFocus"
	FlagPartyModeEnabled      = "partyModeEnabled"
)

// World setting keys consumed by the engine.
const (
	SettingSpellcastingRuleSet      = "spellcastingRuleSet"
	SettingCantripScaleValues       = "cantripScaleValues"
	SettingEnableUsageTracking      = "enableSpellUsageTracking"
	SettingOverLimitEnforcement     = "overLimitEnforcement"
	SettingSuppressMigrationWarning = "suppressMigrationWarnings"
	SettingAvailableFocusOptions    = "availableFocusOptions"
)

// Chat message types stamped on engine-emitted messages.
const (
	MessageTypeUpdateReport    = "update-report"
	MessageTypeMigrationReport = "migration-report"
)

// UserDataSchemaVersion is the current schema stamped on user data pages.
// Migrations advance pages written by older versions.
const UserDataSchemaVersion = 3
