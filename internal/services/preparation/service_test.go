package preparation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/prepstate"
	"github.com/Sayshal/spell-book/internal/reporting"
	"github.com/Sayshal/spell-book/internal/services/cantrips"
	"github.com/Sayshal/spell-book/internal/services/favorites"
	"github.com/Sayshal/spell-book/internal/services/preparation"
	"github.com/Sayshal/spell-book/internal/services/rules"
	"github.com/Sayshal/spell-book/internal/store"
	"github.com/Sayshal/spell-book/internal/testutils"
)

type PreparationSuite struct {
	suite.Suite
	ctx     context.Context
	host    *memoryhost.Host
	rules   rules.Service
	service preparation.Service
}

func (s *PreparationSuite) SetupTest() {
	s.ctx = context.Background()
	s.host = testutils.NewHost()
	s.rules = rules.NewService(&rules.ServiceConfig{Host: s.host})

	cantripService := cantrips.NewService(&cantrips.ServiceConfig{
		Host:  s.host,
		Rules: s.rules,
	})
	storeService := store.NewService(&store.ServiceConfig{Host: s.host})
	s.Require().NoError(storeService.EnsureDocuments(s.ctx))

	favoritesService := favorites.NewService(&favorites.ServiceConfig{
		Host:  s.host,
		Store: storeService,
	})

	s.service = preparation.NewService(&preparation.ServiceConfig{
		Host:      s.host,
		Rules:     s.rules,
		Cantrips:  cantripService,
		Favorites: favoritesService,
		Reporter:  reporting.New(&reporting.Config{Host: s.host}),
	})
}

func TestPreparationSuite(t *testing.T) {
	suite.Run(t, new(PreparationSuite))
}

func (s *PreparationSuite) addWizardWithSpells() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5)) // max-prepared: 8
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-shield", "Shield", 1))
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-fireball", "Fireball", 3))
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-haste", "Haste", 3))
}

func (s *PreparationSuite) TestMaxPreparedFromScaleValue() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))

	max, err := s.service.MaxPrepared(s.ctx, "actor-1", "wizard")
	s.Require().NoError(err)
	s.Equal(8, max)
}

func (s *PreparationSuite) TestMaxPreparedFallsBackToLevel() {
	actor := testutils.NewWizard("actor-1", 5)
	info := actor.SpellcastingClasses["wizard"]
	delete(info.ScaleValues, "max-prepared")
	actor.SpellcastingClasses["wizard"] = info
	s.host.AddActor(actor)

	max, err := s.service.MaxPrepared(s.ctx, "actor-1", "wizard")
	s.Require().NoError(err)
	s.Equal(5, max)
}

func (s *PreparationSuite) TestMaxPreparedAppliesBonus() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))

	bonus := 2
	ok, err := s.rules.UpdateClassRules(s.ctx, "actor-1", "wizard", &spellbook.ClassRulesPatch{
		SpellPreparationBonus: &bonus,
	})
	s.Require().NoError(err)
	s.Require().True(ok)

	max, err := s.service.MaxPrepared(s.ctx, "actor-1", "wizard")
	s.Require().NoError(err)
	s.Equal(10, max)
}

func (s *PreparationSuite) TestStrictDeniesOverMax() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))
	s.Require().NoError(s.host.SetSetting(s.ctx, spellbook.SettingOverLimitEnforcement, "strict"))

	result, err := s.service.CanChange(s.ctx, &preparation.ChangeInput{
		ActorID: "actor-1", ClassID: "wizard", SpellUUID: "uuid-x",
		SpellLevel: 1, Checked: true, CurrentCount: 8,
	})
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(spellbook.ReasonMaxSpellsReached, result.Reason)
}

func (s *PreparationSuite) TestUncheckInsideWindowAllowed() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))
	s.Require().NoError(s.host.SetSetting(s.ctx, spellbook.SettingOverLimitEnforcement, "strict"))

	// Legacy wizard spell swapping is longRest.
	result, err := s.service.CanChange(s.ctx, &preparation.ChangeInput{
		ActorID: "actor-1", ClassID: "wizard", SpellUUID: "uuid-x",
		SpellLevel: 1, Checked: false, IsLongRest: true, CurrentCount: 3,
	})
	s.Require().NoError(err)
	s.True(result.Allowed)

	result, err = s.service.CanChange(s.ctx, &preparation.ChangeInput{
		ActorID: "actor-1", ClassID: "wizard", SpellUUID: "uuid-x",
		SpellLevel: 1, Checked: false, CurrentCount: 3,
	})
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(spellbook.ReasonOutsideSwapWindow, result.Reason)
}

func (s *PreparationSuite) TestCommitCreatesAndDeletesItems() {
	s.addWizardWithSpells()

	// Shield starts prepared with an embedded item.
	shieldItemID := s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-shield", Name: "Shield", Level: 1,
		SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell,
	})
	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("wizard", []string{"uuid-shield"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	out, err := s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID:   "actor-1",
		UserID:    testutils.PlayerUserID,
		ClassID:   "wizard",
		SpellUUID: []string{"uuid-fireball", "uuid-haste"},
	})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-fireball", "uuid-haste"}, out.Added)
	s.Equal([]string{"uuid-shield"}, out.Removed)

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Len(items, 2)
	for _, item := range items {
		s.NotEqual(shieldItemID, item.ID)
		s.Equal("wizard", item.SourceClass)
		s.Equal(host.PreparedYes, item.Prepared)
	}

	// Both flags reflect the new set.
	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-fireball", "uuid-haste"}, reloaded.ClassUUIDs("wizard"))

	var flat []string
	_, err = s.host.GetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpells, &flat)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-fireball", "uuid-haste"}, flat)
}

func (s *PreparationSuite) TestCommitPreservesProtectedItems() {
	s.addWizardWithSpells()

	grantedID := s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-shield", Name: "Shield", Level: 1,
		SourceClass: "wizard", Prepared: host.PreparedAlways, CachedFor: "Item.ring",
	})
	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("wizard", []string{"uuid-shield"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	_, err = s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID: "actor-1", UserID: testutils.PlayerUserID,
		ClassID: "wizard", SpellUUID: []string{},
	})
	s.Require().NoError(err)

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(grantedID, items[0].ID)
}

func (s *PreparationSuite) TestCommitSkipsCreateWhenItemExists() {
	s.addWizardWithSpells()

	s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-fireball", Name: "Fireball", Level: 3,
		SourceClass: "wizard", Prepared: host.PreparedNone, Method: host.MethodSpell,
	})

	_, err := s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID: "actor-1", UserID: testutils.PlayerUserID,
		ClassID: "wizard", SpellUUID: []string{"uuid-fireball"},
	})
	s.Require().NoError(err)

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *PreparationSuite) TestCommitEmitsGMReport() {
	s.addWizardWithSpells()

	_, err := s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID: "actor-1", UserID: testutils.PlayerUserID,
		ClassID: "wizard", SpellUUID: []string{"uuid-fireball"},
	})
	s.Require().NoError(err)

	chat := s.host.ChatLog()
	s.Require().Len(chat, 1)
	s.Equal(spellbook.MessageTypeUpdateReport, chat[0].Flags.MessageType)
	s.Contains(chat[0].Content, "Fireball")
	s.Equal([]string{testutils.GMUserID}, chat[0].WhisperTo)
}

func (s *PreparationSuite) TestCommitCanonicalizesEmbeddedUUIDs() {
	s.addWizardWithSpells()

	itemID := s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-fireball", Name: "Fireball", Level: 3,
		SourceClass: "wizard", Prepared: host.PreparedNone, Method: host.MethodSpell,
	})
	embedded := "Actor.actor-1.Item." + itemID

	_, err := s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID: "actor-1", UserID: testutils.PlayerUserID,
		ClassID: "wizard", SpellUUID: []string{embedded},
	})
	s.Require().NoError(err)

	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.Equal([]string{"uuid-fireball"}, reloaded.ClassUUIDs("wizard"))
}

func (s *PreparationSuite) TestCommitOtherClassUntouched() {
	actor := testutils.NewWizard("actor-1", 5)
	actor.SpellcastingClasses["cleric"] = host.ClassInfo{
		Name: "Cleric", Progression: "full",
		ScaleValues: map[string]int{"max-prepared": 7},
	}
	s.host.AddActor(actor)
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-bless", "Bless", 1))
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-shield", "Shield", 1))

	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("cleric", []string{"uuid-bless"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	_, err = s.service.Commit(s.ctx, &preparation.CommitInput{
		ActorID: "actor-1", UserID: testutils.PlayerUserID,
		ClassID: "wizard", SpellUUID: []string{"uuid-shield"},
	})
	s.Require().NoError(err)

	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.Equal([]string{"uuid-bless"}, reloaded.ClassUUIDs("cleric"))
	s.Equal([]string{"uuid-shield"}, reloaded.ClassUUIDs("wizard"))
	s.Len(reloaded.Flat(), 2)
}
