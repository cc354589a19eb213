package spelllist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/prepstate"
	"github.com/Sayshal/spell-book/internal/services/spelllist"
	"github.com/Sayshal/spell-book/internal/testutils"
)

// stubConfirmer answers every dialog with a canned result.
type stubConfirmer struct {
	answer bool
	asked  int
}

func (c *stubConfirmer) Confirm(_ context.Context, _, _ string) (bool, error) {
	c.asked++
	return c.answer, nil
}

type SpellListSuite struct {
	suite.Suite
	ctx       context.Context
	host      *memoryhost.Host
	confirmer *stubConfirmer
	service   spelllist.Service
}

func (s *SpellListSuite) SetupTest() {
	s.ctx = context.Background()
	s.host = testutils.NewHost()
	s.confirmer = &stubConfirmer{answer: true}
	s.service = spelllist.NewService(&spelllist.ServiceConfig{
		Host:      s.host,
		Confirmer: s.confirmer,
	})
}

func TestSpellListSuite(t *testing.T) {
	suite.Run(t, new(SpellListSuite))
}

func (s *SpellListSuite) seedStandard(classID string, uuids ...string) string {
	pageID, err := s.service.CreateStandardList(s.ctx, classID, "", uuids)
	s.Require().NoError(err)
	return pageID
}

func (s *SpellListSuite) TestResolvesBuiltInByIdentifier() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)
	s.seedStandard("wizard", "uuid-a", "uuid-b")

	pool, err := s.service.GetClassSpellList(s.ctx, actor, "wizard", spellbook.ClassRules{})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-a", "uuid-b"}, pool)
}

func (s *SpellListSuite) TestCustomRefsWinOverBuiltIn() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)
	s.seedStandard("wizard", "uuid-a")

	customID, err := s.service.CreateCustomList(s.ctx, "House Rules", "wizard", "")
	s.Require().NoError(err)
	s.Require().NoError(s.service.AddSpellToList(s.ctx, customID, "uuid-x"))
	s.Require().NoError(s.service.AddSpellToList(s.ctx, customID, "uuid-y"))
	s.Require().NoError(s.service.AddSpellToList(s.ctx, customID, "uuid-x")) // duplicate no-op

	rules := spellbook.ClassRules{CustomSpellList: []string{customID}}
	pool, err := s.service.GetClassSpellList(s.ctx, actor, "wizard", rules)
	s.Require().NoError(err)
	s.Equal([]string{"uuid-x", "uuid-y"}, pool)
}

func (s *SpellListSuite) TestModifiedOverlayShadowsStandard() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)
	standardID := s.seedStandard("wizard", "uuid-a", "uuid-b")

	modifiedID, err := s.service.DuplicateAsModified(s.ctx, standardID)
	s.Require().NoError(err)
	s.Require().NoError(s.service.RemoveSpellFromList(s.ctx, modifiedID, "uuid-b"))
	s.Require().NoError(s.service.AddSpellToList(s.ctx, modifiedID, "uuid-c"))

	pool, err := s.service.GetClassSpellList(s.ctx, actor, "wizard", spellbook.ClassRules{})
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-a", "uuid-c"}, pool)
}

func (s *SpellListSuite) TestOnlyOneModifiedOverlayPerStandard() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))
	standardID := s.seedStandard("wizard", "uuid-a")

	_, err := s.service.DuplicateAsModified(s.ctx, standardID)
	s.Require().NoError(err)

	_, err = s.service.DuplicateAsModified(s.ctx, standardID)
	s.True(sberr.IsConflict(err))
}

func (s *SpellListSuite) TestStandardListsAreReadOnly() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))
	standardID := s.seedStandard("wizard", "uuid-a")

	s.True(sberr.IsValidation(s.service.AddSpellToList(s.ctx, standardID, "uuid-b")))
	s.True(sberr.IsValidation(s.service.DeleteList(s.ctx, standardID)))
}

func (s *SpellListSuite) TestMergedListUnionsSources() {
	s.host.AddActor(testutils.NewWizard("actor-1", 5))
	firstID := s.seedStandard("wizard", "uuid-a", "uuid-b")
	secondID := s.seedStandard("cleric", "uuid-b", "uuid-c")

	mergedID, err := s.service.CreateMergedList(s.ctx, "Theurge", "theurge", []string{firstID, secondID})
	s.Require().NoError(err)

	uuids, err := s.service.GetListSpells(s.ctx, mergedID)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"uuid-a", "uuid-b", "uuid-c"}, uuids)
}

func (s *SpellListSuite) TestMissingClassYieldsEmptyPool() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)

	pool, err := s.service.GetClassSpellList(s.ctx, actor, "wizard", spellbook.ClassRules{})
	s.Require().NoError(err)
	s.Empty(pool)
}

func (s *SpellListSuite) TestReconcileUnpreparesOrphans() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-keep", "Shield", 1))
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-drop", "Fireball", 3))

	keepItemID := s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-keep", Name: "Shield", Level: 1,
		SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell,
	})
	s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-drop", Name: "Fireball", Level: 3,
		SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell,
	})

	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("wizard", []string{"uuid-keep", "uuid-drop"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	newListID, err := s.service.CreateCustomList(s.ctx, "Narrow List", "wizard", "")
	s.Require().NoError(err)
	s.Require().NoError(s.service.AddSpellToList(s.ctx, newListID, "uuid-keep"))

	confirmed, err := s.service.ReconcileListChange(s.ctx, "actor-1", "wizard", []string{newListID})
	s.Require().NoError(err)
	s.True(confirmed)
	s.Equal(1, s.confirmer.asked)

	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.Equal([]string{"uuid-keep"}, reloaded.ClassUUIDs("wizard"))

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(keepItemID, items[0].ID)
}

func (s *SpellListSuite) TestReconcileSkipsProtectedItems() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)
	s.host.AddLibrarySpell(testutils.NewSpell("uuid-granted", "Misty Step", 2))

	s.host.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-granted", Name: "Misty Step", Level: 2,
		SourceClass: "wizard", Prepared: host.PreparedAlways, CachedFor: "Item.feature",
	})

	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("wizard", []string{"uuid-granted"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	emptyID, err := s.service.CreateCustomList(s.ctx, "Empty", "wizard", "")
	s.Require().NoError(err)

	confirmed, err := s.service.ReconcileListChange(s.ctx, "actor-1", "wizard", []string{emptyID})
	s.Require().NoError(err)
	s.True(confirmed)

	// The flag entry goes, the protected item stays.
	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.Empty(reloaded.ClassUUIDs("wizard"))

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Len(items, 1)
}

func (s *SpellListSuite) TestReconcileCancelLeavesStateAlone() {
	s.confirmer.answer = false

	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)

	state, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	state.SetClass("wizard", []string{"uuid-a"})
	s.Require().NoError(prepstate.Save(s.ctx, s.host, "actor-1", state))

	emptyID, err := s.service.CreateCustomList(s.ctx, "Empty", "wizard", "")
	s.Require().NoError(err)

	confirmed, err := s.service.ReconcileListChange(s.ctx, "actor-1", "wizard", []string{emptyID})
	s.Require().NoError(err)
	s.False(confirmed)

	reloaded, err := prepstate.Load(s.ctx, s.host, "actor-1")
	s.Require().NoError(err)
	s.Equal([]string{"uuid-a"}, reloaded.ClassUUIDs("wizard"))
}

func (s *SpellListSuite) TestReconcileNoOrphansSkipsDialog() {
	actor := testutils.NewWizard("actor-1", 5)
	s.host.AddActor(actor)

	listID, err := s.service.CreateCustomList(s.ctx, "Anything", "wizard", "")
	s.Require().NoError(err)

	confirmed, err := s.service.ReconcileListChange(s.ctx, "actor-1", "wizard", []string{listID})
	s.Require().NoError(err)
	s.True(confirmed)
	s.Zero(s.confirmer.asked)
}
