package spelllist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Sayshal/spell-book/internal/clients/dnd5e"
	mockdnd5e "github.com/Sayshal/spell-book/internal/clients/dnd5e/mock"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/services/spelllist"
	"github.com/Sayshal/spell-book/internal/testutils"
)

type SeederSuite struct {
	suite.Suite
	ctx     context.Context
	ctrl    *gomock.Controller
	content *mockdnd5e.MockClient
	host    *memoryhost.Host
	lists   spelllist.Service
	seeder  *spelllist.Seeder
}

func (s *SeederSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.content = mockdnd5e.NewMockClient(s.ctrl)
	s.host = testutils.NewHost()
	s.lists = spelllist.NewService(&spelllist.ServiceConfig{Host: s.host})
	s.seeder = spelllist.NewSeeder(&spelllist.SeederConfig{
		Host:    s.host,
		Content: s.content,
		Lists:   s.lists,
	})
}

func (s *SeederSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSeederSuite(t *testing.T) {
	suite.Run(t, new(SeederSuite))
}

func (s *SeederSuite) TestSeedsClassListAndLibrary() {
	s.content.EXPECT().ListSpellsByClass("wizard").Return([]*dnd5e.SpellReference{
		{Key: "fireball", Name: "Fireball"},
		{Key: "shield", Name: "Shield"},
	}, nil)
	s.content.EXPECT().GetSpell("fireball").Return(testutils.NewSpell(testutils.SpellUUID("fireball"), "Fireball", 3), nil)
	s.content.EXPECT().GetSpell("shield").Return(testutils.NewSpell(testutils.SpellUUID("shield"), "Shield", 1), nil)

	s.Require().NoError(s.seeder.SeedStandardLists(s.ctx, []string{"wizard"}))

	infos, err := s.lists.ListSpellLists(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(infos, 1)
	s.Equal(host.ListTypeStandard, infos[0].Type)
	s.Equal("wizard", infos[0].Identifier)
	s.Equal(2, infos[0].SpellCount)

	// Spell content landed in the host library, resolvable without I/O.
	spell, ok := s.host.ResolveUUIDSync(testutils.SpellUUID("fireball"))
	s.Require().True(ok)
	s.Equal("Fireball", spell.Name)
}

func (s *SeederSuite) TestSeedingIsIdempotent() {
	s.content.EXPECT().ListSpellsByClass("wizard").Return([]*dnd5e.SpellReference{
		{Key: "fireball", Name: "Fireball"},
	}, nil)
	s.content.EXPECT().GetSpell("fireball").Return(testutils.NewSpell(testutils.SpellUUID("fireball"), "Fireball", 3), nil)

	s.Require().NoError(s.seeder.SeedStandardLists(s.ctx, []string{"wizard"}))

	// The second run sees the existing list and never hits the API again.
	s.Require().NoError(s.seeder.SeedStandardLists(s.ctx, []string{"wizard"}))

	infos, err := s.lists.ListSpellLists(s.ctx)
	s.Require().NoError(err)
	s.Len(infos, 1)
}
