package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/store"
	"github.com/Sayshal/spell-book/internal/testutils"
)

type StoreSuite struct {
	suite.Suite
	ctx     context.Context
	host    *memoryhost.Host
	service store.Service
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.host = testutils.NewHost()
	s.service = store.NewService(&store.ServiceConfig{
		Host: s.host,
		Now:  func() int64 { return 1_700_000_000_000 },
	})
	s.Require().NoError(s.service.EnsureDocuments(s.ctx))
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) userJournal() (*host.JournalEntry, []*host.JournalPage) {
	journals, err := s.host.ListJournals(s.ctx)
	s.Require().NoError(err)
	for _, j := range journals {
		if j.Flags.UserDataJournal {
			pages, perr := s.host.ListPages(s.ctx, j.ID)
			s.Require().NoError(perr)
			return j, pages
		}
	}
	s.FailNow("user data journal not found")
	return nil, nil
}

func (s *StoreSuite) TestEnsureDocumentsIsIdempotent() {
	journal, pages := s.userJournal()

	// Intro page plus one page for the single non-GM user.
	s.Len(pages, 2)

	s.Require().NoError(s.service.EnsureDocuments(s.ctx))
	_, again := s.userJournal()
	s.Len(again, 2)

	// GMs own the journal; everyone else sees nothing.
	s.Equal(host.OwnershipNone, journal.Ownership[host.OwnershipDefaultKey])
	s.Equal(host.OwnershipOwner, journal.Ownership[testutils.GMUserID])
}

func (s *StoreSuite) TestUserPageOwnership() {
	_, pages := s.userJournal()
	for _, page := range pages {
		if !page.Flags.UserData {
			continue
		}
		s.Equal(testutils.PlayerUserID, page.Flags.UserID)
		s.Equal(host.OwnershipOwner, page.Ownership[testutils.PlayerUserID])
		s.Equal(host.OwnershipOwner, page.Ownership[testutils.GMUserID])
		s.Equal(host.OwnershipNone, page.Ownership[host.OwnershipDefaultKey])
		s.Equal(spellbook.UserDataSchemaVersion, page.Flags.SchemaVersion)
	}
}

func (s *StoreSuite) TestEnsureDocumentsAddsNewUserPage() {
	s.host.AddUser(&host.User{ID: "user-late", Name: "Theo", IsGM: false})
	s.Require().NoError(s.service.EnsureDocuments(s.ctx))

	_, pages := s.userJournal()
	s.Len(pages, 3)
}

func (s *StoreSuite) TestSetAndGetScoped() {
	err := s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: "actor-1",
		Data: &spellbook.UserSpellData{Favorited: true, Notes: "reaction"},
	})
	s.Require().NoError(err)

	data, err := s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-1")
	s.Require().NoError(err)
	s.Require().NotNil(data)
	s.True(data.Favorited)
	s.Equal("reaction", data.Notes)

	// A different actor scope sees nothing.
	data, err = s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-2")
	s.Require().NoError(err)
	s.Nil(data)
}

func (s *StoreSuite) TestMissingDataIsNilNotError() {
	data, err := s.service.GetUserDataForSpell(s.ctx, "uuid-never", testutils.PlayerUserID, "actor-1")
	s.Require().NoError(err)
	s.Nil(data)

	// A user with no page at all also reads as missing.
	data, err = s.service.GetUserDataForSpell(s.ctx, "uuid-never", "user-unknown", "actor-1")
	s.Require().NoError(err)
	s.Nil(data)
}

func (s *StoreSuite) TestEmptyActorIDAggregates() {
	s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: "actor-1",
		Data: &spellbook.UserSpellData{
			Favorited:  true,
			UsageStats: &spellbook.UsageStats{Count: 2, LastUsed: 100, ContextUsage: spellbook.ContextUsage{Combat: 2}},
		},
	}))
	s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: "actor-2",
		Data: &spellbook.UserSpellData{
			Notes:      "backup caster",
			UsageStats: &spellbook.UsageStats{Count: 1, LastUsed: 300, ContextUsage: spellbook.ContextUsage{Exploration: 1}},
		},
	}))

	data, err := s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "")
	s.Require().NoError(err)
	s.Require().NotNil(data)
	s.True(data.Favorited)
	s.Equal("backup caster", data.Notes)
	s.Equal(3, data.UsageStats.Count)
	s.Equal(2, data.UsageStats.ContextUsage.Combat)
	s.Equal(1, data.UsageStats.ContextUsage.Exploration)
	s.Equal(int64(300), data.UsageStats.LastUsed)
}

func (s *StoreSuite) TestClearUserDataScopes() {
	for _, actorID := range []string{"actor-1", "actor-2"} {
		s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
			UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: actorID,
			Data: &spellbook.UserSpellData{Favorited: true},
		}))
	}

	s.Require().NoError(s.service.ClearUserData(s.ctx, testutils.PlayerUserID, "actor-1"))

	data, err := s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-1")
	s.Require().NoError(err)
	s.Nil(data)
	data, err = s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-2")
	s.Require().NoError(err)
	s.NotNil(data)

	s.Require().NoError(s.service.ClearUserData(s.ctx, testutils.PlayerUserID, ""))
	data, err = s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-2")
	s.Require().NoError(err)
	s.Nil(data)
}

func (s *StoreSuite) TestClearUserDataRefusedForGM() {
	err := s.service.ClearUserData(s.ctx, testutils.GMUserID, "")
	s.True(sberr.IsValidation(err))
}

func (s *StoreSuite) TestExportImportRoundTrip() {
	s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: "actor-1",
		Data: &spellbook.UserSpellData{Favorited: true, Notes: "reaction"},
	}))

	blob, err := s.service.ExportUser(s.ctx, testutils.PlayerUserID)
	s.Require().NoError(err)
	s.Equal(spellbook.UserDataSchemaVersion, blob.Version)
	s.Equal(int64(1_700_000_000_000), blob.ExportedAt)

	s.Require().NoError(s.service.ClearUserData(s.ctx, testutils.PlayerUserID, ""))
	s.Require().NoError(s.service.ImportUser(s.ctx, testutils.PlayerUserID, blob))

	data, err := s.service.GetUserDataForSpell(s.ctx, "uuid-shield", testutils.PlayerUserID, "actor-1")
	s.Require().NoError(err)
	s.Require().NotNil(data)
	s.Equal("reaction", data.Notes)
}

func (s *StoreSuite) TestImportRejectsMismatches() {
	blob, err := s.service.ExportUser(s.ctx, testutils.PlayerUserID)
	s.Require().NoError(err)

	wrongVersion := *blob
	wrongVersion.Version = 1
	s.True(sberr.IsValidation(s.service.ImportUser(s.ctx, testutils.PlayerUserID, &wrongVersion)))

	s.True(sberr.IsValidation(s.service.ImportUser(s.ctx, "user-other", blob)))
}

func (s *StoreSuite) TestManualEditsSurviveWrites() {
	// A player hand-edits a note directly in the journal page.
	s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-shield", UserID: testutils.PlayerUserID, ActorID: "actor-1",
		Data: &spellbook.UserSpellData{Notes: "original"},
	}))

	journal, pages := s.userJournal()
	for _, page := range pages {
		if !page.Flags.UserData {
			continue
		}
		page.Content = "<p class=\"player-banner\">hands off</p>" + page.Content
		s.Require().NoError(s.host.UpdatePage(s.ctx, journal.ID, page))
	}
	s.service.InvalidateUser(testutils.PlayerUserID)

	// The next engine write keeps the banner.
	s.Require().NoError(s.service.SetUserDataForSpell(s.ctx, &store.SetUserDataInput{
		UUID: "uuid-fireball", UserID: testutils.PlayerUserID, ActorID: "actor-1",
		Data: &spellbook.UserSpellData{Favorited: true},
	}))

	_, pages = s.userJournal()
	for _, page := range pages {
		if !page.Flags.UserData {
			continue
		}
		s.Contains(page.Content, "hands off")
		s.Contains(page.Content, "uuid-fireball")
	}
}
