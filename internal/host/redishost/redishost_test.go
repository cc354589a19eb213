package redishost_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/redishost"
	"github.com/Sayshal/spell-book/internal/testutils"
)

type RedisHostSuite struct {
	suite.Suite
	ctx   context.Context
	redis *miniredis.Miniredis
	host  *redishost.Host
}

func (s *RedisHostSuite) SetupTest() {
	s.ctx = context.Background()

	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.redis = mr

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.host = redishost.New(&redishost.Config{Client: client})
}

func (s *RedisHostSuite) TearDownTest() {
	s.redis.Close()
}

func TestRedisHostSuite(t *testing.T) {
	suite.Run(t, new(RedisHostSuite))
}

func (s *RedisHostSuite) TestActorRoundTrip() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))

	actor, err := s.host.GetActor(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Equal("Elandra", actor.Name)
	s.Equal(8, actor.SpellcastingClasses["wizard"].ScaleValues["max-prepared"])

	_, err = s.host.GetActor(s.ctx, "actor-ghost")
	s.True(sberr.IsNotFound(err))
}

func (s *RedisHostSuite) TestListActorsFiltersNPCs() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))
	s.Require().NoError(s.host.PutActor(s.ctx, &host.Actor{ID: "npc-1", Name: "Bandit", Type: host.ActorTypeNPC}))

	actors, err := s.host.ListActors(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(actors, 1)
	s.Equal("actor-1", actors[0].ID)
}

func (s *RedisHostSuite) TestFlagsSurviveJSONRoundTrip() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))

	byClass := map[string][]string{"wizard": {"uuid-a", "uuid-b"}}
	s.Require().NoError(s.host.SetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpellsByClass, byClass))

	var loaded map[string][]string
	set, err := s.host.GetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpellsByClass, &loaded)
	s.Require().NoError(err)
	s.True(set)
	s.Equal(byClass, loaded)

	set, err = s.host.GetActorFlag(s.ctx, "actor-1", "never-written", &loaded)
	s.Require().NoError(err)
	s.False(set)

	s.Require().NoError(s.host.UnsetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpellsByClass))
	set, err = s.host.GetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpellsByClass, &loaded)
	s.Require().NoError(err)
	s.False(set)
}

func (s *RedisHostSuite) TestItemLifecycle() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))

	s.Require().NoError(s.host.CreateActorSpellItems(s.ctx, "actor-1", []*host.SpellItem{
		{SourceUUID: "uuid-shield", Name: "Shield", Level: 1, SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell},
	}))

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.NotEmpty(items[0].ID)
	s.Equal("Actor.actor-1.Item."+items[0].ID, items[0].UUID)

	s.Require().NoError(s.host.DeleteActorItems(s.ctx, "actor-1", []string{items[0].ID, "missing-id"}))
	items, err = s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *RedisHostSuite) TestBatchIsOneConsistentWrite() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))
	s.Require().NoError(s.host.CreateActorSpellItems(s.ctx, "actor-1", []*host.SpellItem{
		{ID: "item-old", SourceUUID: "uuid-old", Name: "Sleep", Level: 1, SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell},
	}))

	err := s.host.ApplyActorBatch(s.ctx, "actor-1", &host.ActorBatch{
		Flags: map[string]any{
			spellbook.FlagPreparedSpells: []string{"uuid-new"},
		},
		DeleteItemIDs: []string{"item-old"},
		CreateItems: []*host.SpellItem{
			{SourceUUID: "uuid-new", Name: "Haste", Level: 3, SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell},
		},
	})
	s.Require().NoError(err)

	var flat []string
	set, err := s.host.GetActorFlag(s.ctx, "actor-1", spellbook.FlagPreparedSpells, &flat)
	s.Require().NoError(err)
	s.True(set)
	s.Equal([]string{"uuid-new"}, flat)

	items, err := s.host.GetActorSpellItems(s.ctx, "actor-1")
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal("Haste", items[0].Name)
}

func (s *RedisHostSuite) TestJournalPagesAndFolders() {
	folderID, err := s.host.CreateFolder(s.ctx, &host.Folder{
		Name: "Spell Lists", Flags: host.FolderFlags{SpellListFolder: true},
	})
	s.Require().NoError(err)

	journalID, err := s.host.CreateJournal(s.ctx, &host.JournalEntry{
		Name: "Class Spell Lists", Flags: host.EntryFlags{SpellListJournal: true},
	})
	s.Require().NoError(err)

	pageID, err := s.host.CreatePage(s.ctx, journalID, &host.JournalPage{
		Name:    "Wizard",
		Content: `["uuid-a"]`,
		Flags:   host.PageFlags{SpellList: true, Identifier: "wizard", ListType: host.ListTypeStandard},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.host.MoveJournalToFolder(s.ctx, journalID, folderID))
	journal, err := s.host.GetJournal(s.ctx, journalID)
	s.Require().NoError(err)
	s.Equal(folderID, journal.FolderID)

	page, err := s.host.GetPage(s.ctx, journalID, pageID)
	s.Require().NoError(err)
	page.Content = `["uuid-a","uuid-b"]`
	s.Require().NoError(s.host.UpdatePage(s.ctx, journalID, page))

	pages, err := s.host.ListPages(s.ctx, journalID)
	s.Require().NoError(err)
	s.Require().Len(pages, 1)
	s.Equal(`["uuid-a","uuid-b"]`, pages[0].Content)

	s.Require().NoError(s.host.DeletePage(s.ctx, journalID, pageID))
	s.Require().NoError(s.host.DeletePage(s.ctx, journalID, pageID)) // no-op
	pages, err = s.host.ListPages(s.ctx, journalID)
	s.Require().NoError(err)
	s.Empty(pages)
}

func (s *RedisHostSuite) TestSettings() {
	_, ok := s.host.GetSetting(s.ctx, spellbook.SettingSpellcastingRuleSet)
	s.False(ok)

	s.Require().NoError(s.host.SetSetting(s.ctx, spellbook.SettingSpellcastingRuleSet, "modern"))
	v, ok := s.host.GetSetting(s.ctx, spellbook.SettingSpellcastingRuleSet)
	s.True(ok)
	s.Equal("modern", v)
}

func (s *RedisHostSuite) TestResolveUUIDFillsSyncCache() {
	spell := testutils.NewSpell("uuid-fireball", "Fireball", 3)
	s.Require().NoError(s.host.AddLibrarySpells(s.ctx, []*host.Spell{spell}))

	// AddLibrarySpells warms the cache directly.
	cached, ok := s.host.ResolveUUIDSync("uuid-fireball")
	s.Require().True(ok)
	s.Equal("Fireball", cached.Name)

	// A cold host resolves through Redis, then serves sync.
	client := redis.NewClient(&redis.Options{Addr: s.redis.Addr()})
	cold := redishost.New(&redishost.Config{Client: client})

	_, ok = cold.ResolveUUIDSync("uuid-fireball")
	s.False(ok)

	resolved, err := cold.ResolveUUID(s.ctx, "uuid-fireball")
	s.Require().NoError(err)
	s.Equal("Fireball", resolved.Name)

	_, ok = cold.ResolveUUIDSync("uuid-fireball")
	s.True(ok)
}

func (s *RedisHostSuite) TestResolveEmbeddedUUID() {
	s.Require().NoError(s.host.PutActor(s.ctx, testutils.NewWizard("actor-1", 5)))
	s.Require().NoError(s.host.CreateActorSpellItems(s.ctx, "actor-1", []*host.SpellItem{
		{ID: "item-1", SourceUUID: "uuid-shield", Name: "Shield", Level: 1, SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell},
	}))

	resolved, err := s.host.ResolveUUID(s.ctx, "Actor.actor-1.Item.item-1")
	s.Require().NoError(err)
	s.Equal("uuid-shield", resolved.SourceUUID)

	_, err = s.host.ResolveUUID(s.ctx, "Actor.actor-1.Item.ghost")
	s.True(sberr.IsNotFound(err))
}

func (s *RedisHostSuite) TestActiveCombat() {
	s.Nil(s.host.ActiveCombat(s.ctx))

	s.Require().NoError(s.host.SetActiveCombat(s.ctx, &host.Combat{
		ID: "combat-1", CombatantActorIDs: []string{"actor-1"},
	}))
	combat := s.host.ActiveCombat(s.ctx)
	s.Require().NotNil(combat)
	s.True(combat.HasCombatant("actor-1"))
	s.False(combat.HasCombatant("actor-2"))

	s.Require().NoError(s.host.SetActiveCombat(s.ctx, nil))
	s.Nil(s.host.ActiveCombat(s.ctx))
}

func (s *RedisHostSuite) TestEventBusUnsubscribe() {
	var got []string
	unsubscribe := s.host.OnEvent(host.EventLongRestCompleted, func(payload any) {
		got = append(got, payload.(string))
	})

	s.host.EmitEvent(host.EventLongRestCompleted, "actor-1")
	unsubscribe()
	s.host.EmitEvent(host.EventLongRestCompleted, "actor-2")

	s.Equal([]string{"actor-1"}, got)
}

// Error-path coverage uses a scripted client: the store must surface broken
// connections as unavailable, not as missing data.
func TestReadFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	h := redishost.New(&redishost.Config{Client: client})

	mock.ExpectGet("spellbook:actor:actor-1").SetErr(redis.ErrClosed)

	_, err := h.GetActor(ctx, "actor-1")
	if !sberr.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSettingReadFailureDegradesToUnset(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	h := redishost.New(&redishost.Config{Client: client})

	mock.ExpectHGet("spellbook:settings", spellbook.SettingSpellcastingRuleSet).SetErr(redis.ErrClosed)

	_, ok := h.GetSetting(ctx, spellbook.SettingSpellcastingRuleSet)
	if ok {
		t.Fatal("expected setting to read as unset on failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
