package memoryhost_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/host/memoryhost"
	"github.com/Sayshal/spell-book/internal/testutils"
)

func TestReadsHandOutCopies(t *testing.T) {
	ctx := context.Background()
	h := memoryhost.New(nil)
	h.AddActor(testutils.NewWizard("actor-1", 5))

	actor, err := h.GetActor(ctx, "actor-1")
	require.NoError(t, err)
	actor.Name = "Imposter"

	again, err := h.GetActor(ctx, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, "Elandra", again.Name)
}

func TestFlagsRoundTripThroughJSON(t *testing.T) {
	ctx := context.Background()
	h := memoryhost.New(nil)
	h.AddActor(testutils.NewWizard("actor-1", 5))

	tracking := spellbook.SwapTracking{
		"wizard": {LevelUp: &spellbook.SwapState{HasUnlearned: true, Unlearned: "uuid-a", OriginalChecked: []string{"uuid-a"}}},
	}
	require.NoError(t, h.SetActorFlag(ctx, "actor-1", spellbook.FlagCantripSwapTracking, tracking))

	var loaded spellbook.SwapTracking
	set, err := h.GetActorFlag(ctx, "actor-1", spellbook.FlagCantripSwapTracking, &loaded)
	require.NoError(t, err)
	require.True(t, set)
	require.NotNil(t, loaded["wizard"].LevelUp)
	assert.Equal(t, "uuid-a", loaded["wizard"].LevelUp.Unlearned)

	// Flag writes to unknown actors fail; unsets never do.
	assert.True(t, sberr.IsNotFound(h.SetActorFlag(ctx, "actor-ghost", "k", 1)))
	assert.NoError(t, h.UnsetActorFlag(ctx, "actor-ghost", "k"))
}

func TestApplyActorBatchIsAtomicView(t *testing.T) {
	ctx := context.Background()
	h := memoryhost.New(nil)
	h.AddActor(testutils.NewWizard("actor-1", 5))
	oldID := h.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-old", Name: "Sleep", Level: 1,
		SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell,
	})

	err := h.ApplyActorBatch(ctx, "actor-1", &host.ActorBatch{
		Flags: map[string]any{
			spellbook.FlagPreparedSpells:        []string{"uuid-new"},
			spellbook.FlagPreparedSpellsByClass: map[string][]string{"wizard": {"uuid-new"}},
		},
		UnsetFlags:    []string{spellbook.FlagCantripSwapTracking},
		DeleteItemIDs: []string{oldID},
		CreateItems: []*host.SpellItem{
			{SourceUUID: "uuid-new", Name: "Haste", Level: 3, SourceClass: "wizard", Prepared: host.PreparedYes, Method: host.MethodSpell},
		},
	})
	require.NoError(t, err)

	var flat []string
	set, err := h.GetActorFlag(ctx, "actor-1", spellbook.FlagPreparedSpells, &flat)
	require.NoError(t, err)
	require.True(t, set)
	assert.Equal(t, []string{"uuid-new"}, flat)

	items, err := h.GetActorSpellItems(ctx, "actor-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Haste", items[0].Name)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, "Actor.actor-1.Item."+items[0].ID, items[0].UUID)
}

func TestResolveEmbeddedItemUUID(t *testing.T) {
	h := memoryhost.New(nil)
	h.AddActor(testutils.NewWizard("actor-1", 5))
	itemID := h.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-shield", Name: "Shield", Level: 1,
	})

	spell, ok := h.ResolveUUIDSync("Actor.actor-1.Item." + itemID)
	require.True(t, ok)
	assert.Equal(t, "uuid-shield", spell.SourceUUID)

	_, ok = h.ResolveUUIDSync("Actor.actor-1.Item.ghost")
	assert.False(t, ok)
}

func TestResolvedSpellsDoNotAliasStore(t *testing.T) {
	h := memoryhost.New(nil)
	h.AddActor(testutils.NewWizard("actor-1", 5))

	library := testutils.NewSpell("uuid-shield", "Shield", 1)
	library.Properties = map[string]bool{"ritual": false}
	h.AddLibrarySpell(library)

	itemID := h.AddSpellItem("actor-1", &host.SpellItem{
		SourceUUID: "uuid-shield", Name: "Shield", Level: 1,
		Properties: map[string]bool{"concentration": true},
	})

	resolved, ok := h.ResolveUUIDSync("uuid-shield")
	require.True(t, ok)
	resolved.Properties["ritual"] = true

	again, _ := h.ResolveUUIDSync("uuid-shield")
	assert.False(t, again.Properties["ritual"])

	embedded, ok := h.ResolveUUIDSync("Actor.actor-1.Item." + itemID)
	require.True(t, ok)
	embedded.Properties["concentration"] = false

	embedded, _ = h.ResolveUUIDSync("Actor.actor-1.Item." + itemID)
	assert.True(t, embedded.Properties["concentration"])
}

func TestEventBusRegistrationOrderAndUnsubscribe(t *testing.T) {
	h := memoryhost.New(nil)

	var order []string
	unsubA := h.OnEvent(host.EventActorUpdated, func(any) { order = append(order, "a") })
	h.OnEvent(host.EventActorUpdated, func(any) { order = append(order, "b") })

	h.EmitEvent(host.EventActorUpdated, nil)
	assert.Equal(t, []string{"a", "b"}, order)

	unsubA()
	h.EmitEvent(host.EventActorUpdated, nil)
	assert.Equal(t, []string{"a", "b", "b"}, order)
}
