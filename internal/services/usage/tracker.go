// Package usage listens for cast-consumption events and accumulates per-user
// usage statistics in the persistence store.
package usage

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Sayshal/spell-book/internal/clock"
	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/store"
)

// dedupWindow absorbs redundant host events for the same cast.
const dedupWindow = time.Second

// spellItemType is the only activity item type the tracker records.
const spellItemType = "spell"

// Tracker is the process-wide usage tracker. Exactly one should exist; Init
// is idempotent so repeated bootstraps are safe.
type Tracker struct {
	host  host.Host
	store store.Service
	clock clock.Clock

	mu          sync.Mutex
	initialized bool
	unsubscribe func()
	lastSeen    map[string]time.Time // uuid -> last recorded event time
}

// TrackerConfig holds configuration for the tracker.
type TrackerConfig struct {
	Host  host.Host     // Required
	Store store.Service // Required
	Clock clock.Clock   // Optional, defaults to real time
}

// NewTracker creates the usage tracker. It does nothing until Init.
func NewTracker(cfg *TrackerConfig) *Tracker {
	if cfg == nil || cfg.Host == nil {
		panic("usage tracker host is required")
	}
	if cfg.Store == nil {
		panic("usage tracker store is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Tracker{
		host:     cfg.Host,
		store:    cfg.Store,
		clock:    clk,
		lastSeen: make(map[string]time.Time),
	}
}

// Init subscribes to the host's cast-consumption event. Idempotent.
func (t *Tracker) Init(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return
	}

	t.unsubscribe = t.host.OnEvent(host.EventActivityConsumption, func(payload any) {
		activity, ok := payload.(*host.CastActivity)
		if !ok {
			return
		}
		if err := t.Record(ctx, activity); err != nil {
			log.Printf("UsageTracker: failed to record cast: %v", err)
		}
	})
	t.initialized = true
	log.Printf("UsageTracker: initialized")
}

// Shutdown unregisters the event hook.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return
	}
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.initialized = false
	log.Printf("UsageTracker: shut down")
}

// Record processes one cast activity.
func (t *Tracker) Record(ctx context.Context, activity *host.CastActivity) error {
	if activity == nil || activity.ItemType != spellItemType {
		return nil
	}

	// The settings short-circuit comes before any state reads.
	settings := config.LoadSettings(ctx, t.host)
	if !settings.EnableUsageTracking {
		return nil
	}

	actor, err := t.host.GetActor(ctx, activity.ActorID)
	if err != nil {
		return err
	}
	if actor.Type != host.ActorTypeCharacter {
		return nil
	}

	canonical, err := identity.CanonicalizeCtx(ctx, t.host, activity.ItemUUID)
	if err != nil {
		return err
	}

	if t.isDuplicate(canonical, activity.OccurredAt) {
		return nil
	}

	userID := t.resolveUser(ctx, actor, activity.ActingUserID)
	if userID == "" {
		log.Printf("UsageTracker: no user for actor %s, dropping cast of %s", actor.ID, canonical)
		return nil
	}

	data, err := t.store.GetUserDataForSpell(ctx, canonical, userID, actor.ID)
	if err != nil {
		return err
	}
	if data == nil {
		data = &spellbook.UserSpellData{}
	}
	if data.UsageStats == nil {
		data.UsageStats = &spellbook.UsageStats{}
	}

	data.UsageStats.Count++
	data.UsageStats.LastUsed = t.clock.Now().UnixMilli()
	if t.inCombat(ctx, actor.ID) {
		data.UsageStats.ContextUsage.Combat++
	} else {
		data.UsageStats.ContextUsage.Exploration++
	}

	return t.store.SetUserDataForSpell(ctx, &store.SetUserDataInput{
		UUID:    canonical,
		UserID:  userID,
		ActorID: actor.ID,
		Data:    data,
	})
}

// isDuplicate reports whether an equivalent cast was seen inside the window.
// The window slides from the last recorded event, so redundant fires collapse
// no matter where they fall relative to a clock second.
func (t *Tracker) isDuplicate(uuid string, occurredAt time.Time) bool {
	if occurredAt.IsZero() {
		occurredAt = t.clock.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastSeen[uuid]; ok {
		delta := occurredAt.Sub(last)
		if delta < 0 {
			delta = -delta
		}
		if delta < dedupWindow {
			return true
		}
	}
	t.lastSeen[uuid] = occurredAt

	// Keep the dedup map from growing with the session.
	if len(t.lastSeen) > 256 {
		cutoff := t.clock.Now().Add(-time.Minute)
		for key, seen := range t.lastSeen {
			if seen.Before(cutoff) {
				delete(t.lastSeen, key)
			}
		}
	}
	return false
}

// resolveUser picks the actor's primary owner, falling back to whoever cast.
func (t *Tracker) resolveUser(ctx context.Context, actor *host.Actor, actingUserID string) string {
	for _, ownerID := range actor.OwnerUserIDs {
		user, err := t.host.GetUser(ctx, ownerID)
		if err != nil {
			continue
		}
		if !user.IsGM {
			return user.ID
		}
	}
	return actingUserID
}

func (t *Tracker) inCombat(ctx context.Context, actorID string) bool {
	combat := t.host.ActiveCombat(ctx)
	return combat.HasCombatant(actorID)
}
