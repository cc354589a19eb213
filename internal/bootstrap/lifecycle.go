package bootstrap

import (
	"context"
	"log"
	"sync"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

// Lifecycle runs the engine's session start and teardown.
type Lifecycle struct {
	provider *Provider
	host     host.Host

	mu           sync.Mutex
	started      bool
	unsubscribes []func()
}

// NewLifecycle creates a lifecycle for a wired provider.
func NewLifecycle(provider *Provider, h host.Host) *Lifecycle {
	if provider == nil || h == nil {
		panic("lifecycle provider and host are required")
	}
	return &Lifecycle{provider: provider, host: h}
}

// Start runs the session bootstrap sequence: migrations, document setup,
// then hook registration. Idempotent.
func (l *Lifecycle) Start(ctx context.Context, currentUserID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}

	user, err := l.host.GetUser(ctx, currentUserID)
	if err != nil {
		return err
	}

	if user.IsGM {
		if merr := l.provider.Migrations.RunPending(ctx, currentUserID); merr != nil {
			// Migration failures are reported, never session-fatal.
			log.Printf("Bootstrap: migrations failed: %v", merr)
		}
		if serr := l.provider.Store.EnsureDocuments(ctx); serr != nil {
			return sberr.Wrap(serr, "failed to ensure user data documents")
		}
	}

	l.provider.Usage.Init(ctx)

	l.unsubscribes = append(l.unsubscribes,
		l.host.OnEvent(host.EventActorUpdated, func(payload any) {
			l.onActorUpdated(ctx, payload)
		}),
		l.host.OnEvent(host.EventLongRestCompleted, func(payload any) {
			l.onLongRest(ctx, payload)
		}),
		l.host.OnEvent(host.EventChatMessageRendered, func(payload any) {
			l.onChatRendered(payload)
		}),
	)

	l.started = true
	log.Printf("Bootstrap: session started for user %s (gm=%t)", currentUserID, user.IsGM)
	return nil
}

// Stop unregisters every hook. Caches are process-local and die with us.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return
	}

	for _, unsubscribe := range l.unsubscribes {
		unsubscribe()
	}
	l.unsubscribes = nil
	l.provider.Usage.Shutdown()
	l.started = false
	log.Printf("Bootstrap: session stopped")
}

// SuppressMigrationWarnings is the action behind the migration-report chat
// button.
func (l *Lifecycle) SuppressMigrationWarnings(ctx context.Context) error {
	return l.host.SetSetting(ctx, spellbook.SettingSuppressMigrationWarning, "true")
}

// onActorUpdated reacts to class-set changes: new classes get default rule
// records, and every per-actor cache is dropped.
func (l *Lifecycle) onActorUpdated(ctx context.Context, payload any) {
	actorID := actorIDFromPayload(payload)
	if actorID == "" {
		return
	}

	l.provider.Rules.InvalidateActor(actorID)
	l.provider.Cantrips.InvalidateActor(actorID)
	l.provider.Loadouts.InvalidateActor(actorID)

	if err := l.provider.Rules.InitializeNewClasses(ctx, actorID); err != nil && !sberr.IsNotFound(err) {
		log.Printf("Bootstrap: failed to initialize classes for %s: %v", actorID, err)
	}
}

// onLongRest closes the long-rest cantrip swap window for the actor.
func (l *Lifecycle) onLongRest(ctx context.Context, payload any) {
	actorID := actorIDFromPayload(payload)
	if actorID == "" {
		return
	}
	if err := l.provider.Cantrips.CompleteSwap(ctx, actorID, false); err != nil {
		log.Printf("Bootstrap: failed to complete long-rest swap for %s: %v", actorID, err)
	}
}

// onChatRendered watches for migration reports so the suppress action can be
// attached by the rendering layer.
func (l *Lifecycle) onChatRendered(payload any) {
	msg, ok := payload.(*host.ChatMessage)
	if !ok || msg.Flags.MessageType != spellbook.MessageTypeMigrationReport {
		return
	}
	log.Printf("Bootstrap: migration report rendered")
}

func actorIDFromPayload(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case *host.Actor:
		if v != nil {
			return v.ID
		}
	}
	return ""
}
