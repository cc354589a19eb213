// Package loadout manages named snapshots of prepared-spell sets and applies
// them back through the sheet's checkbox facade.
package loadout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sayshal/spell-book/internal/clock"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/uuid"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockloadout -source=service.go

// listCacheTTL bounds staleness of the loadout list between sheet renders.
const listCacheTTL = 30 * time.Second

// ExportVersion stamps exported loadout files.
const ExportVersion = 1

// UIEntry is one spell checkbox as the sheet presents it.
type UIEntry struct {
	UUID     string
	Checked  bool
	Disabled bool // always-prepared, granted, innate, at-will
}

// PreparationUI is the open-sheet facade the loadout manager drives. Apply
// never touches disabled entries.
type PreparationUI interface {
	// Entries lists the checkboxes rendered for a class
	Entries(classID string) []UIEntry

	// SetChecked flips one checkbox
	SetChecked(uuid string, checked bool)
}

// ExportBlob is the loadout import/export envelope.
type ExportBlob struct {
	Version    int                 `json:"version"`
	ExportedAt int64               `json:"exportedAt"`
	ActorID    string              `json:"actorId"`
	Loadouts   []spellbook.Loadout `json:"loadouts"`
}

// Service is the loadout manager.
type Service interface {
	// List returns an actor's loadouts, newest first. A classID filters to
	// that class plus class-agnostic entries.
	List(ctx context.Context, actorID, classID string) ([]spellbook.Loadout, error)

	// Save creates a loadout with a fresh opaque id
	Save(ctx context.Context, actorID, name, description, classID string, spellUUIDs []string) (*spellbook.Loadout, error)

	// Apply flips the sheet's checkboxes to match a loadout
	Apply(ctx context.Context, actorID, loadoutID, classID string, ui PreparationUI) error

	// Delete removes a loadout; a missing id is a no-op
	Delete(ctx context.Context, actorID, loadoutID string) error

	// Capture reads the current enabled-and-checked set from the sheet
	Capture(classID string, ui PreparationUI) []string

	// Export captures every loadout as a versioned blob
	Export(ctx context.Context, actorID string) (*ExportBlob, error)

	// Import merges a previously exported blob; ids collide by replacement
	Import(ctx context.Context, actorID string, blob *ExportBlob) error

	// InvalidateActor drops the cached list for an actor
	InvalidateActor(actorID string)
}

type cacheEntry struct {
	loadouts  map[string]spellbook.Loadout
	fetchedAt time.Time
}

// service implements Service.
type service struct {
	host  host.FlagStore
	clock clock.Clock
	ids   uuid.Generator

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// ServiceConfig holds configuration for the loadout service.
type ServiceConfig struct {
	Host  host.FlagStore // Required
	Clock clock.Clock    // Optional, defaults to real time
	IDs   uuid.Generator // Optional, defaults to random uuids
}

// NewService creates the loadout service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("loadout host is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = uuid.NewGoogleUUIDGenerator()
	}

	return &service{
		host:  cfg.Host,
		clock: clk,
		ids:   ids,
		cache: make(map[string]*cacheEntry),
	}
}

// List returns an actor's loadouts, newest first.
func (s *service) List(ctx context.Context, actorID, classID string) ([]spellbook.Loadout, error) {
	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	out := make([]spellbook.Loadout, 0, len(loadouts))
	for _, l := range loadouts {
		if classID != "" && l.ClassIdentifier != "" && l.ClassIdentifier != classID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Save creates a loadout with a fresh opaque id.
func (s *service) Save(ctx context.Context, actorID, name, description, classID string, spellUUIDs []string) (*spellbook.Loadout, error) {
	if name == "" {
		return nil, sberr.Validation("loadout name is required")
	}

	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	loadout := spellbook.Loadout{
		ID:                 s.ids.New(),
		Name:               name,
		Description:        description,
		ClassIdentifier:    classID,
		SpellConfiguration: append([]string(nil), spellUUIDs...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	loadouts[loadout.ID] = loadout

	if err := s.store(ctx, actorID, loadouts); err != nil {
		return nil, err
	}
	return &loadout, nil
}

// Apply flips the sheet's checkboxes to match a loadout.
func (s *service) Apply(ctx context.Context, actorID, loadoutID, classID string, ui PreparationUI) error {
	if ui == nil {
		return sberr.Validation("a sheet facade is required")
	}

	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return err
	}
	loadout, ok := loadouts[loadoutID]
	if !ok {
		return sberr.NotFoundf("loadout '%s' not found", loadoutID)
	}

	want := make(map[string]bool, len(loadout.SpellConfiguration))
	for _, u := range loadout.SpellConfiguration {
		want[identity.StripClassPrefix(u)] = true
	}

	for _, entry := range ui.Entries(classID) {
		if entry.Disabled {
			continue
		}
		target := want[entry.UUID]
		if entry.Checked != target {
			ui.SetChecked(entry.UUID, target)
		}
	}
	return nil
}

// Delete removes a loadout.
func (s *service) Delete(ctx context.Context, actorID, loadoutID string) error {
	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return err
	}
	if _, ok := loadouts[loadoutID]; !ok {
		return nil
	}
	delete(loadouts, loadoutID)
	return s.store(ctx, actorID, loadouts)
}

// Capture reads the current enabled-and-checked set from the sheet.
func (s *service) Capture(classID string, ui PreparationUI) []string {
	if ui == nil {
		return nil
	}

	var out []string
	for _, entry := range ui.Entries(classID) {
		if !entry.Disabled && entry.Checked {
			out = append(out, entry.UUID)
		}
	}
	return out
}

// Export captures every loadout as a versioned blob.
func (s *service) Export(ctx context.Context, actorID string) (*ExportBlob, error) {
	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return nil, err
	}

	all := make([]spellbook.Loadout, 0, len(loadouts))
	for _, l := range loadouts {
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt < all[j].CreatedAt })

	return &ExportBlob{
		Version:    ExportVersion,
		ExportedAt: s.clock.Now().UnixMilli(),
		ActorID:    actorID,
		Loadouts:   all,
	}, nil
}

// Import merges a previously exported blob.
func (s *service) Import(ctx context.Context, actorID string, blob *ExportBlob) error {
	if blob == nil {
		return sberr.Validation("import blob is required")
	}
	if blob.Version != ExportVersion {
		return sberr.Validationf("unsupported loadout export version %d", blob.Version)
	}

	loadouts, err := s.load(ctx, actorID)
	if err != nil {
		return err
	}
	for _, l := range blob.Loadouts {
		if l.ID == "" {
			l.ID = s.ids.New()
		}
		loadouts[l.ID] = l
	}
	return s.store(ctx, actorID, loadouts)
}

// InvalidateActor drops the cached list for an actor.
func (s *service) InvalidateActor(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, actorID)
}

func (s *service) load(ctx context.Context, actorID string) (map[string]spellbook.Loadout, error) {
	s.mu.Lock()
	if entry, ok := s.cache[actorID]; ok && s.clock.Now().Sub(entry.fetchedAt) < listCacheTTL {
		out := cloneLoadouts(entry.loadouts)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	loadouts := make(map[string]spellbook.Loadout)
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagSpellLoadouts, &loadouts); err != nil {
		return nil, sberr.Wrap(err, "failed to read loadouts flag")
	}
	if loadouts == nil {
		loadouts = make(map[string]spellbook.Loadout)
	}

	s.mu.Lock()
	s.cache[actorID] = &cacheEntry{loadouts: cloneLoadouts(loadouts), fetchedAt: s.clock.Now()}
	s.mu.Unlock()
	return loadouts, nil
}

func (s *service) store(ctx context.Context, actorID string, loadouts map[string]spellbook.Loadout) error {
	// Drop the cache first so a racing read never resurrects stale state.
	s.InvalidateActor(actorID)
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagSpellLoadouts, loadouts); err != nil {
		return sberr.Wrap(err, "failed to write loadouts flag")
	}
	return nil
}

func cloneLoadouts(in map[string]spellbook.Loadout) map[string]spellbook.Loadout {
	out := make(map[string]spellbook.Loadout, len(in))
	for id, l := range in {
		l.SpellConfiguration = append([]string(nil), l.SpellConfiguration...)
		out[id] = l
	}
	return out
}
