// Package preparation is the engine behind the prepare/unprepare checkboxes:
// it validates changes against class ceilings and swap windows, and commits a
// confirmed change-set as one consistent actor update.
package preparation

import (
	"context"
	"fmt"
	"log"

	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/prepstate"
	"github.com/Sayshal/spell-book/internal/reporting"
	"github.com/Sayshal/spell-book/internal/services/cantrips"
	"github.com/Sayshal/spell-book/internal/services/favorites"
	"github.com/Sayshal/spell-book/internal/services/rules"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockpreparation -source=service.go

// maxPreparedScaleKey is the scale value consulted for the prepared-spell
// ceiling; classes without it fall back to character level.
const maxPreparedScaleKey = "max-prepared"

// ChangeInput carries one proposed leveled-spell checkbox flip.
type ChangeInput struct {
	ActorID      string
	ClassID      string
	SpellUUID    string
	SpellLevel   int
	Checked      bool
	IsLevelUp    bool
	IsLongRest   bool
	CurrentCount int // prepared leveled spells for the class before this change
}

// CommitInput is a confirmed preparation change-set for one class.
type CommitInput struct {
	ActorID   string
	UserID    string
	ClassID   string
	SpellUUID []string // the complete new prepared set, any uuid form
}

// CommitOutput reports what a commit changed.
type CommitOutput struct {
	Added   []string // canonical uuids
	Removed []string // canonical uuids
}

// Service is the preparation engine.
type Service interface {
	// MaxPrepared returns the leveled-spell ceiling for one class
	MaxPrepared(ctx context.Context, actorID, classID string) (int, error)

	// CanChange checks whether a leveled-spell checkbox flip is permitted.
	// Cantrips delegate to the cantrip manager.
	CanChange(ctx context.Context, input *ChangeInput) (spellbook.ChangeResult, error)

	// Commit applies a confirmed change-set: rewrites the preparation flags,
	// diffs embedded items, reports to GMs, and flushes favorites. The host
	// observes a single consistent actor state.
	Commit(ctx context.Context, input *CommitInput) (*CommitOutput, error)
}

// service implements Service.
type service struct {
	host      host.Host
	rules     rules.Service
	cantrips  cantrips.Service
	favorites favorites.Service
	reporter  reporting.Reporter
}

// ServiceConfig holds configuration for the preparation service.
type ServiceConfig struct {
	Host      host.Host          // Required
	Rules     rules.Service      // Required
	Cantrips  cantrips.Service   // Required
	Favorites favorites.Service  // Optional; commits skip the favorites flush when nil
	Reporter  reporting.Reporter // Optional; commits skip the GM digest when nil
}

// NewService creates the preparation service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("preparation host is required")
	}
	if cfg.Rules == nil {
		panic("preparation rules service is required")
	}
	if cfg.Cantrips == nil {
		panic("preparation cantrips service is required")
	}

	return &service{
		host:      cfg.Host,
		rules:     cfg.Rules,
		cantrips:  cfg.Cantrips,
		favorites: cfg.Favorites,
		reporter:  cfg.Reporter,
	}
}

// MaxPrepared returns the leveled-spell ceiling for one class.
func (s *service) MaxPrepared(ctx context.Context, actorID, classID string) (int, error) {
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return 0, err
	}
	info, ok := actor.SpellcastingClasses[classID]
	if !ok {
		return 0, sberr.NotFoundf("actor '%s' has no spellcasting class '%s'", actorID, classID)
	}

	classRules, err := s.rules.GetClassRules(ctx, actorID, classID)
	if err != nil {
		return 0, err
	}

	base, found := info.ScaleValues[maxPreparedScaleKey]
	if !found {
		base = actor.Level
	}

	max := base + classRules.SpellPreparationBonus
	if max < 0 {
		max = 0
	}
	return max, nil
}

// CanChange checks whether a leveled-spell checkbox flip is permitted.
func (s *service) CanChange(ctx context.Context, input *ChangeInput) (spellbook.ChangeResult, error) {
	if input == nil {
		return spellbook.ChangeResult{}, sberr.Validationf("change input is required")
	}
	if input.SpellLevel == 0 {
		return s.cantrips.CanChange(ctx, &cantrips.ChangeInput{
			ActorID:      input.ActorID,
			ClassID:      input.ClassID,
			SpellUUID:    input.SpellUUID,
			SpellLevel:   input.SpellLevel,
			Checked:      input.Checked,
			IsLevelUp:    input.IsLevelUp,
			IsLongRest:   input.IsLongRest,
			CurrentCount: input.CurrentCount,
		})
	}

	classRules, err := s.rules.GetClassRules(ctx, input.ActorID, input.ClassID)
	if err != nil {
		if sberr.IsNotFound(err) {
			return spellbook.Denied(spellbook.ReasonClassNotFound), nil
		}
		return spellbook.ChangeResult{}, err
	}

	max, err := s.MaxPrepared(ctx, input.ActorID, input.ClassID)
	if err != nil {
		if sberr.IsNotFound(err) {
			return spellbook.Denied(spellbook.ReasonClassNotFound), nil
		}
		return spellbook.ChangeResult{}, err
	}

	settings := config.LoadSettings(ctx, s.host)
	switch settings.OverLimitEnforcement {
	case spellbook.EnforcementUnenforced:
		return spellbook.Allowed, nil
	case spellbook.EnforcementNotifyGM:
		if input.Checked && input.CurrentCount >= max {
			s.host.Notify(ctx, host.NotifyWarn, fmt.Sprintf("Spell limit exceeded for %s (%d/%d)", input.ClassID, input.CurrentCount+1, max))
		}
		return spellbook.Allowed, nil
	}

	if input.Checked {
		if input.CurrentCount >= max {
			return spellbook.Denied(spellbook.ReasonMaxSpellsReached), nil
		}
		return spellbook.Allowed, nil
	}

	// Leveled spells re-select freely inside their window; there is no
	// one-in-one-out protocol here.
	if !swapWindowOpen(classRules.SpellSwapping, input.IsLevelUp, input.IsLongRest) {
		return spellbook.Denied(spellbook.ReasonOutsideSwapWindow), nil
	}
	return spellbook.Allowed, nil
}

// Commit applies a confirmed change-set.
func (s *service) Commit(ctx context.Context, input *CommitInput) (*CommitOutput, error) {
	if input == nil {
		return nil, sberr.Validationf("commit input is required")
	}
	if input.ActorID == "" || input.ClassID == "" {
		return nil, sberr.Validationf("actor and class are required")
	}

	state, err := prepstate.Load(ctx, s.host, input.ActorID)
	if err != nil {
		return nil, err
	}

	oldSet := make(map[string]bool)
	for _, uuid := range state.ClassUUIDs(input.ClassID) {
		oldSet[uuid] = true
	}

	newSet := make([]string, 0, len(input.SpellUUID))
	newMap := make(map[string]bool, len(input.SpellUUID))
	for _, raw := range input.SpellUUID {
		canonical, cerr := identity.CanonicalizeCtx(ctx, s.host, raw)
		if cerr != nil {
			return nil, cerr
		}
		if !newMap[canonical] {
			newMap[canonical] = true
			newSet = append(newSet, canonical)
		}
	}

	out := &CommitOutput{}
	for _, uuid := range newSet {
		if !oldSet[uuid] {
			out.Added = append(out.Added, uuid)
		}
	}
	for uuid := range oldSet {
		if !newMap[uuid] {
			out.Removed = append(out.Removed, uuid)
		}
	}

	state.SetClass(input.ClassID, newSet)

	// The projection invariant is load-bearing; a violation here is an
	// engine bug and aborts the commit before anything is written.
	if verr := state.Verify(state.Flat()); verr != nil {
		log.Printf("Preparation: FATAL invariant violation for %s: %v", input.ActorID, verr)
		return nil, verr
	}

	deleteIDs, err := s.itemsToDelete(ctx, input.ActorID, input.ClassID, out.Removed)
	if err != nil {
		return nil, err
	}
	createItems, err := s.itemsToCreate(ctx, input.ActorID, input.ClassID, out.Added)
	if err != nil {
		return nil, err
	}

	if err := s.applyChanges(ctx, input.ActorID, state, deleteIDs, createItems); err != nil {
		return nil, err
	}

	if s.reporter != nil {
		if rerr := s.report(ctx, input, state, out); rerr != nil {
			log.Printf("Preparation: failed to send change report for %s: %v", input.ActorID, rerr)
		}
	}

	if s.favorites != nil && input.UserID != "" {
		if ferr := s.favorites.ProcessFavoritesFromForm(ctx, input.ActorID, input.UserID); ferr != nil {
			log.Printf("Preparation: favorites flush failed for %s: %v", input.ActorID, ferr)
		}
	}

	log.Printf("Preparation: committed %s/%s (+%d, -%d)", input.ActorID, input.ClassID, len(out.Added), len(out.Removed))
	return out, nil
}

// applyChanges writes flags and item diffs. Hosts that batch get one
// observable update; everyone else sees flags, then deletes, then creates.
func (s *service) applyChanges(ctx context.Context, actorID string, state *prepstate.State, deleteIDs []string, createItems []*host.SpellItem) error {
	if batcher, ok := s.host.(host.BatchUpdater); ok {
		return batcher.ApplyActorBatch(ctx, actorID, &host.ActorBatch{
			Flags:         state.FlagValues(),
			DeleteItemIDs: deleteIDs,
			CreateItems:   createItems,
		})
	}

	if err := prepstate.Save(ctx, s.host, actorID, state); err != nil {
		return err
	}
	if len(deleteIDs) > 0 {
		if err := s.host.DeleteActorItems(ctx, actorID, deleteIDs); err != nil {
			return err
		}
	}
	if len(createItems) > 0 {
		if err := s.host.CreateActorSpellItems(ctx, actorID, createItems); err != nil {
			return err
		}
	}
	return nil
}

// itemsToDelete finds the removable embedded items backing removed uuids.
func (s *service) itemsToDelete(ctx context.Context, actorID, classID string, removed []string) ([]string, error) {
	if len(removed) == 0 {
		return nil, nil
	}

	items, err := s.host.GetActorSpellItems(ctx, actorID)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool, len(removed))
	for _, uuid := range removed {
		drop[uuid] = true
	}

	var ids []string
	for _, item := range items {
		if !item.Removable() {
			continue
		}
		if item.SourceClass != classID {
			continue
		}
		if drop[identity.CanonicalizeItem(item)] {
			ids = append(ids, item.ID)
		}
	}
	return ids, nil
}

// itemsToCreate clones source spells for added uuids the actor lacks.
func (s *service) itemsToCreate(ctx context.Context, actorID, classID string, added []string) ([]*host.SpellItem, error) {
	if len(added) == 0 {
		return nil, nil
	}

	items, err := s.host.GetActorSpellItems(ctx, actorID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(items))
	for _, item := range items {
		have[identity.CanonicalizeItem(item)] = true
	}

	var out []*host.SpellItem
	for _, uuid := range added {
		if have[uuid] {
			continue
		}
		spell, rerr := s.host.ResolveUUID(ctx, uuid)
		if rerr != nil {
			return nil, sberr.Wrapf(rerr, "failed to resolve added spell '%s'", uuid)
		}
		out = append(out, &host.SpellItem{
			SourceUUID:  identity.CanonicalizeSpell(spell),
			Name:        spell.Name,
			Level:       spell.Level,
			School:      spell.School,
			Properties:  spell.Properties,
			SourceClass: classID,
			Prepared:    host.PreparedYes,
			Method:      host.MethodSpell,
		})
	}
	return out, nil
}

func (s *service) report(ctx context.Context, input *CommitInput, state *prepstate.State, out *CommitOutput) error {
	actor, err := s.host.GetActor(ctx, input.ActorID)
	if err != nil {
		return err
	}

	cantripCount, spellCount := s.countByKind(state.ClassUUIDs(input.ClassID))

	maxCantrips, err := s.cantrips.MaxCantrips(ctx, input.ActorID, input.ClassID)
	if err != nil {
		return err
	}
	maxSpells, err := s.MaxPrepared(ctx, input.ActorID, input.ClassID)
	if err != nil {
		return err
	}

	change := &reporting.ClassChange{
		Added:           s.spellNames(out.Added),
		Removed:         s.spellNames(out.Removed),
		CurrentCantrips: cantripCount,
		MaxCantrips:     maxCantrips,
		CurrentSpells:   spellCount,
		MaxSpells:       maxSpells,
	}
	return s.reporter.SendPreparationReport(ctx, &reporting.ChangeSummary{
		ActorName:    actor.Name,
		ClassChanges: map[string]*reporting.ClassChange{input.ClassID: change},
	})
}

func (s *service) countByKind(uuids []string) (cantripCount, spellCount int) {
	for _, uuid := range uuids {
		if spell, ok := s.host.ResolveUUIDSync(uuid); ok && spell.Level == 0 {
			cantripCount++
			continue
		}
		spellCount++
	}
	return cantripCount, spellCount
}

func (s *service) spellNames(uuids []string) []string {
	names := make([]string, 0, len(uuids))
	for _, uuid := range uuids {
		if spell, ok := s.host.ResolveUUIDSync(uuid); ok {
			names = append(names, spell.Name)
			continue
		}
		names = append(names, uuid)
	}
	return names
}

func swapWindowOpen(timing spellbook.SwapTiming, isLevelUp, isLongRest bool) bool {
	switch timing {
	case spellbook.SwapLevelUp:
		return isLevelUp
	case spellbook.SwapLongRest:
		return isLongRest
	}
	return false
}
