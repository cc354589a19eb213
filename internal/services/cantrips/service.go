// Package cantrips enforces cantrip counts and the one-in-one-out swap
// protocol. Every rule check returns a ChangeResult; disallowed changes are
// data, not errors.
package cantrips

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/identity"
	"github.com/Sayshal/spell-book/internal/prepstate"
	"github.com/Sayshal/spell-book/internal/services/rules"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockcantrips -source=service.go

// ChangeInput carries one proposed cantrip checkbox flip.
type ChangeInput struct {
	ActorID      string
	ClassID      string
	SpellUUID    string
	SpellLevel   int // 0 for cantrips; higher levels pass through this layer
	Checked      bool
	IsLevelUp    bool
	IsLongRest   bool
	CurrentCount int // prepared cantrips for the class, including this change's before-state
}

// Service is the cantrip manager.
type Service interface {
	// MaxCantrips returns the cantrip ceiling for one class
	MaxCantrips(ctx context.Context, actorID, classID string) (int, error)

	// TotalMaxCantrips sums the ceiling across every spellcasting class
	TotalMaxCantrips(ctx context.Context, actorID string) (int, error)

	// DetectLevelUp reports whether a level-up swap window is open, comparing
	// the stored baseline against the current level and ceiling
	DetectLevelUp(ctx context.Context, actorID string) (bool, error)

	// CanChange checks whether a cantrip checkbox flip is permitted
	CanChange(ctx context.Context, input *ChangeInput) (spellbook.ChangeResult, error)

	// TrackChange records a permitted flip in the swap tracking flag
	TrackChange(ctx context.Context, input *ChangeInput) error

	// CompleteSwap closes a swap window, clearing its tracking subtree. A
	// level-up completion also stamps the new level and ceiling baseline.
	CompleteSwap(ctx context.Context, actorID string, isLevelUp bool) error

	// InvalidateActor drops cached ceilings for an actor
	InvalidateActor(actorID string)
}

// service implements Service.
type service struct {
	host  host.Host
	rules rules.Service

	mu    sync.RWMutex
	cache map[string]map[string]int // actorID -> classID -> max
}

// ServiceConfig holds configuration for the cantrip service.
type ServiceConfig struct {
	Host  host.Host     // Required
	Rules rules.Service // Required
}

// NewService creates the cantrip service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("cantrips host is required")
	}
	if cfg.Rules == nil {
		panic("cantrips rules service is required")
	}

	return &service{
		host:  cfg.Host,
		rules: cfg.Rules,
		cache: make(map[string]map[string]int),
	}
}

// MaxCantrips returns the cantrip ceiling for one class.
func (s *service) MaxCantrips(ctx context.Context, actorID, classID string) (int, error) {
	s.mu.RLock()
	if cached, ok := s.cache[actorID][classID]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

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

	max := 0
	if classRules.ShowCantrips {
		settings := config.LoadSettings(ctx, s.host)
		for _, key := range settings.CantripScaleValues {
			if base, found := info.ScaleValues[key]; found {
				max = base
				break
			}
		}
		max += classRules.CantripPreparationBonus
		if max < 0 {
			max = 0
		}
	}

	s.mu.Lock()
	if s.cache[actorID] == nil {
		s.cache[actorID] = make(map[string]int)
	}
	s.cache[actorID][classID] = max
	s.mu.Unlock()
	return max, nil
}

// TotalMaxCantrips sums the ceiling across every spellcasting class.
func (s *service) TotalMaxCantrips(ctx context.Context, actorID string) (int, error) {
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return 0, err
	}

	total := 0
	for classID := range actor.SpellcastingClasses {
		max, merr := s.MaxCantrips(ctx, actorID, classID)
		if merr != nil {
			return 0, merr
		}
		total += max
	}
	return total, nil
}

// DetectLevelUp reports whether a level-up swap window is open.
func (s *service) DetectLevelUp(ctx context.Context, actorID string) (bool, error) {
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return false, err
	}

	currentMax, err := s.TotalMaxCantrips(ctx, actorID)
	if err != nil {
		return false, err
	}

	var previousLevel, previousMax int
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagPreviousLevel, &previousLevel); err != nil {
		return false, sberr.Wrap(err, "failed to read previous level flag")
	}
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagPreviousCantripMax, &previousMax); err != nil {
		return false, sberr.Wrap(err, "failed to read previous cantrip max flag")
	}

	if previousMax == 0 && currentMax > 0 {
		return true, nil
	}
	return actor.Level > previousLevel || currentMax > previousMax, nil
}

// CanChange checks whether a cantrip checkbox flip is permitted.
func (s *service) CanChange(ctx context.Context, input *ChangeInput) (spellbook.ChangeResult, error) {
	if input == nil {
		return spellbook.ChangeResult{}, sberr.Validationf("change input is required")
	}
	// Leveled spells are the preparation engine's problem.
	if input.SpellLevel != 0 {
		return spellbook.Allowed, nil
	}

	classRules, err := s.rules.GetClassRules(ctx, input.ActorID, input.ClassID)
	if err != nil {
		if sberr.IsNotFound(err) {
			return spellbook.Denied(spellbook.ReasonClassNotFound), nil
		}
		return spellbook.ChangeResult{}, err
	}

	max, err := s.MaxCantrips(ctx, input.ActorID, input.ClassID)
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
			s.host.Notify(ctx, host.NotifyWarn, fmt.Sprintf("Cantrip limit exceeded for %s (%d/%d)", input.ClassID, input.CurrentCount+1, max))
		}
		return spellbook.Allowed, nil
	}

	inWindow := swapWindowOpen(classRules.CantripSwapping, input.IsLevelUp, input.IsLongRest)

	tracking, err := s.readTracking(ctx, input.ActorID)
	if err != nil {
		return spellbook.ChangeResult{}, err
	}
	state := windowState(tracking, input.ClassID, input.IsLevelUp)

	if input.Checked {
		return checkToPrepare(input, max, inWindow, state), nil
	}
	return uncheckToUnprepare(input, classRules, inWindow, state), nil
}

func checkToPrepare(input *ChangeInput, max int, inWindow bool, state *spellbook.SwapState) spellbook.ChangeResult {
	// Re-checking the spell unlearned this window reverts the unlearn.
	if state != nil && state.HasUnlearned && state.Unlearned == input.SpellUUID {
		return spellbook.Allowed
	}

	if inWindow && state != nil {
		if state.HasLearned && state.Learned != input.SpellUUID {
			return spellbook.Denied(spellbook.ReasonOnlyOneSwap)
		}
		if input.CurrentCount >= max && !state.HasUnlearned {
			return spellbook.Denied(spellbook.ReasonUnlearnFirst)
		}
	}

	if input.CurrentCount >= max {
		if inWindow && state != nil && state.HasUnlearned {
			return spellbook.Allowed
		}
		return spellbook.Denied(spellbook.ReasonMaxCantripsReached)
	}
	return spellbook.Allowed
}

func uncheckToUnprepare(input *ChangeInput, classRules spellbook.ClassRules, inWindow bool, state *spellbook.SwapState) spellbook.ChangeResult {
	// Un-checking a cantrip learned this window is always a revert.
	if state != nil && state.HasLearned && state.Learned == input.SpellUUID {
		return spellbook.Allowed
	}

	if !inWindow {
		return spellbook.Denied(spellbook.ReasonOutsideSwapWindow)
	}
	if input.IsLongRest && !wizardEligible(input.ClassID, classRules) {
		return spellbook.Denied(spellbook.ReasonLongRestWizardOnly)
	}

	if state != nil && state.HasUnlearned && state.Unlearned != input.SpellUUID {
		return spellbook.Denied(spellbook.ReasonOnlyOneSwap)
	}
	return spellbook.Allowed
}

// TrackChange records a permitted flip in the swap tracking flag.
func (s *service) TrackChange(ctx context.Context, input *ChangeInput) error {
	if input == nil || input.SpellLevel != 0 {
		return nil
	}

	tracking, err := s.readTracking(ctx, input.ActorID)
	if err != nil {
		return err
	}

	classTracking := tracking[input.ClassID]
	if classTracking == nil {
		classTracking = &spellbook.ClassSwapTracking{}
		tracking[input.ClassID] = classTracking
	}

	state := windowState(tracking, input.ClassID, input.IsLevelUp)
	if state == nil {
		state = &spellbook.SwapState{}
		original, oerr := s.preparedCantrips(ctx, input.ActorID, input.ClassID)
		if oerr != nil {
			return oerr
		}
		state.OriginalChecked = original
		if input.IsLevelUp {
			classTracking.LevelUp = state
		} else {
			classTracking.LongRest = state
		}
	}

	if input.Checked {
		if state.HasUnlearned && state.Unlearned == input.SpellUUID {
			// Revert: the unlearn slot opens back up.
			state.HasUnlearned = false
			state.Unlearned = ""
		} else if !state.WasOriginallyChecked(input.SpellUUID) {
			state.HasLearned = true
			state.Learned = input.SpellUUID
		}
	} else {
		if state.HasLearned && state.Learned == input.SpellUUID {
			state.HasLearned = false
			state.Learned = ""
		} else if state.WasOriginallyChecked(input.SpellUUID) {
			state.HasUnlearned = true
			state.Unlearned = input.SpellUUID
		}
	}

	return s.writeTracking(ctx, input.ActorID, tracking)
}

// CompleteSwap closes a swap window.
func (s *service) CompleteSwap(ctx context.Context, actorID string, isLevelUp bool) error {
	tracking, err := s.readTracking(ctx, actorID)
	if err != nil {
		return err
	}

	for _, classTracking := range tracking {
		if classTracking == nil {
			continue
		}
		if isLevelUp {
			classTracking.LevelUp = nil
		} else {
			classTracking.LongRest = nil
		}
	}
	if err := s.writeTracking(ctx, actorID, tracking); err != nil {
		return err
	}

	if !isLevelUp {
		return nil
	}

	// Baselines move only when a level-up swap completes, so an interrupted
	// window reopens next time.
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return err
	}
	currentMax, err := s.TotalMaxCantrips(ctx, actorID)
	if err != nil {
		return err
	}
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagPreviousLevel, actor.Level); err != nil {
		return sberr.Wrap(err, "failed to stamp previous level")
	}
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagPreviousCantripMax, currentMax); err != nil {
		return sberr.Wrap(err, "failed to stamp previous cantrip max")
	}

	log.Printf("Cantrips: level-up swap completed for %s (level %d, max %d)", actorID, actor.Level, currentMax)
	return nil
}

// InvalidateActor drops cached ceilings for an actor.
func (s *service) InvalidateActor(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, actorID)
}

// preparedCantrips snapshots the cantrip uuids currently prepared for a
// class, for the originalChecked freeze.
func (s *service) preparedCantrips(ctx context.Context, actorID, classID string) ([]string, error) {
	state, err := prepstate.Load(ctx, s.host, actorID)
	if err != nil {
		return nil, err
	}

	out := []string{}
	for _, uuid := range state.ClassUUIDs(classID) {
		spell, ok := s.host.ResolveUUIDSync(uuid)
		if !ok {
			// Unresolvable entries stay in the snapshot so reverting them
			// still counts as original.
			out = append(out, uuid)
			continue
		}
		if spell.Level == 0 {
			out = append(out, identity.CanonicalizeSpell(spell))
		}
	}
	return out, nil
}

func (s *service) readTracking(ctx context.Context, actorID string) (spellbook.SwapTracking, error) {
	tracking := make(spellbook.SwapTracking)
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagCantripSwapTracking, &tracking); err != nil {
		return nil, sberr.Wrap(err, "failed to read swap tracking flag")
	}
	if tracking == nil {
		tracking = make(spellbook.SwapTracking)
	}
	return tracking, nil
}

func (s *service) writeTracking(ctx context.Context, actorID string, tracking spellbook.SwapTracking) error {
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagCantripSwapTracking, tracking); err != nil {
		return sberr.Wrap(err, "failed to write swap tracking flag")
	}
	return nil
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

func wizardEligible(classID string, classRules spellbook.ClassRules) bool {
	return classID == spellbook.ClassWizard || classRules.ForceWizardMode
}

func windowState(tracking spellbook.SwapTracking, classID string, isLevelUp bool) *spellbook.SwapState {
	classTracking := tracking[classID]
	if classTracking == nil {
		return nil
	}
	if isLevelUp {
		return classTracking.LevelUp
	}
	return classTracking.LongRest
}
