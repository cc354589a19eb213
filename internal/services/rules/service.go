// Package rules computes and persists per-class rule records from edition
// defaults plus user overrides.
package rules

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/Sayshal/spell-book/internal/config"
	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

//go:generate mockgen -destination=mock/mock_service.go -package=mockrules -source=service.go

// ListChangeReconciler confirms and applies the preparation fallout of a
// customSpellList change. Implemented by the spell list service; injected
// here so the two packages stay acyclic.
type ListChangeReconciler interface {
	// ReconcileListChange returns false when the user cancelled.
	ReconcileListChange(ctx context.Context, actorID, classID string, newListRefs []string) (bool, error)
}

// Service is the rule-set configurator.
type Service interface {
	// GetEffectiveRuleSet resolves the rule set for an actor: per-actor
	// override first, then the world setting, then legacy.
	GetEffectiveRuleSet(ctx context.Context, actorID string) (spellbook.RuleSet, error)

	// GetClassRules returns the effective rule record for a class
	GetClassRules(ctx context.Context, actorID, classID string) (spellbook.ClassRules, error)

	// ApplyRuleSetToActor repopulates every class record with edition
	// defaults, preserving stored fields, and stamps the override flag
	ApplyRuleSetToActor(ctx context.Context, actorID string, ruleSet spellbook.RuleSet) error

	// UpdateClassRules merges a patch over the stored record. Returns false
	// without writing when a spell-list change was cancelled.
	UpdateClassRules(ctx context.Context, actorID, classID string, patch *spellbook.ClassRulesPatch) (bool, error)

	// InitializeNewClasses creates default records for classes that have none
	InitializeNewClasses(ctx context.Context, actorID string) error

	// EstimateLearningForClass prices copying a spell into the class's book
	EstimateLearningForClass(ctx context.Context, actorID, classID string, spellLevel int) (LearningEstimate, error)

	// InvalidateActor drops the cached rule records for an actor
	InvalidateActor(actorID string)
}

// service implements Service.
type service struct {
	host       host.Host
	reconciler ListChangeReconciler

	mu    sync.RWMutex
	cache map[string]map[string]spellbook.ClassRules // actorID -> classID
}

// ServiceConfig holds configuration for the rules service.
type ServiceConfig struct {
	Host       host.Host            // Required
	Reconciler ListChangeReconciler // Optional; list changes commit without confirmation when nil
}

// NewService creates the rules service.
func NewService(cfg *ServiceConfig) Service {
	if cfg == nil || cfg.Host == nil {
		panic("rules host is required")
	}

	return &service{
		host:       cfg.Host,
		reconciler: cfg.Reconciler,
		cache:      make(map[string]map[string]spellbook.ClassRules),
	}
}

// GetEffectiveRuleSet resolves the rule set for an actor.
func (s *service) GetEffectiveRuleSet(ctx context.Context, actorID string) (spellbook.RuleSet, error) {
	var override spellbook.RuleSet
	ok, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagRuleSetOverride, &override)
	if err != nil {
		return "", sberr.Wrap(err, "failed to read rule set override")
	}
	if ok && override.Valid() {
		return override, nil
	}

	settings := config.LoadSettings(ctx, s.host)
	return settings.SpellcastingRuleSet, nil
}

// GetClassRules returns the effective rule record for a class.
func (s *service) GetClassRules(ctx context.Context, actorID, classID string) (spellbook.ClassRules, error) {
	s.mu.RLock()
	if cached, ok := s.cache[actorID][classID]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	ruleSet, err := s.GetEffectiveRuleSet(ctx, actorID)
	if err != nil {
		return spellbook.ClassRules{}, err
	}
	defaults := spellbook.DefaultClassRules(ruleSet, classID)

	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return spellbook.ClassRules{}, err
	}

	stored, err := s.readStored(ctx, actorID)
	if err != nil {
		return spellbook.ClassRules{}, err
	}

	rules := defaults
	raw, hasStored := stored[classID]
	_, classExists := actor.SpellcastingClasses[classID]
	if hasStored && classExists {
		merged, merr := spellbook.MergeStoredOverDefaults(defaults, raw)
		if merr != nil {
			log.Printf("Rules: discarding unreadable record for %s/%s: %v", actorID, classID, merr)
		} else {
			rules = merged
		}
	}

	s.mu.Lock()
	if s.cache[actorID] == nil {
		s.cache[actorID] = make(map[string]spellbook.ClassRules)
	}
	s.cache[actorID][classID] = rules
	s.mu.Unlock()
	return rules, nil
}

// ApplyRuleSetToActor repopulates class records with edition defaults.
func (s *service) ApplyRuleSetToActor(ctx context.Context, actorID string, ruleSet spellbook.RuleSet) error {
	if !ruleSet.Valid() {
		return sberr.Validationf("unknown rule set '%s'", ruleSet)
	}

	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return err
	}

	stored, err := s.readStored(ctx, actorID)
	if err != nil {
		return err
	}

	for classID := range actor.SpellcastingClasses {
		defaults := spellbook.DefaultClassRules(ruleSet, classID)
		merged, merr := spellbook.MergeStoredOverDefaults(defaults, stored[classID])
		if merr != nil {
			merged = defaults
		}
		raw, merr := json.Marshal(merged)
		if merr != nil {
			return sberr.Wrapf(merr, "failed to encode rules for class '%s'", classID)
		}
		stored[classID] = raw
	}

	s.InvalidateActor(actorID)

	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagClassRules, stored); err != nil {
		return sberr.Wrap(err, "failed to persist class rules")
	}
	if err := s.host.SetActorFlag(ctx, actorID, spellbook.FlagRuleSetOverride, ruleSet); err != nil {
		return sberr.Wrap(err, "failed to persist rule set override")
	}
	return nil
}

// UpdateClassRules merges a patch over the stored record.
func (s *service) UpdateClassRules(ctx context.Context, actorID, classID string, patch *spellbook.ClassRulesPatch) (bool, error) {
	if patch == nil {
		return true, nil
	}

	current, err := s.GetClassRules(ctx, actorID, classID)
	if err != nil {
		return false, err
	}

	if patch.CustomSpellList != nil && listChanged(current.CustomSpellList, *patch.CustomSpellList) && s.reconciler != nil {
		confirmed, rerr := s.reconciler.ReconcileListChange(ctx, actorID, classID, *patch.CustomSpellList)
		if rerr != nil {
			return false, rerr
		}
		if !confirmed {
			return false, nil
		}
	}

	updated := patch.Apply(current)
	return true, s.writeRules(ctx, actorID, classID, updated)
}

// InitializeNewClasses creates default records for classes that have none.
func (s *service) InitializeNewClasses(ctx context.Context, actorID string) error {
	actor, err := s.host.GetActor(ctx, actorID)
	if err != nil {
		return err
	}

	ruleSet, err := s.GetEffectiveRuleSet(ctx, actorID)
	if err != nil {
		return err
	}

	stored, err := s.readStored(ctx, actorID)
	if err != nil {
		return err
	}

	dirty := false
	for classID := range actor.SpellcastingClasses {
		if _, ok := stored[classID]; ok {
			continue
		}
		raw, merr := json.Marshal(spellbook.DefaultClassRules(ruleSet, classID))
		if merr != nil {
			return sberr.Wrapf(merr, "failed to encode rules for class '%s'", classID)
		}
		stored[classID] = raw
		dirty = true
		log.Printf("Rules: initialized defaults for %s/%s (%s)", actorID, classID, ruleSet)
	}

	if !dirty {
		return nil
	}

	s.InvalidateActor(actorID)
	return s.host.SetActorFlag(ctx, actorID, spellbook.FlagClassRules, stored)
}

// InvalidateActor drops the cached rule records for an actor
func (s *service) InvalidateActor(actorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, actorID)
}

func (s *service) writeRules(ctx context.Context, actorID, classID string, rules spellbook.ClassRules) error {
	stored, err := s.readStored(ctx, actorID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(rules)
	if err != nil {
		return sberr.Wrapf(err, "failed to encode rules for class '%s'", classID)
	}
	stored[classID] = raw

	// Invalidate before the write resolves so the next read misses the
	// cache and picks up the new record.
	s.InvalidateActor(actorID)
	return s.host.SetActorFlag(ctx, actorID, spellbook.FlagClassRules, stored)
}

func (s *service) readStored(ctx context.Context, actorID string) (map[string]json.RawMessage, error) {
	stored := make(map[string]json.RawMessage)
	if _, err := s.host.GetActorFlag(ctx, actorID, spellbook.FlagClassRules, &stored); err != nil {
		return nil, sberr.Wrap(err, "failed to read class rules flag")
	}
	if stored == nil {
		stored = make(map[string]json.RawMessage)
	}
	return stored, nil
}

func listChanged(old, new []string) bool {
	if len(old) != len(new) {
		return true
	}
	for i := range old {
		if old[i] != new[i] {
			return true
		}
	}
	return false
}
