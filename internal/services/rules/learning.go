package rules

import (
	"context"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
)

// LearningEstimate is the cost of copying one spell into a wizard's book.
type LearningEstimate struct {
	CostGP int
	Hours  int
}

// EstimateLearning prices copying a spell of the given level, using the
// class record's multipliers. Cantrips are free: they are learned, not
// copied.
func EstimateLearning(rules spellbook.ClassRules, spellLevel int) LearningEstimate {
	if spellLevel <= 0 {
		return LearningEstimate{}
	}
	return LearningEstimate{
		CostGP: spellLevel * rules.SpellLearningCostMultiplier,
		Hours:  spellLevel * rules.SpellLearningTimeMultiplier,
	}
}

// EstimateLearningForClass resolves the class record and prices the copy.
func (s *service) EstimateLearningForClass(ctx context.Context, actorID, classID string, spellLevel int) (LearningEstimate, error) {
	classRules, err := s.GetClassRules(ctx, actorID, classID)
	if err != nil {
		return LearningEstimate{}, err
	}
	return EstimateLearning(classRules, spellLevel), nil
}
