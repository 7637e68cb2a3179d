package learning

import (
	"fmt"

	"github.com/stomper-go/stomper/internal/defect"
)

// AdaptiveStrategy derives the prompting decision for d at the given retry
// count, per the decision table in spec §4.1. The table is applied in
// order; the first matching row wins.
func (s *Store) AdaptiveStrategy(d defect.Defect, retryCount int) AdaptiveStrategy {
	p := s.pattern(d.Tool, d.Code)

	if p == nil || p.TotalAttempts == 0 {
		return AdaptiveStrategy{
			Verbosity:  StrategyNormal,
			RetryCount: retryCount,
		}
	}

	sr := p.SuccessRate()

	switch {
	case p.IsDifficult() && retryCount == 0:
		return AdaptiveStrategy{
			Verbosity:         StrategyDetailed,
			IncludeExamples:   true,
			IncludeHistory:    true,
			RetryCount:        retryCount,
			SuggestedApproach: suggestedApproach(p),
		}
	case p.IsDifficult() && retryCount == 1:
		return AdaptiveStrategy{
			Verbosity:         StrategyDetailed,
			IncludeExamples:   true,
			IncludeHistory:    true,
			RetryCount:        retryCount,
			SuggestedApproach: suggestedApproach(p),
		}
	case p.IsDifficult() && retryCount >= 2:
		return AdaptiveStrategy{
			Verbosity:         StrategyVerbose,
			IncludeExamples:   true,
			IncludeHistory:    true,
			RetryCount:        retryCount,
			SuggestedApproach: suggestedApproach(p),
		}
	case sr >= 0.8:
		return AdaptiveStrategy{
			Verbosity:  StrategyMinimal,
			RetryCount: retryCount,
		}
	case sr < 0.6:
		return AdaptiveStrategy{
			Verbosity:         StrategyNormal,
			IncludeExamples:   true,
			RetryCount:        retryCount,
			SuggestedApproach: suggestedApproach(p),
		}
	default:
		return AdaptiveStrategy{
			Verbosity:  StrategyNormal,
			RetryCount: retryCount,
		}
	}
}

// suggestedApproach names the most frequently successful strategy recorded
// for p, or "" when none has ever succeeded.
func suggestedApproach(p *ErrorPattern) string {
	counts := make(map[PromptStrategy]int)
	for _, a := range p.Attempts {
		if a.Outcome == OutcomeSuccess {
			counts[a.Strategy]++
		}
	}

	var best PromptStrategy
	bestCount := 0
	for _, strat := range CanonicalOrder {
		if c := counts[strat]; c > bestCount {
			best = strat
			bestCount = c
		}
	}

	if bestCount == 0 {
		return ""
	}
	return fmt.Sprintf("the %q strategy has succeeded most often (%d time(s)) for this error", best, bestCount)
}

// FallbackStrategy returns the next PromptStrategy to try for d given the
// strategies already attempted and failed this session, or ok=false when
// every strategy has been exhausted.
//
// Preference order: any strategy in the pattern's successful_strategies
// not already in failed; otherwise the canonical escalation order
// minimal -> normal -> detailed -> verbose, first entry not in failed.
func (s *Store) FallbackStrategy(d defect.Defect, failed []PromptStrategy) (PromptStrategy, bool) {
	failedSet := make(map[PromptStrategy]bool, len(failed))
	for _, f := range failed {
		failedSet[f] = true
	}

	if p := s.pattern(d.Tool, d.Code); p != nil {
		for _, strat := range CanonicalOrder {
			if p.SuccessfulStrategies[strat] && !failedSet[strat] {
				return strat, true
			}
		}
	}

	for _, strat := range CanonicalOrder {
		if !failedSet[strat] {
			return strat, true
		}
	}

	return "", false
}
