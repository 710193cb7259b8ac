// Package recommend maps detected drop-off patterns and funnel metrics to
// prioritized, effort-scored action items via an ordered rule table.
//
// Each rule is an enumerated identifier plus a pure function from the
// current context to an optional recommendation. Rules are evaluated in
// order; non-empty results are collected, validated, and sorted by priority
// then expected improvement.
package recommend

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/clientflow/journey-insights/internal/domain"
)

// Context is the input snapshot a rule evaluates against.
type Context struct {
	Patterns        []domain.DropOffPattern
	PageConversions map[domain.PageType]domain.PageConversion
	TotalSessions   int
	ConfidenceFloor float64
}

// OverallConversion returns the mean conversion rate across funnel pages,
// or 1 when no page data is available (nothing to recommend against).
func (c Context) OverallConversion() float64 {
	if len(c.PageConversions) == 0 {
		return 1
	}
	var sum float64
	for _, pc := range c.PageConversions {
		sum += pc.ConversionRate
	}
	return sum / float64(len(c.PageConversions))
}

// RuleID enumerates the built-in rules.
type RuleID string

const (
	RuleHighFrequencyPattern RuleID = "high_frequency_pattern"
	RuleLowConversionPage    RuleID = "low_conversion_page"
	RuleQuickExitPattern     RuleID = "quick_exit_pattern"
	RuleTechnicalPattern     RuleID = "technical_pattern"
	RuleLongDwellPattern     RuleID = "long_dwell_pattern"
	RuleContentPattern       RuleID = "content_pattern"
	RuleOverallConversion    RuleID = "overall_conversion"
)

// rule pairs an identifier with its pure generator.
type rule struct {
	ID       RuleID
	Generate func(Context) *domain.Recommendation
}

// Engine evaluates the ordered rule table against a context.
type Engine struct {
	rules []rule
}

// NewEngine creates a recommendation engine with the built-in rule table.
func NewEngine() *Engine {
	return &Engine{rules: builtinRules()}
}

// Generate runs every rule, drops invalid results, and returns the surviving
// recommendations ordered by priority (high first) then expected improvement
// descending.
func (e *Engine) Generate(ctx Context) []domain.Recommendation {
	var out []domain.Recommendation
	for _, r := range e.rules {
		rec := r.Generate(ctx)
		if rec == nil {
			continue
		}
		rec.ID = uuid.New().String()
		rec.RuleID = string(r.ID)
		if !rec.Valid() {
			continue
		}
		out = append(out, *rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].ExpectedImprovement > out[j].ExpectedImprovement
	})
	return out
}

// ForPattern produces the short textual suggestions attached to a single
// drop-off pattern, keyed off its trigger and timing profile.
func ForPattern(p domain.DropOffPattern) []string {
	var out []string
	switch p.Key.ExitTrigger {
	case domain.TriggerContentBased:
		out = append(out, fmt.Sprintf("Review %s page content: %d clients left for content-related reasons", p.Key.PageType, p.Frequency))
	case domain.TriggerTimeBased:
		out = append(out, fmt.Sprintf("Shorten or restructure the %s page: clients stall for %.0fs on average before leaving", p.Key.PageType, p.AvgTimeBeforeExit))
	case domain.TriggerTechnical:
		out = append(out, fmt.Sprintf("Investigate errors on the %s page: %d sessions ended on a technical failure", p.Key.PageType, p.Frequency))
	default:
		out = append(out, fmt.Sprintf("Analyze %s page exits: %d drop-offs with no clear trigger", p.Key.PageType, p.Frequency))
	}
	if p.AvgTimeBeforeExit < 30 {
		out = append(out, fmt.Sprintf("First impression fix: clients decide to leave %s within %.0fs", p.Key.PageType, p.AvgTimeBeforeExit))
	}
	return out
}

// maxFrequencyPattern returns the highest-frequency pattern satisfying the
// predicate, or nil.
func maxFrequencyPattern(ctx Context, pred func(domain.DropOffPattern) bool) *domain.DropOffPattern {
	var best *domain.DropOffPattern
	for i := range ctx.Patterns {
		p := &ctx.Patterns[i]
		if !pred(*p) {
			continue
		}
		if best == nil || p.Frequency > best.Frequency {
			best = p
		}
	}
	return best
}

func builtinRules() []rule {
	return []rule{
		{ID: RuleHighFrequencyPattern, Generate: func(ctx Context) *domain.Recommendation {
			p := maxFrequencyPattern(ctx, func(p domain.DropOffPattern) bool { return p.Frequency > 50 })
			if p == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Critical drop-off on %s", p.Key.PageType),
				Description:         fmt.Sprintf("%d sessions abandoned the funnel on the %s page (%s). This is the single largest leak in the funnel and should be addressed before smaller optimizations.", p.Frequency, p.Key.PageType, p.Key.ExitTrigger),
				Priority:            domain.PriorityHigh,
				Type:                domain.RecUX,
				TargetPage:          p.Key.PageType,
				ExpectedImprovement: 15,
				Effort:              domain.EffortMedium,
				BasedOnPattern:      &p.Key,
			}
		}},
		{ID: RuleLowConversionPage, Generate: func(ctx Context) *domain.Recommendation {
			var worst *domain.PageConversion
			for _, page := range domain.FunnelPages {
				pc, ok := ctx.PageConversions[page]
				if !ok || pc.ConversionRate >= 0.5 {
					continue
				}
				if worst == nil || pc.ConversionRate < worst.ConversionRate {
					cp := pc
					worst = &cp
				}
			}
			if worst == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Improve %s page conversion", worst.PageType),
				Description:         fmt.Sprintf("Only %.0f%% of clients who reach the %s page continue past it. Simplify the step or clarify what is being asked.", worst.ConversionRate*100, worst.PageType),
				Priority:            domain.PriorityHigh,
				Type:                domain.RecUX,
				TargetPage:          worst.PageType,
				ExpectedImprovement: 10,
				Effort:              domain.EffortMedium,
			}
		}},
		{ID: RuleQuickExitPattern, Generate: func(ctx Context) *domain.Recommendation {
			p := maxFrequencyPattern(ctx, func(p domain.DropOffPattern) bool {
				return p.AvgTimeBeforeExit < 30 && p.Frequency > 20
			})
			if p == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Fix first impression on %s", p.Key.PageType),
				Description:         fmt.Sprintf("%d clients left the %s page within %.0f seconds. The page is losing people before they read it; rework the above-the-fold content.", p.Frequency, p.Key.PageType, p.AvgTimeBeforeExit),
				Priority:            domain.PriorityHigh,
				Type:                domain.RecContent,
				TargetPage:          p.Key.PageType,
				ExpectedImprovement: 12,
				Effort:              domain.EffortLow,
				BasedOnPattern:      &p.Key,
			}
		}},
		{ID: RuleTechnicalPattern, Generate: func(ctx Context) *domain.Recommendation {
			p := maxFrequencyPattern(ctx, func(p domain.DropOffPattern) bool {
				return p.Key.ExitTrigger == domain.TriggerTechnical
			})
			if p == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Resolve technical failures on %s", p.Key.PageType),
				Description:         fmt.Sprintf("%d sessions ended on the %s page due to errors or timeouts. Technical drop-offs are recoverable losses; check error logs for this step.", p.Frequency, p.Key.PageType),
				Priority:            domain.PriorityHigh,
				Type:                domain.RecTechnical,
				TargetPage:          p.Key.PageType,
				ExpectedImprovement: 8,
				Effort:              domain.EffortMedium,
				BasedOnPattern:      &p.Key,
			}
		}},
		{ID: RuleLongDwellPattern, Generate: func(ctx Context) *domain.Recommendation {
			p := maxFrequencyPattern(ctx, func(p domain.DropOffPattern) bool {
				return p.Key.ExitTrigger == domain.TriggerTimeBased && p.AvgTimeBeforeExit > 300
			})
			if p == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Reduce friction on %s", p.Key.PageType),
				Description:         fmt.Sprintf("Clients spend %.0f seconds on the %s page before giving up. The step likely asks too much at once; split it or add progress cues.", p.AvgTimeBeforeExit, p.Key.PageType),
				Priority:            domain.PriorityMedium,
				Type:                domain.RecTiming,
				TargetPage:          p.Key.PageType,
				ExpectedImprovement: 7,
				Effort:              domain.EffortHigh,
				BasedOnPattern:      &p.Key,
			}
		}},
		{ID: RuleContentPattern, Generate: func(ctx Context) *domain.Recommendation {
			p := maxFrequencyPattern(ctx, func(p domain.DropOffPattern) bool {
				return p.Key.ExitTrigger == domain.TriggerContentBased && p.Frequency > 15
			})
			if p == nil {
				return nil
			}
			return &domain.Recommendation{
				Title:               fmt.Sprintf("Revise %s page content", p.Key.PageType),
				Description:         fmt.Sprintf("%d clients abandoned on the %s page after minimal reading. Test alternative copy or layout for this step.", p.Frequency, p.Key.PageType),
				Priority:            domain.PriorityMedium,
				Type:                domain.RecContent,
				TargetPage:          p.Key.PageType,
				ExpectedImprovement: 6,
				Effort:              domain.EffortLow,
				BasedOnPattern:      &p.Key,
			}
		}},
		{ID: RuleOverallConversion, Generate: func(ctx Context) *domain.Recommendation {
			overall := ctx.OverallConversion()
			if overall >= 0.6 {
				return nil
			}
			return &domain.Recommendation{
				Title:               "Run a full funnel review",
				Description:         fmt.Sprintf("Average per-page conversion is %.0f%%, below the 60%% baseline. No single page explains the loss; schedule a journey-level review across all four steps.", overall*100),
				Priority:            domain.PriorityLow,
				Type:                domain.RecUX,
				TargetPage:          domain.PageActivation,
				ExpectedImprovement: 5,
				Effort:              domain.EffortHigh,
			}
		}},
	}
}
