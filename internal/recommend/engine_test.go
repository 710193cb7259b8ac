package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientflow/journey-insights/internal/domain"
)

func pattern(page domain.PageType, trigger domain.ExitTrigger, freq int, avgTime float64) domain.DropOffPattern {
	return domain.DropOffPattern{
		Key:               domain.PatternKey{PageType: page, ExitTrigger: trigger},
		Frequency:         freq,
		AvgTimeBeforeExit: avgTime,
		ConfidenceScore:   0.8,
		Active:            true,
	}
}

func healthyConversions() map[domain.PageType]domain.PageConversion {
	out := make(map[domain.PageType]domain.PageConversion)
	for _, p := range domain.FunnelPages {
		out[p] = domain.PageConversion{PageType: p, ConversionRate: 0.85}
	}
	return out
}

func TestHighFrequencyRuleFires(t *testing.T) {
	e := NewEngine()
	recs := e.Generate(Context{
		Patterns:        []domain.DropOffPattern{pattern(domain.PageAgreement, domain.TriggerUnknown, 60, 120)},
		PageConversions: healthyConversions(),
	})
	require.NotEmpty(t, recs)
	assert.Equal(t, string(RuleHighFrequencyPattern), recs[0].RuleID)
	assert.Equal(t, domain.PriorityHigh, recs[0].Priority)
	assert.Equal(t, domain.PageAgreement, recs[0].TargetPage)
	require.NotNil(t, recs[0].BasedOnPattern)
	assert.Equal(t, domain.TriggerUnknown, recs[0].BasedOnPattern.ExitTrigger)
}

func TestNoRulesFireOnHealthyFunnel(t *testing.T) {
	e := NewEngine()
	recs := e.Generate(Context{PageConversions: healthyConversions()})
	assert.Empty(t, recs)
}

func TestPriorityThenImprovementOrdering(t *testing.T) {
	e := NewEngine()
	recs := e.Generate(Context{
		Patterns: []domain.DropOffPattern{
			// Fires quick-exit (high, 12) and content (medium, 6).
			pattern(domain.PageActivation, domain.TriggerContentBased, 25, 10),
			// Fires long-dwell (medium, 7).
			pattern(domain.PageAgreement, domain.TriggerTimeBased, 10, 400),
		},
		PageConversions: healthyConversions(),
	})
	require.GreaterOrEqual(t, len(recs), 3)

	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		if prev.Priority.Rank() == cur.Priority.Rank() {
			assert.GreaterOrEqual(t, prev.ExpectedImprovement, cur.ExpectedImprovement)
		} else {
			assert.Greater(t, prev.Priority.Rank(), cur.Priority.Rank())
		}
	}
}

func TestTechnicalRule(t *testing.T) {
	e := NewEngine()
	recs := e.Generate(Context{
		Patterns:        []domain.DropOffPattern{pattern(domain.PageProcessing, domain.TriggerTechnical, 8, 45)},
		PageConversions: healthyConversions(),
	})
	require.Len(t, recs, 1)
	assert.Equal(t, domain.RecTechnical, recs[0].Type)
	assert.Equal(t, domain.PageProcessing, recs[0].TargetPage)
}

func TestLowConversionPageRulePicksWorstPage(t *testing.T) {
	conv := healthyConversions()
	conv[domain.PageAgreement] = domain.PageConversion{PageType: domain.PageAgreement, ConversionRate: 0.45}
	conv[domain.PageConfirmation] = domain.PageConversion{PageType: domain.PageConfirmation, ConversionRate: 0.2}

	e := NewEngine()
	recs := e.Generate(Context{PageConversions: conv})
	require.NotEmpty(t, recs)
	assert.Equal(t, string(RuleLowConversionPage), recs[0].RuleID)
	assert.Equal(t, domain.PageConfirmation, recs[0].TargetPage)
}

func TestOverallConversionCatchAll(t *testing.T) {
	conv := make(map[domain.PageType]domain.PageConversion)
	for _, p := range domain.FunnelPages {
		conv[p] = domain.PageConversion{PageType: p, ConversionRate: 0.55}
	}
	e := NewEngine()
	recs := e.Generate(Context{PageConversions: conv})

	var found bool
	for _, r := range recs {
		if r.RuleID == string(RuleOverallConversion) {
			found = true
			assert.Equal(t, domain.PriorityLow, r.Priority)
		}
	}
	assert.True(t, found)
}

func TestAllGeneratedRecommendationsAreValid(t *testing.T) {
	conv := make(map[domain.PageType]domain.PageConversion)
	for _, p := range domain.FunnelPages {
		conv[p] = domain.PageConversion{PageType: p, ConversionRate: 0.1}
	}
	e := NewEngine()
	recs := e.Generate(Context{
		Patterns: []domain.DropOffPattern{
			pattern(domain.PageActivation, domain.TriggerContentBased, 100, 5),
			pattern(domain.PageAgreement, domain.TriggerTimeBased, 30, 700),
			pattern(domain.PageConfirmation, domain.TriggerTechnical, 22, 15),
		},
		PageConversions: conv,
	})
	require.NotEmpty(t, recs)
	for _, r := range recs {
		valid := r
		assert.True(t, valid.Valid(), "rule %s produced an invalid recommendation", r.RuleID)
		assert.NotEmpty(t, r.ID)
	}
}

func TestForPatternText(t *testing.T) {
	lines := ForPattern(pattern(domain.PageAgreement, domain.TriggerTimeBased, 12, 350))
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "agreement")

	quick := ForPattern(pattern(domain.PageActivation, domain.TriggerContentBased, 30, 8))
	assert.Len(t, quick, 2)
}
