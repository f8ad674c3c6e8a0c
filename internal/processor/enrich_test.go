package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/constants"
)

func TestEnrichAppliesClassificationAndSummary(t *testing.T) {
	m := &mockChainModel{responses: map[string]string{
		classifySystemPrompt[:40]: `{
			"primary_role": "Backend Engineer",
			"secondary_roles": ["Platform Engineer", "SRE", "DBA", "Extra"],
			"seniority": "senior",
			"confidence": 0.85,
			"rationale": "years of Go services"
		}`,
		summarySystemPrompt[:40]: `{
			"one_liner": "Senior Go engineer with 8 years of backend work.",
			"highlights": ["h1", "h2", "h3", "h4", "h5", "h6"]
		}`,
	}}
	enricher := NewEnricher(newSingleTargetChain(t, m), 0.1, 0.2)

	p := testProfile()
	p.Classification = Classification{SecondaryRoles: []string{}}
	p.Summary = Summary{Highlights: []string{}}

	warnings := enricher.Enrich(context.Background(), p)

	assert.Empty(t, warnings)
	require.NotNil(t, p.Classification.PrimaryRole)
	assert.Equal(t, "Backend Engineer", *p.Classification.PrimaryRole)
	// 次要角色最多保留3个
	assert.Len(t, p.Classification.SecondaryRoles, 3)
	require.NotNil(t, p.Summary.OneLiner)
	// 亮点最多保留5条
	assert.Len(t, p.Summary.Highlights, 5)
}

func TestEnrichDegradesOnFailure(t *testing.T) {
	m := &mockChainModel{err: assert.AnError}
	enricher := NewEnricher(newSingleTargetChain(t, m), 0.1, 0.2)

	p := testProfile()
	before := *p.Classification.PrimaryRole

	warnings := enricher.Enrich(context.Background(), p)

	assert.Contains(t, warnings, constants.WarnClassificationFailed)
	assert.Contains(t, warnings, constants.WarnSummaryFailed)
	// 失败不触碰已有字段
	assert.Equal(t, before, *p.Classification.PrimaryRole)
}

func TestEnrichToleratesNonJSONOutput(t *testing.T) {
	m := &mockChainModel{content: "I had trouble with that request."}
	enricher := NewEnricher(newSingleTargetChain(t, m), 0.1, 0.2)

	p := testProfile()
	warnings := enricher.Enrich(context.Background(), p)

	assert.Len(t, warnings, 2)
}
