package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float64p(v float64) *float64 { return &v }
func boolp(v bool) *bool          { return &v }

func testProfile() *Profile {
	p := NewProfile()
	p.Candidate.FullName = strp("Jane Doe")
	p.Candidate.Location = strp("Berlin, Germany")
	p.Skills = []Skill{
		{Name: "Go", Confidence: 0.9},
		{Name: "PostgreSQL", Confidence: 0.8},
		{Name: "Kubernetes", Confidence: 0.7},
	}
	p.Experience = []Experience{
		{Company: strp("Acme"), Title: strp("Engineer"), StartDate: strp("2018-01"), EndDate: strp("2022-01")},
		{Company: strp("Beta"), Title: strp("Senior Engineer"), StartDate: strp("2022-02"), IsCurrent: true},
	}
	p.Education = []Education{
		{Institution: strp("TU Berlin"), Degree: strp("BSc Computer Science")},
	}
	p.Classification.PrimaryRole = strp("Backend Engineer")
	p.Classification.Seniority = strp("senior")
	p.Quality.OverallConfidence = 0.8
	return p
}

func TestEvaluateDeterministicMissingRequiredSkill(t *testing.T) {
	spec := &RequirementSpec{RequiredSkills: []string{"Go", "SQL", "Rust"}}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)

	assert.False(t, passed)
	// "SQL"通过子串命中PostgreSQL，Rust没有对应
	require.Len(t, reasons, 1)
	assert.Equal(t, "missing required skill: Rust", reasons[0])
}

func TestEvaluateDeterministicOneReasonPerMissingSkill(t *testing.T) {
	spec := &RequirementSpec{RequiredSkills: []string{"Rust", "Scala"}}
	_, reasons := EvaluateDeterministic(testProfile(), spec)

	assert.Equal(t, []string{
		"missing required skill: Rust",
		"missing required skill: Scala",
	}, reasons)
}

func TestEvaluateDeterministicSkillMatchCaseInsensitive(t *testing.T) {
	spec := &RequirementSpec{RequiredSkills: []string{"kubernetes", "GO"}}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)
	assert.True(t, passed)
	assert.Empty(t, reasons)
}

func TestEvaluateDeterministicAnySkills(t *testing.T) {
	spec := &RequirementSpec{AnySkills: []string{"Rust", "Scala"}}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)
	assert.False(t, passed)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "missing any of the preferred skills")

	spec = &RequirementSpec{AnySkills: []string{"Rust", "Go"}}
	passed, _ = EvaluateDeterministic(testProfile(), spec)
	assert.True(t, passed)
}

func TestEvaluateDeterministicMinYearsExperience(t *testing.T) {
	spec := &RequirementSpec{MinYearsExp: float64p(3)}
	passed, _ := EvaluateDeterministic(testProfile(), spec)
	assert.True(t, passed)

	spec = &RequirementSpec{MinYearsExp: float64p(30)}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)
	assert.False(t, passed)
	assert.Contains(t, reasons[0], "insufficient experience")
}

func TestEvaluateDeterministicDegreeAndSeniority(t *testing.T) {
	spec := &RequirementSpec{
		RequiredDegrees:   []string{"BSc"},
		RequiredSeniority: []string{"senior", "staff"},
	}
	passed, _ := EvaluateDeterministic(testProfile(), spec)
	assert.True(t, passed)

	spec = &RequirementSpec{RequiredSeniority: []string{"principal"}}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)
	assert.False(t, passed)
	assert.Contains(t, reasons[0], "seniority mismatch")
}

func TestEvaluateDeterministicLocationAndConfidence(t *testing.T) {
	spec := &RequirementSpec{LocationContains: "berlin"}
	passed, _ := EvaluateDeterministic(testProfile(), spec)
	assert.True(t, passed)

	spec = &RequirementSpec{LocationContains: "Munich", MinConfidence: float64p(0.9)}
	passed, reasons := EvaluateDeterministic(testProfile(), spec)
	assert.False(t, passed)
	require.Len(t, reasons, 2)
	assert.Contains(t, reasons[0], "location mismatch")
	assert.Contains(t, reasons[1], "low confidence score")
}

func TestEvaluateDeterministicIsDeterministic(t *testing.T) {
	spec := &RequirementSpec{
		RequiredSkills:   []string{"Rust", "Scala"},
		LocationContains: "Munich",
		MinConfidence:    float64p(0.95),
	}
	_, first := EvaluateDeterministic(testProfile(), spec)
	for i := 0; i < 5; i++ {
		_, again := EvaluateDeterministic(testProfile(), spec)
		assert.Equal(t, first, again)
	}
}

func TestRequirementSpecIsEmpty(t *testing.T) {
	assert.True(t, (&RequirementSpec{}).IsEmpty())
	assert.False(t, (&RequirementSpec{RequiredSkills: []string{"Go"}}).IsEmpty())
	assert.False(t, (&RequirementSpec{MinYearsExp: float64p(1)}).IsEmpty())
}

func TestEvaluatorFallsBackToDeterministic(t *testing.T) {
	// LLM校验开启但链不可用时退回确定性匹配
	failing := &mockChainModel{err: assert.AnError}
	chain := newSingleTargetChain(t, failing)
	ev := NewRequirementEvaluator(chain)

	spec := &RequirementSpec{
		RequiredSkills:   []string{"Rust"},
		UseLLMValidation: boolp(true),
	}
	passed, reasons := ev.Evaluate(context.Background(), testProfile(), spec)
	assert.False(t, passed)
	assert.Equal(t, []string{"missing required skill: Rust"}, reasons)
}

func TestEvaluatorLLMDecision(t *testing.T) {
	m := &mockChainModel{content: `{"meets_requirements": false, "reasons": ["missing required skill: Rust"]}`}
	chain := newSingleTargetChain(t, m)
	ev := NewRequirementEvaluator(chain)

	spec := &RequirementSpec{
		RequiredSkills:   []string{"Rust"},
		UseLLMValidation: boolp(true),
	}
	passed, reasons := ev.Evaluate(context.Background(), testProfile(), spec)
	assert.False(t, passed)
	assert.Equal(t, []string{"missing required skill: Rust"}, reasons)
	assert.Equal(t, 1, m.callCount)
}

func TestEvaluatorDeterministicUnlessFlagged(t *testing.T) {
	m := &mockChainModel{content: `{"meets_requirements": true, "reasons": []}`}
	chain := newSingleTargetChain(t, m)
	ev := NewRequirementEvaluator(chain)

	// 未显式开启use_llm_validation时不触发模型调用
	spec := &RequirementSpec{RequiredSkills: []string{"Rust"}}
	passed, reasons := ev.Evaluate(context.Background(), testProfile(), spec)
	assert.False(t, passed)
	assert.Equal(t, []string{"missing required skill: Rust"}, reasons)
	assert.Equal(t, 0, m.callCount)
}
