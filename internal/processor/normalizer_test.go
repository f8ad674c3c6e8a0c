package processor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/constants"
)

func mustObj(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &obj))
	return obj
}

func strp(s string) *string { return &s }

func TestNormalizeCurrentDates(t *testing.T) {
	p := Normalize(mustObj(t, `{
		"experience": [
			{"company": "Acme", "title": "Engineer", "start_date": "2020-01", "end_date": "Present"},
			{"company": "Beta", "title": "Dev", "start_date": "2018", "end_date": "2020-01"}
		],
		"education": [
			{"institution": "MIT", "degree": "BSc", "end_date": "ongoing"}
		]
	}`))

	require.Len(t, p.Experience, 2)
	assert.Nil(t, p.Experience[0].EndDate)
	assert.True(t, p.Experience[0].IsCurrent)
	require.NotNil(t, p.Experience[1].EndDate)
	assert.Equal(t, "2020-01", *p.Experience[1].EndDate)
	assert.False(t, p.Experience[1].IsCurrent)

	require.Len(t, p.Education, 1)
	assert.Nil(t, p.Education[0].EndDate)
}

func TestNormalizeEmptyDatesBecomeNil(t *testing.T) {
	p := Normalize(mustObj(t, `{
		"experience": [{"company": "Acme", "start_date": "", "end_date": "  "}]
	}`))
	assert.Nil(t, p.Experience[0].StartDate)
	assert.Nil(t, p.Experience[0].EndDate)
}

func TestNormalizeDedupSkillsKeepsHighestConfidence(t *testing.T) {
	p := Normalize(mustObj(t, `{
		"skills": [
			{"name": "Go", "confidence": 0.6},
			{"name": "SQL", "confidence": 0.9},
			{"name": "go", "confidence": 0.8},
			{"name": "  ", "confidence": 1.0}
		]
	}`))

	require.Len(t, p.Skills, 2)
	// 首次出现的顺序保留，置信度取最高
	assert.Equal(t, "go", p.Skills[0].Name)
	assert.Equal(t, 0.8, p.Skills[0].Confidence)
	assert.Equal(t, "SQL", p.Skills[1].Name)
}

func TestNormalizeClampsConfidence(t *testing.T) {
	p := Normalize(mustObj(t, `{
		"skills": [{"name": "Go", "confidence": 1.7}],
		"classification": {"confidence": -0.3}
	}`))
	assert.Equal(t, 1.0, p.Skills[0].Confidence)
	assert.Equal(t, 0.0, p.Classification.Confidence)
}

func TestNormalizeTolerantOfTypeMismatch(t *testing.T) {
	// skills是字符串而非数组：该键被跳过，其余字段照常填充
	p := Normalize(mustObj(t, `{
		"candidate": {"full_name": "Jane Doe"},
		"skills": "Go, SQL"
	}`))
	require.NotNil(t, p.Candidate.FullName)
	assert.Equal(t, "Jane Doe", *p.Candidate.FullName)
	assert.Empty(t, p.Skills)
}

func TestNormalizeNilInput(t *testing.T) {
	p := Normalize(nil)
	assert.Equal(t, SchemaVersion, p.SchemaVersion)
	assert.NotNil(t, p.Skills)
	assert.NotNil(t, p.Candidate.Emails)
}

func TestMissingCriticalFields(t *testing.T) {
	p := NewProfile()
	missing := MissingCriticalFields(p)
	assert.ElementsMatch(t, []string{"candidate.full_name", "candidate.emails/phones"}, missing)

	p.Candidate.FullName = strp("Jane Doe")
	p.Candidate.Emails = []string{"jane@acme.com"}
	assert.Empty(t, MissingCriticalFields(p))
}

func TestDeriveStatus(t *testing.T) {
	full := NewProfile()
	full.Candidate.FullName = strp("Jane")
	full.Candidate.Emails = []string{"jane@acme.com"}
	full.Skills = []Skill{{Name: "Go"}}

	empty := NewProfile()

	partialShapeProfile := NewProfile()
	partialShapeProfile.Skills = []Skill{{Name: "Go"}}
	partialShapeProfile.Candidate.FullName = strp("Jane")

	cases := []struct {
		name    string
		shape   Shape
		profile *Profile
		want    string
	}{
		{"well-formed complete", ShapeWellFormed, full, constants.ParseStatusSuccess},
		{"garbage", ShapeGarbage, full, constants.ParseStatusFailed},
		{"all blocks empty with missing", ShapeWellFormed, empty, constants.ParseStatusFailed},
		{"schema errors with missing", ShapePartiallyFormed, partialShapeProfile, constants.ParseStatusPartial},
		{"two missing criticals", ShapeWellFormed, func() *Profile {
			p := NewProfile()
			p.Skills = []Skill{{Name: "Go"}}
			return p
		}(), constants.ParseStatusPartial},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			missing := MissingCriticalFields(tc.profile)
			assert.Equal(t, tc.want, DeriveStatus(tc.shape, tc.profile, missing))
		})
	}
}

func TestComputeConfidence(t *testing.T) {
	w := DefaultConfidenceWeights

	base := NewProfile()
	assert.InDelta(t, 0.2, w.ComputeConfidence(base, 0), 1e-9)

	rich := NewProfile()
	rich.Candidate.Emails = []string{"jane@acme.com"}
	rich.Skills = []Skill{{Name: "Go"}, {Name: "SQL"}, {Name: "K8s"}, {Name: "AWS"}, {Name: "Python"}}
	rich.Experience = []Experience{{Company: strp("Acme"), Title: strp("Engineer")}}
	rich.Education = []Education{{Institution: strp("MIT"), Degree: strp("BSc")}}
	assert.InDelta(t, 1.0, w.ComputeConfidence(rich, 0), 1e-9)

	// 每个被剔除的未验证字段扣0.05
	assert.InDelta(t, 0.9, w.ComputeConfidence(rich, 2), 1e-9)
}

func TestComputeConfidenceSkillThreshold(t *testing.T) {
	w := DefaultConfidenceWeights
	p := NewProfile()
	p.Skills = []Skill{{Name: "Go"}, {Name: "SQL"}, {Name: "K8s"}, {Name: "AWS"}}
	assert.InDelta(t, 0.2, w.ComputeConfidence(p, 0), 1e-9)
	p.Skills = append(p.Skills, Skill{Name: "Python"})
	assert.InDelta(t, 0.4, w.ComputeConfidence(p, 0), 1e-9)
}
