package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/parser"
)

func TestHallucinationFilterStripsTypoEmail(t *testing.T) {
	p := NewProfile()
	// 模型把域名敲掉了一个字母，原文里只有jane@acme.com
	p.Candidate.Emails = []string{"jane@acme.co"}

	pii := parser.KnownPII{EmailsFound: []string{"jane@acme.com"}}
	warnings, stripped := ApplyHallucinationFilter(p, pii)

	assert.Contains(t, warnings, constants.WarnUnverifiedEmail)
	assert.Equal(t, 1, stripped)
	// 剔除后字段留空，不得用基准值顶替模型的claim
	assert.Empty(t, p.Candidate.Emails)
}

func TestHallucinationFilterKeepsVerifiedContacts(t *testing.T) {
	p := NewProfile()
	p.Candidate.Emails = []string{"Jane@Acme.com"}
	p.Candidate.Phones = []string{"555-123-4567"}

	pii := parser.KnownPII{
		EmailsFound: []string{"jane@acme.com"},
		PhonesFound: []string{"5551234567"},
	}
	warnings, stripped := ApplyHallucinationFilter(p, pii)

	assert.Empty(t, warnings)
	assert.Equal(t, 0, stripped)
	assert.Equal(t, []string{"jane@acme.com"}, p.Candidate.Emails)
	assert.Equal(t, []string{"5551234567"}, p.Candidate.Phones)
}

func TestHallucinationFilterEmptyGroundTruthKeepsValidFormats(t *testing.T) {
	p := NewProfile()
	p.Candidate.Emails = []string{"jane@acme.com", "not-an-email"}

	warnings, stripped := ApplyHallucinationFilter(p, parser.KnownPII{})

	assert.Contains(t, warnings, constants.WarnUnverifiedEmail)
	assert.Equal(t, 1, stripped)
	assert.Equal(t, []string{"jane@acme.com"}, p.Candidate.Emails)
}

func TestHallucinationFilterStripsUnverifiedLink(t *testing.T) {
	p := NewProfile()
	p.Candidate.Links.Github = strp("https://github.com/someone-else")

	pii := parser.KnownPII{LinksFound: []string{"https://github.com/janedoe"}}
	warnings, stripped := ApplyHallucinationFilter(p, pii)

	assert.Contains(t, warnings, constants.WarnUnverifiedGitHub)
	assert.Equal(t, 1, stripped)
	// 声称的链接与原文不符：剔除，不替换
	assert.Nil(t, p.Candidate.Links.Github)
}

func TestHallucinationFilterBackfillsMissedContacts(t *testing.T) {
	p := NewProfile() // 模型什么联系方式都没给

	pii := parser.KnownPII{
		EmailsFound: []string{"jane@acme.com"},
		PhonesFound: []string{"5551234567"},
		LinksFound:  []string{"https://linkedin.com/in/janedoe"},
	}
	warnings, stripped := ApplyHallucinationFilter(p, pii)

	assert.Empty(t, warnings)
	assert.Equal(t, 0, stripped)
	assert.Equal(t, []string{"jane@acme.com"}, p.Candidate.Emails)
	assert.Equal(t, []string{"5551234567"}, p.Candidate.Phones)
	require.NotNil(t, p.Candidate.Links.Linkedin)
	assert.Equal(t, "https://linkedin.com/in/janedoe", *p.Candidate.Links.Linkedin)
}

func TestHallucinationFilterStripsAllUnverifiedClaims(t *testing.T) {
	p := NewProfile()
	p.Candidate.Emails = []string{"jane@acem.com"}
	p.Candidate.Phones = []string{"999-888-7777"}
	p.Candidate.Links.Github = strp("https://github.com/fake")

	pii := parser.KnownPII{
		EmailsFound: []string{"jane@acme.com"},
		PhonesFound: []string{"5551234567"},
		LinksFound:  []string{"https://github.com/janedoe"},
	}
	warnings, stripped := ApplyHallucinationFilter(p, pii)

	assert.Equal(t, 3, stripped)
	assert.ElementsMatch(t, warnings, []string{
		constants.WarnUnverifiedEmail,
		constants.WarnUnverifiedPhone,
		constants.WarnUnverifiedGitHub,
	})
	assert.Empty(t, p.Candidate.Emails)
	assert.Empty(t, p.Candidate.Phones)
	assert.Nil(t, p.Candidate.Links.Github)
}

func TestHallucinationFilterStableOnVerifiedProfile(t *testing.T) {
	p := NewProfile()
	p.Candidate.Emails = []string{"jane@acme.com"}
	p.Candidate.Phones = []string{"5551234567"}
	p.Candidate.Links.Github = strp("https://github.com/janedoe")

	pii := parser.KnownPII{
		EmailsFound: []string{"jane@acme.com"},
		PhonesFound: []string{"5551234567"},
		LinksFound:  []string{"https://github.com/janedoe"},
	}

	for i := 0; i < 2; i++ {
		warnings, stripped := ApplyHallucinationFilter(p, pii)
		assert.Empty(t, warnings)
		assert.Equal(t, 0, stripped)
	}
	assert.Equal(t, []string{"jane@acme.com"}, p.Candidate.Emails)
	require.NotNil(t, p.Candidate.Links.Github)
}

func TestHallucinationFilterFiltersOtherLinks(t *testing.T) {
	p := NewProfile()
	p.Candidate.Links.Other = []string{"https://real.example.com", "https://invented.example.com"}

	pii := parser.KnownPII{LinksFound: []string{"https://real.example.com"}}
	ApplyHallucinationFilter(p, pii)

	assert.Equal(t, []string{"https://real.example.com"}, p.Candidate.Links.Other)
}
