package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractKnownPII(t *testing.T) {
	text := `Jane Doe
Senior Backend Engineer
Email: Jane@Acme.com | Phone: 555-123-4567
https://linkedin.com/in/janedoe
https://github.com/janedoe
Portfolio: https://janedoe.dev`

	pii := ExtractKnownPII(text)

	assert.Equal(t, []string{"jane@acme.com"}, pii.EmailsFound)
	require.Len(t, pii.PhonesFound, 1)
	assert.Equal(t, "5551234567", pii.PhonesFound[0])
	assert.Len(t, pii.LinksFound, 3)
	assert.Contains(t, pii.LinksFound, "https://github.com/janedoe")
}

func TestExtractKnownPIIDeduplicates(t *testing.T) {
	text := "jane@acme.com JANE@ACME.COM Jane@Acme.com"
	pii := ExtractKnownPII(text)
	assert.Equal(t, []string{"jane@acme.com"}, pii.EmailsFound)
}

func TestExtractKnownPIIEmptyText(t *testing.T) {
	pii := ExtractKnownPII("")
	assert.Empty(t, pii.EmailsFound)
	assert.Empty(t, pii.PhonesFound)
	assert.Empty(t, pii.LinksFound)
}

func TestExtractKnownPIIPhoneFormats(t *testing.T) {
	pii := ExtractKnownPII("call +1 (555) 123-4567 or 555.123.4567 today")
	assert.Equal(t, []string{"15551234567", "5551234567"}, pii.PhonesFound)
}

func TestNormalizePhone(t *testing.T) {
	// 规范形态为纯数字串，前导+号一并剔除
	assert.Equal(t, "15551234567", NormalizePhone("+1 (555) 123-4567"))
	assert.Equal(t, "5551234567", NormalizePhone("555.123.4567"))
	// 位数不足的不算电话
	assert.Equal(t, "", NormalizePhone("123-456"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@acme.com", NormalizeEmail("  Jane@Acme.COM "))
}

func TestIsEmail(t *testing.T) {
	assert.True(t, IsEmail("jane@acme.com"))
	assert.False(t, IsEmail("not-an-email"))
	assert.False(t, IsEmail("jane@acme.com extra"))
}

func TestClassifyLinks(t *testing.T) {
	linkedin, github, portfolio := ClassifyLinks([]string{
		"https://linkedin.com/in/janedoe",
		"https://github.com/janedoe",
		"https://janedoe.dev",
	})
	assert.Equal(t, "https://linkedin.com/in/janedoe", linkedin)
	assert.Equal(t, "https://github.com/janedoe", github)
	assert.Equal(t, "https://janedoe.dev", portfolio)
}

func TestClassifyLinksFirstMatchWins(t *testing.T) {
	linkedin, _, _ := ClassifyLinks([]string{
		"https://www.linkedin.com/in/a",
		"https://linkedin.com/in/b",
	})
	assert.Equal(t, "https://www.linkedin.com/in/a", linkedin)
}
