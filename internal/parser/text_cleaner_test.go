package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanTextJoinsHyphenLineBreaks(t *testing.T) {
	in := "distributed sys-\ntems engineer"
	assert.Equal(t, "distributed systems engineer", CleanText(in))
}

func TestCleanTextNormalizesSmartPunctuation(t *testing.T) {
	in := "“Kubernetes” — 5 years…"
	out := CleanText(in)
	assert.Equal(t, `"Kubernetes" - 5 years...`, out)
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	in := "Jane  Doe\t Engineer\n\n\n\nSkills:   Go,  SQL"
	out := CleanText(in)
	assert.Equal(t, "Jane Doe Engineer\n\nSkills: Go, SQL", out)
}

func TestCleanTextStripsControlAndZeroWidth(t *testing.T) {
	in := "Jane\x00Doe\u200b\ufeff"
	assert.Equal(t, "Jane Doe", CleanText(in))
}

func TestCleanTextNFKC(t *testing.T) {
	// 全角字符折叠为半角
	assert.Equal(t, "Go 123", CleanText("Ｇｏ　１２３"))
}

func TestCleanTextIdempotent(t *testing.T) {
	in := "multi-\nline  text — with junk\n\n\n\nend"
	once := CleanText(in)
	assert.Equal(t, once, CleanText(once))
}

func TestCleanTextEmpty(t *testing.T) {
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "", CleanText("   \n\n  "))
}
