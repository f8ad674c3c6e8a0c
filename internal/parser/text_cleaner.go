package parser

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	hyphenBreakRe  = regexp.MustCompile(`(\w)-\n(\w)`)
	spacesTabsRe   = regexp.MustCompile(`[ \t]+`)
	spacedNewline  = regexp.MustCompile(` *\n *`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

var smartQuoteReplacer = strings.NewReplacer(
	"‘", "'", // 左单引号
	"’", "'", // 右单引号
	"“", `"`, // 左双引号
	"”", `"`, // 右双引号
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...", // 省略号
	"\u00A0", " ", // 不换行空格
	"\u200B", "", // 零宽空格
	"\u200C", "", // 零宽不连字
	"\u200D", "", // 零宽连字
	"\uFEFF", "", // BOM
)

// CleanText 清洗提取出的原始文本，使其更适合作为模型输入。
// 处理内容：NFKC规范化、弯引号替换、控制字符剔除、
// 跨行断词修复（PDF常见）、空白归一。幂等。
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = norm.NFKC.String(text)
	text = smartQuoteReplacer.Replace(text)

	// 剔除除换行与制表符外的控制字符
	var sb strings.Builder
	sb.Grow(len(text))
	for _, c := range text {
		if c == '\n' || c == '\t' || (c >= 32 && c != 127) {
			sb.WriteRune(c)
		} else {
			sb.WriteRune(' ')
		}
	}
	text = sb.String()

	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = spacesTabsRe.ReplaceAllString(text, " ")
	text = spacedNewline.ReplaceAllString(text, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
