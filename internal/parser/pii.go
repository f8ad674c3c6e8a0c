package parser

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe     = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	emailFullRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	urlRe       = regexp.MustCompile(`https?://[^\s)>\]]+`)
	phoneRe     = regexp.MustCompile(`\+?\d[\d \-().]{7,}\d`)
)

// KnownPII 正则提取的联系方式基准集合。
// 作为反幻觉过滤的信任边界：模型声称的联系方式必须能在这里找到。
// JSON字段名同时用于抽取prompt中的已验证线索。
type KnownPII struct {
	EmailsFound []string `json:"emails_found"`
	PhonesFound []string `json:"phones_found"`
	LinksFound  []string `json:"links_found"`
}

// ExtractKnownPII 从原始文本中提取邮箱、电话与URL。
// 纯函数：邮箱小写化去重排序，电话归一为数字串（至少10位数字），URL去重排序。
func ExtractKnownPII(text string) KnownPII {
	emailSet := make(map[string]struct{})
	for _, m := range emailRe.FindAllString(text, -1) {
		emailSet[strings.ToLower(m)] = struct{}{}
	}

	urlSet := make(map[string]struct{})
	for _, m := range urlRe.FindAllString(text, -1) {
		urlSet[m] = struct{}{}
	}

	phoneSet := make(map[string]struct{})
	for _, m := range findPhones(text) {
		p := NormalizePhone(m)
		if p != "" {
			phoneSet[p] = struct{}{}
		}
	}

	return KnownPII{
		EmailsFound: sortedKeys(emailSet),
		PhonesFound: sortedKeys(phoneSet),
		LinksFound:  sortedKeys(urlSet),
	}
}

// findPhones 查找电话号码候选。Go的regexp不支持环视，
// 数字边界（前后不能紧贴数字）在这里手工校验。
func findPhones(text string) []string {
	var out []string
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigit(text[start-1]) {
			continue
		}
		if end < len(text) && isDigit(text[end]) {
			continue
		}
		out = append(out, strings.TrimSpace(text[start:end]))
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// NormalizeEmail 归一邮箱用于集合比较：小写、去空白。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone 归一电话为规范的纯数字串，
// 数字少于10位返回空串（视为非电话）。
func NormalizePhone(phone string) string {
	var sb strings.Builder
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			sb.WriteRune(c)
		}
	}
	if sb.Len() < 10 {
		return ""
	}
	return sb.String()
}

// IsEmail 判断字符串整体是否为合法邮箱格式。
func IsEmail(s string) bool {
	return emailFullRe.MatchString(s)
}

// ClassifyLinks 从URL集合中识别linkedin/github/portfolio链接，
// 与原始文本中未分类的其余链接。
func ClassifyLinks(urls []string) (linkedin, github, portfolio string) {
	for _, u := range urls {
		if linkedin == "" && strings.Contains(strings.ToLower(u), "linkedin.com") {
			linkedin = u
		}
	}
	for _, u := range urls {
		if github == "" && strings.Contains(strings.ToLower(u), "github.com") {
			github = u
		}
	}
	for _, u := range urls {
		if u != linkedin && u != github {
			portfolio = u
			break
		}
	}
	return linkedin, github, portfolio
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
