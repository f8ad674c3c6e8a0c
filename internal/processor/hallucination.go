package processor

import (
	"strings"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/parser"
)

// ApplyHallucinationFilter 用正则基准集合核验模型声称的联系方式。
// 凡不在基准集合内的claim一律剔除并记UNVERIFIED_<FIELD>警告，
// 剔除后字段留空，绝不用基准值顶替被剔除的claim。
// 只有模型对该字段完全未声称时才从基准集合回填。绝不使整个运行失败。
// 返回(警告列表, 剔除的字段数)，剔除数用于置信度惩罚。
func ApplyHallucinationFilter(p *Profile, pii parser.KnownPII) ([]string, int) {
	var warnings []string
	stripped := 0

	foundEmails := make(map[string]bool, len(pii.EmailsFound))
	for _, e := range pii.EmailsFound {
		foundEmails[e] = true
	}
	foundPhones := make(map[string]bool, len(pii.PhonesFound))
	for _, ph := range pii.PhonesFound {
		foundPhones[ph] = true
	}
	foundLinks := make(map[string]bool, len(pii.LinksFound))
	for _, u := range pii.LinksFound {
		foundLinks[u] = true
	}

	// 邮箱：基准集合非空时做成员校验，空时只留格式合法的
	var emails []string
	emailStripped := false
	for _, e := range p.Candidate.Emails {
		ne := parser.NormalizeEmail(e)
		if ne == "" {
			continue
		}
		if len(foundEmails) > 0 {
			if foundEmails[ne] {
				emails = append(emails, ne)
			} else {
				emailStripped = true
			}
		} else if parser.IsEmail(ne) {
			emails = append(emails, ne)
		} else {
			emailStripped = true
		}
	}
	// 模型只字未提邮箱时才回填；剔除过claim则字段保持为空
	if len(p.Candidate.Emails) == 0 && len(foundEmails) > 0 {
		emails = append(emails, pii.EmailsFound...)
	}
	if emailStripped {
		warnings = append(warnings, constants.WarnUnverifiedEmail)
		stripped++
	}

	// 电话：数字串归一后做成员校验
	var phones []string
	phoneStripped := false
	for _, raw := range p.Candidate.Phones {
		np := parser.NormalizePhone(raw)
		if np == "" {
			phoneStripped = true
			continue
		}
		if len(foundPhones) > 0 {
			if foundPhones[np] {
				phones = append(phones, np)
			} else {
				phoneStripped = true
			}
		} else {
			phones = append(phones, np)
		}
	}
	if len(p.Candidate.Phones) == 0 && len(foundPhones) > 0 {
		phones = append(phones, pii.PhonesFound...)
	}
	if phoneStripped {
		warnings = append(warnings, constants.WarnUnverifiedPhone)
		stripped++
	}

	p.Candidate.Emails = dedupeStrings(emails)
	p.Candidate.Phones = dedupeStrings(phones)

	// 链接：正则找到的URL分类后与模型声称的互相印证
	linkedin, github, portfolio := parser.ClassifyLinks(pii.LinksFound)

	verify := func(claimed *string, fallback string, warnCode string) *string {
		var value string
		if claimed != nil {
			value = strings.TrimSpace(*claimed)
		}
		if value == "" {
			// 未声称时回填分类好的基准链接
			if fallback == "" {
				return nil
			}
			return &fallback
		}
		if len(foundLinks) > 0 && !foundLinks[value] {
			warnings = append(warnings, warnCode)
			stripped++
			return nil
		}
		return &value
	}

	p.Candidate.Links.Linkedin = verify(p.Candidate.Links.Linkedin, linkedin, constants.WarnUnverifiedLinkedIn)
	p.Candidate.Links.Github = verify(p.Candidate.Links.Github, github, constants.WarnUnverifiedGitHub)
	p.Candidate.Links.Portfolio = verify(p.Candidate.Links.Portfolio, portfolio, constants.WarnUnverifiedPortfolio)

	var other []string
	for _, u := range p.Candidate.Links.Other {
		if len(foundLinks) == 0 || foundLinks[u] {
			other = append(other, u)
		}
	}
	p.Candidate.Links.Other = dedupeStrings(other)

	p.ensureSlices()
	return warnings, stripped
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
