package processor

import (
	"encoding/json"
	"fmt"
)

// 各阶段的系统提示词。抽取prompt坚持"只许抄原文"，
// 反幻觉过滤仍会对输出做二次核验。

const extractionSystemPrompt = `You are a resume information extraction engine.

Rules you MUST follow:
1) Output ONLY valid JSON. No markdown. No commentary.
2) Extract facts ONLY from the provided resume text. Do not infer or invent.
3) If a field is unknown or not present, use null (for scalars) or [] (for arrays).
4) Every evidence string you provide MUST be an exact substring copied from the resume text.
5) Do not include any keys that are not in the provided schema/template.
6) Confidence values must be between 0 and 1.
7) Do not fabricate emails, phone numbers, links, institutions, companies, titles, or dates.
8) For dates, use YYYY-MM-DD format when possible, or YYYY-MM, or just YYYY if only year is known.
9) For current positions, set end_date to null and is_current to true.

Return JSON that conforms exactly to the provided schema/template.`

const classifySystemPrompt = `You are a classifier for candidate job role and seniority based ONLY on provided structured resume data.
Output ONLY valid JSON. No markdown. No commentary. Do not invent facts. Confidence must be 0..1.

## Role Categories (choose the most appropriate):
- Software Engineer / Developer
- Data Scientist / ML Engineer
- Data Analyst / Business Intelligence
- DevOps / SRE / Platform Engineer
- Product Manager
- Engineering Manager / Tech Lead
- Designer (UX/UI)
- QA / Test Engineer
- Security Engineer
- Solutions Architect
- Technical Writer
- Other (specify)

## Seniority Levels (from experience and titles):
- Intern: Student or recent graduate with < 1 year experience
- Junior: 0-2 years experience, learning the craft
- Mid: 2-5 years experience, independent contributor
- Senior: 5-8 years experience, mentors others, leads projects
- Staff: 8-12 years experience, technical leadership across teams
- Principal: 12+ years experience, organization-wide technical impact
- Lead/Manager: People management responsibilities

## Classification Guidelines:
- Base role on most recent and dominant experience
- Consider job titles, responsibilities, and technologies used
- Seniority should reflect actual experience level, not just titles
- If unclear, use lower confidence score`

const summarySystemPrompt = `You generate concise recruiter summaries from structured resume data.
Output ONLY valid JSON. No markdown. No commentary. Do not invent facts.

## Guidelines:
- one_liner: A single compelling sentence (max 150 chars) highlighting the candidate's strongest value proposition
- highlights: Up to 5 bullet points (each max 100 chars) covering:
  * Key technical skills or domain expertise
  * Notable achievements or impact (quantified if possible)
  * Relevant experience at well-known companies
  * Educational credentials if notable
  * Unique differentiators

## Tone:
- Professional and action-oriented
- Focus on facts, not fluff
- Use active voice
- Emphasize measurable achievements when available`

const requirementsSystemPrompt = `You are a candidate requirements validator.
Evaluate if a candidate meets the specified job requirements based ONLY on the provided candidate data.
Output ONLY valid JSON. No markdown. No commentary.

Be strict but fair:
- For role matching, consider semantic similarity (e.g., "Software Developer" matches "Software Engineer")
- For skills, check if the candidate has equivalent or related skills
- Be honest about mismatches - don't approve candidates who clearly don't fit`

const repromptInstruction = `Your previous response was not valid JSON. Respond again with ONLY the JSON object, no markdown fences, no commentary.`

// buildExtractionPrompt 构造抽取user prompt：规范模板 + 已验证联系线索 + 简历原文。
func buildExtractionPrompt(resumeText string, knownPII interface{}) string {
	templateJSON, _ := json.Marshal(NewProfile())
	piiJSON, _ := json.Marshal(knownPII)
	return fmt.Sprintf(
		"Extract structured resume data from the text below.\n\n"+
			"Schema/template (must match exactly):\n%s\n\n"+
			"Known verified contact hints (prefer these; do not contradict them):\n%s\n\n"+
			"Resume text:\n<<<\n%s\n>>>",
		templateJSON, piiJSON, resumeText)
}

func buildClassifyPrompt(p *Profile) string {
	normalizedJSON, _ := json.Marshal(p)
	return fmt.Sprintf(
		"Classify the candidate based on the resume data.\n\n"+
			"Return ONLY JSON with keys:\n"+
			"- primary_role: The main job role/title that best fits this candidate\n"+
			"- secondary_roles: Array of up to 3 alternative roles they could fill\n"+
			"- seniority: One of [Intern, Junior, Mid, Senior, Staff, Principal, Lead/Manager]\n"+
			"- confidence: Float 0-1 indicating classification confidence\n"+
			"- rationale: Brief explanation of the classification\n\n"+
			"Structured resume JSON:\n%s",
		normalizedJSON)
}

func buildSummaryPrompt(p *Profile) string {
	normalizedJSON, _ := json.Marshal(p)
	return fmt.Sprintf(
		"Create a recruiter-friendly summary of this candidate.\n\n"+
			"Return ONLY JSON with keys:\n"+
			"- one_liner: A single compelling sentence (max 150 chars) summarizing the candidate\n"+
			"- highlights: Array of up to 5 bullet points (each max 100 chars) with key strengths\n\n"+
			"Structured resume JSON:\n%s",
		normalizedJSON)
}

func buildRequirementsPrompt(candidateData, requirements interface{}) string {
	candJSON, _ := json.MarshalIndent(candidateData, "", "  ")
	reqJSON, _ := json.MarshalIndent(requirements, "", "  ")
	return fmt.Sprintf(
		"Evaluate if this candidate meets the job requirements.\n\n"+
			"Return ONLY JSON with these keys:\n"+
			"- meets_requirements: boolean (true if candidate meets ALL requirements)\n"+
			"- reasons: array of strings explaining each requirement check result\n"+
			"- confidence: float 0-1 (how confident you are in the assessment)\n\n"+
			"CANDIDATE DATA:\n%s\n\n"+
			"REQUIREMENTS:\n%s\n\n"+
			"Evaluate each requirement strictly:\n"+
			"- required_primary_role: Does the candidate's role/experience match semantically?\n"+
			"- required_skills: Does the candidate have ALL these skills (or equivalent)?\n"+
			"- any_skills: Does the candidate have AT LEAST ONE of these skills?\n"+
			"- min_years_experience: Does total experience meet the minimum?\n"+
			"- required_education_degree: Does the candidate have this level of education?\n"+
			"- required_seniority: Does the candidate's seniority level match?\n"+
			"- location_contains: Is the candidate in or near the required location?\n"+
			"- min_confidence: Is the parsing confidence score high enough?\n",
		candJSON, reqJSON)
}
