package processor

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resumeSchemaJSON 抽取输出的JSON Schema（draft 2020-12）。
// 顶层允许额外字段，candidate/links等关键对象收紧为additionalProperties:false。
const resumeSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "candidate", "skills", "education", "experience", "quality"],
  "additionalProperties": true,
  "properties": {
    "schema_version": {"type": "string", "pattern": "^\\d+\\.\\d+$"},
    "candidate": {
      "type": "object",
      "required": ["full_name", "emails", "phones", "links"],
      "additionalProperties": false,
      "properties": {
        "full_name": {"type": ["string", "null"], "minLength": 1, "maxLength": 255},
        "headline": {"type": ["string", "null"], "maxLength": 255},
        "location": {"type": ["string", "null"], "maxLength": 255},
        "emails": {"type": "array", "items": {"type": "string"}},
        "phones": {"type": "array", "items": {"type": "string"}},
        "links": {
          "type": "object",
          "required": ["linkedin", "github", "portfolio", "other"],
          "additionalProperties": false,
          "properties": {
            "linkedin": {"type": ["string", "null"]},
            "github": {"type": ["string", "null"]},
            "portfolio": {"type": ["string", "null"]},
            "other": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "skills": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "confidence", "evidence"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1, "maxLength": 100},
          "category": {"type": ["string", "null"], "maxLength": 100},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "evidence": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "education": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["institution", "degree", "start_date", "end_date", "confidence", "evidence"],
        "additionalProperties": false,
        "properties": {
          "institution": {"type": ["string", "null"], "maxLength": 255},
          "degree": {"type": ["string", "null"], "maxLength": 255},
          "field_of_study": {"type": ["string", "null"], "maxLength": 255},
          "start_date": {"type": ["string", "null"]},
          "end_date": {"type": ["string", "null"]},
          "grade": {"type": ["string", "null"], "maxLength": 50},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "evidence": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "experience": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["company", "title", "start_date", "end_date", "is_current", "bullets", "technologies", "confidence", "evidence"],
        "additionalProperties": false,
        "properties": {
          "company": {"type": ["string", "null"], "maxLength": 255},
          "title": {"type": ["string", "null"], "maxLength": 255},
          "employment_type": {
            "type": ["string", "null"],
            "enum": [null, "full-time", "part-time", "contract", "freelance", "internship"]
          },
          "start_date": {"type": ["string", "null"]},
          "end_date": {"type": ["string", "null"]},
          "is_current": {"type": "boolean"},
          "location": {"type": ["string", "null"], "maxLength": 255},
          "bullets": {"type": "array", "items": {"type": "string"}},
          "technologies": {"type": "array", "items": {"type": "string"}},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "evidence": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "projects": {"type": "array", "items": {"type": "object"}},
    "certifications": {"type": "array", "items": {"type": "object"}},
    "classification": {
      "type": ["object", "null"],
      "properties": {
        "primary_role": {"type": ["string", "null"], "maxLength": 100},
        "secondary_roles": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
        "seniority": {
          "type": ["string", "null"],
          "enum": [null, "Intern", "Junior", "Mid", "Senior", "Staff", "Principal", "Lead/Manager"]
        },
        "confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "rationale": {"type": ["string", "null"]}
      }
    },
    "summary": {
      "type": ["object", "null"],
      "properties": {
        "one_liner": {"type": ["string", "null"], "maxLength": 200},
        "highlights": {"type": "array", "items": {"type": "string", "maxLength": 150}, "maxItems": 5}
      }
    },
    "quality": {
      "type": "object",
      "required": ["warnings", "missing_critical_fields", "overall_confidence"],
      "properties": {
        "warnings": {"type": "array", "items": {"type": "string"}},
        "missing_critical_fields": {"type": "array", "items": {"type": "string"}},
        "overall_confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var resumeSchema = jsonschema.MustCompileString("resume.schema.json", resumeSchemaJSON)

const maxSchemaErrors = 20

// ValidateAgainstSchema 用JSON Schema校验模型输出，
// 返回人类可读的错误列表（形如 "candidate.emails.0: ..."），最多20条。
func ValidateAgainstSchema(llmJSON map[string]interface{}) []string {
	if llmJSON == nil {
		return []string{"LLM output is not a JSON object"}
	}

	err := resumeSchema.Validate(interface{}(llmJSON))
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var errors []string
	collectLeafErrors(ve, &errors)
	if len(errors) > maxSchemaErrors {
		errors = append(errors[:maxSchemaErrors], "... (truncated)")
	}
	return errors
}

// collectLeafErrors 深度优先收集叶子校验错误。
func collectLeafErrors(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		*out = append(*out, fmt.Sprintf("%s: %s", pointerToPath(ve.InstanceLocation), ve.Message))
		return
	}
	for _, cause := range ve.Causes {
		if len(*out) > maxSchemaErrors {
			return
		}
		collectLeafErrors(cause, out)
	}
}

// pointerToPath 把JSON指针转为点分路径，根路径显示为(root)。
func pointerToPath(ptr string) string {
	trimmed := strings.TrimPrefix(ptr, "/")
	if trimmed == "" {
		return "(root)"
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
