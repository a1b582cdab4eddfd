// Package generate produces tailored application documents for qualified
// jobs. The output contract is strict: a document that fails schema
// validation or scores under the quality floor is rejected here, before any
// human ever sees it.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrValidationFailed marks a generated document the pipeline must not keep.
var ErrValidationFailed = errors.New("document validation failed")

// Input describes the job a document is generated for.
type Input struct {
	Title       string
	Company     string
	Location    string
	Description string
	Profile     string
}

// Document is the generated application package.
type Document struct {
	CoverLetter   string   `json:"cover_letter"`
	ResumeSummary string   `json:"resume_summary"`
	Highlights    []string `json:"highlights"`
	QualityScore  float64  `json:"quality_score"`
}

// Generator produces one document per job.
type Generator interface {
	Generate(ctx context.Context, in Input) (*Document, []byte, error)
}

// documentSchema is the contract every generated document must satisfy.
const documentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["cover_letter", "resume_summary", "highlights", "quality_score"],
	"properties": {
		"cover_letter": {"type": "string", "minLength": 200},
		"resume_summary": {"type": "string", "minLength": 50},
		"highlights": {
			"type": "array",
			"minItems": 2,
			"maxItems": 8,
			"items": {"type": "string", "minLength": 10}
		},
		"quality_score": {"type": "number", "minimum": 0, "maximum": 10}
	},
	"additionalProperties": false
}`

// ParseDocument strips markdown fences, validates the JSON against the
// document schema, and enforces the quality floor. The returned raw bytes
// are the cleaned JSON as persisted.
func ParseDocument(raw string, qualityMinimum float64) (*Document, []byte, error) {
	cleaned := cleanJSONBlock(raw)

	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	docLoader := gojsonschema.NewStringLoader(cleaned)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(msgs, "; "))
	}

	var doc Document
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if doc.QualityScore < qualityMinimum {
		return nil, nil, fmt.Errorf("%w: quality score %.1f below minimum %.1f",
			ErrValidationFailed, doc.QualityScore, qualityMinimum)
	}
	return &doc, []byte(cleaned), nil
}

// cleanJSONBlock removes markdown code fences the model sometimes wraps
// around JSON despite instructions.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.Contains(first, " ") && !strings.Contains(first, "{") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
