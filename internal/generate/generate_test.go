package generate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDocJSON(score string) string {
	return `{
		"cover_letter": "` + strings.Repeat("Estimado equipo de selección. ", 10) + `",
		"resume_summary": "Técnico de laboratorio con cinco años de experiencia en análisis clínico.",
		"highlights": ["Certificación en análisis clínicos.", "Experiencia con LIMS y control de calidad."],
		"quality_score": ` + score + `
	}`
}

func TestParseDocumentValid(t *testing.T) {
	doc, raw, err := ParseDocument(validDocJSON("8.5"), 7.0)
	require.NoError(t, err)
	assert.Equal(t, 8.5, doc.QualityScore)
	assert.Len(t, doc.Highlights, 2)
	assert.NotEmpty(t, raw)
	assert.True(t, strings.HasPrefix(string(raw), "{"))
}

func TestParseDocumentStripsFences(t *testing.T) {
	wrapped := "```json\n" + validDocJSON("9") + "\n```"
	doc, _, err := ParseDocument(wrapped, 7.0)
	require.NoError(t, err)
	assert.Equal(t, 9.0, doc.QualityScore)

	generic := "```\n" + validDocJSON("9") + "\n```"
	_, _, err = ParseDocument(generic, 7.0)
	require.NoError(t, err)
}

func TestParseDocumentBelowQualityFloor(t *testing.T) {
	_, _, err := ParseDocument(validDocJSON("5.0"), 7.0)
	require.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "quality score")
}

func TestParseDocumentSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "this is not json at all"},
		{"missing fields", `{"cover_letter": "` + strings.Repeat("x", 250) + `"}`},
		{"cover letter too short", `{"cover_letter": "hi", "resume_summary": "` +
			strings.Repeat("y", 60) + `", "highlights": ["aaaaaaaaaaaa", "bbbbbbbbbbbb"], "quality_score": 8}`},
		{"too few highlights", `{"cover_letter": "` + strings.Repeat("x", 250) + `", "resume_summary": "` +
			strings.Repeat("y", 60) + `", "highlights": ["only one here"], "quality_score": 8}`},
		{"score out of range", validDocJSON("12")},
		{"extra field", `{"cover_letter": "` + strings.Repeat("x", 250) + `", "resume_summary": "` +
			strings.Repeat("y", 60) + `", "highlights": ["aaaaaaaaaaaa", "bbbbbbbbbbbb"], "quality_score": 8, "extra": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseDocument(tt.raw, 7.0)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONBlock(`{"a":1}`))
}

func TestBuildPromptIncludesPosting(t *testing.T) {
	p := buildPrompt(Input{
		Title:       "Técnico de laboratorio",
		Company:     "Acme Labs",
		Location:    "Madrid",
		Description: "Análisis de muestras.",
		Profile:     "lab technician, 5 years",
	})
	assert.Contains(t, p, "Técnico de laboratorio")
	assert.Contains(t, p, "Acme Labs")
	assert.Contains(t, p, "Madrid")
	assert.Contains(t, p, "Análisis de muestras.")
	assert.Contains(t, p, "lab technician")
}
