package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini generates documents through the Gemini API in JSON mode.
type Gemini struct {
	client         *genai.Client
	model          string
	qualityMinimum float64
}

// NewGemini creates the client. The model name and quality floor come from
// configuration; the API key from the environment.
func NewGemini(ctx context.Context, apiKey, model string, qualityMinimum float64) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model, qualityMinimum: qualityMinimum}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate produces and validates one document.
func (g *Gemini) Generate(ctx context.Context, in Input) (*Document, []byte, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(buildPrompt(in)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate document: %w", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, nil, err
	}
	return ParseDocument(text, g.qualityMinimum)
}

func buildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are writing a job application for the following opening. ")
	b.WriteString("Respond with a single JSON object with keys cover_letter, resume_summary, ")
	b.WriteString("highlights (array of strings), and quality_score (your own 0-10 assessment ")
	b.WriteString("of how well the candidate profile fits this job). ")
	b.WriteString("Write cover_letter and resume_summary in the language of the posting.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Company: %s\n", in.Company)
	if in.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", in.Location)
	}
	fmt.Fprintf(&b, "Candidate profile: %s\n\n", in.Profile)
	fmt.Fprintf(&b, "Posting description:\n%s\n", in.Description)
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}
	return strings.Join(parts, "\n"), nil
}
