package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
)

// Greenhouse reads a Greenhouse board API endpoint, e.g.
// https://boards-api.greenhouse.io/v1/boards/<org>/jobs?content=true.
type Greenhouse struct {
	name string
	url  string
}

func NewGreenhouse(name, url string) *Greenhouse {
	return &Greenhouse{name: name, url: url}
}

type greenhouseJob struct {
	ID          int64  `json:"id"`
	AbsoluteURL string `json:"absolute_url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	CompanyName string `json:"company_name"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Metadata []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"metadata"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

func (g *Greenhouse) Collect(ctx context.Context) ([]RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch greenhouse board: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("greenhouse board returned status %d", resp.StatusCode)
	}

	var board greenhouseResponse
	if err := json.NewDecoder(resp.Body).Decode(&board); err != nil {
		return nil, fmt.Errorf("failed to decode greenhouse response: %w", err)
	}

	postings := make([]RawPosting, 0, len(board.Jobs))
	for _, j := range board.Jobs {
		company := j.CompanyName
		if company == "" {
			company = g.name
		}
		p := RawPosting{
			ExternalID:  strconv.FormatInt(j.ID, 10),
			URL:         j.AbsoluteURL,
			Title:       j.Title,
			Company:     company,
			Location:    j.Location.Name,
			Description: stripGreenhouseContent(j.Content),
		}
		for _, m := range j.Metadata {
			var v string
			if err := json.Unmarshal(m.Value, &v); err != nil {
				continue
			}
			switch strings.ToLower(m.Name) {
			case "salary", "salary range", "salario":
				p.SalaryRaw = v
			case "employment type", "contract type", "tipo de contrato":
				p.ContractType = v
			}
		}
		postings = append(postings, p)
	}
	return postings, nil
}

// stripGreenhouseContent unescapes the board's HTML-entity-encoded content
// and flattens tags to plain text good enough for keyword matching.
func stripGreenhouseContent(content string) string {
	unescaped := html.UnescapeString(content)
	doc, err := parseDocument(unescaped)
	if err != nil {
		return cleanText(unescaped)
	}
	return cleanText(doc.Text())
}
