package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Lever reads a Lever postings API endpoint, e.g.
// https://api.lever.co/v0/postings/<org>?mode=json.
type Lever struct {
	name string
	url  string
}

func NewLever(name, url string) *Lever {
	return &Lever{name: name, url: url}
}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	Categories struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	DescriptionPlain string `json:"descriptionPlain"`
	Salary           struct {
		Min      int    `json:"min"`
		Max      int    `json:"max"`
		Currency string `json:"currency"`
		Interval string `json:"interval"`
	} `json:"salaryRange"`
}

func (l *Lever) Collect(ctx context.Context) ([]RawPosting, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lever postings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lever postings returned status %d", resp.StatusCode)
	}

	var items []leverPosting
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode lever response: %w", err)
	}

	postings := make([]RawPosting, 0, len(items))
	for _, item := range items {
		p := RawPosting{
			ExternalID:   item.ID,
			URL:          item.HostedURL,
			Title:        item.Text,
			Company:      l.name,
			Location:     item.Categories.Location,
			ContractType: item.Categories.Commitment,
			Description:  cleanText(item.DescriptionPlain),
		}
		if item.Salary.Max > 0 {
			p.SalaryRaw = fmt.Sprintf("%d-%d %s %s",
				item.Salary.Min, item.Salary.Max, item.Salary.Currency, item.Salary.Interval)
		}
		postings = append(postings, p)
	}
	return postings, nil
}
