// Package collector turns remote job boards into raw postings. Each source
// kind has an adapter that knows the board's transport (JSON API, static
// HTML, rendered HTML) and normalizes results into RawPosting. Adapters
// never touch the store; persistence and filtering happen upstream.
package collector

import (
	"context"
	"fmt"
	"strings"
)

// Source kinds supported by New.
const (
	KindGreenhouse = "greenhouse"
	KindLever      = "lever"
	KindCareerPage = "careerpage"
	KindInfojobs   = "infojobs"
)

// RawPosting is one posting as the board presented it, before any
// eligibility decision. ExternalID may be empty when the board exposes no
// stable identifier; the caller derives a synthetic one.
type RawPosting struct {
	ExternalID   string
	URL          string
	Title        string
	Company      string
	Location     string
	SalaryRaw    string
	ContractType string
	Description  string
}

// Collector fetches the current postings of one configured source.
type Collector interface {
	// Collect returns every posting currently listed. An empty slice with a
	// nil error is a legitimate empty run.
	Collect(ctx context.Context) ([]RawPosting, error)
}

// New builds the adapter for a configured source.
func New(kind, name, url string) (Collector, error) {
	switch strings.ToLower(kind) {
	case KindGreenhouse:
		return NewGreenhouse(name, url), nil
	case KindLever:
		return NewLever(name, url), nil
	case KindCareerPage:
		return NewCareerPage(name, url), nil
	case KindInfojobs:
		return NewInfojobs(name, url), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", kind)
}
