package collector

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CareerPage scrapes a company careers page that lists openings as HTML.
// Static fetch is tried first; pages that come back nearly empty are
// re-rendered in a headless browser before parsing.
type CareerPage struct {
	name string
	url  string

	// render is swapped in tests to avoid launching a browser.
	render func(ctx context.Context, url string) (string, error)
}

func NewCareerPage(name, pageURL string) *CareerPage {
	return &CareerPage{name: name, url: pageURL, render: renderHTML}
}

// listingSelectors are tried in order; the first one that matches anything
// wins. Ordered from most specific to generic.
var listingSelectors = []string{
	"[data-job-id]",
	".job-listing",
	".job-offer",
	".job-item",
	".opening",
	".position",
	"li.job",
	".careers-list li",
	"ul.jobs li",
}

var titleSelectors = []string{
	".job-title", ".title", "h3", "h2", "a",
}

func (c *CareerPage) Collect(ctx context.Context) ([]RawPosting, error) {
	html, err := fetchHTML(ctx, c.url)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}

	if needsBrowser(doc) {
		rendered, err := c.render(ctx, c.url)
		if err != nil {
			return nil, err
		}
		if doc, err = parseDocument(rendered); err != nil {
			return nil, err
		}
	}

	var listings *goquery.Selection
	for _, sel := range listingSelectors {
		if s := doc.Find(sel); s.Length() > 0 {
			listings = s
			break
		}
	}
	if listings == nil {
		return nil, nil
	}

	var postings []RawPosting
	listings.Each(func(_ int, item *goquery.Selection) {
		p := RawPosting{
			Company:      c.name,
			ExternalID:   strings.TrimSpace(item.AttrOr("data-job-id", "")),
			Location:     cleanText(item.Find(".location, .job-location").Text()),
			SalaryRaw:    cleanText(item.Find(".salary, .job-salary").Text()),
			ContractType: cleanText(item.Find(".contract, .contract-type, .job-type").Text()),
			Description:  cleanText(item.Find(".description, .job-description").Text()),
		}
		for _, sel := range titleSelectors {
			if t := cleanText(item.Find(sel).First().Text()); t != "" {
				p.Title = t
				break
			}
		}
		if href, ok := item.Find("a[href]").First().Attr("href"); ok {
			p.URL = c.absoluteURL(href)
		}
		if p.URL == "" {
			p.URL = c.url
		}
		if p.Description == "" {
			p.Description = cleanText(item.Text())
		}
		if p.Title == "" {
			return
		}
		postings = append(postings, p)
	})
	return postings, nil
}

func (c *CareerPage) absoluteURL(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	base, err := url.Parse(c.url)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
