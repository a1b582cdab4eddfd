package collector

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Infojobs crawls an InfoJobs-style board: a listing page of offer links,
// each resolved to a detail page. Requests are rate limited; the per-source
// pacing on top of that belongs to the scheduler.
type Infojobs struct {
	name        string
	url         string
	allowedHost string
}

func NewInfojobs(name, listURL string) *Infojobs {
	return &Infojobs{name: name, url: listURL, allowedHost: hostFromURL(listURL)}
}

func hostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(u.Host); err == nil {
		return host
	}
	return u.Host
}

func (i *Infojobs) newCollector() *colly.Collector {
	var c *colly.Collector
	if i.allowedHost == "" {
		c = colly.NewCollector()
	} else {
		c = colly.NewCollector(colly.AllowedDomains(i.allowedHost))
	}
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       400 * time.Millisecond,
		RandomDelay: 850 * time.Millisecond,
	})
	c.UserAgent = userAgent
	return c
}

func (i *Infojobs) Collect(ctx context.Context) ([]RawPosting, error) {
	links, err := i.collectListing(ctx)
	if err != nil {
		return nil, err
	}

	postings := make([]RawPosting, 0, len(links))
	for _, link := range links {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p, err := i.collectDetail(ctx, link)
		if err != nil {
			// One broken detail page does not fail the whole run.
			continue
		}
		postings = append(postings, p)
	}
	return postings, nil
}

func (i *Infojobs) collectListing(ctx context.Context) ([]string, error) {
	c := i.newCollector()

	var links []string
	seen := map[string]struct{}{}
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" || !isOfferLink(href) {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	var reqErr error
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := c.Visit(i.url); err != nil {
		return nil, fmt.Errorf("failed to visit listing page: %w", err)
	}
	c.Wait()
	if reqErr != nil {
		return nil, fmt.Errorf("listing page request failed: %w", reqErr)
	}
	return links, nil
}

// isOfferLink matches InfoJobs offer URL shapes, e.g.
// /barcelona/tecnico-de-laboratorio/of-i8a1b2c3.
func isOfferLink(href string) bool {
	return strings.Contains(href, "/of-i") || strings.Contains(href, "/ofertas-trabajo/")
}

func (i *Infojobs) collectDetail(ctx context.Context, offerURL string) (RawPosting, error) {
	c := i.newCollector()

	p := RawPosting{URL: offerURL, ExternalID: offerIDFromURL(offerURL)}
	c.OnHTML("h1", func(e *colly.HTMLElement) {
		if p.Title == "" {
			p.Title = cleanText(e.Text)
		}
	})
	c.OnHTML(".company-name, [data-test='company-name'], .link-company", func(e *colly.HTMLElement) {
		if p.Company == "" {
			p.Company = cleanText(e.Text)
		}
	})
	c.OnHTML("li, dd", func(e *colly.HTMLElement) {
		text := cleanText(e.Text)
		lower := strings.ToLower(text)
		switch {
		case p.SalaryRaw == "" && strings.Contains(lower, "salario"):
			p.SalaryRaw = strings.TrimSpace(strings.TrimPrefix(text, "Salario:"))
		case p.ContractType == "" && strings.Contains(lower, "contrato"):
			p.ContractType = strings.TrimSpace(strings.TrimPrefix(text, "Tipo de contrato:"))
		case p.Location == "" && strings.Contains(lower, "localidad"):
			p.Location = strings.TrimSpace(strings.TrimPrefix(text, "Localidad:"))
		}
	})
	c.OnHTML(".offer-description, [data-test='offer-description'], #prefijoDescripcion1", func(e *colly.HTMLElement) {
		if p.Description == "" {
			p.Description = cleanText(e.Text)
		}
	})

	var reqErr error
	c.OnError(func(_ *colly.Response, err error) {
		reqErr = err
	})

	if ctx.Err() != nil {
		return RawPosting{}, ctx.Err()
	}
	if err := c.Visit(offerURL); err != nil {
		return RawPosting{}, fmt.Errorf("failed to visit offer page: %w", err)
	}
	c.Wait()
	if reqErr != nil {
		return RawPosting{}, fmt.Errorf("offer page request failed: %w", reqErr)
	}
	if p.Company == "" {
		p.Company = i.name
	}
	return p, nil
}

// offerIDFromURL pulls the trailing offer token from an InfoJobs URL.
func offerIDFromURL(offerURL string) string {
	u, err := url.Parse(offerURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if strings.HasPrefix(last, "of-i") {
		return last
	}
	return ""
}
