package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// defaultTimeout bounds every board request.
const defaultTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (compatible; canjebot/1.0)"

// minRenderedLength is the extracted-text length below which a career page
// is assumed to be a JavaScript-rendered SPA and retried in a headless
// browser.
const minRenderedLength = 500

var httpClient = &http.Client{Timeout: defaultTimeout}

// fetchHTML performs a plain GET and returns the body. Non-200 responses are
// errors; the scheduler treats them as failed runs, not empty ones.
func fetchHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.5")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return string(body), nil
}

// renderHTML loads a page in headless Chrome and returns the rendered DOM.
// Requires Chrome or Chromium on the host.
func renderHTML(ctx context.Context, url string) (string, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, defaultTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed for %s: %w", url, err)
	}
	return html, nil
}

// needsBrowser reports whether a statically fetched page is too thin to
// contain real listings.
func needsBrowser(doc *goquery.Document) bool {
	text := strings.TrimSpace(doc.Find("body").Text())
	return len(text) < minRenderedLength
}

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
