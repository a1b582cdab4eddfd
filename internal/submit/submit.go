// Package submit delivers an authorized application to the board. Submission
// runs exactly once per application: the outcome is either a confirmed
// delivery, a definite failure, or ambiguous when the page gives no reliable
// signal either way. Ambiguous outcomes are never retried automatically; a
// blind retry could double-submit.
package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Outcome classifies one submission attempt.
type Outcome int

const (
	// Confirmed means the board acknowledged the submission.
	Confirmed Outcome = iota
	// Ambiguous means the form was sent but no confirmation appeared.
	Ambiguous
	// Failed means the submission did not happen; the document survives for
	// an operator to submit manually.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Ambiguous:
		return "ambiguous"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Request carries everything a submission needs.
type Request struct {
	URL       string
	Applicant Applicant
	Document  []byte
}

// Applicant is the static identity filled into application forms.
type Applicant struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Submitter sends one application.
type Submitter interface {
	Submit(ctx context.Context, req Request) (Outcome, string, error)
}

// Browser submits through a headless browser: navigate, fill the form,
// click submit, look for a confirmation.
type Browser struct {
	timeout time.Duration
}

func NewBrowser(timeout time.Duration) *Browser {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Browser{timeout: timeout}
}

// confirmationMarkers are phrases boards show after a successful submission.
var confirmationMarkers = []string{
	"application submitted",
	"thank you for applying",
	"solicitud enviada",
	"candidatura enviada",
	"gracias por tu candidatura",
	"hemos recibido tu solicitud",
}

type document struct {
	CoverLetter string `json:"cover_letter"`
}

// Submit drives the form. A navigation or form error before the submit click
// is Failed; anything after the click that leaves us without a confirmation
// is Ambiguous.
func (b *Browser) Submit(ctx context.Context, req Request) (Outcome, string, error) {
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
	browserCtx, cancel = context.WithTimeout(browserCtx, b.timeout)
	defer cancel()

	var doc document
	if err := json.Unmarshal(req.Document, &doc); err != nil {
		return Failed, "", fmt.Errorf("failed to decode document: %w", err)
	}

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		fillIfPresent(`input[name*="name"], input[id*="name"]`, req.Applicant.FullName),
		fillIfPresent(`input[type="email"], input[name*="email"]`, req.Applicant.Email),
		fillIfPresent(`input[type="tel"], input[name*="phone"]`, req.Applicant.Phone),
		fillIfPresent(`textarea[name*="cover"], textarea[id*="cover"], textarea`, doc.CoverLetter),
	)
	if err != nil {
		return Failed, "", fmt.Errorf("failed to fill application form: %w", err)
	}

	// Past this point the form may already be on its way; errors no longer
	// mean "not submitted".
	err = chromedp.Run(browserCtx,
		chromedp.Click(`button[type="submit"], input[type="submit"]`, chromedp.NodeVisible),
	)
	if err != nil {
		return Failed, "", fmt.Errorf("failed to click submit: %w", err)
	}

	var body string
	err = chromedp.Run(browserCtx,
		chromedp.Sleep(3*time.Second),
		chromedp.Text("body", &body, chromedp.NodeVisible),
	)
	if err != nil {
		return Ambiguous, "", fmt.Errorf("no confirmation readable after submit: %w", err)
	}

	if marker := matchConfirmation(body); marker != "" {
		return Confirmed, marker, nil
	}
	return Ambiguous, "", nil
}

// fillIfPresent fills the first matching field and ignores selectors the
// page does not have.
func fillIfPresent(selector, value string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if value == "" {
			return nil
		}
		_ = chromedp.SendKeys(selector, value, chromedp.NodeVisible, chromedp.AtLeast(0)).Do(ctx)
		return nil
	})
}

func matchConfirmation(body string) string {
	lower := strings.ToLower(body)
	for _, marker := range confirmationMarkers {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}
