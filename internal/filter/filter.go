// Package filter implements the work-authorization eligibility filter for the
// "canje" (student stay → work permit exchange). A posting qualifies unless it
// explicitly declares a disqualifying condition: a temporal contract, a
// part-time schedule, or a stated salary entirely below the legal floor.
// Missing information never disqualifies.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason codes attached to ineligible verdicts.
const (
	ReasonTemporalContract = "temporal_contract"
	ReasonPartTime         = "part_time"
	ReasonBelowFloor       = "below_floor"
	ReasonBlockedCompany   = "blocked_company"
)

// Attributes are the posting fields the filter inspects. All fields are
// optional; empty means "not mentioned".
type Attributes struct {
	Title        string
	Company      string
	Description  string
	ContractType string
	SalaryRaw    string
}

// Reason is one triggered disqualification, kept for the audit trail.
type Reason struct {
	Code   string
	Detail string
}

// Verdict is the filter outcome. Reasons is non-empty iff Eligible is false.
type Verdict struct {
	Eligible bool
	Reasons  []Reason
}

func (v Verdict) String() string {
	if v.Eligible {
		return "eligible"
	}
	parts := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		parts[i] = r.Code
	}
	return "ineligible: " + strings.Join(parts, ",")
}

// Thresholds configure the compensation floor. The two bases exist because
// Spanish contracts commonly pay 14 installments: comparing a monthly figure
// against annual/12 would produce false rejections.
type Thresholds struct {
	AnnualFloor    float64
	MonthlyFloor   float64
	MinWeeklyHours int
}

// DefaultThresholds is the SMI floor in force for 2025 postings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AnnualFloor:    15876,
		MonthlyFloor:   1134,
		MinWeeklyHours: 35,
	}
}

// Filter is a pure, deterministic rule set. Construct once from config;
// changing thresholds never touches already-decided jobs because verdicts
// are persisted at decision time.
type Filter struct {
	thresholds Thresholds
	blocked    map[string]struct{}
}

// New builds a filter. blockedCompanies entries are matched case-insensitively.
func New(thresholds Thresholds, blockedCompanies []string) *Filter {
	blocked := make(map[string]struct{}, len(blockedCompanies))
	for _, c := range blockedCompanies {
		blocked[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	return &Filter{thresholds: thresholds, blocked: blocked}
}

// Explicit temporal contract keywords, lowercase.
var temporalKeywords = []string{
	"temporal",
	"por obra",
	"obra y servicio",
	"obra o servicio",
	"eventual",
	"interinidad",
	"interino",
	"interina",
	"sustitución",
	"sustitucion",
	"fijo discontinuo",
	"fijo-discontinuo",
	"fixed-term",
	"fixed term",
	"temporary contract",
	"contrato de duración determinada",
}

// Explicit part-time keywords, lowercase.
var partTimeKeywords = []string{
	"media jornada",
	"medio jornada",
	"tiempo parcial",
	"part time",
	"part-time",
	"jornada parcial",
	"jornada reducida",
}

// Weekly-hour mentions: "20 horas", "25h/semana", "30h semanales".
var hourPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:h(?:oras?)?|hrs?)(?:/semana|semanales|\s+semana|\s+semanales|/week)?\b`)

// Evaluate classifies a posting. It performs no I/O and is safe for
// concurrent use. Every triggered rule is reported, not only the first.
func (f *Filter) Evaluate(attrs Attributes) Verdict {
	title := strings.ToLower(attrs.Title)
	description := strings.ToLower(attrs.Description)
	contract := expandContractCode(strings.ToLower(strings.TrimSpace(attrs.ContractType)))
	salaryRaw := strings.ToLower(attrs.SalaryRaw)

	fullText := title + " " + contract + " " + description

	var reasons []Reason

	if _, ok := f.blocked[strings.ToLower(strings.TrimSpace(attrs.Company))]; ok {
		reasons = append(reasons, Reason{
			Code:   ReasonBlockedCompany,
			Detail: fmt.Sprintf("company %q is blocklisted", attrs.Company),
		})
	}

	if kw := findKeyword(fullText, temporalKeywords); kw != "" {
		reasons = append(reasons, Reason{
			Code:   ReasonTemporalContract,
			Detail: fmt.Sprintf("temporal contract detected: %q", kw),
		})
	}

	if kw := findKeyword(fullText, partTimeKeywords); kw != "" {
		reasons = append(reasons, Reason{
			Code:   ReasonPartTime,
			Detail: fmt.Sprintf("part-time detected: %q", kw),
		})
	} else if detail := f.checkHours(fullText); detail != "" {
		reasons = append(reasons, Reason{Code: ReasonPartTime, Detail: detail})
	}

	if detail := f.checkSalary(salaryRaw, description); detail != "" {
		reasons = append(reasons, Reason{Code: ReasonBelowFloor, Detail: detail})
	}

	return Verdict{Eligible: len(reasons) == 0, Reasons: reasons}
}

// expandContractCode maps board short codes to full phrases so the keyword
// scan can see them.
func expandContractCode(raw string) string {
	switch raw {
	case "td":
		return "temporal"
	case "ti":
		return "indefinido"
	case "fp":
		return "formación profesional"
	case "p":
		return "practicas"
	}
	return raw
}

func findKeyword(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

// checkHours returns a detail string when the text explicitly mentions a
// weekly schedule under the full-time minimum.
func (f *Filter) checkHours(text string) string {
	for _, m := range hourPattern.FindAllStringSubmatch(text, -1) {
		hours := parseInt(m[1])
		if hours > 0 && hours < f.thresholds.MinWeeklyHours {
			return fmt.Sprintf("part-time hours detected: %dh/week", hours)
		}
	}
	return ""
}

// checkSalary disqualifies only when every parseable amount is below the
// floor for its period basis. Unparseable or absent salary lets the posting
// through (fail open).
func (f *Filter) checkSalary(salaryRaw, description string) string {
	text := salaryRaw
	if text == "" {
		text = description
	}
	if text == "" {
		return ""
	}

	amounts := parseSalaryAmounts(text)
	if len(amounts) == 0 {
		return ""
	}

	var best amount
	for _, a := range amounts {
		floor := f.thresholds.MonthlyFloor
		if a.annual {
			floor = f.thresholds.AnnualFloor
		}
		if a.value >= floor {
			return "" // at least one stated figure meets the floor
		}
		if a.value > best.value {
			best = a
		}
	}

	if best.annual {
		return fmt.Sprintf("salary below floor: €%.0f/year (minimum €%.0f/year)", best.value, f.thresholds.AnnualFloor)
	}
	return fmt.Sprintf("salary below floor: ~€%.0f/month (minimum €%.0f/month)", best.value, f.thresholds.MonthlyFloor)
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
