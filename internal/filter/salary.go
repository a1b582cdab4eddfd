package filter

import (
	"regexp"
	"strconv"
	"strings"
)

// amount is one parsed salary mention normalized to a period basis.
type amount struct {
	value  float64
	annual bool
}

// salaryPattern captures "1.200 €/mes", "14.000 €/año", "1200-1500€/mes",
// "12000 euros anuales". Bare numbers without a currency or period label
// nearby are ignored as false-positive risks.
var salaryPattern = regexp.MustCompile(
	`(?i)(\d[\d.,]*)(?:\s*[-–]\s*(\d[\d.,]*))?` + // amount or range
		`\s*(?:€|eur(?:os?)?)?` + // currency (optional)
		`\s*/?\s*` +
		`(mes(?:es)?|month|año|ano|anual(?:es)?|year|annual)?`, // period (optional)
)

var currencyNear = regexp.MustCompile(`(?i)€|eur`)

// parseSalaryAmounts extracts every salary mention from text. Ambiguous or
// implausible figures are skipped; the caller treats an empty result as
// "salary not stated".
func parseSalaryAmounts(text string) []amount {
	var results []amount

	for _, idx := range salaryPattern.FindAllStringSubmatchIndex(text, -1) {
		raw1 := slice(text, idx[2], idx[3])
		raw2 := slice(text, idx[4], idx[5])
		period := strings.ToLower(slice(text, idx[6], idx[7]))

		// Require a currency marker near the match when no period label
		// identifies the number as a salary.
		start, end := idx[0], idx[1]
		lo := max(0, start-5)
		hi := min(len(text), end+5)
		if period == "" && !currencyNear.MatchString(text[lo:hi]) {
			continue
		}

		for _, raw := range []string{raw1, raw2} {
			if raw == "" {
				continue
			}
			value, ok := parseNumber(raw)
			if !ok || value <= 0 {
				continue
			}
			if a, ok := classify(value, period); ok {
				results = append(results, a)
			}
		}
	}

	return results
}

// classify assigns a period basis and applies plausibility bounds. Values
// outside the bounds are discarded rather than guessed at.
func classify(value float64, period string) (amount, bool) {
	switch period {
	case "año", "ano", "anual", "anuales", "year", "annual":
		if value <= 5_000 || value >= 500_000 {
			return amount{}, false
		}
		return amount{value: value, annual: true}, true
	case "mes", "meses", "month":
		if value <= 300 || value >= 30_000 {
			return amount{}, false
		}
		return amount{value: value, annual: false}, true
	}

	// No period label: figures above 2000 are treated as annual.
	if value > 2_000 {
		if value <= 5_000 || value >= 500_000 {
			return amount{}, false
		}
		return amount{value: value, annual: true}, true
	}
	if value <= 300 {
		return amount{}, false
	}
	return amount{value: value, annual: false}, true
}

// parseNumber converts "1.200,50", "1,200.50" or "1200" to a float.
func parseNumber(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, " ", "")
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case euThousands.MatchString(s) && !hasComma:
		s = strings.ReplaceAll(s, ".", "") // "1.200" → "1200"
	case hasComma && hasDot:
		if strings.Index(s, ",") < strings.Index(s, ".") {
			s = strings.ReplaceAll(s, ",", "") // US: "1,200.50"
		} else {
			s = strings.ReplaceAll(s, ".", "") // EU: "1.200,50"
			s = strings.ReplaceAll(s, ",", ".")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".") // "1200,50" → "1200.50"
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var euThousands = regexp.MustCompile(`\d\.\d{3}`)

func slice(s string, lo, hi int) string {
	if lo < 0 || hi < 0 {
		return ""
	}
	return s[lo:hi]
}
