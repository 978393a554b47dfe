package parser

import (
	"strconv"
	"strings"
	"unicode"
)

// parseNumber reads a human-formatted number such as "250 000 €",
// "1.250.000", "€1,250,000.00" or "85,5 m²". Separator roles are inferred:
// when both '.' and ',' appear the later one is decimal; a lone separator
// followed by exactly three digits is a thousands separator.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	var b strings.Builder
	started := false
	negative := false
scan:
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			started = true
			b.WriteRune(r)
		case r == '.' || r == ',':
			if started {
				b.WriteRune(r)
			}
		case r == '-' && !started:
			negative = true
		case unicode.IsSpace(r) || r == '\'':
			// digit group separators
		default:
			if started {
				// unit or currency suffix ends the number
				break scan
			}
		}
	}

	digits := strings.TrimRight(b.String(), ".,")
	if digits == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := "."
		thou := ","
		if lastComma > lastDot {
			dec, thou = ",", "."
		}
		digits = strings.ReplaceAll(digits, thou, "")
		digits = strings.Replace(digits, dec, ".", 1)
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(digits, sep) > 1 || len(digits)-idx-1 == 3 {
			digits = strings.ReplaceAll(digits, sep, "")
		} else {
			digits = strings.Replace(digits, sep, ".", 1)
		}
	}

	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}
