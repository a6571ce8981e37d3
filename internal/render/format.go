package render

import (
	"strings"

	"github.com/shopspring/decimal"
)

const missingValue = "N/A"

// Replace substitutes every {{NAME}} and then every {NAME} in tmpl.
// Text that is not a known token is left untouched.
func Replace(tmpl string, tokens map[string]string) string {
	pairs := make([]string, 0, len(tokens)*2)
	for name, v := range tokens {
		pairs = append(pairs, "{{"+name+"}}", v)
	}
	out := strings.NewReplacer(pairs...).Replace(tmpl)

	pairs = pairs[:0]
	for name, v := range tokens {
		pairs = append(pairs, "{"+name+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(out)
}

// FormatValue renders v with a fixed number of decimals, optionally with
// thousands separators. A nil value renders as N/A.
func FormatValue(v *decimal.Decimal, places int32, thousands bool) string {
	if v == nil {
		return missingValue
	}
	s := v.StringFixed(places)
	if !thousands {
		return s
	}
	return groupThousands(s)
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + frac
}

const (
	arrowUp      = `<path d="M7 14L12 9L17 14H7Z" fill="currentColor"/>`
	arrowDown    = `<path d="M7 10L12 15L17 10H7Z" fill="currentColor"/>`
	arrowNeutral = `<line x1="7" y1="12" x2="17" y2="12" stroke="currentColor" stroke-width="3"/>`
)

// Arrow returns the trend indicator comparing current with previous, or ""
// when either is missing. class is the CSS class prefix, e.g. "commodity-arrow".
func Arrow(current, previous *decimal.Decimal, class string) string {
	if current == nil || previous == nil {
		return ""
	}
	direction, shape := "arrow-neutral", arrowNeutral
	switch current.Cmp(*previous) {
	case 1:
		direction, shape = "arrow-up", arrowUp
	case -1:
		direction, shape = "arrow-down", arrowDown
	}
	return `<div class="` + class + ` ` + direction + `"><svg viewBox="0 0 24 24" xmlns="http://www.w3.org/2000/svg">` + shape + `</svg></div>`
}
