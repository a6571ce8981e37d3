package render

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Summary is the plain-text table printed by the CLIs after a run.
func Summary(kind Kind, date string, values map[string]*decimal.Decimal) string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nAUD %s - %s\n%s\n", rule, kind.Name, date, rule)
	for _, code := range kind.Assets {
		fmt.Fprintf(&b, "%-12s %15s\n", code, FormatValue(values[code], kind.Places+1, kind.Thousands))
	}
	b.WriteString(rule)
	return b.String()
}
