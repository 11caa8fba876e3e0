package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatMoney formats d with comma separators and two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return FormatDecimal(d, 2)
}

// FormatDecimal formats d with comma separators, rounded to places decimal
// places.
func FormatDecimal(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(groupDigits(intPart))
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// FormatExact formats amounts that carry sub-cent tax, such as taxes, net
// cash flows and profits, with four decimal places.
func FormatExact(d decimal.Decimal) string {
	return FormatDecimal(d, 4)
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatPct formats a ratio as a percentage, or "-" when undefined.
func FormatPct(r float64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", r*100)
}

func groupDigits(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	start := len(digits) % 3
	if start > 0 {
		b.WriteString(digits[:start])
	}
	for i := start; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
