package finance

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ukPrinter = message.NewPrinter(language.Ukrainian)

// FormatCurrency renders a whole-hryvnia amount with Ukrainian digit grouping.
func FormatCurrency(amount float64) string {
	return ukPrinter.Sprintf("%d", int64(math.Round(amount))) + " ₴"
}

// FormatPercentage renders p with two decimals.
func FormatPercentage(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}
