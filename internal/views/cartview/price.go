package cartview

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer   = message.NewPrinter(language.AmericanEnglish)
	priceUnit = currency.USD
)

// FormatPrice renders an amount in cents as dollars, e.g. 123456 as
// "$1,234.56".
func FormatPrice(cents int) string {
	scale, _ := currency.Standard.Rounding(priceUnit)
	amount := float64(cents) / math.Pow10(scale)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + "$" + printer.Sprintf(fmt.Sprintf("%%.%df", scale), amount)
}
