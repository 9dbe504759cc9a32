package reconcile

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var auPrinter = message.NewPrinter(language.English)

// FormatAUD renders cents as a grouped dollar amount for report details.
func FormatAUD(cents int64) string {
	return auPrinter.Sprintf("A$%v", number.Decimal(float64(cents)/100, number.Scale(2)))
}
