package port

import (
	"context"
	"io"
)

// CurrencyConverter normalizes amounts into the reporting currency
type CurrencyConverter interface {
	// Convert returns amount expressed in the reporting currency
	Convert(amount float64, currency string) (float64, error)

	// ReportingCurrency returns the ISO code amounts are converted into
	ReportingCurrency() string
}

// ReportWriter renders an expense report
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer, report *ExpenseReport) error

	// ContentType is the MIME type of the rendered document
	ContentType() string

	// Extension is the file extension of the rendered document, including the dot
	Extension() string
}
