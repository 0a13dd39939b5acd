package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-router/internal/application/port"
)

// ErrUnsupportedCurrency is returned for currencies without a configured rate
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// StaticConverter converts with fixed rates into the reporting currency, rounding to cents
type StaticConverter struct {
	reporting string
	rates     map[string]decimal.Decimal
}

// NewStaticConverter builds a converter. rates maps a currency code to the value of one
// unit in the reporting currency; the reporting currency itself is always 1.
func NewStaticConverter(reporting string, rates map[string]float64) (*StaticConverter, error) {
	reporting = normalize(reporting)
	if len(reporting) != 3 {
		return nil, fmt.Errorf("invalid reporting currency %q", reporting)
	}

	c := &StaticConverter{
		reporting: reporting,
		rates:     map[string]decimal.Decimal{reporting: decimal.NewFromInt(1)},
	}
	for code, rate := range rates {
		code = normalize(code)
		if len(code) != 3 {
			return nil, fmt.Errorf("invalid currency code %q", code)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("rate for %s must be positive, got %v", code, rate)
		}
		if code == reporting && rate != 1 {
			return nil, fmt.Errorf("rate for reporting currency %s must be 1, got %v", code, rate)
		}
		c.rates[code] = decimal.NewFromFloat(rate)
	}
	return c, nil
}

// Convert returns amount in the reporting currency rounded half away from zero to two places
func (c *StaticConverter) Convert(amount float64, currency string) (float64, error) {
	code := normalize(currency)
	if code == "" {
		code = c.reporting
	}

	rate, ok := c.rates[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	converted, _ := decimal.NewFromFloat(amount).Mul(rate).Round(2).Float64()
	return converted, nil
}

// ReportingCurrency returns the ISO code amounts are converted into
func (c *StaticConverter) ReportingCurrency() string {
	return c.reporting
}

// Supported returns the known currency codes in alphabetical order
func (c *StaticConverter) Supported() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var _ port.CurrencyConverter = (*StaticConverter)(nil)
