package utils

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateAmount validates an expense amount. A zero limit disables the upper bound.
func ValidateAmount(amount, limit float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount must be a finite number")
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %.2f", amount)
	}
	if limit > 0 && amount > limit {
		return fmt.Errorf("amount exceeds maximum limit: %.2f", amount)
	}
	return nil
}

// ValidateNonNegativeAmount accepts zero, which rule previews route like any other amount
func ValidateNonNegativeAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("amount must be a finite number")
	}
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %.2f", amount)
	}
	return nil
}

// ValidateCurrencyCode validates a three-letter ISO 4217 style code
func ValidateCurrencyCode(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("invalid currency code: %q", code)
	}
	return nil
}

// ValidateRequired returns an error naming the first empty field
func ValidateRequired(fields map[string]string, order ...string) error {
	for _, name := range order {
		if strings.TrimSpace(fields[name]) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// SanitizeString removes control characters other than tab and newline, and trims space
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}
