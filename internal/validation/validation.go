// Package validation provides input validation middleware for the FraudGuard API.
package validation

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// countryRegex validates ISO-3166 alpha-2 country codes
	countryRegex = regexp.MustCompile(`^[A-Z]{2}$`)
	// cardLastFourRegex validates the last four digits of a card number
	cardLastFourRegex = regexp.MustCompile(`^[0-9]{4}$`)
)

// RequestSizeMiddleware caps the request body; oversized bodies fail on
// read with http.MaxBytesError.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidCountry checks if a string is a two-letter country code
func IsValidCountry(code string) bool {
	return countryRegex.MatchString(code)
}

// IsValidCardLastFour checks if a string is exactly four digits
func IsValidCardLastFour(s string) bool {
	return cardLastFourRegex.MatchString(s)
}

// SanitizeString trims whitespace, strips null bytes, and truncates to
// maxLen. Applied to every free-text field before validation.
func SanitizeString(s string, maxLen int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\x00", "")
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// ValidationError describes a single failed field check.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failed check for a request so the
// response can name all bad fields at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, ve := range e {
		parts[i] = ve.Field + ": " + ve.Message
	}
	return strings.Join(parts, "; ")
}

// Validate runs each check and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidCountry checks if a field is a two-letter country code.
// Empty values pass; use Required for required fields.
func ValidCountry(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidCountry(value) {
			return &ValidationError{Field: field, Message: "must be a two-letter country code"}
		}
		return nil
	}
}

// ValidCardLastFour checks that an optional card-last-four field is exactly
// four digits when present.
func ValidCardLastFour(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidCardLastFour(value) {
			return &ValidationError{Field: field, Message: "must be exactly 4 digits"}
		}
		return nil
	}
}

// OneOf checks that a field holds one of the allowed values.
// Empty values pass; use Required for required fields.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		}
	}
}

// PositiveAmount checks that a monetary amount is greater than zero
func PositiveAmount(field string, amount float64) func() *ValidationError {
	return func() *ValidationError {
		if amount <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}
