package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// Custom validator instance
	validate = validator.New()

	contractPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3,5}$`)
)

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	validate.RegisterValidation("amount", validateAmount)
	validate.RegisterValidation("source", validateSource)
	validate.RegisterValidation("contract", validateContract)
	validate.RegisterValidation("currency", validateCurrency)
}

// validateAmount accepts finite, non-negative prices, volumes and caps.
func validateAmount(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(float64)
	if !ok {
		return false
	}
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func validateSource(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "provider", "fallback":
		return true
	}
	return false
}

// validateContract checks an EVM address: 0x followed by 40 hex digits.
func validateContract(fl validator.FieldLevel) bool {
	return contractPattern.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "struct", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: getErrorMessage(fe.Field(), fe.Tag(), fe.Param()),
			Value:   fe.Value(),
		})
	}
	return out
}

// ValidateVar validates a single value against a tag expression such as
// "required,oneof=current historical".
func ValidateVar(field string, value interface{}, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return ValidationErrors{{
		Field:   field,
		Message: getErrorMessage(field, fe.Tag(), fe.Param()),
		Value:   value,
	}}
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "amount":
		return fmt.Sprintf("%s must be a finite, non-negative number", field)
	case "source":
		return fmt.Sprintf("%s must be either provider or fallback", field)
	case "contract":
		return fmt.Sprintf("%s must be a 0x-prefixed 40 hex digit address", field)
	case "currency":
		return fmt.Sprintf("%s must be a 3-5 letter uppercase currency code", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "dive":
		return fmt.Sprintf("%s contains an invalid element", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes control characters and surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
