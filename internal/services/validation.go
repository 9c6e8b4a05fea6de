package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3,5}$`)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Taxonomy code
	Kind    string            `json:"kind,omitempty"`    // rejected or transient
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a validator that understands decimal amounts
// and currency codes.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("dpositive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	_ = v.RegisterValidation("dnonnegative", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// Params validates service parameters, folding failures into ErrInvalidInput
// (or ErrInvalidAmount when only amount-like fields failed).
func (vh *ValidationHelper) Params(s any) error {
	err := vh.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	onlyAmounts := true
	for _, fe := range verrs {
		if fe.Tag() != "dpositive" && fe.Tag() != "dnonnegative" {
			onlyAmounts = false
		}
	}
	if onlyAmounts {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var verrs validator.ValidationErrors
	if validationErr != nil && errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}
	if validationErr != nil {
		var le *LedgerError
		if errors.As(validationErr, &le) {
			errorResp.Code = le.Code
			errorResp.Kind = le.Kind.String()
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
