package core

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// Validator wraps go-playground/validator and translates its field errors
// into the application error taxonomy.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateStruct validates a request DTO against its `validate` tags.
// The first failing field determines the returned AppError:
// "required" failures map to validation_missing_required_field, "email"
// failures to validation_invalid_email, everything else to
// validation_invalid_field. The offending field is reported in Details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return types.NewAppError(
			types.ErrCodeValidationInvalidField,
			"request validation failed",
			err,
		)
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())

	var code types.ErrorCode
	var message string
	switch fe.Tag() {
	case "required":
		code = types.ErrCodeValidationMissingField
		message = "missing required field: " + field
	case "email":
		code = types.ErrCodeValidationInvalidEmail
		message = "invalid email address: " + field
	default:
		code = types.ErrCodeValidationInvalidField
		message = "invalid value for field: " + field
	}

	return types.NewAppErrorWithDetails(code, message, err, map[string]any{
		"field": field,
		"rule":  fe.Tag(),
	})
}
