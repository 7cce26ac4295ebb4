// Package validate wraps go-playground/validator and turns tag failures
// into per-field messages suitable for inline form rendering.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// FieldErrors maps a form field name to a user-facing message.
type FieldErrors map[string]string

// Struct validates s and returns the field errors, nil when valid.
func Struct(s any) FieldErrors {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"": "invalid input"}
	}

	fe := make(FieldErrors, len(verrs))
	for _, fieldErr := range verrs {
		fe[strings.ToLower(fieldErr.Field())] = message(fieldErr)
	}
	return fe
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "alphanum":
		return "Only letters and digits are allowed."
	case "email":
		return "Enter a valid email address."
	default:
		return "Invalid value."
	}
}
