// Package validation adapts struct tag validation to echo's Validator hook.
package validation

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

// RequestValidator validates bound request bodies against their struct tags.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates a new request validator
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate implements echo.Validator. Tag violations surface as 400s with the
// offending field named.
func (v *RequestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid value for field %s", errs[0].Field())
		}
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
