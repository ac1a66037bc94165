// Package validator validates request bodies of the API.
package validator

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type structValidator struct {
	validate *validator.Validate
}

// New returns a Validator for the echo framework that checks the
// `validate` struct tags.
func New() echo.Validator {
	return &structValidator{
		validate: validator.New(),
	}
}

func (v *structValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
