package utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// FirstInvalidField returns the field and tag of the first validation failure,
// or empty strings when the error is not a validator error
func FirstInvalidField(err error) (field, reason string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", ""
	}

	return verrs[0].Field(), verrs[0].Tag()
}
