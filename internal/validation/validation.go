// Package validation проверяет входные структуры тегами go-playground/validator
// и возвращает apperr.Validation с именем поля из json-тега.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/whitechapel007/chat-app-pern/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Struct возвращает первую ошибку валидации в читаемом виде.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid input")
	}
	fe := verrs[0]
	isList := fe.Kind() == reflect.Slice
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", fe.Field())
	case "max":
		if isList {
			return apperr.Validation("%s must contain at most %s items", fe.Field(), fe.Param())
		}
		return apperr.Validation("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		if isList {
			return apperr.Validation("%s must contain at least %s items", fe.Field(), fe.Param())
		}
		return apperr.Validation("%s must be at least %s characters", fe.Field(), fe.Param())
	case "oneof":
		return apperr.Validation("%s must be one of: %s", fe.Field(), fe.Param())
	case "eqfield":
		return apperr.Validation("%s does not match", fe.Field())
	case "url":
		return apperr.Validation("%s must be a valid URL", fe.Field())
	case "alphanum":
		return apperr.Validation("%s may contain only letters and digits", fe.Field())
	default:
		return apperr.Validation("%s is invalid", fe.Field())
	}
}
