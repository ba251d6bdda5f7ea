// Package validation runs go-playground struct validation and reports the
// first failure as an invalid_input domain error named by its JSON field.
package validation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "gridreg/pkg/domain-errors"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	stateCodePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("statecode", func(fl validator.FieldLevel) bool {
		return stateCodePattern.MatchString(fl.Field().String())
	})
}

// Struct validates v and converts the first field failure into CodeInvalidInput.
func Struct(ctx context.Context, v any) error {
	err := validate.StructCtx(ctx, v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid request")
	}
	return dErrors.New(dErrors.CodeInvalidInput, message(fieldErrs[0]))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "statecode":
		return fmt.Sprintf("%s must be a two-letter state code", field)
	case "printascii":
		return fmt.Sprintf("%s must contain printable ASCII only", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
