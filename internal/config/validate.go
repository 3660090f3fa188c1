package config

import (
	"errors"
	"fmt"
	"math/bits"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-voicegate/internal/types"
)

// validate is the shared validator instance for configuration structs.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	})
	mustRegister("pow2", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n > 0 && bits.OnesCount64(uint64(n)) == 1
	})
}

func mustRegister(tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// validateStruct runs the struct tags and converts failures into a *types.ValidationError.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verr := types.NewValidationError()
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			verr.Add(fieldPath(e.Namespace()), formatValidationMessage(e), e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}
	return verr
}

// fieldPath drops the root struct name: "Config.vad.threshold" becomes "vad.threshold".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "eq":
		return fmt.Sprintf("must be %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "gtefield":
		return fmt.Sprintf("must be greater than or equal to %s", strings.ToLower(e.Param()))
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "endswith":
		return fmt.Sprintf("must end with %s", e.Param())
	case "excludesall":
		return "must be a file name, not a path"
	case "even":
		return "must be an even number of bytes"
	case "pow2":
		return "must be a power of two"
	case "url":
		return "must be a valid URL"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
