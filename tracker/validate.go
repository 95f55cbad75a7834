package tracker

import (
	"errors"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/inventory"
)

var validate = newValidator()

// newValidator reports fields by their JSON names so errors line up with
// request bodies.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs struct tag rules and converts violations into a
// ValidationError keyed by field path (e.g. "items[1].productId").
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fe.Tag()
	}
	return &inventory.ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func positive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return inventory.NewValidationError(field, "must be greater than 0")
	}
	return nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return inventory.NewValidationError(field, "must not be negative")
	}
	return nil
}

// optionalText trims s and enforces a rune limit.
func optionalText(field string, s *string, max int) error {
	if s == nil {
		return nil
	}
	*s = strings.TrimSpace(*s)
	if utf8.RuneCountInString(*s) > max {
		return inventory.NewValidationError(field, "must be at most %d characters", max)
	}
	return nil
}

// firstError returns the first non-nil error.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
