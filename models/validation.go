package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	httpURLPattern = regexp.MustCompile(`^https?://.+`)
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so API clients see the fields they sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return httpURLPattern.MatchString(fl.Field().String())
	})
	return v
}

// IsValidEmail checks an already normalized address.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks the draft against the event field constraints. Call Normalize first.
func (d EventDraft) Validate() error {
	var fields []FieldError
	if err := validate.Struct(d); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}
	if d.Date.IsZero() {
		fields = append(fields, FieldError{Field: "date", Message: "Event date is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Validate checks only the fields present in the patch.
func (p EventPatch) Validate() error {
	var fields []FieldError
	if err := validate.Struct(p); err != nil {
		fields = append(fields, fieldErrors(err)...)
	}
	if p.Date != nil && p.Date.IsZero() {
		fields = append(fields, FieldError{Field: "date", Message: "Event date is required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
	case "httpurl":
		return fmt.Sprintf("Invalid %s format", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
