package models

import (
	"errors"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidID             = errors.New("invalid event ID format")
	ErrInvalidRange          = errors.New("invalid date format, use YYYY-MM-DD")
	ErrInvalidEmail          = errors.New("invalid email address format")
	ErrMissingField          = errors.New("email and event ID are required")
	ErrMissingQuery          = errors.New("please provide a search query")
	ErrNotFound              = errors.New("not found")
	ErrInactiveEvent         = errors.New("cannot subscribe to inactive event")
	ErrDuplicate             = errors.New("duplicate event")
	ErrDuplicateSubscription = errors.New("you are already subscribed to this event")
	ErrConsentRequired       = errors.New("user consent is required to subscribe")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violated field constraint.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
