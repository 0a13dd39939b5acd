package service

import (
	"errors"
	"fmt"
)

// ErrNoApprover is returned when no active user can fill a role of the chain
var ErrNoApprover = errors.New("no active approver available")

// ValidationError reports a request that failed input validation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Message: err.Error()}
}
