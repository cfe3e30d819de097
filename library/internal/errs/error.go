package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("authentication credentials were not provided")
	ErrForbidden    = errors.New("you do not have permission to perform this action")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("concurrent modification, retry the request")
)

var (
	ErrNoStock         = Validation("the book inventory equals 0")
	ErrAlreadyReturned = Validation("borrowing is already returned")
	ErrInvalidDates    = Validation("expected_return_date should be later than borrow_date")
)

// ValidationError is an invariant violation reported to the client as-is.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	msg string
}

func Validation(msg string) error {
	return &ValidationError{msg: msg}
}

func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type ValidationErrorResponse struct {
	Message string `json:"message"`
}
