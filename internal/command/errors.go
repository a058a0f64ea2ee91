package command

import "errors"

// ErrInvalidCommand matches every *ValidationError through errors.Is.
var ErrInvalidCommand = errors.New("invalid command")

// ValidationError reports a missing or malformed field at construction time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidCommand
}
