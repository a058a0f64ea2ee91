package runner

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout   = errors.New("timed out")
	ErrTransport = errors.New("connection failed")
	ErrDecode    = errors.New("malformed response")
	ErrCanceled  = errors.New("canceled")
)

// TimeoutError means the call did not complete before its deadline.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CanceledError means the caller abandoned the call before it completed.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("canceled: %v", e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

func (e *CanceledError) Is(target error) bool { return target == ErrCanceled }

// TransportError means no usable response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// DecodeError means a response arrived but its body could not be interpreted.
type DecodeError struct {
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := ErrDecode.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Retryable reports whether err is a failure worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}

// StatusError carries a 4xx or 5xx reply that had no more specific diagnostic.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin endpoint returned %s", e.Status)
}
