package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"gitlab.com/ms-serving.net/internal/static/errs"
)

// StatusCode classifies the outcome of a registry, notifier or façade operation
type StatusCode int

const (
	StatusSuccess StatusCode = iota
	StatusFailed
	StatusNotFound
	StatusAlreadyExists
	StatusServableNotFound
	StatusVersionMismatch
	StatusUnreachable
	StatusTimeout
	StatusInternal
	StatusInvalidInput
)

var statusCodeNames = map[StatusCode]string{
	StatusSuccess:          "SUCCESS",
	StatusFailed:           "FAILED",
	StatusNotFound:         "NOT_FOUND",
	StatusAlreadyExists:    "ALREADY_EXISTS",
	StatusServableNotFound: "SERVABLE_NOT_FOUND",
	StatusVersionMismatch:  "VERSION_MISMATCH",
	StatusUnreachable:      "UNREACHABLE",
	StatusTimeout:          "TIMEOUT",
	StatusInternal:         "INTERNAL",
	StatusInvalidInput:     "INVALID_INPUT",
}

func (c StatusCode) String() string {
	if name, ok := statusCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int(c))
}

// Status is the result value passed through every layer of the master.
// It is never thrown; a zero Status is a success.
type Status struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// Success returns the successful status
func Success() Status {
	return Status{Code: StatusSuccess}
}

// NewStatus builds a status with a formatted message
func NewStatus(code StatusCode, format string, args ...interface{}) Status {
	if len(args) == 0 {
		return Status{Code: code, Message: format}
	}
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the status is a success
func (s Status) OK() bool {
	return s.Code == StatusSuccess
}

// Err converts a failed status to an error, nil on success
func (s Status) Err() error {
	if s.OK() {
		return nil
	}
	return &StatusError{Status: s}
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}

// StatusError wraps a failed Status so it can travel as an error
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return e.Status.String()
}

// StatusFromError maps transport errors onto status codes
func StatusFromError(err error) Status {
	if err == nil {
		return Success()
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewStatus(StatusTimeout, err.Error())
	}

	if errors.Is(err, errs.ErrClientClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return NewStatus(StatusUnreachable, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewStatus(StatusTimeout, err.Error())
		}
		return NewStatus(StatusUnreachable, err.Error())
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewStatus(StatusUnreachable, err.Error())
	}

	return NewStatus(StatusFailed, err.Error())
}
