package core

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindForbidden   ErrorKind = "forbidden"
	KindConflict    ErrorKind = "conflict"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// Error is the single error type surfaced by the engine. It carries the kind
// plus enough instance context for a caller to decide whether to retry.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Op         string    `json:"op,omitempty"`
	Message    string    `json:"message"`
	InstanceID string    `json:"instanceId,omitempty"`
	StepNumber int       `json:"stepNumber,omitempty"`
	Status     string    `json:"status,omitempty"`
	Err        error     `json:"-"`
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Kind))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.InstanceID != "" {
		fmt.Fprintf(&sb, " (instance=%s", e.InstanceID)
		if e.StepNumber > 0 {
			fmt.Fprintf(&sb, " step=%d", e.StepNumber)
		}
		if e.Status != "" {
			fmt.Fprintf(&sb, " status=%s", e.Status)
		}
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, core.ErrConflict) works for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// sentinels for errors.Is
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrForbidden   = &Error{Kind: KindForbidden}
	ErrConflict    = &Error{Kind: KindConflict}
	ErrUnavailable = &Error{Kind: KindUnavailable}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Forbiddenf(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func Conflictf(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func Unavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Message: "persistence layer unreachable", Err: err}
}

// WithInstance attaches instance context and returns the same error.
func (e *Error) WithInstance(instanceID string, step int, status string) *Error {
	e.InstanceID = instanceID
	e.StepNumber = step
	e.Status = status
	return e
}

func (e *Error) WithOp(op string) *Error {
	if e.Op == "" {
		e.Op = op
	}
	return e
}

// KindOf returns the taxonomy kind of err, KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
