package service

import (
	"context"
	"errors"
	"fmt"

	"redgraph/store"
)

// Kind is the stable error category callers switch on.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidArgument   Kind = "invalid_argument"
	KindInvalidOperation  Kind = "invalid_operation"
	KindConflict          Kind = "conflict"
	KindDependencyFailure Kind = "dependency_failure"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

func newError(op string, kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

// storeError classifies a store failure. what names the record for not-found
// messages. Errors that are already *Error pass through.
func storeError(op, what string, err error) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return err
	case errors.Is(err, store.ErrNotFound):
		return newError(op, KindNotFound, what+" not found", err)
	case errors.Is(err, store.ErrConflict):
		return newError(op, KindConflict, what+" was modified concurrently, try again", err)
	case errors.Is(err, store.ErrDuplicate):
		return newError(op, KindInvalidArgument, "user already exists", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return newError(op, KindDependencyFailure, "request timed out", err)
	}
	return newError(op, KindInternal, "internal error", err)
}
