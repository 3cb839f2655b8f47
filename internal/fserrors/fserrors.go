// Package fserrors classifies transport and I/O errors so the sync
// engine can decide whether to retry, treat a path as not found, or
// give up.
package fserrors

import (
	"errors"
	"fmt"
)

// causer is implemented by errors that wrap another error and want
// Cause to unwrap one more level than errors.Unwrap does (kept for
// errors that predate Go's %w wrapping).
type causer interface {
	Cause() error
}

// retriable is implemented by errors that know whether they should be
// retried.
type retriable interface {
	Retriable() bool
}

// wrappedError marks err as retriable or fatal with a human message.
type wrappedError struct {
	err       error
	msg       string
	retriable bool
}

func (e *wrappedError) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.msg, e.err)
}

func (e *wrappedError) Unwrap() error { return e.err }

func (e *wrappedError) Retriable() bool { return e.retriable }

// Retriable wraps err as a transient condition the caller should retry
// (connect failure, send/recv failure, 408/413/5xx).
func Retriable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{err: err, msg: msg, retriable: true}
}

// Fatal wraps err as a condition that must not be retried (unsupported
// Transfer-Encoding, redirect-limit exceeded, filesystem failure).
func Fatal(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{err: err, msg: msg, retriable: false}
}

// ErrNotFound is returned by the transport when the server answers 404.
// It is deliberately distinct from both the retriable and fatal
// buckets: callers decide per-context whether a 404 aborts the pass
// (the manifest itself) or is tolerated (an optional sibling file, an
// .lzma companion).
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Cause unwraps err down to its root cause, returning alongside it
// whether any error in the chain claimed to be retriable.
func Cause(err error) (isRetriable bool, out error) {
	for err != nil {
		if r, ok := err.(retriable); ok {
			isRetriable = isRetriable || r.Retriable()
		}
		if t, ok := err.(interface{ Temporary() bool }); ok && t.Temporary() {
			isRetriable = true
		}
		switch x := err.(type) {
		case causer:
			next := x.Cause()
			if next == nil {
				return isRetriable, err
			}
			err = next
			continue
		}
		next := errors.Unwrap(err)
		if next == nil {
			return isRetriable, err
		}
		err = next
	}
	return isRetriable, err
}

// ShouldRetry reports whether err represents a transient condition
// worth retrying.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	retriable, _ := Cause(err)
	return retriable
}
