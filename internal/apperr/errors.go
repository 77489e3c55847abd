// Package apperr defines the error categories surfaced by the question-answering pipeline.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error into a stable, machine-readable category.
type Kind int

const (
	// Internal is any failure that does not fit another category.
	Internal Kind = iota
	// InvalidInput is an empty question, an undecodable image or a bad parameter.
	InvalidInput
	// ModelUnavailable means the embedding model could not be loaded or invoked in time.
	ModelUnavailable
	// GenerationUnavailable means the generative model could not be reached or timed out.
	GenerationUnavailable
	// IndexUnavailable means the vector index (or its paired chunk store) is not loaded.
	IndexUnavailable
	// Canceled means the caller went away before the request finished.
	Canceled
)

// Category returns the snake_case name used in external error responses.
func (k Kind) Category() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case ModelUnavailable:
		return "model_unavailable"
	case GenerationUnavailable:
		return "generation_unavailable"
	case IndexUnavailable:
		return "index_unavailable"
	case Canceled:
		return "canceled"
	default:
		return "internal"
	}
}

func (k Kind) String() string {
	return k.Category()
}

// Error is a categorized error. Op names the operation that failed (e.g. "embed", "retrieve").
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Category returns the external category of the error.
func (e *Error) Category() string {
	return e.Kind.Category()
}

// New creates an Error with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap categorizes err. An err that already carries a Kind keeps it; context errors
// become Canceled (or the given kind on deadline, since timeouts are dependency failures).
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: Canceled, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or Internal when err is not categorized.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	return Internal
}

// Is reports whether err is categorized as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
