// Package apperr defines the error taxonomy shared by the router, the search
// orchestrator, the synthesizer and the transport layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies where a failure originated.
type Kind int

const (
	// KindProvider is a collaborator call (retrieval, external search, generation) that failed or timed out.
	KindProvider Kind = iota + 1
	// KindRouteExecution is a route's orchestration failing partway.
	KindRouteExecution
	// KindSynthesis is a generation or post-processing failure.
	KindSynthesis
	// KindValidation is malformed caller input.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindProvider:
		return "provider_error"
	case KindRouteExecution:
		return "route_execution_error"
	case KindSynthesis:
		return "synthesis_error"
	case KindValidation:
		return "validation_error"
	default:
		return "unknown_error"
	}
}

// Error carries a Kind, the failing operation and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Provider(op string, err error) error {
	return &Error{Kind: KindProvider, Op: op, Err: err}
}

func Route(op string, err error) error {
	return &Error{Kind: KindRouteExecution, Op: op, Err: err}
}

func Synthesis(op string, err error) error {
	return &Error{Kind: KindSynthesis, Op: op, Err: err}
}

// Validation rejects caller input before any processing starts.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Op: msg}
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Retryable reports whether the failure came from a collaborator call.
func Retryable(err error) bool {
	return Is(err, KindProvider)
}

// HTTPStatus maps err to the status the transport layer should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, KindValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
