package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/selfheal/api/schemas"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrLookupTimeout   = errors.New("element lookup timed out")
	ErrStaleElement    = errors.New("stale element reference")
)

// LookupError describes a failed element lookup or element action. Kind is
// one of the sentinel errors above; Cause is the driver's own error.
type LookupError struct {
	Strategy schemas.Strategy
	Selector string
	Kind     error
	Cause    error
}

func (e *LookupError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: (%s, %s)", e.Kind, e.Strategy, e.Selector)
	}
	return fmt.Sprintf("%s: (%s, %s): %v", e.Kind, e.Strategy, e.Selector, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *LookupError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// IsLookupFailure reports whether err is one of the failures that triggers
// healing.
func IsLookupFailure(err error) bool {
	return errors.Is(err, ErrElementNotFound) ||
		errors.Is(err, ErrLookupTimeout) ||
		errors.Is(err, ErrStaleElement)
}

// ExceptionType names the failure kind as recorded in failure contexts.
func ExceptionType(err error) string {
	switch {
	case errors.Is(err, ErrStaleElement):
		return "StaleElementReference"
	case errors.Is(err, ErrLookupTimeout):
		return "Timeout"
	case errors.Is(err, ErrElementNotFound):
		return "NoSuchElement"
	case err == nil:
		return ""
	default:
		return fmt.Sprintf("%T", err)
	}
}

// staleMarkers are fragments of CDP error messages reported when a node was
// detached or its execution context destroyed.
var staleMarkers = []string{
	"does not belong to the document",
	"could not find node with given id",
	"cannot find context with specified id",
	"node is detached",
	"cannot find object with id",
}

// classify wraps a driver error into a *LookupError.
func classify(strategy schemas.Strategy, selector string, err error, notFound func(error) bool) error {
	if err == nil {
		return nil
	}
	var le *LookupError
	if errors.As(err, &le) {
		return err
	}

	kind := ErrElementNotFound
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrLookupTimeout
	case containsAny(msg, staleMarkers):
		kind = ErrStaleElement
	case notFound != nil && notFound(err):
		kind = ErrElementNotFound
	case errors.Is(err, context.Canceled):
		// Cancellation is not a lookup failure; healing must not run.
		return err
	}
	return &LookupError{Strategy: strategy, Selector: selector, Kind: kind, Cause: err}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
