package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/pkg/firecrawl"
)

// Error classifies a provider failure so aggregation can decide whether to
// retry the call, latch the provider's breaker, or just record the miss.
type Error struct {
	Provider string
	Kind     model.FailureKind
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from a classified error. Unclassified
// errors count as unavailable.
func KindOf(err error) model.FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return model.FailureUnavailable
}

var statusPattern = regexp.MustCompile(`status (\d{3})`)

// Classify wraps a raw client error with its failure kind. Status codes are
// recovered from typed API errors where the client exposes them, and from
// the error text otherwise.
func Classify(name string, err error) error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		return fromStatus(name, apiErr.StatusCode, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Provider: name, Kind: model.FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Provider: name, Kind: model.FailureTimeout, Err: err}
	}

	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return fromStatus(name, code, err)
	}

	return &Error{Provider: name, Kind: model.FailureUnavailable, Err: err}
}

func fromStatus(name string, code int, err error) *Error {
	switch code {
	case http.StatusTooManyRequests:
		return &Error{Provider: name, Kind: model.FailureRateLimited, Err: err}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Provider: name, Kind: model.FailureAuthFailed, Err: err}
	default:
		return &Error{Provider: name, Kind: model.FailureUnavailable, Err: err}
	}
}
