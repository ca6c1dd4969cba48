package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("rate limited"), 429)
	if !IsTransient(err) {
		t.Fatal("TransientError should be transient")
	}

	wrapped := eris.Wrap(err, "tavily: search")
	if !IsTransient(wrapped) {
		t.Fatal("wrapped TransientError should stay transient")
	}
}

func TestIsTransient_NilAndPlainErrors(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
	if IsTransient(errors.New("invalid request body")) {
		t.Fatal("plain error is not transient")
	}
	if IsTransient(context.Canceled) {
		t.Fatal("cancellation is not transient")
	}
}

func TestIsTransient_StringHeuristics(t *testing.T) {
	cases := []string{
		"read tcp 10.0.0.1:443: connection reset by peer",
		"dial tcp: lookup api.tavily.com: no such host",
		"net/http: TLS handshake timeout",
		"read tcp: i/o timeout",
	}
	for _, msg := range cases {
		if !IsTransient(fmt.Errorf("%s", msg)) {
			t.Errorf("expected transient: %s", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	stable := []int{200, 201, 301, 400, 401, 403, 404, 422}
	for _, code := range stable {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	te := NewTransientError(inner, 503)
	if !errors.Is(te, inner) {
		t.Fatal("Unwrap should expose the inner error")
	}
	if te.Error() != "boom" {
		t.Errorf("expected inner message, got %q", te.Error())
	}
	if te.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", te.StatusCode)
	}
}
