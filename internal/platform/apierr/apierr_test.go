package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessageFallbacks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  *Error
		want string
	}{
		{New(http.StatusBadRequest, CodeInvalidRequest, errors.New("triples must be a list")), "triples must be a list"},
		{New(http.StatusBadGateway, CodeStoreUnavailable, nil), CodeStoreUnavailable},
		{New(http.StatusTeapot, "", nil), "api error (418)"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error()=%q want %q", got, tc.want)
		}
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	t.Parallel()

	inner := errors.New("head is required")
	wrapped := fmt.Errorf("recommend: %w", BadRequest(inner))

	e, ok := As(wrapped)
	if !ok || e.Status != http.StatusBadRequest || e.Code != CodeInvalidRequest {
		t.Fatalf("As=%+v ok=%v", e, ok)
	}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("expected wrapped error to unwrap to inner")
	}
	if _, ok := As(inner); ok {
		t.Fatalf("plain error should not match")
	}
}
