package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("looking up 42: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"feed", fmt.Errorf("loading: %w", ErrFeedUnavailable), http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"app error wins", New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad page"), http.StatusUnprocessableEntity},
		{"internal", fmt.Errorf("flush: %w", ErrInternal), http.StatusInternalServerError},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrDocumentNotFound, http.StatusNotFound, "no document with id %s", "7")
	if !Is(err, ErrDocumentNotFound) {
		t.Error("AppError should unwrap to its sentinel")
	}
	if got := err.Error(); got != "document not found: no document with id 7" {
		t.Errorf("Error() = %q", got)
	}
}
