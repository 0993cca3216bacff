package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindsAndUnwrap(t *testing.T) {
	base := context.DeadlineExceeded
	err := Route("dateFilteredSearch", fmt.Errorf("step failed, err: %w", Provider("internal_search", base)))

	if !Is(err, KindRouteExecution) {
		t.Fatalf("expected route execution kind")
	}
	if !Is(err, KindProvider) {
		t.Fatalf("expected nested provider kind")
	}
	if Is(err, KindSynthesis) {
		t.Fatalf("unexpected synthesis kind")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain")
	}
	if !Retryable(err) {
		t.Fatalf("provider failure should be retryable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("query is empty"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("handle: %w", Validation("query is empty")), http.StatusBadRequest},
		{"synthesis", Synthesis("generate", errors.New("boom")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
