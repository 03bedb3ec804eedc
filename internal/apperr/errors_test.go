package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"not found", NotFound("contract %s", "abc"), http.StatusNotFound, "NOT_FOUND"},
		{"expired", TokenExpired("signature link"), http.StatusGone, "TOKEN_EXPIRED"},
		{"invalid state", InvalidState("already signed"), http.StatusConflict, "INVALID_STATE"},
		{"conflict", Conflict("retries exhausted"), http.StatusConflict, "CONFLICT"},
		{"validation", Validation("tenant is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"forbidden", Forbidden("viewer cannot invite"), http.StatusForbidden, "FORBIDDEN"},
		{"upstream", Upstream(errors.New("s3 down"), "store final document"), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestWrappedKindsSurviveFurtherWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("finalize contract: %w", Upstream(cause, "put final.pdf"))

	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "put final.pdf")
}
