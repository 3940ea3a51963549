package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusForbidden, "UNLOCK_REQUIRED", "Trial ended, unlock required")
	assert.Equal(t, "Trial ended, unlock required", err.Error())
	assert.Equal(t, http.StatusForbidden, err.StatusCode)
	assert.Equal(t, "UNLOCK_REQUIRED", err.ErrorCode)
}

func TestTaxonomyStatusCodes(t *testing.T) {
	tests := []struct {
		err    *APIError
		status int
		code   string
	}{
		{ErrAuthRequired, http.StatusUnauthorized, "AUTH_REQUIRED"},
		{ErrAuthInvalid, http.StatusUnauthorized, "AUTH_INVALID"},
		{ErrDecryptionFailed, http.StatusBadRequest, "DECRYPTION_FAILED"},
		{ErrValidationMismatch, http.StatusForbidden, "VALIDATION_MISMATCH"},
		{ErrUnlockRequired, http.StatusForbidden, "UNLOCK_REQUIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.ErrorCode)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrUnlockRequired)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "UNLOCK_REQUIRED", resp.Error.ErrorCode)
}

func TestProblemRender(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)

	p := ProblemFromAPIError(ErrAuthRequired, "trace-123")
	require.NoError(t, p.Render(rec, req))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var decoded Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "/errors/AUTH_REQUIRED", decoded.Type)
	assert.Equal(t, "trace-123", decoded.Trace)
}

func TestValidationMismatchMessage(t *testing.T) {
	err := ValidationMismatch("cannot unlock another identity")
	assert.Equal(t, http.StatusForbidden, err.StatusCode)
	assert.Equal(t, "VALIDATION_MISMATCH", err.ErrorCode)
	assert.Equal(t, "cannot unlock another identity", err.Message)
}
