package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeValidationConfidenceRange, http.StatusBadRequest},
		{ErrCodeValidationValueNotNumeric, http.StatusBadRequest},
		{ErrCodeValidationInvalidCriteria, http.StatusBadRequest},
		{ErrCodeNotFoundZipcode, http.StatusNotFound},
		{ErrCodeNotFoundSource, http.StatusNotFound},
		{ErrCodeUpstreamSource, http.StatusBadGateway},
		{ErrCodeSourceTimeout, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.code.HTTPStatus(), "code %s", tt.code)
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("pq: connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to upsert rating", inner)

	assert.Equal(t, "internal_database_error: failed to upsert rating", appErr.Error())
	assert.Equal(t, inner, errors.Unwrap(appErr))

	var target *AppError
	require.True(t, errors.As(appErr, &target))
	assert.Equal(t, ErrCodeInternalDB, target.Code)
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationConfidenceRange, "confidence out of range", nil,
		map[string]any{"confidence": 1.5})

	merged := base.WithDetails(map[string]any{"zip": "94110"})

	// Original is not mutated.
	assert.Len(t, base.Details, 1)
	assert.Equal(t, 1.5, merged.Details["confidence"])
	assert.Equal(t, "94110", merged.Details["zip"])
}
