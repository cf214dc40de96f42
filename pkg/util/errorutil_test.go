package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := NewVersionConflict("t-1")
	require.True(t, HasCode(err, CodeVersionConflict))
	require.False(t, HasCode(err, CodeAlreadyClaimed))
	require.False(t, HasCode(errors.New("plain"), CodeVersionConflict))
	require.False(t, HasCode(nil, CodeVersionConflict))
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("while claiming: %w", NewAlreadyClaimed("t-1", "staff-a"))
	require.True(t, HasCode(err, CodeAlreadyClaimed))
}

func TestToDomainErrorPassThrough(t *testing.T) {
	original := NewTicketNotFound("t-1")
	converted := ToDomainError(original)
	require.Equal(t, CodeTicketNotFound, converted.Code)
	require.Equal(t, http.StatusNotFound, converted.HTTPStatus)
	require.Equal(t, "t-1", converted.Details["ticket_id"])
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	converted := ToDomainError(errors.New("boom"))
	require.Equal(t, "INTERNAL_ERROR", converted.Code)
	require.Equal(t, http.StatusInternalServerError, converted.HTTPStatus)
	require.ErrorContains(t, converted, "boom")
}

func TestStorageUnavailableUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageUnavailable(cause)
	require.True(t, HasCode(err, CodeStorageUnavailable))
	require.ErrorIs(t, err, cause)
}
