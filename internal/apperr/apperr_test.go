package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndErrorMessage(t *testing.T) {
	err := New(NotFound, "pick 7 not found")
	require.EqualError(t, err, "not_found: pick 7 not found")
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(UpstreamFailure, "fetch odds", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}

func TestKindOfDefaultsToInternalForPlainError(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestKindOfUnwrapsWrappedAppError(t *testing.T) {
	inner := New(MarketLocked, "locked")
	wrapped := errors.New("outer: " + inner.Error())
	// a plain fmt-wrapped string loses the Kind — only %w-style wrapping
	// (errors.As) recovers it, which is what KindOf actually relies on.
	require.Equal(t, Internal, KindOf(wrapped))
	require.Equal(t, MarketLocked, KindOf(inner))
	require.Equal(t, MarketLocked, KindOf(fmt.Errorf("outer: %w", inner)))
}

func TestStatusOfMapsEveryKind(t *testing.T) {
	cases := map[Kind]int{
		InvalidArgument:    http.StatusBadRequest,
		UnauthorizedConfig: http.StatusBadRequest,
		MarketLocked:       http.StatusBadRequest,
		NotFound:           http.StatusNotFound,
		Conflict:           http.StatusConflict,
		UpstreamFailure:    http.StatusBadGateway,
		Internal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		require.Equal(t, status, StatusOf(New(kind, "x")), "kind=%s", kind)
	}
}
