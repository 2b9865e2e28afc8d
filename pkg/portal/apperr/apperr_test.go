package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	cases := map[int]Kind{
		http.StatusBadRequest:          KindValidation,
		http.StatusUnprocessableEntity: KindValidation,
		http.StatusUnauthorized:        KindAuthentication,
		http.StatusForbidden:           KindAuthorization,
		http.StatusNotFound:            KindNotFound,
		http.StatusGatewayTimeout:      KindTimeout,
		http.StatusInternalServerError: KindBackend,
		http.StatusBadGateway:          KindBackend,
	}
	for status, kind := range cases {
		require.Equal(t, kind, FromStatus(status, "").Kind, "status %d", status)
	}
	require.Equal(t, "Not Found", FromStatus(http.StatusNotFound, "").Message)
}

func TestKindMatchingThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load notes: %w", New(KindTimeout, "request timed out"))

	require.True(t, errors.Is(err, Timeout))
	require.False(t, errors.Is(err, Network))
	require.Equal(t, KindTimeout, KindOf(err))
	require.Equal(t, "request timed out", Message(err))
}

func TestMessageForForeignErrors(t *testing.T) {
	require.Equal(t, "", Message(nil))
	require.Equal(t, KindBackend, KindOf(errors.New("boom")))
	require.Equal(t, "unexpected error: boom", Message(errors.New("boom")))
}
