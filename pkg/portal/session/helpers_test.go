package session_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func unescape(t *testing.T, value string) string {
	t.Helper()
	decoded, err := url.QueryUnescape(value)
	require.NoError(t, err)
	return decoded
}
