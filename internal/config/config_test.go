package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecrets(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "")
	t.Setenv("PORTAL_JWT_REFRESH_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "access")
	t.Setenv("PORTAL_JWT_REFRESH_SECRET", "refresh")
	t.Setenv("PORTAL_ENROLLMENT_CACHE_TTL", "90s")
	t.Setenv("PORTAL_APP_PORT", ":9000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Classroom Portal", cfg.AppName)
	require.Equal(t, ":9000", cfg.HTTPAddress())
	require.Equal(t, 90*time.Second, cfg.EnrollmentCacheTTL)
	require.Equal(t, time.Hour, cfg.AccessTokenTTL)
	require.Equal(t, 256*1024, cfg.NoteMaxBytes)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("PORTAL_JWT_SECRET", "access")
	t.Setenv("PORTAL_JWT_REFRESH_SECRET", "refresh")
	t.Setenv("PORTAL_JWT_ACCESS_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
