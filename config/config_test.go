package config

import (
	"testing"
	"time"

	"voicelegal-backend/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "")
	t.Setenv("STALE_CASE_TIMEOUT", "")
	t.Setenv("DOCUMENT_MAX_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.NormalizationLanguage)
	assert.Equal(t, 3, cfg.DocumentMaxAttempts)
	assert.Equal(t, 2*time.Hour, cfg.StaleCaseTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionPeriod)
	assert.Equal(t, storage.StorageTypeLocal, cfg.Storage.Type)
	assert.True(t, cfg.IsSupportedLanguage("HI"))
	assert.False(t, cfg.IsSupportedLanguage("xx"))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STALE_CASE_TIMEOUT", "45m")
	t.Setenv("DOCUMENT_MAX_ATTEMPTS", "5")
	t.Setenv("SUPPORTED_LANGUAGES", "en, te")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Minute, cfg.StaleCaseTimeout)
	assert.Equal(t, 5, cfg.DocumentMaxAttempts)
	assert.Equal(t, []string{"en", "te"}, cfg.SupportedLanguages)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad duration", "COLLABORATOR_TIMEOUT", "soon"},
		{"bad attempts", "DOCUMENT_MAX_ATTEMPTS", "three"},
		{"zero attempts", "DOCUMENT_MAX_ATTEMPTS", "0"},
		{"unknown storage", "STORAGE_TYPE", "ftp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("AWS_S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)
}
