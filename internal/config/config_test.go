package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_DATABASE", "lite.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 10, cfg.DBAppConnectionLimit)
	assert.Equal(t, 5, cfg.DBReadConnectionLimit)
	assert.Equal(t, int64(500<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 20, cfg.CasesPerPage)
	assert.Equal(t, 50, cfg.RowsPerPage)
	assert.Equal(t, 3, cfg.MaxConcurrentIngestions)
	assert.Equal(t, 500, cfg.IngestBatchSize)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, "0 0 3 * * *", cfg.CleanupSchedule)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.DBAutoMigrate)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_ReadPoolFallsBackToAppUser(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DB_DATABASE", "lite")
	t.Setenv("DB_APP_USER", "lite_app")
	t.Setenv("DB_APP_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5432", cfg.DBPort)
	assert.Equal(t, "lite_app", cfg.DBReadUser)
	assert.Equal(t, "secret", cfg.DBReadPassword)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DB_TYPE": "sqlite"}},
		{"unsupported type", map[string]string{"DB_TYPE": "oracle", "DB_DATABASE": "x"}},
		{"missing app user", map[string]string{"DB_TYPE": "mysql", "DB_DATABASE": "x"}},
		{"authz without client", map[string]string{"DB_TYPE": "sqlite", "DB_DATABASE": "x", "AUTHZ_URL": "http://authz:8080"}},
		{"zero workers", map[string]string{"DB_TYPE": "sqlite", "DB_DATABASE": "x", "MAX_CONCURRENT_INGESTIONS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_DATABASE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LITE_TEST_INT", "notanint")
	t.Setenv("LITE_TEST_BOOL", "false")
	t.Setenv("LITE_TEST_DUR", "90s")

	assert.Equal(t, 7, getEnvAsInt("LITE_TEST_INT", 7))
	assert.False(t, getEnvAsBool("LITE_TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("LITE_TEST_DUR", time.Second))
	assert.Equal(t, int64(9), getEnvAsInt64("LITE_TEST_MISSING", 9))
}
