package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv blanks the aliases Load binds so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TUTOR_AUTH_JWT_SECRET_KEY", "JWT_SECRET_KEY",
		"TUTOR_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"TUTOR_DB_DSN", "DATABASE_URL",
		"TUTOR_REDIS_ADDR", "REDIS_ADDR",
		"TUTOR_LOG_MODE", "LOG_MODE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultsWithSecretFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "log_mode: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecretKey)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 60*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, time.Hour, cfg.Reset.Interval)
	assert.Equal(t, map[quota.Bucket]int{
		quota.BucketLearningInteractions: 150,
		quota.BucketAutoExplain:          20,
	}, cfg.Quota.Limits())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
log_mode: test
db:
  driver: sqlite
  dsn: "file::memory:"
auth:
  jwt_secret_key: "a-long-enough-secret"
llm:
  provider: mock
  call_timeout: 5s
quota:
  learning_interactions: 10
  auto_explain: 3
reset:
  interval: 10m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Equal(t, 5*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Reset.Interval)
	assert.Equal(t, 3, cfg.Quota.Limits()[quota.BucketAutoExplain])
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "missing secret",
			body:    "llm:\n  provider: mock\n",
			wantMsg: "jwt_secret_key",
		},
		{
			name:    "unknown driver",
			body:    "db:\n  driver: mysql\nauth:\n  jwt_secret_key: a-long-enough-secret\nllm:\n  provider: mock\n",
			wantMsg: "driver",
		},
		{
			name:    "api key required for real provider",
			body:    "auth:\n  jwt_secret_key: a-long-enough-secret\nllm:\n  provider: anthropic\n",
			wantMsg: "api_key",
		},
		{
			name:    "lease shorter than a guarded call",
			body:    "auth:\n  jwt_secret_key: a-long-enough-secret\nllm:\n  provider: mock\n  call_timeout: 5m\n",
			wantMsg: "lease_ttl must be longer than llm.call_timeout",
		},
		{
			name:    "stale cutoff equal to a guarded call",
			body:    "auth:\n  jwt_secret_key: a-long-enough-secret\nllm:\n  provider: mock\n  call_timeout: 90s\nsession:\n  lease_ttl: 2m\nreset:\n  stale_after: 90s\n",
			wantMsg: "stale_after must be longer than llm.call_timeout",
		},
		{
			name:    "zero quota",
			body:    "auth:\n  jwt_secret_key: a-long-enough-secret\nllm:\n  provider: mock\nquota:\n  auto_explain: 0\n",
			wantMsg: "auto_explain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_UnreadableFile(t *testing.T) {
	_, err := Load(writeConfig(t, "log_mode: [unterminated\n"))
	require.Error(t, err)
}
