package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/platform/lock"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	clearEnv(t)
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "app.db"))
	cfg, err := Load(writeConfig(t, fmt.Sprintf(`
log_mode: test
http:
  gin_mode: test
db:
  driver: sqlite
  dsn: %q
  max_open_conns: 1
  log_level: silent
auth:
  jwt_secret_key: "a-long-enough-secret"
llm:
  provider: mock
reset:
  enabled: false
`, dsn)))
	require.NoError(t, err)
	return cfg
}

func TestNew_WiresEverythingOverSqlite(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NotNil(t, a.Server)
	assert.Nil(t, a.Clients.Redis)
	_, isNoop := a.Clients.Locker.(lock.Noop)
	assert.False(t, isNoop, "database leases back sessions when redis is not configured")

	userID := uuid.New()
	status, err := a.Services.Ledger.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 150, status[quota.BucketLearningInteractions].Limit)
	assert.Equal(t, 20, status[quota.BucketAutoExplain].Limit)

	token, err := a.Services.Auth.IssueAccessToken(userID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.Server.Engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClose_IsSafeOnNil(t *testing.T) {
	var a *App
	assert.NoError(t, a.Close())
}
