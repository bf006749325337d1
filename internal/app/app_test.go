package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/config"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

func testConfig(t *testing.T, store string) *config.Config {
	t.Helper()
	t.Setenv("GEOCLUSTER_NODE_ID", "node-a")
	t.Setenv("GEOCLUSTER_CATALOG_STORE", store)
	t.Setenv("GEOCLUSTER_CATALOG_FS_ROOT", t.TempDir())
	t.Setenv("GEOCLUSTER_SERVER_ADDR", "127.0.0.1:0")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuild_LocalNode(t *testing.T) {
	n, err := Build(context.Background(), testConfig(t, "memory"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	assert.Equal(t, "local", n.Bus.Name())
	assert.True(t, n.Guard.Enabled())

	rec := httptest.NewRecorder()
	n.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"node_id":"node-a"`)
}

func TestBuild_FSStoreSurvivesRestart(t *testing.T) {
	cfg := testConfig(t, "fs")
	ctx := context.Background()

	n, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/catalog/workspace", strings.NewReader(`{"id":"w1","name":"topp"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	n.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, n.Close())

	again, err := Build(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = again.Close() })
	got, err := again.Catalog.Get(ctx, catalog.KindWorkspace, "w1")
	require.NoError(t, err)
	assert.Equal(t, "topp", got.GetName())
}

func TestBuild_UnreachableRedisFails(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Bus.Kind = "redis"
	cfg.Bus.Redis.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	n, err := Build(context.Background(), testConfig(t, "memory"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
