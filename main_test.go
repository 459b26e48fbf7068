package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"redgraph/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.RateLimit = 0
	cfg.Store.InMemory = true
	return cfg
}

func TestAppRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), testConfig(), log, newRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(log) })

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := `{"name":"ann","email":"ann@example.com","password":"secret1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "redgraph_register_success_total 1")
	assert.Contains(t, w.Body.String(), `route="/api/v1/register"`)
}

func TestAppRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "cassandra"
	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), newRegistry())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestConfigInitAndMigrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redgraph.yaml")

	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	cfg := testConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = filepath.Join(dir, "redgraph.db")
	cfg.Log.Level = "error"
	require.NoError(t, writeConfig(path, cfg))

	cmd = rootCmd()
	cmd.SetArgs([]string{"--config", path, "migrate"})
	require.NoError(t, cmd.Execute())
	_, err := os.Stat(cfg.Store.DSN)
	assert.NoError(t, err)
}

func writeConfig(path string, cfg config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
