// ABOUTME: Tests for config path resolution, logger setup and the health command
// ABOUTME: Exercise the cobra root without starting servers

package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/voyage-gateway/internal/config"
)

func TestConfigPath_Priority(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("VOYAGE_CONFIG", "")

	assert.Equal(t, "", configPath(""), "nothing on disk means defaults")

	xdg := filepath.Join(dir, "xdg", "voyage", "gateway.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(xdg), 0o755))
	require.NoError(t, os.WriteFile(xdg, []byte("{}"), 0o644))
	assert.Equal(t, xdg, configPath(""))

	require.NoError(t, os.WriteFile("config.yaml", []byte("{}"), 0o644))
	assert.Equal(t, "config.yaml", configPath(""))

	t.Setenv("VOYAGE_CONFIG", "/etc/voyage.yaml")
	assert.Equal(t, "/etc/voyage.yaml", configPath(""))
	assert.Equal(t, "flag.yaml", configPath("flag.yaml"))
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("VOYAGE_CONFIG", "")

	cfg, source, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultsLabel, source)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestColorHandler(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Debug("hidden")
	logger.With("component", "worker").WithGroup("task").Warn("retrying", "id", "t1", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN retrying")
	assert.Contains(t, out, " component=worker")
	assert.Contains(t, out, " task.id=t1")
	assert.Contains(t, out, " task.attempt=2")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })

	logger.Debug("turn finished", "status", "success")
	assert.Contains(t, buf.String(), `"msg":"turn finished"`)
	assert.Contains(t, buf.String(), `"status":"success"`)
}

func TestCheckWorkerConfig(t *testing.T) {
	cfg := config.Default()
	require.Error(t, checkWorkerConfig(cfg), "memory queue cannot reach a separate process")

	cfg.Queue.Backend = config.BackendSQS
	require.Error(t, checkWorkerConfig(cfg), "memory store cannot be shared")

	cfg.Store.Backend = config.BackendSQLite
	assert.NoError(t, checkWorkerConfig(cfg))
}

func TestDialAddr(t *testing.T) {
	assert.Equal(t, "localhost:8080", dialAddr(":8080"))
	assert.Equal(t, "localhost:8080", dialAddr("0.0.0.0:8080"))
	assert.Equal(t, "10.0.0.2:8080", dialAddr("10.0.0.2:8080"))
}

func writeServerConfig(t *testing.T, addr string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  http_addr: \"" + addr + "\"\nworker:\n  embedded: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHealthCommand(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	path := writeServerConfig(t, strings.TrimPrefix(srv.URL, "http://"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"health", "--config", path})
	cmd.SetOut(&out)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "healthy\n", out.String())

	healthy.Store(false)
	cmd = newRootCmd()
	cmd.SetArgs([]string{"health", "-c", path})
	cmd.SetOut(&out)
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestRootCommand_ListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "worker", "health"})
}
