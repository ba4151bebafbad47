package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpgateway "github.com/vikashloomba/mcp-hub-gateway/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd("1.2.3")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "mcphub version 1.2.3\n", out)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, &globalFlags{logLevel: "warn", logFormat: "json"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "backend", "db")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"backend":"db"`)

	logger, err = newLogger(&buf, &globalFlags{logLevel: "error", debug: true})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	_, err = newLogger(&buf, &globalFlags{logLevel: "loud"})
	assert.Error(t, err)
	_, err = newLogger(&buf, &globalFlags{logLevel: "info", logFormat: "xml"})
	assert.Error(t, err)
}

func TestDefaultAddrHonoursPORT(t *testing.T) {
	t.Setenv("PORT", "9123")
	assert.Equal(t, ":9123", defaultAddr())
	t.Setenv("PORT", "")
	assert.Equal(t, ":8000", defaultAddr())
}

func TestStatusCommandRendersTable(t *testing.T) {
	doc := mcpgateway.DiscoveryDocument{
		Hub: registry.HubInfo{Name: "Test Hub", Version: "2.0.0"},
		Servers: []mcpgateway.ServerView{
			{ID: "supabase", Path: "/supabase", HealthStatus: "online", AvailableTools: 3, LastChecked: time.Now()},
			{ID: "minecraft", Path: "/minecraft", HealthStatus: "offline", Error: "connection refused"},
		},
		TotalServers:  2,
		OnlineServers: 1,
		TotalTools:    3,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != mcpgateway.DiscoveryPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--endpoint", srv.URL+"/")
	require.NoError(t, err)
	lower := strings.ToLower(out)
	assert.Contains(t, lower, "test hub 2.0.0")
	assert.Contains(t, lower, "supabase")
	assert.Contains(t, lower, "connection refused")
	assert.Contains(t, lower, "1/2 online")

	out, err = execute(t, "status", "--endpoint", srv.URL, "--json")
	require.NoError(t, err)
	var decoded mcpgateway.DiscoveryDocument
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded.Servers, 2)
}

func TestStatusCommandReportsHubErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := execute(t, "status", "--endpoint", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "down for maintenance")
}

func TestRunServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runServe(ctx, &serveOptions{
		configPath: filepath.Join(t.TempDir(), "missing.json"),
		addr:       "127.0.0.1:0",
		path:       "/mcp",
	}, "test", slog.Default())
	assert.NoError(t, err)
}

func TestRunServeRejectsBadSettings(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")

	err := runServe(context.Background(), &serveOptions{configPath: missing, traceExporter: "zipkin"}, "test", slog.Default())
	assert.ErrorContains(t, err, "unknown trace exporter")

	err = runServe(context.Background(), &serveOptions{configPath: missing, redisURL: "not-a-url"}, "test", slog.Default())
	assert.ErrorContains(t, err, "invalid Redis URL")
}
