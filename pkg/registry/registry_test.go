package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaultsAndKeepsOrder(t *testing.T) {
	reg, err := New([]BackendDescriptor{
		{ID: "b", Address: Address{Host: "localhost", Port: 9002}, RoutePrefix: "beta/", Active: true},
		{ID: "a", Address: Address{Host: "localhost", Port: 9001}, RoutePrefix: "/alpha", Active: true},
		{ID: "c", Address: Address{Host: "localhost", Port: 9003}, Active: false},
	})
	require.NoError(t, err)

	active := reg.ListActive()
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.Equal(t, "a", active[1].ID)

	b := active[0]
	assert.Equal(t, "/beta", b.RoutePrefix)
	assert.Equal(t, "http", b.Address.Scheme)
	assert.Equal(t, DefaultDiscoveryPath, b.DiscoveryPath)
	assert.Equal(t, DefaultDiscoveryTimeout, b.DiscoveryTimeout)
	assert.Equal(t, ToolsSourceREST, b.ToolsSource)
	assert.Equal(t, "http://localhost:9002/health", b.DiscoveryURL())
	assert.Equal(t, "b", b.DisplayName)

	assert.Equal(t, []string{"b", "a", "c"}, reg.IDs())
	assert.Equal(t, 3, reg.Len())
}

func TestNewReportsAllConfigurationErrors(t *testing.T) {
	_, err := New([]BackendDescriptor{
		{ID: "", Address: Address{Host: "x"}},
		{ID: "dup", Address: Address{Host: "x"}, RoutePrefix: "/same"},
		{ID: "dup", Address: Address{Host: "y"}},
		{ID: "other", Address: Address{Host: "z"}, RoutePrefix: "/same"},
		{ID: "nohost", Address: Address{Scheme: "ftp"}, DeclaredToolCount: -1},
		{ID: "root", Address: Address{Host: "r"}, RoutePrefix: "/"},
	})
	require.Error(t, err)

	var cfgErrs ConfigurationErrors
	require.True(t, errors.As(err, &cfgErrs))
	fields := make(map[string]bool)
	for _, e := range cfgErrs.Errors {
		fields[e.BackendID+"/"+e.Field] = true
	}
	assert.True(t, fields["/id"])
	assert.True(t, fields["dup/id"])
	assert.True(t, fields["other/path"])
	assert.True(t, fields["nohost/host"])
	assert.True(t, fields["nohost/protocol"])
	assert.True(t, fields["nohost/tools_count"])
	assert.True(t, fields["root/path"])
}

func TestListActiveReturnsCopies(t *testing.T) {
	reg, err := New([]BackendDescriptor{
		{ID: "a", Address: Address{Host: "h"}, Capabilities: []string{"database"}, Active: true},
	})
	require.NoError(t, err)

	first := reg.ListActive()
	first[0].Capabilities[0] = "mutated"

	again, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, []string{"database"}, again.Capabilities)
	assert.True(t, again.HasCapability("database"))
}

func TestParseConfigPreservesServerOrder(t *testing.T) {
	doc := `{
  "servers": {
    "zeta": {"name": "Zeta", "host": "localhost", "port": 8101, "path": "/zeta",
             "protocol": "http", "status": "active", "tools_count": 3,
             "categories": ["scraping"], "discovery_timeout": 2},
    "alpha": {"name": "Alpha", "host": "localhost", "port": 8102, "path": "/alpha",
              "protocol": "http", "status": "disabled", "always_works": true,
              "discovery_path": "/ready", "discovery_timeout": "1500ms",
              "tools_source": "mcp"}
  },
  "hub": {"name": "Test Hub", "version": "9.9.9"},
  "routing": {"default_capability": "scraping", "methods": {"scraping": ["crawl"]}}
}`
	cfg, err := ParseConfig([]byte(doc))
	require.NoError(t, err)

	require.Len(t, cfg.Backends, 2)
	zeta, alpha := cfg.Backends[0], cfg.Backends[1]
	assert.Equal(t, "zeta", zeta.ID)
	assert.Equal(t, 2*time.Second, zeta.DiscoveryTimeout)
	assert.True(t, zeta.Active)
	assert.Equal(t, 3, zeta.DeclaredToolCount)

	assert.Equal(t, "alpha", alpha.ID)
	assert.False(t, alpha.Active)
	assert.True(t, alpha.AlwaysIncluded)
	assert.Equal(t, 1500*time.Millisecond, alpha.DiscoveryTimeout)
	assert.Equal(t, "/ready", alpha.DiscoveryPath)
	assert.Equal(t, ToolsSourceMCP, alpha.ToolsSource)

	assert.Equal(t, "Test Hub", cfg.Hub.Name)
	assert.Equal(t, "scraping", cfg.Routing.DefaultCapability)
	assert.Equal(t, map[string][]string{"scraping": {"crawl"}}, cfg.Routing.Methods)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	require.Len(t, reg.ListActive(), 1)
}

func TestParseConfigYAMLWithoutRouting(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
servers:
  db:
    host: db.internal
    port: 5000
    path: /db
    categories: [database]
`))
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, DefaultRouting(), cfg.Routing)
	assert.Equal(t, DefaultHub(), cfg.Hub)
	assert.True(t, cfg.Backends[0].Active)
}

func TestParseConfigRejectsBadTimeout(t *testing.T) {
	_, err := ParseConfig([]byte(`servers: {db: {host: h, discovery_timeout: soon}}`))
	require.Error(t, err)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	supabase, ok := reg.Get("supabase")
	require.True(t, ok)
	assert.True(t, supabase.AlwaysIncluded)
	assert.Equal(t, "/supabase", supabase.RoutePrefix)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers": [1, 2]}`), 0o600))

	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	var cfgErr ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
