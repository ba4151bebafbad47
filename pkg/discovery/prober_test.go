package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// descriptorFor points a descriptor at an httptest server.
func descriptorFor(t *testing.T, id, rawURL string) registry.BackendDescriptor {
	t.Helper()
	host, portStr, err := net.SplitHostPort(rawURL[len("http://"):])
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	reg, err := registry.New([]registry.BackendDescriptor{{
		ID:                id,
		Address:           registry.Address{Scheme: "http", Host: host, Port: port},
		RoutePrefix:       "/" + id,
		Capabilities:      []string{"database"},
		DeclaredToolCount: 7,
		DiscoveryTimeout:  500 * time.Millisecond,
		Active:            true,
	}})
	require.NoError(t, err)
	d, _ := reg.Get(id)
	return d
}

func newBackend(t *testing.T, health int, tools http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(health)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if tools != nil {
		mux.HandleFunc("/api/tools", tools)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeHealthyWithTools(t *testing.T) {
	srv := newBackend(t, http.StatusOK, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name": "execute_sql", "description": "Run SQL", "inputSchema": {"type":"object","properties":{"q":{"type":"string"}}}},
			{"name": "list_tables"},
			{"name": "execute_sql", "description": "duplicate"},
			{"description": "nameless"}
		]`))
	})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewProber(&ProberOptions{Now: func() time.Time { return fixed }})

	status := p.Probe(context.Background(), descriptorFor(t, "db", srv.URL))

	assert.True(t, status.Healthy)
	assert.Empty(t, status.Error)
	assert.Equal(t, fixed, status.LastCheckedAt)
	require.Len(t, status.Tools, 2)
	assert.Equal(t, "execute_sql", status.Tools[0].Name)
	assert.Equal(t, "Run SQL", status.Tools[0].Description)
	assert.JSONEq(t, `{"type":"object","properties":{"q":{"type":"string"}}}`, string(status.Tools[0].InputSchema))
	assert.Equal(t, "list_tables", status.Tools[1].Name)
	assert.Equal(t, 2, status.ObservedToolCount)
}

func TestProbeAcceptsWrappedToolList(t *testing.T) {
	srv := newBackend(t, http.StatusOK, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tools": [{"name": "read_file"}], "total": 1}`))
	})
	status := NewProber(nil).Probe(context.Background(), descriptorFor(t, "files", srv.URL))
	require.True(t, status.Healthy)
	require.Len(t, status.Tools, 1)
	assert.Equal(t, "read_file", status.Tools[0].Name)
}

func TestProbeToolListFailureIsSoft(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"missing endpoint": nil,
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"garbage body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newBackend(t, http.StatusOK, handler)
			status := NewProber(nil).Probe(context.Background(), descriptorFor(t, "db", srv.URL))

			assert.True(t, status.Healthy)
			assert.Empty(t, status.Tools)
			assert.NotNil(t, status.Tools)
			assert.Equal(t, 7, status.ObservedToolCount)
		})
	}
}

func TestProbeNonSuccessStatus(t *testing.T) {
	srv := newBackend(t, http.StatusServiceUnavailable, nil)
	status := NewProber(nil).Probe(context.Background(), descriptorFor(t, "db", srv.URL))

	assert.False(t, status.Healthy)
	assert.Equal(t, ErrorKindHTTPStatus, status.ErrorKind)
	assert.Equal(t, "HTTP 503", status.Error)
}

func TestProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	status := NewProber(nil).Probe(context.Background(), descriptorFor(t, "db", url))

	assert.False(t, status.Healthy)
	assert.Equal(t, ErrorKindConnectionRefused, status.ErrorKind)
	assert.Equal(t, "connection refused", status.Error)
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	d := descriptorFor(t, "slow", srv.URL)
	d.DiscoveryTimeout = 50 * time.Millisecond

	start := time.Now()
	status := NewProber(nil).Probe(context.Background(), d)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, status.Healthy)
	assert.Equal(t, ErrorKindTimeout, status.ErrorKind)
	assert.Equal(t, "timeout", status.Error)
}

func TestProbeListsToolsOverMCP(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "fake-backend", Version: "1.0.0"}, nil)
	noop := func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}
	server.AddTool(&mcp.Tool{
		Name:        "git_clone",
		Description: "Clone a repository",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"url": map[string]any{"type": "string"}}},
	}, noop)
	server.AddTool(&mcp.Tool{
		Name:        "git_push",
		InputSchema: map[string]any{"type": "object"},
	}, noop)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := descriptorFor(t, "git", srv.URL)
	d.ToolsSource = registry.ToolsSourceMCP
	d.DiscoveryTimeout = 5 * time.Second

	status := NewProber(nil).Probe(context.Background(), d)

	require.True(t, status.Healthy)
	require.Len(t, status.Tools, 2)
	names := []string{status.Tools[0].Name, status.Tools[1].Name}
	assert.ElementsMatch(t, []string{"git_clone", "git_push"}, names)
	for _, tool := range status.Tools {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
		assert.Equal(t, "object", schema["type"])
	}
	assert.Equal(t, 2, status.ObservedToolCount)
}

func TestProbeErrorMessages(t *testing.T) {
	long := &ProbeError{Kind: ErrorKindOther, Err: assert.AnError}
	assert.Equal(t, assert.AnError.Error(), long.Error())
	assert.ErrorIs(t, long, assert.AnError)

	var msg string
	for range 20 {
		msg += "abcdefghij"
	}
	truncated := &ProbeError{Kind: ErrorKindOther, Err: errors.New(msg)}
	assert.LessOrEqual(t, len(truncated.Error()), maxErrorDetail)
}
