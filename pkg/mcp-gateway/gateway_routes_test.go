package mcpgateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/router"
)

func newEmptyGateway(t *testing.T) *Gateway {
	t.Helper()
	reg, err := registry.New(nil)
	require.NoError(t, err)
	engine, err := discovery.NewEngine(reg, discovery.NewProber(nil), nil)
	require.NoError(t, err)
	gateway, err := NewGateway(engine, router.New(registry.DefaultRouting()), nil, &Options{Path: "/mcp"})
	require.NoError(t, err)
	return gateway
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

// Consumers can add custom routes via ServeMux before serving.
func TestGatewayServeMux_AllowsCustomRoutes_BeforeServe(t *testing.T) {
	gateway := newEmptyGateway(t)

	gateway.ServeMux().HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := httptest.NewServer(gateway.Handler())
	defer srv.Close()

	res, body := getBody(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body)
}

// Routes registered after the handler is mounted are reachable. The standard
// net/http ServeMux permits concurrent registration.
func TestGatewayServeMux_AllowsCustomRoutes_AfterServe(t *testing.T) {
	gateway := newEmptyGateway(t)

	srv := httptest.NewServer(gateway.Handler())
	defer srv.Close()

	gateway.ServeMux().HandleFunc("/late", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ready"))
	})

	res, body := getBody(t, srv.URL+"/late")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ready", body)
}

func TestGatewayRecoversFromHandlerPanic(t *testing.T) {
	gateway := newEmptyGateway(t)
	gateway.ServeMux().HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	srv := httptest.NewServer(gateway.Handler())
	defer srv.Close()

	res, _ := getBody(t, srv.URL+"/boom")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
}

func TestNewGatewayRequiresCollaborators(t *testing.T) {
	_, err := NewGateway(nil, router.New(registry.RoutingConfig{}), nil, nil)
	assert.Error(t, err, "engine is required")

	reg, err := registry.New(nil)
	require.NoError(t, err)
	engine, err := discovery.NewEngine(reg, discovery.NewProber(nil), nil)
	require.NoError(t, err)

	_, err = NewGateway(engine, nil, nil, nil)
	assert.Error(t, err, "router is required")

	_, err = NewGateway(engine, router.New(registry.RoutingConfig{}), nil, &Options{Path: "/"})
	assert.Error(t, err, "root RPC path is rejected")
}
