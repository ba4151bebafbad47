package mcpgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/proxy"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/router"
)

// Gateway serves the hub endpoints, the JSON-RPC path and the
// backend-prefixed proxy paths on one HTTP handler.
type Gateway struct {
	engine *discovery.Engine
	router *router.Router
	proxy  *proxy.Proxy
	opts   Options

	metrics *metrics
	started time.Time

	mux         *http.ServeMux
	httpHandler http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway wires a Gateway over an engine, a router and a proxy. No
// discovery happens until the first request or ListenAndServe.
func NewGateway(engine *discovery.Engine, rt *router.Router, px *proxy.Proxy, opts *Options) (*Gateway, error) {
	if engine == nil {
		return nil, fmt.Errorf("mcpgateway: discovery engine is required")
	}
	if rt == nil {
		return nil, fmt.Errorf("mcpgateway: router is required")
	}
	if px == nil {
		px = proxy.New(nil)
	}
	options := opts.withDefaults()
	path, err := normalizePath(options.Path)
	if err != nil {
		return nil, err
	}
	options.Path = path

	m, err := newMetrics(options.Meter)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		engine:  engine,
		router:  rt,
		proxy:   px,
		opts:    options,
		metrics: m,
		started: options.Now(),
		mux:     http.NewServeMux(),
	}
	g.httpHandler = g.mountHandler()
	return g, nil
}

// Handler exposes the HTTP handler serving every gateway route.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ServeMux exposes the mux behind the hub endpoints so callers can add their
// own routes. Backend-prefixed paths still take precedence.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// Options returns a copy of the effective options.
func (g *Gateway) Options() Options {
	opts := g.opts
	impl := *g.opts.Implementation
	opts.Implementation = &impl
	return opts
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops. Background discovery runs for as long as the server does
// when DiscoveryInterval is set.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{
		Addr:              g.opts.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	runCtx, stopDiscovery := context.WithCancel(ctx)
	defer stopDiscovery()
	if g.opts.DiscoveryInterval > 0 {
		go func() {
			err := g.engine.Run(runCtx, g.opts.DiscoveryInterval)
			if err != nil && !errors.Is(err, context.Canceled) {
				g.logError("background discovery stopped", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	g.opts.Logger.Info("gateway listening", "addr", g.opts.Addr, "path", g.opts.Path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (g *Gateway) mountHandler() http.Handler {
	path := g.opts.Path
	g.mux.HandleFunc("GET /health", g.handleHealth)
	g.mux.HandleFunc("GET /api/discovery", g.handleDiscovery)
	g.mux.HandleFunc("GET /api/servers", g.handleServers)
	g.mux.HandleFunc("GET /api/tools", g.handleTools)
	g.mux.HandleFunc("GET /.well-known/mcp-config", g.handleMCPConfig)
	g.mux.HandleFunc("POST /.well-known/mcp-config", g.handleMCPConfig)
	g.mux.HandleFunc("GET "+path, g.handleInfo)
	g.mux.HandleFunc("POST "+path, g.handleRPC)
	g.mux.HandleFunc("GET "+path+"/", g.handleInfo)
	g.mux.HandleFunc("GET /{$}", g.handleInfo)
	g.mux.HandleFunc("POST /{$}", g.handleRPC)
	for _, pattern := range []string{path, path + "/", MCPConfigPath, "/{$}"} {
		g.mux.HandleFunc("OPTIONS "+pattern, g.handleOptions)
	}
	g.mux.HandleFunc("/", g.handleNotFound)

	var h http.Handler = http.HandlerFunc(g.dispatch)
	h = g.recoverMiddleware(h)
	h = g.accessLogMiddleware(h)
	h = requestIDMiddleware(h)
	h = cors.New(*g.opts.CORS).Handler(h)
	return otelhttp.NewHandler(h, "mcphub",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// dispatch resolves the snapshot once per request, proxies backend-prefixed
// paths and hands everything else to the hub mux.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	snap := g.resolveSnapshot(r)
	r = r.WithContext(withSnapshot(r.Context(), snap))
	if _, _, ok := router.MatchPath(snap, r.URL.Path); ok {
		g.handleProxy(w, r)
		return
	}
	g.mux.ServeHTTP(w, r)
}

// resolveSnapshot returns the snapshot a request is served from. The liveness
// endpoint never waits on a discovery cycle once one has been published.
func (g *Gateway) resolveSnapshot(r *http.Request) *discovery.Snapshot {
	if r.URL.Path == HealthPath {
		if cur := g.engine.Current(); cur != nil {
			return cur
		}
	}
	return g.engine.Snapshot(r.Context())
}

func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, g.opts.Now(), http.StatusBadRequest, err.Error())
		return
	}
	decision := g.router.Route(g.snapshot(r), r.URL.Path, methodOf(body))
	g.forward(w, r, decision, body)
}

// forward relays r to the decided backend. Transport failures become a 502
// carrying the upstream error text.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, d router.Decision, body []byte) {
	ctx := r.Context()
	g.metrics.request(ctx, d)
	start := time.Now()
	resp, err := g.proxy.Forward(ctx, d, r, body)
	g.metrics.proxied(ctx, d, time.Since(start), err)
	if err != nil {
		var gwErr *proxy.GatewayError
		if errors.As(err, &gwErr) {
			writeError(w, g.opts.Now(), gwErr.StatusCode(), gwErr.Error())
			return
		}
		g.logError("proxy request", err, "backend", d.BackendID)
		writeError(w, g.opts.Now(), http.StatusBadGateway, "Bad Gateway: "+err.Error())
		return
	}
	if err := resp.Relay(w); err != nil {
		g.logError("relay response", err, "backend", d.BackendID)
	}
}

func (g *Gateway) snapshot(r *http.Request) *discovery.Snapshot {
	if snap := snapshotFrom(r.Context()); snap != nil {
		return snap
	}
	return g.engine.Snapshot(r.Context())
}

func (g *Gateway) logError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	attrs := append([]any{"error", err}, args...)
	g.opts.Logger.Error(msg, attrs...)
}

func normalizePath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "", fmt.Errorf("mcpgateway: RPC path must not be the root path")
	}
	return path, nil
}

type snapshotContextKey struct{}

func withSnapshot(ctx context.Context, snap *discovery.Snapshot) context.Context {
	if snap == nil {
		return ctx
	}
	return context.WithValue(ctx, snapshotContextKey{}, snap)
}

func snapshotFrom(ctx context.Context) *discovery.Snapshot {
	if snap, ok := ctx.Value(snapshotContextKey{}).(*discovery.Snapshot); ok {
		return snap
	}
	return nil
}
