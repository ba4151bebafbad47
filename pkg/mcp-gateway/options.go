package mcpgateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/metric"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway in initialize responses.
	Implementation *mcp.Implementation
	// Hub is echoed by the discovery endpoint.
	Hub registry.HubInfo
	// Addr controls the listen address used by ListenAndServe. Defaults to ":8000".
	Addr string
	// Path is where JSON-RPC calls are accepted. Defaults to "/mcp".
	Path string
	// DiscoveryInterval is the period of background discovery while
	// ListenAndServe runs. Zero disables it; snapshots are then refreshed on
	// demand only.
	DiscoveryInterval time.Duration
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
	// CORS overrides the permissive default policy.
	CORS *cors.Options
	// Meter records request metrics. Defaults to the global meter provider.
	Meter metric.Meter
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcphub",
			Title:   "MCP Hub",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Hub.Name == "" {
		opts.Hub = registry.DefaultHub()
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.CORS == nil {
		opts.CORS = &cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
				http.MethodDelete, http.MethodHead, http.MethodOptions,
			},
			AllowedHeaders:       []string{"*"},
			ExposedHeaders:       []string{"Mcp-Session-Id", "X-Request-Id"},
			OptionsSuccessStatus: http.StatusOK,
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}
