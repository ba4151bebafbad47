package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/discovery"
	mcpgateway "github.com/vikashloomba/mcp-hub-gateway/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/proxy"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/router"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/statusstore"
	"github.com/vikashloomba/mcp-hub-gateway/pkg/telemetry"
)

type serveOptions struct {
	configPath     string
	addr           string
	path           string
	interval       time.Duration
	maxAge         time.Duration
	proxyTimeout   time.Duration
	redisURL       string
	redisNamespace string
	traceExporter  string
	otlpEndpoint   string
}

// defaultAddr honours the PORT environment variable used by container
// platforms.
func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8000"
}

func newServeCmd(version string) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub gateway",
		Long: `Loads the backend configuration, starts periodic discovery and serves the
JSON-RPC endpoint, the hub status endpoints and the prefixed backend paths
until interrupted.

The configuration file may be YAML or JSON. When it does not exist the
built-in backend set is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, version, slog.Default())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", registry.DefaultConfigFile, "Path to the backend configuration file")
	f.StringVar(&opts.addr, "addr", defaultAddr(), "Listen address (defaults to :$PORT or :8000)")
	f.StringVar(&opts.path, "path", "/mcp", "Path of the JSON-RPC endpoint")
	f.DurationVar(&opts.interval, "interval", 30*time.Second, "Background discovery interval (0 disables it)")
	f.DurationVar(&opts.maxAge, "max-age", 10*time.Second, "How long a snapshot is reused before an on-demand refresh")
	f.DurationVar(&opts.proxyTimeout, "proxy-timeout", proxy.DefaultTimeout, "Upper bound for one proxied backend call")
	f.StringVar(&opts.redisURL, "redis-url", "", "Publish each snapshot to this Redis server (e.g. redis://localhost:6379/0)")
	f.StringVar(&opts.redisNamespace, "redis-namespace", "mcphub", "Key prefix for published snapshots")
	f.StringVar(&opts.traceExporter, "trace-exporter", "none", "Trace exporter: none, stdout or otlp")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP gRPC collector address")
	return cmd
}

func runServe(ctx context.Context, opts *serveOptions, version string, logger *slog.Logger) error {
	exporter, err := telemetry.ParseExporter(opts.traceExporter)
	if err != nil {
		return err
	}
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "mcphub",
		ServiceVersion: version,
		Exporter:       exporter,
		Endpoint:       opts.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	cfg, err := registry.LoadConfig(opts.configPath, logger)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	prober := discovery.NewProber(&discovery.ProberOptions{
		HTTPClient:    telemetry.NewTracedHTTPClient(nil),
		ClientVersion: version,
		Logger:        logger,
	})
	engine, err := discovery.NewEngine(reg, prober, &discovery.EngineOptions{
		MaxAge: opts.maxAge,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	if opts.redisURL != "" {
		publisher, err := statusstore.New(ctx, opts.redisURL, &statusstore.Options{
			Namespace: opts.redisNamespace,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		engine.Subscribe(publisher.Observe)
		logger.Info("publishing snapshots to Redis", "key", publisher.SnapshotKey())
	}

	gateway, err := mcpgateway.NewGateway(
		engine,
		router.New(cfg.Routing),
		proxy.New(&proxy.Options{Timeout: opts.proxyTimeout, Logger: logger}),
		&mcpgateway.Options{
			Implementation: &mcp.Implementation{
				Name:    "mcphub",
				Title:   cfg.Hub.Name,
				Version: version,
			},
			Hub:               cfg.Hub,
			Addr:              opts.addr,
			Path:              opts.path,
			DiscoveryInterval: opts.interval,
			Logger:            logger,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	logger.Info("starting hub", "backends", reg.Len(), "active", len(reg.ListActive()), "addr", opts.addr)
	if err := gateway.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway server stopped: %w", err)
	}
	return nil
}
