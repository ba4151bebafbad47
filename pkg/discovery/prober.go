package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/registry"
)

// maxDrain bounds how much of a health response body is read before closing.
const maxDrain = 64 << 10

// Prober checks one backend and reports its status.
type Prober interface {
	Probe(ctx context.Context, backend registry.BackendDescriptor) BackendStatus
}

// ProberOptions configure an HTTPProber.
type ProberOptions struct {
	// HTTPClient is used for the liveness and tool-list calls. Defaults to a
	// client with an otelhttp transport. Per-call deadlines come from the
	// descriptor's DiscoveryTimeout, not from the client.
	HTTPClient *http.Client
	// ClientName and ClientVersion identify the hub to MCP backends.
	ClientName    string
	ClientVersion string
	Logger        *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (o *ProberOptions) withDefaults() ProberOptions {
	if o == nil {
		o = &ProberOptions{}
	}
	opts := *o
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if opts.ClientName == "" {
		opts.ClientName = "mcphub"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "1.0.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// HTTPProber probes backends over plain HTTP: a GET on the discovery path,
// then a best-effort tool-list fetch. No retries happen within a probe.
type HTTPProber struct {
	opts ProberOptions
}

// NewProber builds an HTTPProber.
func NewProber(opts *ProberOptions) *HTTPProber {
	return &HTTPProber{opts: opts.withDefaults()}
}

// Probe performs the liveness check and, when it succeeds, the tool-list
// fetch. A failing tool-list fetch leaves the backend healthy with no tools
// and the declared tool count.
func (p *HTTPProber) Probe(ctx context.Context, backend registry.BackendDescriptor) BackendStatus {
	status := BackendStatus{
		ID:            backend.ID,
		LastCheckedAt: p.opts.Now(),
	}
	start := time.Now()
	err := p.checkLiveness(ctx, backend)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		status.ErrorKind = err.Kind
		p.opts.Logger.Debug("backend probe failed", "backend", backend.ID, "url", backend.DiscoveryURL(), "error", err)
		return status
	}
	status.Healthy = true

	tools, terr := p.fetchTools(ctx, backend)
	if terr != nil {
		p.opts.Logger.Debug("tool list unavailable", "backend", backend.ID, "source", backend.ToolsSource, "error", terr)
		status.Tools = []ToolDescriptor{}
		status.ObservedToolCount = backend.DeclaredToolCount
		return status
	}
	status.Tools = tools
	status.ObservedToolCount = len(tools)
	return status
}

func (p *HTTPProber) checkLiveness(ctx context.Context, backend registry.BackendDescriptor) *ProbeError {
	ctx, cancel := context.WithTimeout(ctx, backend.DiscoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backend.DiscoveryURL(), nil)
	if err != nil {
		return &ProbeError{Kind: ErrorKindOther, Err: err}
	}
	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProbeError{Kind: ErrorKindHTTPStatus, StatusCode: resp.StatusCode}
	}
	return nil
}

func (p *HTTPProber) fetchTools(ctx context.Context, backend registry.BackendDescriptor) ([]ToolDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.DiscoveryTimeout)
	defer cancel()

	switch backend.ToolsSource {
	case registry.ToolsSourceMCP:
		return p.listToolsMCP(ctx, backend)
	case registry.ToolsSourceREST, "":
		return p.listToolsREST(ctx, backend)
	default:
		return nil, fmt.Errorf("unknown tools source %q", backend.ToolsSource)
	}
}
