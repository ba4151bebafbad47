// Package proxy forwards an inbound request to the backend chosen by the
// router and relays the backend's answer.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/router"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 30 * time.Second

// DefaultMaxResponseBytes caps a buffered backend response.
const DefaultMaxResponseBytes = 32 << 20

var requestHeaders = []string{
	"Authorization",
	"Content-Type",
	"User-Agent",
	"Accept",
	"Mcp-Session-Id",
	"Mcp-Protocol-Version",
	"Last-Event-Id",
	"X-Request-Id",
}

// Response headers are relayed unless hop-by-hop or owned by the gateway.
// Content-Length is recomputed from the buffered body and the gateway's CORS
// policy answers for Access-Control-*.
var gatewayResponseHeaders = []string{
	"Content-Length",
}

const corsHeaderPrefix = "Access-Control-"

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Options configure a Proxy.
type Options struct {
	// HTTPClient issues the outbound calls. Defaults to a client with an
	// otelhttp transport and no client-level timeout.
	HTTPClient *http.Client
	// Timeout bounds one outbound call including reading the body.
	// Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxResponseBytes bounds the buffered backend body. A larger response
	// is a gateway error. Defaults to DefaultMaxResponseBytes.
	MaxResponseBytes int64
	Logger           *slog.Logger
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Proxy relays requests to backends.
type Proxy struct {
	opts Options
}

// New builds a Proxy.
func New(opts *Options) *Proxy {
	return &Proxy{opts: opts.withDefaults()}
}

// Timeout is the bound applied to each outbound call.
func (p *Proxy) Timeout() time.Duration { return p.opts.Timeout }

// Response is a backend answer ready to be relayed.
type Response struct {
	BackendID  string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Relay writes the response to w.
func (r *Response) Relay(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vv := range r.Header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(r.StatusCode)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

// OutboundPath is the backend-side path for a request: the matched prefix is
// stripped for path matches, any other decision keeps the original path.
func OutboundPath(d router.Decision, path string) string {
	if d.Reason == router.ReasonPathMatch && d.MatchedPrefix != "" {
		return router.StripPrefix(path, d.MatchedPrefix)
	}
	if path == "" {
		return "/"
	}
	return path
}

// Forward issues the equivalent of in against the decided backend. body is
// the already-read request body. Any transport failure or timeout is returned
// as a *GatewayError.
func (p *Proxy) Forward(ctx context.Context, d router.Decision, in *http.Request, body []byte) (*Response, error) {
	if !d.Found() {
		return nil, ErrNoBackend
	}
	target := d.Backend.URL(OutboundPath(d, in.URL.Path))
	if in.URL.RawQuery != "" {
		target += "?" + in.URL.RawQuery
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	out, err := http.NewRequestWithContext(ctx, in.Method, target, reader)
	if err != nil {
		return nil, p.fail(d, fmt.Sprintf("invalid upstream request: %v", err), err)
	}
	copyHeaders(out.Header, in.Header, requestHeaders)

	start := time.Now()
	resp, err := p.opts.HTTPClient.Do(out)
	if err != nil {
		return nil, p.fail(d, p.describe(ctx, err), err)
	}
	defer resp.Body.Close()

	limit := p.opts.MaxResponseBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, p.fail(d, p.describe(ctx, err), err)
	}
	if int64(len(data)) > limit {
		return nil, p.fail(d, fmt.Sprintf("upstream response exceeds %d bytes", limit), ErrResponseTooLarge)
	}

	result := &Response{
		BackendID:  d.BackendID,
		StatusCode: resp.StatusCode,
		Header:     make(http.Header),
		Body:       data,
	}
	copyResponseHeaders(result.Header, resp.Header)
	p.opts.Logger.Debug("proxied request",
		"backend", d.BackendID,
		"method", in.Method,
		"target", target,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return result, nil
}

func (p *Proxy) fail(d router.Decision, detail string, err error) *GatewayError {
	p.opts.Logger.Warn("proxy request failed", "backend", d.BackendID, "error", err)
	return &GatewayError{Kind: KindBadGateway, BackendID: d.BackendID, Detail: detail, Err: err}
}

func (p *Proxy) describe(ctx context.Context, err error) string {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("upstream timed out after %s", p.opts.Timeout)
	}
	return err.Error()
}

// hopByHop returns the hop-by-hop headers of src, including any header named
// in its Connection header.
func hopByHop(src http.Header) map[string]struct{} {
	drop := make(map[string]struct{})
	for _, h := range hopHeaders {
		drop[h] = struct{}{}
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				drop[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}
	return drop
}

// copyResponseHeaders copies every end-to-end header of a backend response.
func copyResponseHeaders(dst, src http.Header) {
	drop := hopByHop(src)
	for _, h := range gatewayResponseHeaders {
		drop[h] = struct{}{}
	}
	for key, vv := range src {
		key = http.CanonicalHeaderKey(key)
		if _, skip := drop[key]; skip || strings.HasPrefix(key, corsHeaderPrefix) {
			continue
		}
		dst[key] = append([]string(nil), vv...)
	}
}

// copyHeaders copies the allowed headers from src to dst, skipping hop-by-hop
// headers and any header named in src's Connection header.
func copyHeaders(dst, src http.Header, allowed []string) {
	drop := hopByHop(src)
	for _, h := range allowed {
		key := http.CanonicalHeaderKey(h)
		if _, hop := drop[key]; hop {
			continue
		}
		if vv := src.Values(key); len(vv) > 0 {
			dst[key] = append([]string(nil), vv...)
		}
	}
}
