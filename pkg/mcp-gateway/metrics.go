package mcpgateway

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vikashloomba/mcp-hub-gateway/pkg/router"
)

const meterName = "github.com/vikashloomba/mcp-hub-gateway/pkg/mcp-gateway"

type metrics struct {
	requests    metric.Int64Counter
	proxyErrors metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &metrics{}
	var err error
	if m.requests, err = meter.Int64Counter("mcphub.requests",
		metric.WithDescription("Routed requests by routing reason")); err != nil {
		return nil, fmt.Errorf("mcpgateway: requests counter: %w", err)
	}
	if m.proxyErrors, err = meter.Int64Counter("mcphub.proxy.errors",
		metric.WithDescription("Outbound calls that ended in a gateway error")); err != nil {
		return nil, fmt.Errorf("mcpgateway: proxy errors counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("mcphub.proxy.duration",
		metric.WithDescription("Outbound call duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("mcpgateway: proxy duration histogram: %w", err)
	}
	return m, nil
}

func (m *metrics) request(ctx context.Context, d router.Decision) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", d.Reason.String()),
		attribute.String("backend", d.BackendID),
	))
}

func (m *metrics) proxied(ctx context.Context, d router.Decision, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("backend", d.BackendID))
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.proxyErrors.Add(ctx, 1, attrs)
	}
}
