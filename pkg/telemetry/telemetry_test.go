package telemetry

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestParseExporter(t *testing.T) {
	tests := []struct {
		in      string
		want    Exporter
		wantErr bool
	}{
		{"", ExporterNone, false},
		{"none", ExporterNone, false},
		{"STDOUT", ExporterStdout, false},
		{" otlp ", ExporterOTLP, false},
		{"jaeger", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExporter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitNone(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitOTLPRequiresEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{Exporter: ExporterOTLP})
	assert.Error(t, err)
}

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{ServiceName: "hub-test", Exporter: ExporterStdout, Writer: &buf})
	require.NoError(t, err)

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	ctx, span := otel.Tracer("telemetry-test").Start(context.Background(), "outer-call")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	res, err := NewTracedHTTPClient(nil).Do(req)
	require.NoError(t, err)
	res.Body.Close()
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.NotEmpty(t, traceparent, "trace context should be injected into outbound requests")
	assert.Contains(t, buf.String(), "outer-call")
	assert.Contains(t, buf.String(), "hub-test")
}
