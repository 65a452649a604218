package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingExportsSpans(t *testing.T) {
	var out bytes.Buffer
	tr, err := NewTracing(TracingConfig{Enabled: true, Output: &out})
	require.NoError(t, err)

	_, span := tr.Provider.Tracer("test").Start(context.Background(), "environment.turn")
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name":"environment.turn"`)
	assert.Contains(t, out.String(), "colony")
}

func TestTracingDisabled(t *testing.T) {
	tr, err := NewTracing(TracingConfig{})
	require.NoError(t, err)
	_, span := tr.Provider.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestMetricsServer(t *testing.T) {
	reg := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "colony_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv, err := NewMetricsServer("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "colony_test_total 3")
	assert.Contains(t, string(body), "go_goroutines")

	health, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
