package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func loopback(t *testing.T, addr string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return net.JoinHostPort("127.0.0.1", port)
}

func TestNew_Disabled(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, tel.MeterProvider)
	require.Nil(t, tel.TracerProvider)
	require.Empty(t, tel.MetricsAddr)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Meter)
	require.NoError(t, shutdown(context.Background()))
}

func TestNew_ServesMetrics(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: true, ServiceName: "rowdb-test"})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, shutdown(context.Background())) })
	require.NotEmpty(t, tel.MetricsAddr)

	counter, err := tel.Meter.Int64Counter("rowdb.test.hits")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	_, span := tel.Tracer.Start(context.Background(), "startup")
	require.True(t, span.SpanContext().IsSampled())
	span.End()

	resp, err := http.Get("http://" + loopback(t, tel.MetricsAddr) + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "rowdb_test_hits")
}

func TestNew_PortInUse(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, portStr, err := net.SplitHostPort(tel.MetricsAddr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	_, _, err = New(Config{Enabled: true, PrometheusPort: port})
	require.ErrorContains(t, err, "failed to listen for metrics")
}
