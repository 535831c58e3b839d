package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestStartPrometheusServer(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	SchemaLoads.WithLabelValues("promtest").Inc()
	StartPrometheusServer(ctx, &wg, &PromServerOpts{Addr: addr, Path: "/custom"})

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/custom")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(b)
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, `geof_schema_loads_total{database="promtest"}`)

	cancel()
	wg.Wait()

	_, err := http.Get("http://" + addr + "/custom")
	assert.Error(t, err)
}

func TestMethodLabel(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{http.MethodGet, http.MethodGet},
		{http.MethodPost, http.MethodPost},
		{http.MethodOptions, http.MethodOptions},
		{"PROPFIND", "OTHER"},
		{"get", "OTHER"},
		{"", "OTHER"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, MethodLabel(tt.method))
		})
	}
}

func TestOpenPoolsGauge(t *testing.T) {
	databases := []string{"vicmap"}
	gauge := NewOpenPoolsGauge(func() []string { return databases })
	assert.Equal(t, float64(1), testutil.ToFloat64(gauge))

	databases = append(databases, "gnaf")
	assert.Equal(t, float64(2), testutil.ToFloat64(gauge))
}
