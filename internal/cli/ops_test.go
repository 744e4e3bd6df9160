package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/cardflow/pkg/metrics"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestOpsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := metrics.NewRegistry(reg)
	registry.ServerRequests.WithLabelValues("cards", "ok").Inc()

	srv := httptest.NewServer(newOpsHandler(reg, fakePinger{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := new(strings.Builder)
	_, err = io.Copy(body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `cardflow_server_requests_total{outcome="ok",topic="cards"} 1`)
}

func TestOpsHealth(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"reachable", nil, http.StatusOK},
		{"unreachable", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newOpsHandler(prometheus.NewRegistry(), fakePinger{tt.err}).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
