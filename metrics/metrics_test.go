package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/metrics"
	"umbasa.net/seraph-mounts/tracing"
)

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.Event("created")
		m.MountChange("added", 2)
		m.Deferred(3)
		m.RefreshStarted()()
		m.EtagBumps(1)
	})
}

func TestServer(t *testing.T) {
	m := metrics.New()
	m.Event("created")
	m.MountChange("added", 2)

	v := viper.New()
	v.Set("metrics.address", "")
	lc := fxtest.NewLifecycle(t)

	res := metrics.NewServer(metrics.ServerParams{
		Log:     logging.New(logging.Params{}),
		Viper:   v,
		Metrics: m,
		Tracing: tracing.NewNoopTracing(),
		Lc:      lc,
	})
	lc.RequireStart()
	defer lc.RequireStop()

	rec := httptest.NewRecorder()
	res.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), `seraph_mounts_events_total{event="created"} 1`)
	assert.Contains(t, rec.Body.String(), `seraph_mounts_cache_changes_total{change="added"} 2`)

	rec = httptest.NewRecorder()
	res.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}
