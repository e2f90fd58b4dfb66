package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics",
	fx.Provide(
		New,
		NewServer,
	),
)

// Metrics holds the collectors of the mount engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	events          *prometheus.CounterVec
	mountChanges    *prometheus.CounterVec
	targetRepairs   *prometheus.CounterVec
	deferredUsers   prometheus.Counter
	refreshing      prometheus.Gauge
	refreshDuration prometheus.Histogram
	propagations    *prometheus.CounterVec
	etagBumps       prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		Registry: reg,
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seraph_mounts_events_total",
				Help: "Share lifecycle events handled by the mount cache synchronizer",
			},
			[]string{"event"},
		),
		mountChanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seraph_mounts_cache_changes_total",
				Help: "Mount cache entries written or removed",
			},
			[]string{"change"},
		),
		targetRepairs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seraph_mounts_target_repairs_total",
				Help: "Mount targets moved by the validator",
			},
			[]string{"reason"},
		),
		deferredUsers: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "seraph_mounts_deferred_users_total",
				Help: "Users flagged for a background refresh",
			},
		),
		refreshing: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "seraph_mounts_users_refreshing",
				Help: "Users whose mount set is currently being recomputed",
			},
		),
		refreshDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seraph_mounts_refresh_duration_seconds",
				Help:    "Duration of a full mount refresh for one user",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		propagations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "seraph_propagation_hooks_total",
				Help: "Filesystem and share hooks processed by the propagation engine",
			},
			[]string{"hook"},
		),
		etagBumps: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "seraph_propagation_etag_bumps_total",
				Help: "Observer ancestor chains whose etag was bumped",
			},
		),
	}
}

func (m *Metrics) Event(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) MountChange(change string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mountChanges.WithLabelValues(change).Add(float64(n))
}

func (m *Metrics) TargetRepair(reason string) {
	if m == nil {
		return
	}
	m.targetRepairs.WithLabelValues(reason).Inc()
}

func (m *Metrics) Deferred(n int) {
	if m == nil {
		return
	}
	m.deferredUsers.Add(float64(n))
}

// RefreshStarted returns a func that must be called when the refresh is done.
func (m *Metrics) RefreshStarted() func() {
	if m == nil {
		return func() {}
	}
	m.refreshing.Inc()
	timer := prometheus.NewTimer(m.refreshDuration)
	return func() {
		timer.ObserveDuration()
		m.refreshing.Dec()
	}
}

func (m *Metrics) Propagation(hook string) {
	if m == nil {
		return
	}
	m.propagations.WithLabelValues(hook).Inc()
}

func (m *Metrics) EtagBumps(n int) {
	if m == nil {
		return
	}
	m.etagBumps.Add(float64(n))
}
