package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Prometheus hub metrics.
var (
	devicesConfigured = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_devices_configured",
			Help: "Number of configured devices.",
		},
	)
	discoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_discoveries_total",
			Help: "Total number of device discoveries started.",
		},
		[]string{"result"},
	)
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_actions_total",
			Help: "Total number of action executions.",
		},
		[]string{"result"},
	)
	stateChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_state_changes_total",
			Help: "Total number of device state changes.",
		},
	)
)

func init() {
	prometheus.MustRegister(devicesConfigured)
	prometheus.MustRegister(discoveriesTotal)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(stateChangesTotal)
}

// coreMetrics bundles the hub metrics so orchestrator code reads naturally.
type coreMetrics struct {
	devicesConfigured prometheus.Gauge
	discoveriesTotal  *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
	stateChangesTotal prometheus.Counter
}

func newCoreMetrics() *coreMetrics {
	return &coreMetrics{
		devicesConfigured: devicesConfigured,
		discoveriesTotal:  discoveriesTotal,
		actionsTotal:      actionsTotal,
		stateChangesTotal: stateChangesTotal,
	}
}
