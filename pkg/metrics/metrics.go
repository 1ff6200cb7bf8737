package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry collectors. A nil *Metrics records nothing.
type Metrics struct {
	publishesTotal                *prometheus.CounterVec
	checksTotal                   *prometheus.CounterVec
	compositionDurationSeconds    *prometheus.HistogramVec
	artifactFailuresTotal         prometheus.Counter
	appDeploymentTransitionsTotal *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_schema_publishes_total",
				Help: "Total number of schema publishes per project type and outcome",
			},
			[]string{"project_type", "outcome"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_schema_checks_total",
				Help: "Total number of schema checks per project type and result",
			},
			[]string{"project_type", "valid"},
		),
		compositionDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "registry_composition_duration_seconds",
				Help:    "Duration of schema composition in seconds per project type",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"project_type"},
		),
		artifactFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "registry_artifact_publish_failures_total",
				Help: "Total number of artifact publishes that failed after a version was committed",
			},
		),
		appDeploymentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "registry_app_deployment_transitions_total",
				Help: "Total number of app deployment state transitions",
			},
			[]string{"to_state"},
		),
	}

	registerer.MustRegister(
		m.publishesTotal,
		m.checksTotal,
		m.compositionDurationSeconds,
		m.artifactFailuresTotal,
		m.appDeploymentTransitionsTotal,
	)

	return m
}

func (m *Metrics) ObservePublish(projectType string, outcome string) {
	if m == nil {
		return
	}
	m.publishesTotal.WithLabelValues(projectType, outcome).Inc()
}

func (m *Metrics) ObserveCheck(projectType string, valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.checksTotal.WithLabelValues(projectType, label).Inc()
}

func (m *Metrics) ObserveComposition(projectType string, started time.Time) {
	if m == nil {
		return
	}
	m.compositionDurationSeconds.WithLabelValues(projectType).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ArtifactFailure() {
	if m == nil {
		return
	}
	m.artifactFailuresTotal.Inc()
}

func (m *Metrics) AppDeploymentTransition(toState string) {
	if m == nil {
		return
	}
	m.appDeploymentTransitionsTotal.WithLabelValues(toState).Inc()
}
