package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObservePublish("FEDERATION", "PUBLISHED")
	m.ObservePublish("FEDERATION", "PUBLISHED")
	m.ObservePublish("SINGLE", "REJECTED")
	m.ObserveCheck("SINGLE", true)
	m.ObserveComposition("SINGLE", time.Now())
	m.ArtifactFailure()
	m.AppDeploymentTransition("active")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.publishesTotal.WithLabelValues("FEDERATION", "PUBLISHED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishesTotal.WithLabelValues("SINGLE", "REJECTED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.checksTotal.WithLabelValues("SINGLE", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.artifactFailuresTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.appDeploymentTransitionsTotal.WithLabelValues("active")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.compositionDurationSeconds))

	// nil metrics are a no-op
	var disabled *Metrics
	disabled.ObservePublish("SINGLE", "PUBLISHED")
	disabled.ArtifactFailure()
}
