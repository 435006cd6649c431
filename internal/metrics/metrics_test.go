package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

func TestObserverRecordsGenerations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	obs := c.Observer("run-1")
	obs.ObserveGeneration(evolution.GenerationStats{Generation: 0, BestScore: 90, MeanScore: 120, Evaluations: 10})
	obs.ObserveGeneration(evolution.GenerationStats{Generation: 1, BestScore: 80, MeanScore: 100, Evaluations: 10, Duration: time.Second})
	obs.ObserveGeneration(evolution.GenerationStats{Generation: 2, BestScore: 80, MeanScore: 95, Evaluations: 19, Remutated: true})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.generations))
	assert.Equal(t, 39.0, testutil.ToFloat64(c.evaluations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.remutations))
	assert.Equal(t, 80.0, testutil.ToFloat64(c.bestScore.WithLabelValues("run-1")))
	assert.Equal(t, 95.0, testutil.ToFloat64(c.meanScore.WithLabelValues("run-1")))

	c.Forget("run-1")
	assert.Equal(t, 0, testutil.CollectAndCount(c.bestScore))
}

func TestRunLifecycle(t *testing.T) {
	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished("completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsCompleted.WithLabelValues("completed")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
