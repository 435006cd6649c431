// Package metrics exposes painting-run progress as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

const namespace = "sbrga"

// Collector holds the run metrics. The zero value is not usable; call New.
type Collector struct {
	generations   prometheus.Counter
	evaluations   prometheus.Counter
	remutations   prometheus.Counter
	genDuration   prometheus.Histogram
	bestScore     *prometheus.GaugeVec
	meanScore     *prometheus.GaugeVec
	runsActive    prometheus.Gauge
	runsCompleted *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed generations across all runs.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Individuals rendered and scored.",
		}),
		remutations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remutations_total",
			Help:      "Stagnation-triggered population remutations.",
		}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of one generation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		bestScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_score",
			Help:      "Best loss of the latest generation.",
		}, []string{"run_id"}),
		meanScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_score",
			Help:      "Mean population loss of the latest generation.",
		}, []string{"run_id"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently evolving.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Finished runs by terminal status.",
		}, []string{"status"}),
	}

	for _, col := range []prometheus.Collector{
		c.generations, c.evaluations, c.remutations, c.genDuration,
		c.bestScore, c.meanScore, c.runsActive, c.runsCompleted,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observer returns an evolution.Observer that records the generations of one run.
func (c *Collector) Observer(runID string) evolution.Observer {
	best := c.bestScore.WithLabelValues(runID)
	mean := c.meanScore.WithLabelValues(runID)
	return evolution.ObserverFunc(func(s evolution.GenerationStats) {
		best.Set(s.BestScore)
		mean.Set(s.MeanScore)
		c.evaluations.Add(float64(s.Evaluations))
		if s.Generation == 0 {
			return
		}
		c.generations.Inc()
		c.genDuration.Observe(s.Duration.Seconds())
		if s.Remutated {
			c.remutations.Inc()
		}
	})
}

// RunStarted marks a run as active.
func (c *Collector) RunStarted() {
	c.runsActive.Inc()
}

// RunFinished marks a run as finished with the given terminal status.
func (c *Collector) RunFinished(status string) {
	c.runsActive.Dec()
	c.runsCompleted.WithLabelValues(status).Inc()
}

// Forget drops the per-run series of runID.
func (c *Collector) Forget(runID string) {
	c.bestScore.DeleteLabelValues(runID)
	c.meanScore.DeleteLabelValues(runID)
}
