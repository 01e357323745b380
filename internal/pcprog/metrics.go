// Public domain.

package pcprog

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soniakeys/precover/internal/pcloop"
)

var (
	registerOnce sync.Once

	orbitsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "precover",
			Name:      "orbits_total",
			Help:      "Recovery runs completed, by termination reason.",
		},
		[]string{"reason"},
	)
	iterationsRun = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "precover",
			Name:      "iterations_total",
			Help:      "Loop iterations across all recovery runs.",
		},
	)
	detectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "precover",
			Name:      "detections_accepted_total",
			Help:      "Candidate detections folded into fits.",
		},
	)
	orbitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "precover",
			Name:      "orbit_duration_seconds",
			Help:      "Wall-clock duration of one recovery run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			orbitsProcessed, iterationsRun, detectionsAccepted, orbitDuration)
	})
}

// serveMetrics exposes /metrics on addr for long batch runs.
func serveMetrics(addr string) {
	registerMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, mux)
}

func recordRun(res *pcloop.Result, elapsed time.Duration) {
	orbitsProcessed.WithLabelValues(res.Reason.String()).Inc()
	iterationsRun.Add(float64(res.Iterations()))
	for _, rec := range res.Trace {
		detectionsAccepted.Add(float64(rec.Accepted))
	}
	orbitDuration.Observe(elapsed.Seconds())
}
