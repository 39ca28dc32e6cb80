package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomePublished = "published"
	outcomeFailed    = "failed"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviews",
			Subsystem: "events",
			Name:      "publish_total",
			Help:      "Event publish attempts by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	publishSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviews",
			Subsystem: "events",
			Name:      "publish_duration_seconds",
			Help:      "Time spent writing one event to the broker.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"topic"},
	)
)

func observePublish(topic string, start time.Time, err error) {
	publishSeconds.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	outcome := outcomePublished
	if err != nil {
		outcome = outcomeFailed
	}
	publishTotal.WithLabelValues(topic, outcome).Inc()
}
