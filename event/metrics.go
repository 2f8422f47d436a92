package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics registers the publish and process metrics of all publishers and subscriptions.
// It panics if any of them is already registered.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(publishedBytes, publishSeconds, processSeconds, discarded)
}

// Values of the status label.
const (
	statusOK    = "ok"
	statusError = "error"
)

// Values of the reason label of discarded events.
const (
	reasonMalformed = "malformed"
	reasonForeign   = "foreign"
)

func samplePublish(name string, elapsed time.Duration, size int, err error) {
	labels := prometheus.Labels{"name": name, "status": status(err)}
	publishedBytes.With(labels).Observe(float64(size))
	publishSeconds.With(labels).Observe(elapsed.Seconds())
}

func sampleProcess(name string, elapsed time.Duration, err error) {
	processSeconds.With(prometheus.Labels{"name": name, "status": status(err)}).Observe(elapsed.Seconds())
}

func sampleDiscarded(name, reason string) {
	discarded.With(prometheus.Labels{"name": name, "reason": reason}).Inc()
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

var (
	publishedBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlstore_event_publish_size_bytes",
			Help:    "Size of the published event envelopes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		},
		[]string{"name", "status"},
	)
	publishSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlstore_event_publish_duration_seconds",
			Help:    "Duration of event publishing",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"name", "status"},
	)
	processSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xmlstore_event_process_duration_seconds",
			Help:    "Duration of event handlers",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"name", "status"},
	)
	discarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmlstore_event_discarded_total",
			Help: "Received events acked without being handled",
		},
		[]string{"name", "reason"},
	)
)
