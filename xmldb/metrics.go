package xmldb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics will register all query execution metrics on the given registry.
// If metrics with the same name already exist on the registry this function will panic.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(queryDuration, queryCounter, fragmentCounter, recordCounter)
}

func sampleQuery(entity, status string, elapsed time.Duration, records int) {
	labels := prometheus.Labels{
		"status": status,
		"entity": entity,
	}
	queryDuration.With(labels).Observe(elapsed.Seconds())
	queryCounter.With(labels).Inc()
	recordCounter.With(prometheus.Labels{"entity": entity}).Add(float64(records))
}

func sampleFragment(entity string, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}
	fragmentCounter.With(prometheus.Labels{
		"status": status,
		"entity": entity,
	}).Inc()
}

// query statuses
const (
	statusOK       = "ok"
	statusNotFound = "collection_not_found"
	statusError    = "error"
)

var (
	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "xmldb_query_duration_seconds",
			Help: "Duration of query execution, including result mapping",
			Buckets: []float64{
				.005, .01, .025, .05, .1, .2, .3, .4, .5, .75, 1,
				2, 3, 4, 5, 10, 15, 20, 30, 60,
			},
		},
		[]string{"status", "entity"},
	)
	queryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmldb_query_total",
			Help: "Total of executed queries",
		},
		[]string{"status", "entity"},
	)
	fragmentCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmldb_fragments_total",
			Help: "Total of query result fragments mapped to records",
		},
		[]string{"status", "entity"},
	)
	recordCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xmldb_records_total",
			Help: "Total of records returned by queries",
		},
		[]string{"entity"},
	)
)
