package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Write path metrics
	EventsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appevent_events_written_total",
			Help: "Total number of events accepted, by domain",
		},
		[]string{"domain"},
	)

	WriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appevent_write_failures_total",
			Help: "Total number of rejected writes, by error code",
		},
		[]string{"code"},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appevent_write_duration_seconds",
			Help:    "Time from validation to dispatch of a write in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Storage metrics
	EventsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appevent_events_evicted_total",
			Help: "Total number of stored events evicted to honor the storage quota",
		},
	)

	StoredEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appevent_stored_events",
			Help: "Number of events currently held by the store",
		},
	)

	// Watcher metrics
	WatcherTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appevent_watcher_triggers_total",
			Help: "Total number of onTrigger notifications, by watcher and reason",
		},
		[]string{"watcher", "reason"},
	)

	PackagesTaken = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appevent_packages_taken_total",
			Help: "Total number of event packages taken from holders, by watcher",
		},
		[]string{"watcher"},
	)

	WatchersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appevent_watchers_total",
			Help: "Number of registered watchers",
		},
	)

	// Processor metrics
	ProcessorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appevent_processors_total",
			Help: "Number of registered processors",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsWritten)
	prometheus.MustRegister(WriteFailures)
	prometheus.MustRegister(WriteDuration)
	prometheus.MustRegister(EventsEvicted)
	prometheus.MustRegister(StoredEvents)
	prometheus.MustRegister(WatcherTriggers)
	prometheus.MustRegister(PackagesTaken)
	prometheus.MustRegister(WatchersTotal)
	prometheus.MustRegister(ProcessorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
