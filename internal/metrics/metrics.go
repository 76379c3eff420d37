// Package metrics holds the Prometheus collectors for sync runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync groups the collectors updated by the pipeline and the reconciler.
// All methods are safe on a nil *Sync, which records nothing.
type Sync struct {
	EventsProcessed   *prometheus.CounterVec
	EventErrors       prometheus.Counter
	MessagesSkipped   *prometheus.CounterVec
	RemoteCalls       *prometheus.CounterVec
	DuplicatesRemoved prometheus.Counter
	RunDuration       prometheus.Histogram
	LastRunTimestamp  prometheus.Gauge
}

// New registers the sync collectors with reg.
func New(reg prometheus.Registerer) *Sync {
	factory := promauto.With(reg)
	return &Sync{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yogisync_events_processed_total",
			Help: "Events that went through the cache, labelled by cache action.",
		}, []string{"action"}),

		EventErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "yogisync_event_errors_total",
			Help: "Events whose cache or remote step failed.",
		}),

		MessagesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yogisync_messages_skipped_total",
			Help: "Source messages that produced no event, labelled by reason.",
		}, []string{"reason"}),

		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yogisync_remote_calls_total",
			Help: "Remote store calls, labelled by operation and status.",
		}, []string{"op", "status"}),

		DuplicatesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "yogisync_duplicates_removed_total",
			Help: "Surplus remote records deleted during reconciliation.",
		}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "yogisync_run_duration_seconds",
			Help:    "Wall time of a complete sync run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "yogisync_last_run_timestamp_seconds",
			Help: "Unix time the last sync run finished.",
		}),
	}
}

// ObserveAction counts one event by its cache action.
func (m *Sync) ObserveAction(action string) {
	if m == nil {
		return
	}
	m.EventsProcessed.WithLabelValues(action).Inc()
}

// ObserveError counts one failed event.
func (m *Sync) ObserveError() {
	if m == nil {
		return
	}
	m.EventErrors.Inc()
}

// ObserveSkippedMessage counts one message that produced no event.
func (m *Sync) ObserveSkippedMessage(reason string) {
	if m == nil {
		return
	}
	m.MessagesSkipped.WithLabelValues(reason).Inc()
}

// ObserveRemoteCall counts one remote call by outcome.
func (m *Sync) ObserveRemoteCall(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RemoteCalls.WithLabelValues(op, status).Inc()
}

// ObserveDuplicateRemoved counts one deleted duplicate.
func (m *Sync) ObserveDuplicateRemoved() {
	if m == nil {
		return
	}
	m.DuplicatesRemoved.Inc()
}

// ObserveRun records a finished run.
func (m *Sync) ObserveRun(elapsed time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(elapsed.Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
