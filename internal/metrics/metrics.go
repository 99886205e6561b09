// internal/metrics/metrics.go

// Package metrics exposes the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolwatch_events_total",
			Help: "Total number of parsed log events",
		},
		[]string{"pool"},
	)

	parseFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poolwatch_parse_failures_total",
			Help: "Total number of log lines that failed to parse",
		},
	)

	errorRatePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolwatch_error_rate_percent",
			Help: "Current sliding-window 5xx error rate",
		},
	)

	windowEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poolwatch_window_events",
			Help: "Number of events currently in the sliding window",
		},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolwatch_alerts_total",
			Help: "Total number of alert intents emitted",
		},
		[]string{"kind"},
	)

	alertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poolwatch_alerts_suppressed_total",
			Help: "Total number of alerts suppressed before dispatch",
		},
		[]string{"reason"},
	)

	dispatchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poolwatch_dispatch_failures_total",
			Help: "Total number of failed webhook deliveries",
		},
	)

	poolChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poolwatch_pool_changes_total",
			Help: "Total number of observed pool transitions",
		},
	)

	tailReopensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poolwatch_tail_reopens_total",
			Help: "Total number of times the log source was reopened",
		},
	)
)

// RecordEvent counts a parsed event by pool label.
func RecordEvent(pool string) {
	eventsTotal.WithLabelValues(pool).Inc()
}

// RecordParseFailure counts an unparseable line.
func RecordParseFailure() {
	parseFailuresTotal.Inc()
}

// RecordSnapshot publishes the current window state.
func RecordSnapshot(ratePercent float64, total int) {
	errorRatePercent.Set(ratePercent)
	windowEvents.Set(float64(total))
}

// RecordAlert counts an emitted alert intent.
func RecordAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

// RecordSuppressedAlert counts a suppressed alert by reason
// (maintenance, cooldown, sample_floor).
func RecordSuppressedAlert(reason string) {
	alertsSuppressedTotal.WithLabelValues(reason).Inc()
}

// RecordDispatchFailure counts a failed delivery.
func RecordDispatchFailure() {
	dispatchFailuresTotal.Inc()
}

// RecordPoolChange counts an observed failover.
func RecordPoolChange() {
	poolChangesTotal.Inc()
}

// RecordTailReopen counts a log source reopen (rotation, truncation, error).
func RecordTailReopen() {
	tailReopensTotal.Inc()
}
