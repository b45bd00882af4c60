package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	commandsTotalCounter     *prometheus.CounterVec
	commandRetriesCounter    prometheus.Counter
	commandDurationMetric    prometheus.Histogram
	eventsAppendedCounter    *prometheus.CounterVec
	projectionEventsCounter  *prometheus.CounterVec
	sagaTransitionsCounter   *prometheus.CounterVec
	errorsRecordedCounter    *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		commandsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skafu_commands_total",
				Help: "Total number of processed commands by type and outcome.",
			},
			[]string{"command_type", "outcome"},
		)

		commandRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "skafu_command_conflict_retries_total",
				Help: "Total number of command retries after concurrency conflicts.",
			},
		)

		commandDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skafu_command_duration_seconds",
				Help:    "Duration of command handling in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		eventsAppendedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skafu_events_appended_total",
				Help: "Total number of events appended by aggregate type.",
			},
			[]string{"aggregate_type"},
		)

		projectionEventsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skafu_projection_events_total",
				Help: "Total number of projected event deliveries by consumer and outcome.",
			},
			[]string{"consumer", "outcome"},
		)

		sagaTransitionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skafu_saga_transitions_total",
				Help: "Total number of saga state transitions by saga type and state.",
			},
			[]string{"saga_type", "state"},
		)

		errorsRecordedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skafu_errors_recorded_total",
				Help: "Total number of error records by source component and severity.",
			},
			[]string{"component", "severity"},
		)

		prometheus.MustRegister(
			commandsTotalCounter,
			commandRetriesCounter,
			commandDurationMetric,
			eventsAppendedCounter,
			projectionEventsCounter,
			sagaTransitionsCounter,
			errorsRecordedCounter,
		)
	})
}

// CommandProcessed records one command outcome
func CommandProcessed(commandType, outcome string, duration time.Duration) {
	if commandsTotalCounter == nil {
		return
	}
	commandsTotalCounter.WithLabelValues(commandType, outcome).Inc()
	commandDurationMetric.Observe(duration.Seconds())
}

// CommandConflictRetry records one reload-and-retry after a conflict
func CommandConflictRetry() {
	if commandRetriesCounter == nil {
		return
	}
	commandRetriesCounter.Inc()
}

// EventsAppended records committed events
func EventsAppended(aggregateType string, count int) {
	if eventsAppendedCounter == nil {
		return
	}
	eventsAppendedCounter.WithLabelValues(aggregateType).Add(float64(count))
}

// ProjectionEvent records one projected delivery outcome
func ProjectionEvent(consumer, outcome string) {
	if projectionEventsCounter == nil {
		return
	}
	projectionEventsCounter.WithLabelValues(consumer, outcome).Inc()
}

// SagaTransition records one saga state transition
func SagaTransition(sagaType, state string) {
	if sagaTransitionsCounter == nil {
		return
	}
	sagaTransitionsCounter.WithLabelValues(sagaType, state).Inc()
}

// ErrorRecorded records one error record emission
func ErrorRecorded(component, severity string) {
	if errorsRecordedCounter == nil {
		return
	}
	errorsRecordedCounter.WithLabelValues(component, severity).Inc()
}
