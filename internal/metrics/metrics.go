// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the n6 pipeline stages and services.
// Each stage only touches the metrics relevant to it; all are registered
// eagerly at package init via promauto so a stage's /metrics endpoint is
// self-describing regardless of which code paths have executed.
var (
	// Broker (C2)
	BrokerPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_broker_publish_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"exchange", "result"},
	)

	BrokerConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_broker_consume_total",
			Help: "Total number of messages consumed from the broker",
		},
		[]string{"queue", "result"},
	)

	// Pipeline stage base (C3)
	PipelineMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_pipeline_messages_processed_total",
			Help: "Total number of messages processed by a pipeline stage",
		},
		[]string{"stage", "result"},
	)

	PipelineProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "n6_pipeline_processing_duration_seconds",
			Help:    "Duration of per-message pipeline stage processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	PipelinePoisonedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_pipeline_poisoned_total",
			Help: "Total number of messages routed to a stage's poison queue",
		},
		[]string{"stage"},
	)

	// Aggregator (C4)
	AggregatorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_aggregator_events_total",
			Help: "Total number of events processed by the aggregator",
		},
		[]string{"source", "decision"}, // decision: new, folded (out-of-order events go to n6_aggregator_out_of_order_total)
	)

	AggregatorOutOfOrderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_aggregator_out_of_order_total",
			Help: "Total number of events rejected by the aggregator as out of order",
		},
		[]string{"source"},
	)

	AggregatorActiveGroups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "n6_aggregator_active_groups",
			Help: "Current number of hi-frequency groups tracked per source",
		},
		[]string{"source"},
	)

	// Enricher (C5)
	EnricherDNSLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_enricher_dns_lookups_total",
			Help: "Total number of DNS A-record lookups performed by the enricher",
		},
		[]string{"result"}, // resolved, timeout, nxdomain, error
	)

	EnricherGeoIPLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_enricher_geoip_lookups_total",
			Help: "Total number of GeoIP ASN/CC lookups performed by the enricher",
		},
		[]string{"kind", "result"}, // kind: asn, cc; result: hit, miss
	)

	// Authorization index (C6)
	AuthIndexResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "n6_authindex_resolve_duration_seconds",
			Help:    "Duration of resolving subsource->org-id predicates for an event",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuthIndexSnapshotAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "n6_authindex_snapshot_age_seconds",
			Help: "Age of the currently active authorization index snapshot",
		},
	)

	// Anonymizer (C7)
	AnonymizerPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_anonymizer_publishes_total",
			Help: "Total number of per-client messages published by the anonymizer",
		},
		[]string{"resource"}, // inside, threats
	)

	AnonymizerNoRecipientsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "n6_anonymizer_no_recipients_total",
			Help: "Total number of events with no resolved recipients",
		},
	)

	// Recorder (C8)
	RecorderUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_recorder_upserts_total",
			Help: "Total number of event rows upserted by the recorder",
		},
		[]string{"outcome"}, // inserted, duplicate, error
	)

	RecorderUpsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "n6_recorder_upsert_duration_seconds",
			Help:    "Duration of recorder upsert batches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notifier (C9)
	NotifierDigestsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_notifier_digests_sent_total",
			Help: "Total number of digest emails sent",
		},
		[]string{"org_id"},
	)

	NotifierTemplateErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_notifier_template_errors_total",
			Help: "Total number of template rendering errors, by org",
		},
		[]string{"org_id"},
	)

	// Broker-auth (C10)
	BrokerAuthDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_brokerauth_decisions_total",
			Help: "Total number of broker-auth HTTP decisions",
		},
		[]string{"endpoint", "decision"}, // decision: allow, deny
	)

	BrokerAuthRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "n6_brokerauth_request_duration_seconds",
			Help:    "Duration of broker-auth HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Event DB (C11)
	EventDBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "n6_eventdb_query_duration_seconds",
			Help:    "Duration of compiled event-query executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// Counter (C12)
	CounterIncrementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_counter_increments_total",
			Help: "Total number of per-client category counter increments",
		},
		[]string{"category"},
	)

	// Notifier (C9)
	NotifierSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_notifier_sends_total",
			Help: "Total number of per-org notification digest outcomes",
		},
		[]string{"result"},
	)

	NotifierSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_notifier_skipped_total",
			Help: "Total number of per-org notification runs skipped, by reason",
		},
		[]string{"reason"},
	)

	// Circuit breaker (shared, grounded on the teacher's circuitbreaker.go)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "n6_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "n6_circuit_breaker_requests_total",
			Help: "Total number of requests through a circuit breaker",
		},
		[]string{"name", "result"},
	)
)

// RecordAggregatorEvent records one aggregator decision.
func RecordAggregatorEvent(source, decision string) {
	AggregatorEventsTotal.WithLabelValues(source, decision).Inc()
}

// RecordAggregatorOutOfOrder records one out-of-order rejection.
func RecordAggregatorOutOfOrder(source string) {
	AggregatorOutOfOrderTotal.WithLabelValues(source).Inc()
}

// RecordBrokerPublish records the outcome of a single broker publish call.
func RecordBrokerPublish(exchange string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BrokerPublishTotal.WithLabelValues(exchange, result).Inc()
}

// RecordPipelineMessage records one message's terminal outcome for a stage.
func RecordPipelineMessage(stage, result string, duration time.Duration) {
	PipelineMessagesProcessed.WithLabelValues(stage, result).Inc()
	PipelineProcessingDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRecorderUpsert records one upsert batch's outcome and duration.
func RecordRecorderUpsert(outcome string, duration time.Duration) {
	RecorderUpsertsTotal.WithLabelValues(outcome).Inc()
	RecorderUpsertDuration.Observe(duration.Seconds())
}

// RecordBrokerAuthDecision records one broker-auth HTTP decision.
func RecordBrokerAuthDecision(endpoint, decision string, duration time.Duration) {
	BrokerAuthDecisionsTotal.WithLabelValues(endpoint, decision).Inc()
	BrokerAuthRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordNotifierSend records one org's digest send outcome.
func RecordNotifierSend(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	NotifierSendsTotal.WithLabelValues(result).Inc()
}

// RecordNotifierSkip records one org's run being skipped, tagged with why.
func RecordNotifierSkip(reason string) {
	NotifierSkippedTotal.WithLabelValues(reason).Inc()
}
