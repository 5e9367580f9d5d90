package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the arbitration core. Labels stay low-cardinality:
// request kinds, stream types and outcomes only, never labels or session IDs.
var (
	metricRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_requests_total",
		Help: "Total number of arbitration requests started, by kind.",
	}, []string{"kind"})

	metricRequestsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_requests_finished_total",
		Help: "Total number of arbitration requests removed, by outcome (completed/failed/cancelled).",
	}, []string{"outcome"})

	metricLiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediabroker_live_requests",
		Help: "Current number of registered arbitration requests.",
	})

	metricEnumerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_enumerations_total",
		Help: "Total number of provider device enumerations issued, by stream type.",
	}, []string{"stream_type"})

	metricEnumerationsCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_enumerations_coalesced_total",
		Help: "Total number of enumeration interests served by an already outstanding provider call, by stream type.",
	}, []string{"stream_type"})

	metricCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_enumeration_cache_hits_total",
		Help: "Total number of enumeration requests answered from a valid cache, by stream type.",
	}, []string{"stream_type"})

	metricProviderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_provider_errors_total",
		Help: "Total number of device provider errors observed, by stream type.",
	}, []string{"stream_type"})

	metricDevicesOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediabroker_devices_opened_total",
		Help: "Total number of device sessions confirmed live, by stream type.",
	}, []string{"stream_type"})
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)
