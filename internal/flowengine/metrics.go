/**
 * FlowEngine Metrics.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package flowengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPacketsCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_packets_captured_total",
		Help: "Packets delivered by the capture source.",
	})
	metricPacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_packets_dropped_total",
		Help: "Packets dropped before flow accounting (kernel drop or parse failure).",
	})
	metricPacketsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_packets_duplicate_total",
		Help: "Packets rejected by the dedup window.",
	})
	metricFlowsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_flows_finalized_total",
		Help: "Flows removed from the active table and scored.",
	})
	metricBatchWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_flow_batch_write_duration_seconds",
		Help:    "Duration of each batch write to storage.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	metricActiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_active_flows",
		Help: "Current size of the active flow table.",
	})
)
