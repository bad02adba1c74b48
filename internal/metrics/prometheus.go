// Package metrics defines the node's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Task metrics
	TasksDispatched *prometheus.CounterVec
	TasksCompleted  *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TaskUnitsFailed *prometheus.CounterVec

	// Index metrics
	IndexedRecords *prometheus.GaugeVec
	OpenAlbums     prometheus.Gauge

	// RPC metrics
	RPCRequests *prometheus.CounterVec
	RPCErrors   *prometheus.CounterVec

	// Cluster metrics
	LiveNodes      prometheus.Gauge
	SuspectedNodes prometheus.Gauge

	// Transfer metrics
	TransferBytes *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		TasksDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_tasks_dispatched_total",
				Help: "Total number of tasks dispatched on this node",
			},
			[]string{"kind"},
		),

		TasksCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_tasks_completed_total",
				Help: "Total number of tasks reaching a terminal state",
			},
			[]string{"kind", "state"},
		),

		TaskDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tessera_task_duration_seconds",
				Help:    "Duration of task execution",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"kind"},
		),

		TaskUnitsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_task_units_failed_total",
				Help: "Total number of per-record task unit failures",
			},
			[]string{"kind"},
		),

		IndexedRecords: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tessera_indexed_records",
				Help: "Number of records in the spatial index per open album",
			},
			[]string{"album"},
		),

		OpenAlbums: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tessera_open_albums",
				Help: "Number of albums currently open on this node",
			},
		),

		RPCRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_rpc_requests_total",
				Help: "Total number of RPC requests handled",
			},
			[]string{"method"},
		),

		RPCErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_rpc_errors_total",
				Help: "Total number of RPC requests answered with an error",
			},
			[]string{"method"},
		),

		LiveNodes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tessera_cluster_live_nodes",
				Help: "Number of cluster nodes currently considered alive",
			},
		),

		SuspectedNodes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tessera_cluster_suspected_nodes",
				Help: "Number of cluster nodes currently under suspicion",
			},
		),

		TransferBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_transfer_bytes_total",
				Help: "Bytes moved over the bulk transfer channel",
			},
			[]string{"direction"},
		),
	}
}
