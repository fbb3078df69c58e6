// Package metrics exposes the playground's prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_gateway_requests_total",
			Help: "Total number of requests forwarded to assessment modules",
		},
		[]string{"status"},
	)

	GatewayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playground_gateway_request_duration_seconds",
			Help:    "Duration of requests forwarded to assessment modules",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		},
	)

	PartitionOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_partition_operations_total",
			Help: "Total number of partition exports, imports and deletes",
		},
		[]string{"op"},
	)
)

// Registry holds the playground collectors plus Go and process metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		GatewayRequests,
		GatewayDuration,
		PartitionOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveGateway counts one forwarded request. A zero status means the
// module could not be reached.
func ObserveGateway(status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	GatewayRequests.WithLabelValues(label).Inc()
	GatewayDuration.Observe(d.Seconds())
}

// PartitionOp counts a finished operation on a data partition.
func PartitionOp(op string) {
	PartitionOperations.WithLabelValues(op).Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
