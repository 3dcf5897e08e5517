// Package metrics exposes the broker's Prometheus instrumentation: a
// small, package-level set of promauto-registered collectors, mirroring
// the "one metrics.go, package-level vars" shape used elsewhere in the
// example corpus rather than a bespoke registry wrapper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueDepth reports the number of messages currently buffered per
	// queue address.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qbroker_queue_depth",
		Help: "Number of messages currently stored on a queue.",
	}, []string{"queue"})

	// MessagesStored counts every message appended to a queue's FIFO.
	MessagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbroker_messages_stored_total",
		Help: "Total number of messages stored on a queue.",
	}, []string{"queue"})

	// MessagesForwarded counts every message handed off to a consumer.
	MessagesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbroker_messages_forwarded_total",
		Help: "Total number of messages forwarded to a consumer link.",
	}, []string{"queue"})

	// ActiveConsumers reports the current consumer count per queue.
	ActiveConsumers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qbroker_active_consumers",
		Help: "Number of consumer links currently attached to a queue.",
	}, []string{"queue"})

	// ConnectionsAccepted counts inbound connections, each one at its
	// first link attach; a connection that never attaches a link is not
	// counted.
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbroker_connections_accepted_total",
		Help: "Total number of peer connections accepted by the broker.",
	})
)

// Serve starts a blocking HTTP server exposing the registered collectors
// at /metrics. Callers run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux) //nolint:gosec // internal-only metrics endpoint, no untrusted input
}
