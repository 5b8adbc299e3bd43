package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EnvelopesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_envelopes_delivered_total",
		Help: "Envelopes delivered to live connections, by event type.",
	}, []string{"type"})

	ConnectionsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_connections_pruned_total",
		Help: "Connections dropped from the hub after a failed delivery.",
	})

	BridgeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_bridge_events_total",
		Help: "Events relayed from the bus into the local hub, by channel.",
	}, []string{"channel"})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
