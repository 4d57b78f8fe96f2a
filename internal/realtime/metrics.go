package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rtAlertsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "realtime",
		Name:      "alerts_delivered_total",
		Help:      "Total alert messages enqueued to WebSocket subscribers.",
	})

	rtAlertsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "realtime",
		Name:      "alerts_dropped_total",
		Help:      "Total alert messages dropped by slow subscribers or a full broadcast buffer.",
	})
)

func init() {
	prometheus.MustRegister(
		rtAlertsDelivered,
		rtAlertsDropped,
	)
}
