package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	stMessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "streaming",
		Name:      "messages_published_total",
		Help:      "Total Kafka publishes by topic and outcome.",
	}, []string{"topic", "status"}) // "success", "failure", "rejected"

	stMessagesConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "streaming",
		Name:      "messages_consumed_total",
		Help:      "Total messages fetched and handed to the pipeline.",
	})

	stConsumerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "streaming",
		Name:      "consumer_errors_total",
		Help:      "Total consumer fetch and handler failures.",
	})
)

func init() {
	prometheus.MustRegister(
		stMessagesPublished,
		stMessagesConsumed,
		stConsumerErrors,
	)
}
