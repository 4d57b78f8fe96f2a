package pipeline

import "github.com/prometheus/client_golang/prometheus"

var (
	plScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fraudguard",
		Subsystem: "pipeline",
		Name:      "scoring_duration_seconds",
		Help:      "Time spent evaluating rules, ML, and combined scoring per transaction.",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})

	plLastRiskScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fraudguard",
		Subsystem: "pipeline",
		Name:      "last_risk_score",
		Help:      "Combined risk score of the most recently scored transaction.",
	})

	plAlertsTriggered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "pipeline",
		Name:      "alerts_triggered_total",
		Help:      "Alerts generated for fraud and high-risk transactions.",
	}, []string{"alert_type"})

	plScoringDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "pipeline",
		Name:      "scoring_degraded_total",
		Help:      "Transactions scored without a usable ML model.",
	})

	plPersistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fraudguard",
		Subsystem: "pipeline",
		Name:      "persistence_failures_total",
		Help:      "Scored transactions that could not be stored.",
	})
)

func init() {
	prometheus.MustRegister(
		plScoringDuration,
		plLastRiskScore,
		plAlertsTriggered,
		plScoringDegraded,
		plPersistenceFailures,
	)
}
