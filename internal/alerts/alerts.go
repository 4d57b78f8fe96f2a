// Package alerts builds fraud alerts from scored transactions and delivers
// them to external webhook subscribers. Real-time WebSocket delivery lives
// in the realtime package; both consume the same Alert value.
package alerts

import (
	"time"

	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// Alert types.
const (
	TypeFraudDetected = "FRAUD_DETECTED"
	TypeHighRisk      = "HIGH_RISK"
)

// AlertTypes lists the valid alert_type values.
var AlertTypes = []string{TypeFraudDetected, TypeHighRisk}

// Alert is the notification emitted for fraud and high-risk transactions.
// The same payload goes to the alert topic, WebSocket subscribers, and
// webhook sinks.
type Alert struct {
	TransactionID int64     `json:"transaction_id"`
	AlertType     string    `json:"alert_type"`
	RiskScore     float64   `json:"risk_score"`
	Amount        float64   `json:"amount"`
	Merchant      string    `json:"merchant"`
	CustomerID    string    `json:"customer_id"`
	Reasons       []string  `json:"reasons"`
	Timestamp     time.Time `json:"timestamp"`
}

// Build constructs the alert for a scored transaction. Callers only invoke
// this for transactions that warrant one (fraud or high risk).
func Build(scored *transaction.ScoredTransaction) Alert {
	alertType := TypeHighRisk
	if scored.FraudPrediction {
		alertType = TypeFraudDetected
	}
	return Alert{
		TransactionID: scored.ID,
		AlertType:     alertType,
		RiskScore:     scored.RiskScore,
		Amount:        scored.Amount,
		Merchant:      scored.MerchantName,
		CustomerID:    scored.CustomerID,
		Reasons:       scored.FraudReasons,
		Timestamp:     time.Now().UTC(),
	}
}
