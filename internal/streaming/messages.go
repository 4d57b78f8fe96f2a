// Package streaming moves transactions through Kafka: submissions in,
// processed results and fraud alerts out.
//
// The package is transport only. Envelope decoding, scoring, and persistence
// belong to the pipeline; producers and consumers here never interpret
// payloads beyond serialization.
package streaming

import (
	"time"

	"github.com/fraudguard-io/fraudguard/internal/scoring"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// StatusPendingAnalysis marks an envelope that has been accepted but not
// yet scored.
const StatusPendingAnalysis = "pending_analysis"

// TransactionEnvelope wraps a submitted transaction on the inbound topic.
// TransactionID is the correlation id assigned at enqueue time; the numeric
// store id does not exist until the consumer persists the record.
type TransactionEnvelope struct {
	TransactionID string                  `json:"transaction_id"`
	Timestamp     time.Time               `json:"timestamp"`
	Data          transaction.Transaction `json:"data"`
	Status        string                  `json:"status"`
}

// NewTransactionEnvelope stamps a submission for publication.
func NewTransactionEnvelope(correlationID string, tx transaction.Transaction) TransactionEnvelope {
	return TransactionEnvelope{
		TransactionID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          tx,
		Status:        StatusPendingAnalysis,
	}
}

// ProcessedResult is published after a streamed transaction has been scored
// and persisted. TransactionID carries the assigned store id.
type ProcessedResult struct {
	TransactionID   string                `json:"transaction_id"`
	Status          transaction.Status    `json:"status"`
	RiskScore       float64               `json:"risk_score"`
	RiskLevel       transaction.RiskLevel `json:"risk_level"`
	FraudPrediction bool                  `json:"fraud_prediction"`
	FraudReasons    []string              `json:"fraud_reasons"`
	MLInfo          scoring.MLInfo        `json:"ml_info"`
	ProcessedAt     time.Time             `json:"processed_at"`
}
