package streaming

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fraudguard-io/fraudguard/internal/scoring"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

func sampleTransaction() transaction.Transaction {
	return transaction.Transaction{
		Amount:             45.99,
		MerchantName:       "Corner Coffee",
		MerchantCountry:    "US",
		CustomerID:         "cust_001",
		TransactionType:    transaction.TypePurchase,
		PaymentMethod:      transaction.MethodCreditCard,
		TransactionCountry: "US",
		Currency:           "USD",
	}
}

func TestNewTransactionEnvelope(t *testing.T) {
	before := time.Now().UTC()
	env := NewTransactionEnvelope("corr-123", sampleTransaction())

	if env.TransactionID != "corr-123" {
		t.Errorf("Expected correlation id corr-123, got %q", env.TransactionID)
	}
	if env.Status != StatusPendingAnalysis {
		t.Errorf("Expected status %q, got %q", StatusPendingAnalysis, env.Status)
	}
	if env.Timestamp.Before(before) || env.Timestamp.After(time.Now().UTC()) {
		t.Errorf("Envelope timestamp %v outside expected window", env.Timestamp)
	}
	if env.Data.MerchantName != "Corner Coffee" {
		t.Errorf("Envelope should carry the transaction unchanged, got merchant %q", env.Data.MerchantName)
	}
}

func TestTransactionEnvelope_WireFormat(t *testing.T) {
	env := NewTransactionEnvelope("corr-9", sampleTransaction())

	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"transaction_id", "timestamp", "data", "status"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Envelope missing wire field %q", key)
		}
	}
	if decoded["status"] != "pending_analysis" {
		t.Errorf("Expected wire status pending_analysis, got %v", decoded["status"])
	}
	data, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data object, got %T", decoded["data"])
	}
	if data["merchant_name"] != "Corner Coffee" {
		t.Errorf("Expected nested merchant_name, got %v", data["merchant_name"])
	}
}

func TestProcessedResult_WireFormat(t *testing.T) {
	result := ProcessedResult{
		TransactionID:   "17",
		Status:          transaction.StatusDeclined,
		RiskScore:       0.86,
		RiskLevel:       transaction.RiskHigh,
		FraudPrediction: true,
		FraudReasons:    []string{"High transaction amount: $9500.00"},
		MLInfo: scoring.MLInfo{
			MLScore:       0.9,
			RuleScore:     0.8,
			CombinedScore: 0.86,
			MLConfidence:  "high",
			Weights:       scoring.Weights{Rules: 0.4, ML: 0.6},
		},
		ProcessedAt: time.Now().UTC(),
	}

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{
		"transaction_id", "status", "risk_score", "risk_level",
		"fraud_prediction", "fraud_reasons", "ml_info", "processed_at",
	} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Processed result missing wire field %q", key)
		}
	}
	if decoded["status"] != "declined" {
		t.Errorf("Expected wire status declined, got %v", decoded["status"])
	}
	mlInfo, ok := decoded["ml_info"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected ml_info object, got %T", decoded["ml_info"])
	}
	if mlInfo["ml_confidence"] != "high" {
		t.Errorf("Expected ml_confidence high, got %v", mlInfo["ml_confidence"])
	}
}
