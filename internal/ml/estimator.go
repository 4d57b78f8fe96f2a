package ml

import (
	"fmt"
	"time"

	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// Confidence labels for a prediction.
const (
	ConfidenceHigh    = "high"
	ConfidenceMedium  = "medium"
	ConfidenceUnknown = "unknown"
)

// Degraded-mode status strings. These surface in API responses, so the
// wording is stable.
const (
	StatusNoModel      = "no model available, using rules only"
	StatusPredictError = "prediction failed"
)

// RiskFactor is a human-readable explanation attached to a prediction.
type RiskFactor struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Result is the outcome of one estimate. A degraded result carries the
// neutral 0.5 probability and a status explaining why.
type Result struct {
	Probability float64
	Confidence  string
	RiskFactors []RiskFactor
	Status      string
	Degraded    bool
	Err         error
}

// Estimator wraps a Model with feature extraction and degradation
// handling. A nil model is a supported configuration: the estimator
// returns neutral predictions and the scoring engine leans on rules.
type Estimator struct {
	model     Model
	extractor *Extractor
	now       func() time.Time
}

// NewEstimator creates an estimator. model may be nil.
func NewEstimator(model Model) *Estimator {
	return &Estimator{
		model:     model,
		extractor: NewExtractor(),
		now:       time.Now,
	}
}

// WithHighRiskCountries replaces the model-side country watchlist.
func (e *Estimator) WithHighRiskCountries(codes []string) *Estimator {
	e.extractor.WithHighRiskCountries(codes)
	return e
}

// WithClock injects the time source used for hour-of-day and weekend
// features. Tests pin this to fixed instants.
func (e *Estimator) WithClock(now func() time.Time) *Estimator {
	e.now = now
	return e
}

// ModelLoaded reports whether a model is available for inference.
func (e *Estimator) ModelLoaded() bool { return e.model != nil }

// ModelInfo describes the loaded model, or reports its absence.
func (e *Estimator) ModelInfo() string {
	if e.model == nil {
		return "none"
	}
	return e.model.Describe()
}

// Score predicts the fraud probability for a transaction. It never
// returns an error: model absence and prediction failures degrade to a
// neutral 0.5 so the rules leg still produces a usable risk score.
func (e *Estimator) Score(tx *transaction.Transaction) Result {
	if e.model == nil {
		return Result{
			Probability: 0.5,
			Confidence:  ConfidenceUnknown,
			Status:      StatusNoModel,
			Degraded:    true,
		}
	}

	features := e.extractor.Extract(tx, e.now())

	p, err := e.model.Predict(features)
	if err != nil {
		return Result{
			Probability: 0.5,
			Confidence:  ConfidenceUnknown,
			Status:      StatusPredictError,
			Degraded:    true,
			Err:         err,
		}
	}

	confidence := ConfidenceMedium
	if diff := p - 0.5; diff > 0.3 || diff < -0.3 {
		confidence = ConfidenceHigh
	}

	return Result{
		Probability: p,
		Confidence:  confidence,
		RiskFactors: riskFactors(features),
	}
}

// riskFactors derives per-feature explanations. Each is gated
// independently; order is display order.
func riskFactors(f Features) []RiskFactor {
	var factors []RiskFactor

	if f[FeatAmount] > 5000 {
		factors = append(factors, RiskFactor{
			Key:         "high_amount",
			Description: fmt.Sprintf("Transaction amount $%.2f is high", f[FeatAmount]),
		})
	}
	if f[FeatCrossBorder] == 1 {
		factors = append(factors, RiskFactor{
			Key:         "cross_border",
			Description: "Cross-border transaction detected",
		})
	}
	if f[FeatMerchantHighRisk] == 1 || f[FeatTxnHighRisk] == 1 {
		factors = append(factors, RiskFactor{
			Key:         "high_risk_location",
			Description: "High-risk country involved",
		})
	}
	if f[FeatPaymentRisk] > 0.5 {
		factors = append(factors, RiskFactor{
			Key:         "risky_payment",
			Description: "Higher risk payment method",
		})
	}
	return factors
}
