// Package scoring combines the rule-based and ML legs into a single risk
// outcome: combined score, risk level, fraud flag, and disposition.
package scoring

import (
	"fmt"
	"math"

	"github.com/fraudguard-io/fraudguard/internal/ml"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// Default blend weights. The ML leg gets the majority share; the rule leg
// anchors the score when the model is absent or degraded.
const (
	DefaultRuleWeight = 0.4
	DefaultMLWeight   = 0.6
)

// Score thresholds.
const (
	HighRiskThreshold   = 0.7
	MediumRiskThreshold = 0.3

	// divergenceThreshold flags transactions where the two legs disagree
	// enough that neither should be trusted alone.
	divergenceThreshold = 0.4
)

// Weights is the blend applied to the two scoring legs.
type Weights struct {
	Rules float64 `json:"rules"`
	ML    float64 `json:"ml"`
}

// MLInfo is the scoring transparency payload returned with every analysis.
type MLInfo struct {
	MLScore       float64 `json:"ml_score"`
	RuleScore     float64 `json:"rule_score"`
	CombinedScore float64 `json:"combined_score"`
	MLConfidence  string  `json:"ml_confidence"`
	Weights       Weights `json:"weights"`
}

// Outcome is the full result of scoring one transaction.
type Outcome struct {
	Score                float64
	Level                transaction.RiskLevel
	Fraud                bool
	Reasons              []string
	ManualReview         bool
	VerificationRequired bool
	MLInfo               MLInfo
}

// Engine blends rule and ML scores.
type Engine struct {
	ruleWeight      float64
	mlWeight        float64
	blockThreshold  float64
	reviewThreshold float64
}

// NewEngine creates an engine with the default weights and thresholds.
func NewEngine() *Engine {
	return &Engine{
		ruleWeight:      DefaultRuleWeight,
		mlWeight:        DefaultMLWeight,
		blockThreshold:  HighRiskThreshold,
		reviewThreshold: MediumRiskThreshold,
	}
}

// WithWeights overrides the blend weights.
func (e *Engine) WithWeights(rule, mlw float64) *Engine {
	e.ruleWeight = rule
	e.mlWeight = mlw
	return e
}

// WithThresholds overrides the block and review score thresholds.
// Callers must keep review < block.
func (e *Engine) WithThresholds(block, review float64) *Engine {
	e.blockThreshold = block
	e.reviewThreshold = review
	return e
}

// Score combines one rule evaluation with one ML result. Pure: the same
// inputs always produce the same outcome, including reason order.
func (e *Engine) Score(ruleScore float64, ruleReasons []string, mlRes ml.Result) Outcome {
	combined := e.ruleWeight*ruleScore + e.mlWeight*mlRes.Probability

	// Clamp to [0, 1], then round to 3 decimal places; the rounded value
	// is what gets persisted and compared against thresholds.
	if combined > 1.0 {
		combined = 1.0
	}
	if combined < 0.0 {
		combined = 0.0
	}
	combined = math.Round(combined*1000) / 1000

	reasons := append([]string(nil), ruleReasons...)
	if mlRes.Probability > 0.7 {
		reasons = append(reasons, fmt.Sprintf("ML model detected high fraud probability (%.2f)", mlRes.Probability))
	} else if mlRes.Probability > 0.5 {
		reasons = append(reasons, fmt.Sprintf("ML model detected medium fraud probability (%.2f)", mlRes.Probability))
	}
	for _, factor := range mlRes.RiskFactors {
		reasons = append(reasons, "ML: "+factor.Description)
	}

	level := e.levelFor(combined)
	fraud := combined >= e.blockThreshold
	divergence := math.Abs(mlRes.Probability-ruleScore) > divergenceThreshold

	return Outcome{
		Score:                combined,
		Level:                level,
		Fraud:                fraud,
		Reasons:              reasons,
		ManualReview:         divergence || level == transaction.RiskMedium,
		VerificationRequired: level == transaction.RiskMedium || level == transaction.RiskHigh,
		MLInfo: MLInfo{
			MLScore:       mlRes.Probability,
			RuleScore:     ruleScore,
			CombinedScore: combined,
			MLConfidence:  mlRes.Confidence,
			Weights:       Weights{Rules: e.ruleWeight, ML: e.mlWeight},
		},
	}
}

func (e *Engine) levelFor(score float64) transaction.RiskLevel {
	switch {
	case score >= e.blockThreshold:
		return transaction.RiskHigh
	case score >= e.reviewThreshold:
		return transaction.RiskMedium
	default:
		return transaction.RiskLow
	}
}

// LevelFor maps a combined score to its coarse risk bucket using the
// default thresholds.
func LevelFor(score float64) transaction.RiskLevel {
	switch {
	case score >= HighRiskThreshold:
		return transaction.RiskHigh
	case score >= MediumRiskThreshold:
		return transaction.RiskMedium
	default:
		return transaction.RiskLow
	}
}

// StatusFor maps a scoring outcome to the transaction disposition. Total
// over all inputs: fraud always declines, regardless of level.
func StatusFor(fraud bool, level transaction.RiskLevel) transaction.Status {
	if fraud {
		return transaction.StatusDeclined
	}
	if level == transaction.RiskMedium {
		return transaction.StatusFlagged
	}
	return transaction.StatusApproved
}

// Recommendations suggests analyst actions for an outcome.
func Recommendations(o Outcome) []string {
	var recs []string

	if math.Abs(o.MLInfo.MLScore-o.MLInfo.RuleScore) > divergenceThreshold {
		recs = append(recs, "ML and rule scores differ significantly - manual review recommended")
	}

	switch o.Level {
	case transaction.RiskHigh:
		recs = append(recs,
			"Block transaction immediately",
			"Contact customer for verification",
			"Flag for manual review",
		)
	case transaction.RiskMedium:
		recs = append(recs,
			"Request additional verification",
			"Monitor customer activity",
			"Consider transaction limits",
		)
	default:
		recs = append(recs, "Approve transaction")
		if o.Score > 0.1 {
			recs = append(recs, "Continue monitoring for patterns")
		}
	}
	return recs
}
