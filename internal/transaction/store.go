package transaction

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a transaction id does not exist.
var ErrNotFound = errors.New("transaction not found")

// List pagination bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ScoredTransaction is a transaction plus its scoring outcome. The id and
// timestamps are assigned at insert; the scoring fields are set by the
// pipeline before persistence.
type ScoredTransaction struct {
	ID int64 `json:"id"`
	Transaction
	Status               Status    `json:"status"`
	RiskScore            float64   `json:"risk_score"`
	RiskLevel            RiskLevel `json:"risk_level"`
	FraudPrediction      bool      `json:"fraud_prediction"`
	FraudReasons         []string  `json:"fraud_reasons"`
	VerificationRequired bool      `json:"verification_required"`
	MLScore              *float64  `json:"ml_score,omitempty"`
	RuleScore            *float64  `json:"rule_score,omitempty"`
	MLConfidence         string    `json:"ml_confidence,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	CustomerID string
	Status     Status
	MinAmount  float64
	MaxAmount  float64
	FraudOnly  bool
	Limit      int
	Offset     int
}

// normalize applies pagination defaults and caps.
func (f *Filter) normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Store persists scored transactions.
//
// Insert assigns the id and timestamps. List returns a page of records
// (newest first) plus the total count matching the filter, so callers can
// paginate with limit/offset.
type Store interface {
	Insert(ctx context.Context, tx *ScoredTransaction) error
	Get(ctx context.Context, id int64) (*ScoredTransaction, error)
	List(ctx context.Context, f Filter) ([]*ScoredTransaction, int, error)
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
}
