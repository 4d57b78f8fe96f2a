// Package rules implements the deterministic rule-based leg of fraud scoring.
//
// The evaluator is stateless: the same transaction always yields the same
// score and the same ordered reason list. Reason strings are part of the API
// surface (they are persisted, streamed, and shown to analysts) so their
// wording and order must stay stable.
package rules

import (
	"fmt"
	"strings"

	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

const (
	highAmountThreshold   = 10000
	mediumAmountThreshold = 5000

	weightHighAmount      = 0.4
	weightMediumAmount    = 0.2
	weightMerchantCountry = 0.3
	weightTxnCountry      = 0.2
	weightCrossBorder     = 0.1
	weightSuspiciousName  = 0.3
	weightPrepaidLarge    = 0.2
	weightMissingDevice   = 0.05
	weightMissingIP       = 0.05
)

// DefaultHighRiskCountries is the rule-side country watchlist.
// Placeholder ISO codes; operators override via RULES_HIGH_RISK_COUNTRIES.
var DefaultHighRiskCountries = []string{"XX", "YY"}

// DefaultSuspiciousMerchants are lowercase substrings matched against
// merchant names.
var DefaultSuspiciousMerchants = []string{"test", "suspicious", "fraud"}

// Evaluator scores transactions against a fixed rule set.
type Evaluator struct {
	highRiskCountries   map[string]bool
	suspiciousMerchants []string
}

// New creates an evaluator with the default watchlists.
func New() *Evaluator {
	e := &Evaluator{}
	e.WithHighRiskCountries(DefaultHighRiskCountries)
	e.WithSuspiciousMerchants(DefaultSuspiciousMerchants)
	return e
}

// WithHighRiskCountries replaces the country watchlist.
func (e *Evaluator) WithHighRiskCountries(codes []string) *Evaluator {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = true
		}
	}
	e.highRiskCountries = set
	return e
}

// WithSuspiciousMerchants replaces the merchant-name substring list.
func (e *Evaluator) WithSuspiciousMerchants(substrings []string) *Evaluator {
	list := make([]string, 0, len(substrings))
	for _, s := range substrings {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			list = append(list, s)
		}
	}
	e.suspiciousMerchants = list
	return e
}

// HighRisk reports whether a country code is on the rule-side watchlist.
func (e *Evaluator) HighRisk(country string) bool {
	return e.highRiskCountries[country]
}

// Evaluate scores a transaction. Rules are additive and the result is
// capped at 1.0. Reasons come back in rule order, one entry per rule that
// fired.
func (e *Evaluator) Evaluate(tx *transaction.Transaction) (float64, []string) {
	var (
		score   float64
		reasons []string
	)
	hit := func(weight float64, reason string) {
		score += weight
		reasons = append(reasons, reason)
	}

	if tx.Amount > highAmountThreshold {
		hit(weightHighAmount, fmt.Sprintf("High transaction amount: $%.2f", tx.Amount))
	} else if tx.Amount > mediumAmountThreshold {
		hit(weightMediumAmount, fmt.Sprintf("Medium-high transaction amount: $%.2f", tx.Amount))
	}

	if e.highRiskCountries[tx.MerchantCountry] {
		hit(weightMerchantCountry, fmt.Sprintf("High-risk merchant country: %s", tx.MerchantCountry))
	}
	if e.highRiskCountries[tx.TransactionCountry] {
		hit(weightTxnCountry, fmt.Sprintf("High-risk transaction country: %s", tx.TransactionCountry))
	}

	if tx.CrossBorder() {
		hit(weightCrossBorder, "Cross-border transaction")
	}

	merchantLower := strings.ToLower(tx.MerchantName)
	for _, substr := range e.suspiciousMerchants {
		if strings.Contains(merchantLower, substr) {
			hit(weightSuspiciousName, fmt.Sprintf("Suspicious merchant name: %s", tx.MerchantName))
			break
		}
	}

	if tx.Amount > mediumAmountThreshold && tx.PaymentMethod == transaction.MethodPrepaidCard {
		hit(weightPrepaidLarge, "Large amount on prepaid card")
	}

	if tx.DeviceID == "" {
		hit(weightMissingDevice, "Missing device information")
	}
	if tx.IPAddress == "" {
		hit(weightMissingIP, "Missing IP address")
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, reasons
}
