// Package ml provides the machine-learning leg of fraud scoring: feature
// extraction, the model abstraction, and a degradation-tolerant estimator.
package ml

import (
	"strings"
	"time"

	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// NumFeatures is the width of the model input vector.
const NumFeatures = 12

// Features is the fixed-order model input vector. Index order is part of
// the model artifact contract; reordering breaks trained weights.
type Features [NumFeatures]float64

// Feature vector indices.
const (
	FeatAmount = iota
	FeatHourOfDay
	FeatIsWeekend
	FeatPaymentRisk
	FeatTypeRisk
	FeatCategoryRisk
	FeatCrossBorder
	FeatMerchantHighRisk
	FeatTxnHighRisk
	FeatHasDevice
	FeatHasIP
	FeatAmountBracket
)

// FeatureNames maps vector indices to the names used in model artifacts.
var FeatureNames = [NumFeatures]string{
	"amount", "hour_of_day", "is_weekend", "payment_risk",
	"transaction_type_risk", "category_risk", "is_cross_border",
	"merchant_high_risk", "transaction_high_risk", "has_device_info",
	"has_ip_info", "amount_bracket",
}

// defaultRisk is the lookup fallback for unknown categorical values.
const defaultRisk = 0.5

var paymentRisk = map[string]float64{
	transaction.MethodCreditCard:   0.2,
	transaction.MethodDebitCard:    0.3,
	transaction.MethodPrepaidCard:  0.8,
	transaction.MethodBankTransfer: 0.1,
	transaction.MethodCash:         0.5,
}

var typeRisk = map[string]float64{
	transaction.TypePurchase:   0.2,
	transaction.TypeWithdrawal: 0.4,
	transaction.TypeTransfer:   0.6,
	transaction.TypeDeposit:    0.1,
	transaction.TypePayment:    0.3,
	transaction.TypeRefund:     0.5,
}

var categoryRisk = map[string]float64{
	"Food & Beverage": 0.1,
	"Retail":          0.2,
	"E-commerce":      0.3,
	"Electronics":     0.4,
	"Jewelry":         0.5,
	"Money Transfer":  0.7,
	"ATM":             0.6,
	"Gambling":        0.9,
}

// DefaultHighRiskCountries is the model-side country watchlist. Kept
// separate from the rules watchlist so the two legs stay independently
// tunable.
var DefaultHighRiskCountries = []string{"XX", "YY", "ZZ"}

// Extractor turns transactions into feature vectors.
type Extractor struct {
	highRiskCountries map[string]bool
}

// NewExtractor creates an extractor with the default country watchlist.
func NewExtractor() *Extractor {
	x := &Extractor{}
	x.WithHighRiskCountries(DefaultHighRiskCountries)
	return x
}

// WithHighRiskCountries replaces the model-side country watchlist.
func (x *Extractor) WithHighRiskCountries(codes []string) *Extractor {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = true
		}
	}
	x.highRiskCountries = set
	return x
}

// Extract computes the feature vector for a transaction at the given time.
// Deterministic for a fixed (tx, now) pair.
func (x *Extractor) Extract(tx *transaction.Transaction, now time.Time) Features {
	var f Features

	f[FeatAmount] = tx.Amount
	f[FeatHourOfDay] = float64(now.Hour())
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		f[FeatIsWeekend] = 1
	}

	f[FeatPaymentRisk] = lookupRisk(paymentRisk, tx.PaymentMethod)
	f[FeatTypeRisk] = lookupRisk(typeRisk, tx.TransactionType)
	f[FeatCategoryRisk] = lookupRisk(categoryRisk, tx.MerchantCategory)

	if tx.CrossBorder() {
		f[FeatCrossBorder] = 1
	}
	if x.highRiskCountries[tx.MerchantCountry] {
		f[FeatMerchantHighRisk] = 1
	}
	if x.highRiskCountries[tx.TransactionCountry] {
		f[FeatTxnHighRisk] = 1
	}

	if tx.DeviceID != "" {
		f[FeatHasDevice] = 1
	}
	if tx.IPAddress != "" {
		f[FeatHasIP] = 1
	}

	f[FeatAmountBracket] = amountBracket(tx.Amount)
	return f
}

func lookupRisk(table map[string]float64, key string) float64 {
	if r, ok := table[key]; ok {
		return r
	}
	return defaultRisk
}

// amountBracket buckets amounts into 0..4. Thresholds are strictly
// exclusive, so an amount of exactly 100 lands in bracket 0.
func amountBracket(amount float64) float64 {
	switch {
	case amount > 10000:
		return 4
	case amount > 5000:
		return 3
	case amount > 1000:
		return 2
	case amount > 100:
		return 1
	default:
		return 0
	}
}
