// Package transaction defines the transaction domain model and its storage.
//
// A Transaction is the immutable input entity submitted for scoring. A
// ScoredTransaction is the persisted outcome: the transaction plus its
// risk score, risk level, fraud prediction, disposition status, and the
// ordered reasons that produced them.
package transaction

import (
	"strings"

	"github.com/fraudguard-io/fraudguard/internal/validation"
)

// Status is the disposition assigned to a transaction.
// A transaction holds "pending" only between enqueue and scoring; the
// scoring path assigns exactly one of approved/declined/flagged.
// "under_review" is reachable only through manual action.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDeclined    Status = "declined"
	StatusFlagged     Status = "flagged"
	StatusUnderReview Status = "under_review"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined, StatusFlagged, StatusUnderReview:
		return true
	}
	return false
}

// RiskLevel is the coarse bucket derived from the numeric risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Transaction types accepted by the API.
const (
	TypePurchase   = "purchase"
	TypeWithdrawal = "withdrawal"
	TypeTransfer   = "transfer"
	TypeDeposit    = "deposit"
	TypePayment    = "payment"
	TypeRefund     = "refund"
)

// TransactionTypes lists the accepted transaction_type values.
var TransactionTypes = []string{
	TypePurchase, TypeWithdrawal, TypeTransfer, TypeDeposit, TypePayment, TypeRefund,
}

// Payment methods accepted by the API.
const (
	MethodCreditCard   = "credit_card"
	MethodDebitCard    = "debit_card"
	MethodPrepaidCard  = "prepaid_card"
	MethodBankTransfer = "bank_transfer"
	MethodCash         = "cash"
)

// PaymentMethods lists the accepted payment_method values.
var PaymentMethods = []string{
	MethodCreditCard, MethodDebitCard, MethodPrepaidCard, MethodBankTransfer, MethodCash,
}

// Transaction is the input entity submitted for fraud scoring.
// Immutable once scored.
type Transaction struct {
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency,omitempty"`
	TransactionType    string  `json:"transaction_type"`
	MerchantName       string  `json:"merchant_name"`
	MerchantCategory   string  `json:"merchant_category,omitempty"`
	MerchantCountry    string  `json:"merchant_country,omitempty"`
	CustomerID         string  `json:"customer_id"`
	CustomerEmail      string  `json:"customer_email,omitempty"`
	CardLastFour       string  `json:"card_last_four,omitempty"`
	PaymentMethod      string  `json:"payment_method"`
	TransactionCountry string  `json:"transaction_country,omitempty"`
	TransactionCity    string  `json:"transaction_city,omitempty"`
	IPAddress          string  `json:"ip_address,omitempty"`
	DeviceID           string  `json:"device_id,omitempty"`
	DeviceType         string  `json:"device_type,omitempty"`
	Description        string  `json:"description,omitempty"`
}

// Normalize trims and sanitizes string fields, uppercases country and
// currency codes, and applies the USD currency default. Call before Validate.
func (t *Transaction) Normalize() {
	t.MerchantName = validation.SanitizeString(t.MerchantName, 255)
	t.MerchantCategory = validation.SanitizeString(t.MerchantCategory, 100)
	t.CustomerID = validation.SanitizeString(t.CustomerID, 100)
	t.CustomerEmail = validation.SanitizeString(t.CustomerEmail, 255)
	t.TransactionCity = validation.SanitizeString(t.TransactionCity, 100)
	t.DeviceID = validation.SanitizeString(t.DeviceID, 100)
	t.DeviceType = validation.SanitizeString(t.DeviceType, 50)
	t.IPAddress = validation.SanitizeString(t.IPAddress, 45)
	t.Description = validation.SanitizeString(t.Description, validation.MaxStringLength)

	t.MerchantCountry = strings.ToUpper(strings.TrimSpace(t.MerchantCountry))
	t.TransactionCountry = strings.ToUpper(strings.TrimSpace(t.TransactionCountry))

	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))
	if t.Currency == "" {
		t.Currency = "USD"
	}
}

// Validate checks the transaction against the input invariants. An empty
// result means the transaction is acceptable for scoring.
func (t *Transaction) Validate() validation.ValidationErrors {
	return validation.Validate(
		validation.PositiveAmount("amount", t.Amount),
		validation.Required("merchant_name", t.MerchantName),
		validation.MaxLength("merchant_name", t.MerchantName, 255),
		validation.Required("customer_id", t.CustomerID),
		validation.MaxLength("customer_id", t.CustomerID, 100),
		validation.Required("transaction_type", t.TransactionType),
		validation.OneOf("transaction_type", t.TransactionType, TransactionTypes...),
		validation.Required("payment_method", t.PaymentMethod),
		validation.OneOf("payment_method", t.PaymentMethod, PaymentMethods...),
		validation.ValidCountry("merchant_country", t.MerchantCountry),
		validation.ValidCountry("transaction_country", t.TransactionCountry),
		validation.ValidCardLastFour("card_last_four", t.CardLastFour),
		currencyCode("currency", t.Currency),
		validation.MaxLength("ip_address", t.IPAddress, 45),
		validation.MaxLength("description", t.Description, validation.MaxStringLength),
	)
}

// CrossBorder reports whether the merchant and transaction countries are
// both present and differ.
func (t *Transaction) CrossBorder() bool {
	return t.MerchantCountry != "" && t.TransactionCountry != "" &&
		t.MerchantCountry != t.TransactionCountry
}

func currencyCode(field, value string) func() *validation.ValidationError {
	return func() *validation.ValidationError {
		if value == "" {
			return nil
		}
		if len(value) != 3 {
			return &validation.ValidationError{Field: field, Message: "must be a 3-letter currency code"}
		}
		for _, c := range value {
			if c < 'A' || c > 'Z' {
				return &validation.ValidationError{Field: field, Message: "must be a 3-letter currency code"}
			}
		}
		return nil
	}
}
