package transaction

import (
	"strings"
	"testing"
)

func validTransaction() *Transaction {
	return &Transaction{
		Amount:             100.50,
		Currency:           "USD",
		TransactionType:    TypePurchase,
		MerchantName:       "Coffee Shop",
		MerchantCategory:   "restaurant",
		MerchantCountry:    "US",
		CustomerID:         "cust_123",
		CustomerEmail:      "jane@example.com",
		CardLastFour:       "4242",
		PaymentMethod:      MethodCreditCard,
		TransactionCountry: "US",
		TransactionCity:    "Seattle",
		IPAddress:          "203.0.113.10",
		DeviceID:           "dev_1",
		DeviceType:         "mobile",
	}
}

func TestValidate_ValidTransaction(t *testing.T) {
	tx := validTransaction()
	tx.Normalize()
	if errs := tx.Validate(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		field  string
	}{
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, "amount"},
		{"negative amount", func(tx *Transaction) { tx.Amount = -5 }, "amount"},
		{"missing merchant", func(tx *Transaction) { tx.MerchantName = "" }, "merchant_name"},
		{"missing customer", func(tx *Transaction) { tx.CustomerID = "" }, "customer_id"},
		{"unknown type", func(tx *Transaction) { tx.TransactionType = "barter" }, "transaction_type"},
		{"unknown method", func(tx *Transaction) { tx.PaymentMethod = "iou" }, "payment_method"},
		{"bad merchant country", func(tx *Transaction) { tx.MerchantCountry = "USA" }, "merchant_country"},
		{"bad transaction country", func(tx *Transaction) { tx.TransactionCountry = "u" }, "transaction_country"},
		{"bad card digits", func(tx *Transaction) { tx.CardLastFour = "42a2" }, "card_last_four"},
		{"short card digits", func(tx *Transaction) { tx.CardLastFour = "42" }, "card_last_four"},
		{"bad currency", func(tx *Transaction) { tx.Currency = "usd1" }, "currency"},
		{"long merchant", func(tx *Transaction) { tx.MerchantName = strings.Repeat("x", 256) }, "merchant_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(tx)
			errs := tx.Validate()
			if len(errs) == 0 {
				t.Fatalf("expected validation error on %s, got none", tt.field)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on field %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tx := &Transaction{
		Amount:             50,
		TransactionType:    TypePurchase,
		MerchantName:       "  Shop\x00  ",
		MerchantCountry:    "us",
		CustomerID:         " cust_1 ",
		PaymentMethod:      MethodDebitCard,
		TransactionCountry: "gb",
	}
	tx.Normalize()

	if tx.Currency != "USD" {
		t.Errorf("expected default currency USD, got %q", tx.Currency)
	}
	if tx.MerchantName != "Shop" {
		t.Errorf("expected sanitized merchant name, got %q", tx.MerchantName)
	}
	if tx.MerchantCountry != "US" || tx.TransactionCountry != "GB" {
		t.Errorf("expected uppercased countries, got %q / %q", tx.MerchantCountry, tx.TransactionCountry)
	}
	if tx.CustomerID != "cust_1" {
		t.Errorf("expected trimmed customer id, got %q", tx.CustomerID)
	}
}

func TestCrossBorder(t *testing.T) {
	tests := []struct {
		name     string
		merchant string
		txn      string
		want     bool
	}{
		{"same country", "US", "US", false},
		{"different countries", "US", "GB", true},
		{"missing merchant country", "", "US", false},
		{"missing transaction country", "US", "", false},
		{"both missing", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tx.MerchantCountry = tt.merchant
			tx.TransactionCountry = tt.txn
			if got := tx.CrossBorder(); got != tt.want {
				t.Errorf("CrossBorder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusDeclined, StatusFlagged, StatusUnderReview} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if Status("refunded").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if Status("").Valid() {
		t.Error("expected empty status to be invalid")
	}
}
