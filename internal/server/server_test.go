package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-io/fraudguard/internal/alerts"
	"github.com/fraudguard-io/fraudguard/internal/config"
	"github.com/fraudguard-io/fraudguard/internal/ml"
	"github.com/fraudguard-io/fraudguard/internal/streaming"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubModel returns a fixed fraud probability
type stubModel struct {
	p float64
}

func (m *stubModel) Predict(f ml.Features) (float64, error) { return m.p, nil }
func (m *stubModel) Describe() string                       { return "stub" }

// stubProducer implements Producer without a broker
type stubProducer struct {
	mu        sync.Mutex
	envelopes []streaming.TransactionEnvelope
	connected bool
}

func (p *stubProducer) PublishTransaction(ctx context.Context, env streaming.TransactionEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *stubProducer) PublishProcessed(ctx context.Context, res streaming.ProcessedResult) error {
	return nil
}

func (p *stubProducer) PublishAlert(ctx context.Context, alert alerts.Alert) error {
	return nil
}

func (p *stubProducer) Start(ctx context.Context) error { return nil }
func (p *stubProducer) Stop() error                     { return nil }
func (p *stubProducer) Connected() bool                 { return p.connected }

func (p *stubProducer) envelopeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envelopes)
}

// stubConsumer implements Consumer without a broker
type stubConsumer struct {
	running bool
}

func (c *stubConsumer) Start(ctx context.Context) error { return nil }
func (c *stubConsumer) Stop()                           {}
func (c *stubConsumer) Running() bool                   { return c.running }

func (c *stubConsumer) Stats() map[string]interface{} {
	return map[string]interface{}{
		"running":         c.running,
		"processed_count": int64(7),
		"error_count":     int64(1),
		"success_rate":    87.5,
	}
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 "development",
		LogLevel:            "error",
		LogFormat:           "text",
		Store:               "memory",
		RuleWeight:          0.4,
		MLWeight:            0.6,
		BlockThreshold:      0.7,
		ReviewThreshold:     0.3,
		HighRiskCountries:   []string{"XX", "YY"},
		MLHighRiskCountries: []string{"XX", "YY", "ZZ"},
		SuspiciousMerchants: []string{"test", "suspicious", "fraud"},
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		WSMaxClients:        100,
		ShutdownTimeout:     time.Second,
	}
}

// newTestServer creates a server on the in-memory store with a fixed
// low-probability model, so clean transactions come out approved
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithModel(&stubModel{p: 0.1})}, opts...)
	s, err := New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

const cleanTxBody = `{
	"amount": 45.99,
	"transaction_type": "purchase",
	"merchant_name": "Corner Coffee",
	"merchant_category": "Food & Beverage",
	"merchant_country": "US",
	"transaction_country": "US",
	"customer_id": "cust_001",
	"payment_method": "credit_card",
	"ip_address": "203.0.113.10",
	"device_id": "dev_1001"
}`

const fraudTxBody = `{
	"amount": 15000,
	"transaction_type": "withdrawal",
	"merchant_name": "Suspicious ATM Withdrawal",
	"merchant_country": "YY",
	"transaction_country": "XX",
	"customer_id": "cust_666",
	"payment_method": "prepaid_card"
}`

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
	}
	return w, resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := getJSON(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}

	checks, ok := resp["checks"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected checks map, got %v", resp["checks"])
	}
	if checks["database"] != "healthy" {
		t.Errorf("Expected database check 'healthy', got %v", checks["database"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := getJSON(t, s, "/health/live")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "alive" {
		t.Errorf("Expected status 'alive', got %v", resp["status"])
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	// Server hasn't called Run() so ready is false
	w, resp := getJSON(t, s, "/health/ready")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
	if resp["status"] != "not_ready" {
		t.Errorf("Expected status 'not_ready', got %v", resp["status"])
	}

	s.ready.Store(true)
	w, resp = getJSON(t, s, "/health/ready")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 after ready, got %d", w.Code)
	}
	if resp["status"] != "ready" {
		t.Errorf("Expected status 'ready', got %v", resp["status"])
	}
}

// ---------------------------------------------------------------------------
// Service info tests
// ---------------------------------------------------------------------------

func TestRootEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := getJSON(t, s, "/")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["service"] != "fraudguard" {
		t.Errorf("Expected service 'fraudguard', got %v", resp["service"])
	}
	if resp["status"] != "operational" {
		t.Errorf("Expected status 'operational', got %v", resp["status"])
	}
}

func TestDashboardEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/dashboard", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for dashboard, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected text/html Content-Type, got %q", ct)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected generated X-Request-ID header")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-upstream-1")
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-upstream-1" {
		t.Errorf("Expected upstream request ID echoed back, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Transaction submission tests
// ---------------------------------------------------------------------------

func TestSubmitTransaction(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/api/v1/transactions", cleanTxBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["id"] != float64(1) {
		t.Errorf("Expected id 1, got %v", resp["id"])
	}
	if resp["status"] != "approved" {
		t.Errorf("Expected status 'approved', got %v", resp["status"])
	}
	if resp["risk_level"] != "low" {
		t.Errorf("Expected risk_level 'low', got %v", resp["risk_level"])
	}
	if resp["risk_score"] != 0.06 {
		t.Errorf("Expected risk_score 0.06, got %v", resp["risk_score"])
	}
}

func TestSubmitFraudTransaction(t *testing.T) {
	s := newTestServer(t, WithModel(&stubModel{p: 0.9}))

	w := postJSON(t, s, "/api/v1/transactions", fraudTxBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "declined" {
		t.Errorf("Expected status 'declined', got %v", resp["status"])
	}
	if resp["risk_level"] != "high" {
		t.Errorf("Expected risk_level 'high', got %v", resp["risk_level"])
	}
	if resp["fraud_prediction"] != true {
		t.Errorf("Expected fraud_prediction true, got %v", resp["fraud_prediction"])
	}
	reasons, ok := resp["fraud_reasons"].([]interface{})
	if !ok || len(reasons) == 0 {
		t.Errorf("Expected fraud_reasons, got %v", resp["fraud_reasons"])
	}
}

func TestSubmitTransactionValidation(t *testing.T) {
	s := newTestServer(t)

	body := `{"amount": -5, "transaction_type": "purchase", "merchant_name": "", "customer_id": "c1", "payment_method": "credit_card"}`
	w := postJSON(t, s, "/api/v1/transactions", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["error"] != "validation_failed" {
		t.Errorf("Expected error 'validation_failed', got %v", resp["error"])
	}
	details, ok := resp["details"].([]interface{})
	if !ok || len(details) == 0 {
		t.Errorf("Expected validation details, got %v", resp["details"])
	}
}

func TestSubmitTransactionMalformedJSON(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/api/v1/transactions", `{"amount":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "invalid_request" {
		t.Errorf("Expected error 'invalid_request', got %v", resp["error"])
	}
}

func TestSubmitStreamModeWithoutStreaming(t *testing.T) {
	s := newTestServer(t)

	w := postJSON(t, s, "/api/v1/transactions?stream_mode=true", cleanTxBody)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "streaming_unavailable" {
		t.Errorf("Expected error 'streaming_unavailable', got %v", resp["error"])
	}
}

func TestSubmitStreamMode(t *testing.T) {
	producer := &stubProducer{connected: true}
	s := newTestServer(t, WithProducer(producer))

	w := postJSON(t, s, "/api/v1/transactions?stream_mode=true", cleanTxBody)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "pending" {
		t.Errorf("Expected status 'pending', got %v", resp["status"])
	}
	corrID, _ := resp["correlation_id"].(string)
	if corrID == "" {
		t.Fatal("Expected correlation_id in receipt")
	}

	if producer.envelopeCount() != 1 {
		t.Fatalf("Expected 1 published envelope, got %d", producer.envelopeCount())
	}
	env := producer.envelopes[0]
	if env.TransactionID != corrID {
		t.Errorf("Envelope id %q does not match receipt correlation id %q", env.TransactionID, corrID)
	}
	if env.Data.MerchantName != "Corner Coffee" {
		t.Errorf("Expected merchant preserved in envelope, got %q", env.Data.MerchantName)
	}
}

// ---------------------------------------------------------------------------
// Batch submission tests
// ---------------------------------------------------------------------------

func TestBatchWithoutStreaming(t *testing.T) {
	s := newTestServer(t)

	body := `{"transactions": [` + cleanTxBody + `]}`
	w := postJSON(t, s, "/api/v1/transactions/batch", body)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBatchSubmission(t *testing.T) {
	producer := &stubProducer{connected: true}
	s := newTestServer(t, WithProducer(producer))

	body := `{"transactions": [` + cleanTxBody + `,` + fraudTxBody + `]}`
	w := postJSON(t, s, "/api/v1/transactions/batch", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["submitted_count"] != float64(2) {
		t.Errorf("Expected submitted_count 2, got %v", resp["submitted_count"])
	}
	if producer.envelopeCount() != 2 {
		t.Errorf("Expected 2 published envelopes, got %d", producer.envelopeCount())
	}
}

func TestBatchValidation(t *testing.T) {
	producer := &stubProducer{connected: true}
	s := newTestServer(t, WithProducer(producer))

	w := postJSON(t, s, "/api/v1/transactions/batch", `{"transactions": []}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "empty_batch" {
		t.Errorf("Expected error 'empty_batch', got %v", resp["error"])
	}

	txs := make([]transaction.Transaction, maxBatchItems+1)
	for i := range txs {
		txs[i] = transaction.Transaction{
			Amount:          10,
			TransactionType: "purchase",
			MerchantName:    "Shop",
			CustomerID:      "c1",
			PaymentMethod:   "cash",
		}
	}
	body, err := json.Marshal(map[string]interface{}{"transactions": txs})
	if err != nil {
		t.Fatalf("Failed to marshal batch: %v", err)
	}
	w = postJSON(t, s, "/api/v1/transactions/batch", string(body))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for oversized batch, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "batch_too_large" {
		t.Errorf("Expected error 'batch_too_large', got %v", resp["error"])
	}
}

// ---------------------------------------------------------------------------
// Transaction retrieval tests
// ---------------------------------------------------------------------------

func TestGetTransactionInvalidID(t *testing.T) {
	s := newTestServer(t)

	for _, id := range []string{"abc", "0", "-3"} {
		w, resp := getJSON(t, s, "/api/v1/transactions/"+id)
		if w.Code != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", id, w.Code)
			continue
		}
		if resp["error"] != "invalid_id" {
			t.Errorf("id %q: expected error 'invalid_id', got %v", id, resp["error"])
		}
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s := newTestServer(t)

	w, resp := getJSON(t, s, "/api/v1/transactions/999")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if resp["error"] != "not_found" {
		t.Errorf("Expected error 'not_found', got %v", resp["error"])
	}
}

func TestGetTransaction(t *testing.T) {
	s := newTestServer(t)

	if w := postJSON(t, s, "/api/v1/transactions", cleanTxBody); w.Code != http.StatusCreated {
		t.Fatalf("Setup submit failed: %d", w.Code)
	}

	w, resp := getJSON(t, s, "/api/v1/transactions/1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["id"] != float64(1) {
		t.Errorf("Expected id 1, got %v", resp["id"])
	}
	if resp["merchant_name"] != "Corner Coffee" {
		t.Errorf("Expected merchant 'Corner Coffee', got %v", resp["merchant_name"])
	}
}

// ---------------------------------------------------------------------------
// Transaction listing tests
// ---------------------------------------------------------------------------

func submitTwo(t *testing.T, s *Server) {
	t.Helper()
	if w := postJSON(t, s, "/api/v1/transactions", cleanTxBody); w.Code != http.StatusCreated {
		t.Fatalf("Setup submit failed: %d", w.Code)
	}
	if w := postJSON(t, s, "/api/v1/transactions", fraudTxBody); w.Code != http.StatusCreated {
		t.Fatalf("Setup submit failed: %d", w.Code)
	}
}

func TestListTransactions(t *testing.T) {
	s := newTestServer(t)
	submitTwo(t, s)

	w, resp := getJSON(t, s, "/api/v1/transactions")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["total_count"] != float64(2) {
		t.Errorf("Expected total_count 2, got %v", resp["total_count"])
	}
	txs, ok := resp["transactions"].([]interface{})
	if !ok || len(txs) != 2 {
		t.Fatalf("Expected 2 transactions, got %v", resp["transactions"])
	}

	// Newest first
	first := txs[0].(map[string]interface{})
	if first["id"] != float64(2) {
		t.Errorf("Expected newest transaction first, got id %v", first["id"])
	}
}

func TestListTransactionsFilters(t *testing.T) {
	s := newTestServer(t)
	submitTwo(t, s)

	w, resp := getJSON(t, s, "/api/v1/transactions?customer_id=cust_001")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["total_count"] != float64(1) {
		t.Errorf("Expected 1 match for customer filter, got %v", resp["total_count"])
	}

	w, resp = getJSON(t, s, "/api/v1/transactions?min_amount=1000")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["total_count"] != float64(1) {
		t.Errorf("Expected 1 match for min_amount filter, got %v", resp["total_count"])
	}

	w, resp = getJSON(t, s, "/api/v1/transactions?status=approved")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["total_count"] != float64(1) {
		t.Errorf("Expected 1 approved transaction, got %v", resp["total_count"])
	}

	w, resp = getJSON(t, s, "/api/v1/transactions?status=bogus")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
	if resp["error"] != "invalid_filter" {
		t.Errorf("Expected error 'invalid_filter', got %v", resp["error"])
	}

	w, _ = getJSON(t, s, "/api/v1/transactions?min_amount=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad min_amount, got %d", w.Code)
	}
}

func TestListTransactionsPagination(t *testing.T) {
	s := newTestServer(t)
	submitTwo(t, s)

	w, resp := getJSON(t, s, "/api/v1/transactions?limit=1&offset=1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	txs := resp["transactions"].([]interface{})
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction page, got %d", len(txs))
	}
	if resp["total_count"] != float64(2) {
		t.Errorf("Expected total_count 2, got %v", resp["total_count"])
	}
	if resp["limit"] != float64(1) || resp["offset"] != float64(1) {
		t.Errorf("Expected limit/offset echoed, got %v/%v", resp["limit"], resp["offset"])
	}

	// Limit is capped
	w, resp = getJSON(t, s, "/api/v1/transactions?limit=5000")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["limit"] != float64(transaction.MaxListLimit) {
		t.Errorf("Expected limit capped at %d, got %v", transaction.MaxListLimit, resp["limit"])
	}
}

// ---------------------------------------------------------------------------
// Streaming status and stats tests
// ---------------------------------------------------------------------------

func TestStreamingStatusDisabled(t *testing.T) {
	s := newTestServer(t)

	w, resp := getJSON(t, s, "/api/v1/streaming/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["kafka_connected"] != false {
		t.Errorf("Expected kafka_connected false, got %v", resp["kafka_connected"])
	}
	consumer := resp["consumer"].(map[string]interface{})
	if consumer["running"] != false {
		t.Errorf("Expected consumer not running, got %v", consumer["running"])
	}
	if resp["websocket_connections"] != float64(0) {
		t.Errorf("Expected 0 websocket connections, got %v", resp["websocket_connections"])
	}
}

func TestStreamingStatus(t *testing.T) {
	producer := &stubProducer{connected: true}
	consumer := &stubConsumer{running: true}
	s := newTestServer(t, WithProducer(producer), WithConsumer(consumer))

	w, resp := getJSON(t, s, "/api/v1/streaming/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp["kafka_connected"] != true {
		t.Errorf("Expected kafka_connected true, got %v", resp["kafka_connected"])
	}
	stats := resp["consumer"].(map[string]interface{})
	if stats["processed_count"] != float64(7) {
		t.Errorf("Expected processed_count 7, got %v", stats["processed_count"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newTestServer(t, WithModel(&stubModel{p: 0.9}))
	submitTwo(t, s)

	w, resp := getJSON(t, s, "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	txStats := resp["transactions"].(map[string]interface{})
	if txStats["total"] != float64(2) {
		t.Errorf("Expected total 2, got %v", txStats["total"])
	}
	if txStats["fraud_detected"] != float64(1) {
		t.Errorf("Expected fraud_detected 1, got %v", txStats["fraud_detected"])
	}

	model := resp["model"].(map[string]interface{})
	if model["loaded"] != true {
		t.Errorf("Expected model loaded, got %v", model["loaded"])
	}
	if model["info"] != "stub" {
		t.Errorf("Expected model info 'stub', got %v", model["info"])
	}

	if _, ok := resp["websocket"].(map[string]interface{}); !ok {
		t.Errorf("Expected websocket stats, got %v", resp["websocket"])
	}
}

// ---------------------------------------------------------------------------
// Middleware tests
// ---------------------------------------------------------------------------

func TestRateLimitExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	s, err := New(cfg, WithModel(&stubModel{p: 0.1}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != "rate_limit_exceeded" {
		t.Errorf("Expected error 'rate_limit_exceeded', got %v", resp["error"])
	}
}

func TestRequestSizeLimit(t *testing.T) {
	s := newTestServer(t)

	// Body over the 1MB cap fails during JSON binding
	big := `{"description": "` + strings.Repeat("x", 1<<20) + `"}`
	w := postJSON(t, s, "/api/v1/transactions", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for oversized body, got %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("Expected nosniff header, got %q", w.Header().Get("X-Content-Type-Options"))
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/",
		"GET:/dashboard",
		"GET:/ws",
		"POST:/api/v1/transactions",
		"POST:/api/v1/transactions/batch",
		"GET:/api/v1/transactions/:id",
		"GET:/api/v1/transactions",
		"GET:/api/v1/streaming/status",
		"GET:/api/v1/stats",
		"POST:/api/v1/webhooks",
		"GET:/api/v1/webhooks",
		"DELETE:/api/v1/webhooks/:webhookId",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
