package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fraudguard-io/fraudguard/internal/metrics"
)

// ErrSubscriptionNotFound is returned for unknown subscription ids.
var ErrSubscriptionNotFound = errors.New("webhook subscription not found")

// Subscription is a registered webhook sink for alerts.
type Subscription struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Secret       string     `json:"-"` // HMAC signing key, shown once at creation
	AlertTypes   []string   `json:"alert_types,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// wants reports whether the subscription should receive this alert type.
// An empty alert-type list subscribes to everything.
func (s *Subscription) wants(alertType string) bool {
	if len(s.AlertTypes) == 0 {
		return true
	}
	for _, t := range s.AlertTypes {
		if t == alertType {
			return true
		}
	}
	return false
}

// SubscriptionStore persists webhook subscriptions.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher delivers alerts to webhook subscribers. Deliveries are
// asynchronous and best-effort: one slow or failing sink never blocks the
// scoring path or other sinks.
type Dispatcher struct {
	store  SubscriptionStore
	client *http.Client
	logger *slog.Logger
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(store SubscriptionStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Dispatch fans an alert out to all matching active subscriptions. The
// returned error covers subscription lookup only; individual delivery
// failures are recorded on the subscription and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) error {
	if d == nil {
		return nil
	}
	subs, err := d.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active || !sub.wants(alert.AlertType) {
			continue
		}
		go d.send(sub, alert)
	}
	return nil
}

func (d *Dispatcher) send(sub *Subscription, alert Alert) {
	// Deliveries outlive the triggering request; bound them independently.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload, err := json.Marshal(alert)
	if err != nil {
		d.recordFailure(ctx, sub, alert, "failed to marshal alert")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.recordFailure(ctx, sub, alert, "failed to create request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-FraudGuard-Event", alert.AlertType)
	req.Header.Set("X-FraudGuard-Timestamp", fmt.Sprintf("%d", alert.Timestamp.Unix()))
	if sub.Secret != "" {
		req.Header.Set("X-FraudGuard-Signature", Sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.recordFailure(ctx, sub, alert, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.recordSuccess(ctx, sub)
	} else {
		d.recordFailure(ctx, sub, alert, fmt.Sprintf("status %d", resp.StatusCode))
	}
}

// Sign computes the hex HMAC-SHA256 signature receivers use to verify a
// delivery.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) recordSuccess(ctx context.Context, sub *Subscription) {
	metrics.WebhookDeliveriesTotal.WithLabelValues("success").Inc()
	now := time.Now().UTC()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.FailureCount = 0
	if err := d.store.Update(ctx, sub); err != nil {
		d.logger.Warn("failed to record webhook success", "webhook_id", sub.ID, "error", err)
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, sub *Subscription, alert Alert, msg string) {
	metrics.WebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	sub.LastError = msg
	sub.FailureCount++
	if err := d.store.Update(ctx, sub); err != nil {
		d.logger.Warn("failed to record webhook failure", "webhook_id", sub.ID, "error", err)
	}
	d.logger.Warn("webhook delivery failed",
		"webhook_id", sub.ID,
		"transaction_id", alert.TransactionID,
		"alert_type", alert.AlertType,
		"error", msg)
}

// MemorySubscriptionStore is the in-memory SubscriptionStore.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewMemorySubscriptionStore creates an in-memory subscription store.
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[string]*Subscription)}
}

func (m *MemorySubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemorySubscriptionStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemorySubscriptionStore) List(ctx context.Context) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		result = append(result, sub)
	}
	return result, nil
}

func (m *MemorySubscriptionStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemorySubscriptionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(m.subs, id)
	return nil
}
