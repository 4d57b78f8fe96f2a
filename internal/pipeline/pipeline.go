// Package pipeline wires validation, scoring, persistence, and alert
// fan-out into the processing flows shared by the HTTP API and the
// Kafka consumer.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/fraudguard-io/fraudguard/internal/alerts"
	"github.com/fraudguard-io/fraudguard/internal/metrics"
	"github.com/fraudguard-io/fraudguard/internal/ml"
	"github.com/fraudguard-io/fraudguard/internal/rules"
	"github.com/fraudguard-io/fraudguard/internal/scoring"
	"github.com/fraudguard-io/fraudguard/internal/streaming"
	"github.com/fraudguard-io/fraudguard/internal/traces"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
)

// alertTimeout bounds the asynchronous alert fan-out spawned by
// ProcessDirect, which runs detached from the request context.
const alertTimeout = 15 * time.Second

// Publisher is the slice of the streaming producer the pipeline needs.
type Publisher interface {
	PublishTransaction(ctx context.Context, env streaming.TransactionEnvelope) error
	PublishProcessed(ctx context.Context, result streaming.ProcessedResult) error
	PublishAlert(ctx context.Context, alert alerts.Alert) error
}

// Broadcaster pushes alerts to connected WebSocket subscribers.
type Broadcaster interface {
	BroadcastAlert(alert alerts.Alert)
}

// AlertDispatcher fans alerts out to registered webhook endpoints.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert alerts.Alert) error
}

// Receipt acknowledges a transaction accepted for asynchronous
// processing. The database id is not known yet, so TransactionID is
// always zero and callers correlate on CorrelationID.
type Receipt struct {
	TransactionID int64              `json:"transaction_id"`
	CorrelationID string             `json:"correlation_id"`
	Status        transaction.Status `json:"status"`
	Message       string             `json:"message"`
}

// BatchResult summarizes a batch submission. Items fail independently.
type BatchResult struct {
	SubmittedCount int       `json:"submitted_count"`
	FailedCount    int       `json:"failed_count"`
	Receipts       []Receipt `json:"receipts"`
	Errors         []string  `json:"errors,omitempty"`
}

// Pipeline runs transactions through rule evaluation, ML estimation,
// combined scoring, and persistence, then fans out alerts for fraud
// and high-risk outcomes.
type Pipeline struct {
	store     transaction.Store
	rules     *rules.Evaluator
	estimator *ml.Estimator
	engine    *scoring.Engine
	logger    *slog.Logger

	publisher  Publisher
	hub        Broadcaster
	dispatcher AlertDispatcher

	degraded atomic.Bool
}

// New builds a pipeline over the given scoring components. Streaming,
// WebSocket, and webhook fan-out are optional and attached with the
// With* methods.
func New(store transaction.Store, evaluator *rules.Evaluator, estimator *ml.Estimator, engine *scoring.Engine, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		rules:     evaluator,
		estimator: estimator,
		engine:    engine,
		logger:    logger,
	}
}

// WithPublisher attaches the streaming producer.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// WithBroadcaster attaches the WebSocket alert hub.
func (p *Pipeline) WithBroadcaster(b Broadcaster) *Pipeline {
	p.hub = b
	return p
}

// WithDispatcher attaches the webhook dispatcher.
func (p *Pipeline) WithDispatcher(d AlertDispatcher) *Pipeline {
	p.dispatcher = d
	return p
}

// ProcessDirect scores a transaction synchronously and persists the
// result. Alert fan-out for fraud and high-risk outcomes happens on a
// detached goroutine so the caller gets its response without waiting
// on webhooks or Kafka.
func (p *Pipeline) ProcessDirect(ctx context.Context, tx transaction.Transaction) (*transaction.ScoredTransaction, error) {
	tx.Normalize()
	if errs := tx.Validate(); len(errs) > 0 {
		return nil, errs
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.ProcessDirect",
		traces.CustomerID(tx.CustomerID), traces.Amount(tx.Amount))
	defer span.End()

	record, _ := p.score(tx)
	span.SetAttributes(traces.RiskScore(record.RiskScore), traces.RiskLevel(string(record.RiskLevel)))

	if err := p.store.Insert(ctx, record); err != nil {
		plPersistenceFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist transaction")
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}
	span.SetAttributes(traces.TransactionID(record.ID), traces.Status(string(record.Status)))

	p.logger.Info("transaction processed",
		"transaction_id", record.ID,
		"status", record.Status,
		"risk_score", record.RiskScore,
		"risk_level", record.RiskLevel,
	)

	if record.FraudPrediction || record.RiskLevel == transaction.RiskHigh {
		alert := alerts.Build(record)
		plAlertsTriggered.WithLabelValues(alert.AlertType).Inc()
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), alertTimeout)
			defer cancel()
			p.emitAlert(alertCtx, alert)
		}()
	}

	return record, nil
}

// Enqueue validates a transaction and hands it to the streaming
// transport for asynchronous scoring. Nothing is persisted here; the
// consumer stores the record once it has been scored.
func (p *Pipeline) Enqueue(ctx context.Context, tx transaction.Transaction) (Receipt, error) {
	tx.Normalize()
	if errs := tx.Validate(); len(errs) > 0 {
		return Receipt{}, errs
	}

	if p.publisher == nil {
		return Receipt{}, fmt.Errorf("%w: streaming is not enabled", streaming.ErrTransportUnavailable)
	}

	correlationID := uuid.NewString()
	ctx, span := traces.StartSpan(ctx, "pipeline.Enqueue",
		traces.CorrelationID(correlationID), traces.CustomerID(tx.CustomerID))
	defer span.End()

	env := streaming.NewTransactionEnvelope(correlationID, tx)
	if err := p.publisher.PublishTransaction(ctx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish transaction")
		return Receipt{}, err
	}

	return Receipt{
		CorrelationID: correlationID,
		Status:        transaction.StatusPending,
		Message:       "Transaction submitted for processing",
	}, nil
}

// EnqueueBatch submits each transaction independently. A rejected or
// failed item never stops the rest of the batch.
func (p *Pipeline) EnqueueBatch(ctx context.Context, txs []transaction.Transaction) BatchResult {
	result := BatchResult{Receipts: make([]Receipt, 0, len(txs))}
	for i, tx := range txs {
		receipt, err := p.Enqueue(ctx, tx)
		if err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("transaction %d: %v", i, err))
			continue
		}
		result.SubmittedCount++
		result.Receipts = append(result.Receipts, receipt)
	}
	return result
}

// HandleMessage is the consume-loop body: it decodes an inbound
// envelope, scores and persists the transaction, publishes the
// processed result, and fans out alerts for fraud and high-risk
// outcomes. A failure to publish the processed result is logged but
// not returned, because the record is already stored and a redelivery
// would insert it twice.
func (p *Pipeline) HandleMessage(ctx context.Context, value []byte) error {
	var env streaming.TransactionEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("failed to decode transaction envelope: %w", err)
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.HandleMessage",
		traces.CorrelationID(env.TransactionID))
	defer span.End()

	tx := env.Data
	tx.Normalize()
	if errs := tx.Validate(); len(errs) > 0 {
		err := fmt.Errorf("invalid streamed transaction %s: %w", env.TransactionID, errs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid streamed transaction")
		return err
	}

	record, outcome := p.score(tx)
	span.SetAttributes(traces.RiskScore(record.RiskScore), traces.RiskLevel(string(record.RiskLevel)))

	if err := p.store.Insert(ctx, record); err != nil {
		plPersistenceFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist transaction")
		return fmt.Errorf("failed to persist transaction %s: %w", env.TransactionID, err)
	}
	span.SetAttributes(traces.TransactionID(record.ID))

	if p.publisher != nil {
		result := streaming.ProcessedResult{
			TransactionID:   strconv.FormatInt(record.ID, 10),
			Status:          record.Status,
			RiskScore:       record.RiskScore,
			RiskLevel:       record.RiskLevel,
			FraudPrediction: record.FraudPrediction,
			FraudReasons:    record.FraudReasons,
			MLInfo:          outcome.MLInfo,
			ProcessedAt:     time.Now().UTC(),
		}
		if err := p.publisher.PublishProcessed(ctx, result); err != nil {
			p.logger.Warn("failed to publish processed result",
				"transaction_id", record.ID,
				"correlation_id", env.TransactionID,
				"error", err,
			)
		}
	}

	if record.FraudPrediction || record.RiskLevel == transaction.RiskHigh {
		alert := alerts.Build(record)
		plAlertsTriggered.WithLabelValues(alert.AlertType).Inc()
		p.emitAlert(ctx, alert)
	}

	p.logger.Info("streamed transaction processed",
		"transaction_id", record.ID,
		"correlation_id", env.TransactionID,
		"status", record.Status,
		"risk_score", record.RiskScore,
	)
	return nil
}

// score runs the full evaluation chain and assembles the record to
// persist. The returned outcome carries the score breakdown for the
// processed-result topic.
func (p *Pipeline) score(tx transaction.Transaction) (*transaction.ScoredTransaction, scoring.Outcome) {
	start := time.Now()
	ruleScore, ruleReasons := p.rules.Evaluate(&tx)
	mlRes := p.estimator.Score(&tx)
	outcome := p.engine.Score(ruleScore, ruleReasons, mlRes)
	plScoringDuration.Observe(time.Since(start).Seconds())
	plLastRiskScore.Set(outcome.Score)

	p.noteDegraded(mlRes)

	status := scoring.StatusFor(outcome.Fraud, outcome.Level)
	metrics.TransactionsScoredTotal.WithLabelValues(string(status)).Inc()
	metrics.RiskLevelTotal.WithLabelValues(string(outcome.Level)).Inc()

	mlScore := outcome.MLInfo.MLScore
	ruleLeg := outcome.MLInfo.RuleScore
	record := &transaction.ScoredTransaction{
		Transaction:          tx,
		Status:               status,
		RiskScore:            outcome.Score,
		RiskLevel:            outcome.Level,
		FraudPrediction:      outcome.Fraud,
		FraudReasons:         outcome.Reasons,
		VerificationRequired: outcome.VerificationRequired,
		MLScore:              &mlScore,
		RuleScore:            &ruleLeg,
		MLConfidence:         mlRes.Confidence,
	}
	return record, outcome
}

// emitAlert sends one alert to every attached sink. Sinks fail
// independently; a dead webhook endpoint must not keep an alert off
// the WebSocket feed.
func (p *Pipeline) emitAlert(ctx context.Context, alert alerts.Alert) {
	if p.publisher != nil {
		if err := p.publisher.PublishAlert(ctx, alert); err != nil {
			p.logger.Error("failed to publish alert",
				"transaction_id", alert.TransactionID,
				"error", err,
			)
		}
	}
	if p.hub != nil {
		p.hub.BroadcastAlert(alert)
	}
	if p.dispatcher != nil {
		if err := p.dispatcher.Dispatch(ctx, alert); err != nil {
			p.logger.Error("failed to dispatch alert webhooks",
				"transaction_id", alert.TransactionID,
				"error", err,
			)
		}
	}
}

// noteDegraded logs ML degradation once per transition instead of on
// every scored transaction.
func (p *Pipeline) noteDegraded(res ml.Result) {
	if res.Degraded {
		plScoringDegraded.Inc()
		if !p.degraded.Swap(true) {
			p.logger.Warn("ml scoring degraded, using neutral probability", "reason", res.Status)
		}
		return
	}
	if p.degraded.Swap(false) {
		p.logger.Info("ml scoring recovered")
	}
}
