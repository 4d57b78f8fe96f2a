package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fraudguard-io/fraudguard/internal/logging"
	"github.com/fraudguard-io/fraudguard/internal/streaming"
	"github.com/fraudguard-io/fraudguard/internal/transaction"
	"github.com/fraudguard-io/fraudguard/internal/validation"
)

// maxBatchItems caps a single batch submission.
const maxBatchItems = 100

// HealthResponse is the deep health check payload
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type batchRequest struct {
	Transactions []transaction.Transaction `json:"transactions"`
}

// -----------------------------------------------------------------------------
// Service info & health
// -----------------------------------------------------------------------------

func (s *Server) rootHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "fraudguard",
		"version": Version,
		"status":  "operational",
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		switch {
		case st.Healthy:
			checks[st.Name] = "healthy"
		case st.Detail != "":
			checks[st.Name] = st.Detail
		default:
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	healthy, statuses := s.checks.CheckAll(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"checks": statuses,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"checks": statuses,
	})
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// submitTransactionHandler scores a transaction synchronously, or queues it
// onto the transactions topic when stream_mode=true is passed.
func (s *Server) submitTransactionHandler(c *gin.Context) {
	var tx transaction.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if c.Query("stream_mode") == "true" {
		receipt, err := s.pipe.Enqueue(c.Request.Context(), tx)
		if err != nil {
			s.renderProcessError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, receipt)
		return
	}

	record, err := s.pipe.ProcessDirect(c.Request.Context(), tx)
	if err != nil {
		s.renderProcessError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// batchTransactionsHandler queues up to maxBatchItems transactions for
// asynchronous processing. Always asynchronous, so streaming must be on.
func (s *Server) batchTransactionsHandler(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "empty_batch",
			"message": "Batch must contain at least one transaction",
		})
		return
	}
	if len(req.Transactions) > maxBatchItems {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": fmt.Sprintf("Batch size exceeds the maximum of %d transactions", maxBatchItems),
		})
		return
	}

	if s.producer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "streaming_unavailable",
			"message": "Streaming is not enabled",
		})
		return
	}

	result := s.pipe.EnqueueBatch(c.Request.Context(), req.Transactions)
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) getTransactionHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "Transaction ID must be a positive integer",
		})
		return
	}

	record, err := s.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load transaction", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load transaction",
		})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) listTransactionsHandler(c *gin.Context) {
	var filter transaction.Filter

	filter.CustomerID = c.Query("customer_id")

	if v := c.Query("status"); v != "" {
		st := transaction.Status(v)
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_filter",
				"message": "Unknown status: " + v,
			})
			return
		}
		filter.Status = st
	}

	if v := c.Query("min_amount"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_filter",
				"message": "min_amount must be a number",
			})
			return
		}
		filter.MinAmount = f
	}
	if v := c.Query("max_amount"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_filter",
				"message": "max_amount must be a number",
			})
			return
		}
		filter.MaxAmount = f
	}

	filter.FraudOnly = c.Query("fraud_only") == "true"

	if v := c.Query("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := c.Query("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	records, total, err := s.store.List(c.Request.Context(), filter)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list transactions",
		})
		return
	}

	// Echo the effective pagination back so clients can page reliably
	limit := filter.Limit
	if limit <= 0 {
		limit = transaction.DefaultListLimit
	} else if limit > transaction.MaxListLimit {
		limit = transaction.MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": records,
		"total_count":  total,
		"limit":        limit,
		"offset":       offset,
	})
}

// -----------------------------------------------------------------------------
// Operational stats
// -----------------------------------------------------------------------------

func (s *Server) streamingStatusHandler(c *gin.Context) {
	connected := s.producer != nil && s.producer.Connected()

	consumerStats := map[string]interface{}{
		"running":         false,
		"processed_count": int64(0),
		"error_count":     int64(0),
		"success_rate":    0.0,
	}
	if s.consumer != nil {
		consumerStats = s.consumer.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"kafka_connected":       connected,
		"consumer":              consumerStats,
		"websocket_connections": s.hub.ClientCount(),
	})
}

func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	_, total, err := s.store.List(ctx, transaction.Filter{Limit: 1})
	if err != nil {
		logging.L(ctx).Error("failed to count transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute stats",
		})
		return
	}
	_, fraud, err := s.store.List(ctx, transaction.Filter{Limit: 1, FraudOnly: true})
	if err != nil {
		logging.L(ctx).Error("failed to count fraud transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to compute stats",
		})
		return
	}

	stats := gin.H{
		"transactions": gin.H{
			"total":          total,
			"fraud_detected": fraud,
		},
		"websocket": s.hub.Stats(),
		"model": gin.H{
			"loaded": s.estimator.ModelLoaded(),
			"info":   s.estimator.ModelInfo(),
		},
	}
	if s.consumer != nil {
		stats["consumer"] = s.consumer.Stats()
	}

	c.JSON(http.StatusOK, stats)
}

// renderProcessError maps pipeline errors onto the API error envelope.
func (s *Server) renderProcessError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "Transaction failed validation",
			"details": verrs,
		})
		return
	}

	if errors.Is(err, streaming.ErrTransportUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "streaming_unavailable",
			"message": "Streaming is not enabled",
		})
		return
	}

	logging.L(c.Request.Context()).Error("transaction processing failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "processing_failed",
		"message": "Failed to process transaction",
	})
}
