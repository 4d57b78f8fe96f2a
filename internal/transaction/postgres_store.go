package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/fraudguard-io/fraudguard/internal/traces"
)

// PostgresStore persists scored transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying handle for pool metrics collection.
func (s *PostgresStore) DB() *sql.DB { return s.db }

// Migrate creates the transactions table if it doesn't exist. The goose
// migrations under migrations/ are the managed path; this keeps fresh dev
// databases working without running the migrate command.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id                    BIGSERIAL PRIMARY KEY,
			amount                DOUBLE PRECISION NOT NULL CHECK (amount > 0),
			currency              VARCHAR(3) NOT NULL DEFAULT 'USD',
			transaction_type      VARCHAR(20) NOT NULL,
			merchant_name         VARCHAR(255) NOT NULL,
			merchant_category     VARCHAR(100),
			merchant_country      VARCHAR(2),
			customer_id           VARCHAR(100) NOT NULL,
			customer_email        VARCHAR(255),
			card_last_four        VARCHAR(4),
			payment_method        VARCHAR(20) NOT NULL,
			transaction_country   VARCHAR(2),
			transaction_city      VARCHAR(100),
			ip_address            VARCHAR(45),
			device_id             VARCHAR(100),
			device_type           VARCHAR(50),
			description           TEXT,
			status                VARCHAR(20) NOT NULL DEFAULT 'pending',
			risk_score            DOUBLE PRECISION NOT NULL DEFAULT 0,
			risk_level            VARCHAR(10),
			fraud_prediction      BOOLEAN NOT NULL DEFAULT FALSE,
			fraud_reasons         TEXT,
			verification_required BOOLEAN NOT NULL DEFAULT FALSE,
			ml_score              DOUBLE PRECISION,
			rule_score            DOUBLE PRECISION,
			ml_confidence         VARCHAR(10),
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_customer_id ON transactions (customer_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status);
		CREATE INDEX IF NOT EXISTS idx_transactions_fraud ON transactions (fraud_prediction);
		CREATE INDEX IF NOT EXISTS idx_transactions_customer_created
			ON transactions (customer_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_status_risk
			ON transactions (status, risk_score DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_fraud_created
			ON transactions (fraud_prediction, created_at DESC);
	`)
	return err
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Insert(ctx context.Context, tx *ScoredTransaction) (retErr error) {
	ctx, span := traces.StartSpan(ctx, "transaction.Insert", traces.CustomerID(tx.CustomerID))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	reasonsJSON, err := json.Marshal(tx.FraudReasons)
	if err != nil {
		return fmt.Errorf("failed to marshal fraud reasons: %w", err)
	}

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (
			amount, currency, transaction_type, merchant_name, merchant_category,
			merchant_country, customer_id, customer_email, card_last_four,
			payment_method, transaction_country, transaction_city, ip_address,
			device_id, device_type, description,
			status, risk_score, risk_level, fraud_prediction, fraud_reasons,
			verification_required, ml_score, rule_score, ml_confidence,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $26
		)
		RETURNING id, created_at, updated_at
	`,
		tx.Amount, tx.Currency, tx.TransactionType, tx.MerchantName, nullStr(tx.MerchantCategory),
		nullStr(tx.MerchantCountry), tx.CustomerID, nullStr(tx.CustomerEmail), nullStr(tx.CardLastFour),
		tx.PaymentMethod, nullStr(tx.TransactionCountry), nullStr(tx.TransactionCity), nullStr(tx.IPAddress),
		nullStr(tx.DeviceID), nullStr(tx.DeviceType), nullStr(tx.Description),
		string(tx.Status), tx.RiskScore, nullStr(string(tx.RiskLevel)), tx.FraudPrediction, string(reasonsJSON),
		tx.VerificationRequired, tx.MLScore, tx.RuleScore, nullStr(tx.MLConfidence),
		now,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (_ *ScoredTransaction, retErr error) {
	ctx, span := traces.StartSpan(ctx, "transaction.Get", traces.TransactionID(id))
	defer func() {
		// A miss is a normal outcome, not a span failure.
		if retErr != nil && !errors.Is(retErr, ErrNotFound) {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	row := s.db.QueryRowContext(ctx, selectColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) (_ []*ScoredTransaction, _ int, retErr error) {
	ctx, span := traces.StartSpan(ctx, "transaction.List")
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	f.normalize()

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CustomerID != "" {
		where = append(where, "customer_id = "+arg(f.CustomerID))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.MinAmount > 0 {
		where = append(where, "amount >= "+arg(f.MinAmount))
	}
	if f.MaxAmount > 0 {
		where = append(where, "amount <= "+arg(f.MaxAmount))
	}
	if f.FraudOnly {
		where = append(where, "fraud_prediction = TRUE")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := selectColumns + " FROM transactions" + clause +
		" ORDER BY created_at DESC, id DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*ScoredTransaction, 0, f.Limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read transactions: %w", err)
	}
	return result, total, nil
}

const selectColumns = `
	SELECT id, amount, currency, transaction_type, merchant_name, merchant_category,
		merchant_country, customer_id, customer_email, card_last_four,
		payment_method, transaction_country, transaction_city, ip_address,
		device_id, device_type, description,
		status, risk_score, risk_level, fraud_prediction, fraud_reasons,
		verification_required, ml_score, rule_score, ml_confidence,
		created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*ScoredTransaction, error) {
	var (
		tx           ScoredTransaction
		category     sql.NullString
		mCountry     sql.NullString
		email        sql.NullString
		cardLast     sql.NullString
		tCountry     sql.NullString
		city         sql.NullString
		ip           sql.NullString
		deviceID     sql.NullString
		deviceType   sql.NullString
		description  sql.NullString
		riskLevel    sql.NullString
		reasonsJSON  sql.NullString
		mlScore      sql.NullFloat64
		ruleScore    sql.NullFloat64
		mlConfidence sql.NullString
	)

	err := row.Scan(
		&tx.ID, &tx.Amount, &tx.Currency, &tx.TransactionType, &tx.MerchantName, &category,
		&mCountry, &tx.CustomerID, &email, &cardLast,
		&tx.PaymentMethod, &tCountry, &city, &ip,
		&deviceID, &deviceType, &description,
		(*string)(&tx.Status), &tx.RiskScore, &riskLevel, &tx.FraudPrediction, &reasonsJSON,
		&tx.VerificationRequired, &mlScore, &ruleScore, &mlConfidence,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.MerchantCategory = category.String
	tx.MerchantCountry = mCountry.String
	tx.CustomerEmail = email.String
	tx.CardLastFour = cardLast.String
	tx.TransactionCountry = tCountry.String
	tx.TransactionCity = city.String
	tx.IPAddress = ip.String
	tx.DeviceID = deviceID.String
	tx.DeviceType = deviceType.String
	tx.Description = description.String
	tx.RiskLevel = RiskLevel(riskLevel.String)
	tx.MLConfidence = mlConfidence.String

	if mlScore.Valid {
		v := mlScore.Float64
		tx.MLScore = &v
	}
	if ruleScore.Valid {
		v := ruleScore.Float64
		tx.RuleScore = &v
	}

	if reasonsJSON.Valid && reasonsJSON.String != "" {
		if err := json.Unmarshal([]byte(reasonsJSON.String), &tx.FraudReasons); err != nil {
			return nil, fmt.Errorf("failed to decode fraud reasons: %w", err)
		}
	}

	return &tx, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
