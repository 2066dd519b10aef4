package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/cardgateway/internal/domain/errors"
	"github.com/cassiomorais/cardgateway/internal/domain/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order record.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	notes, err := json.Marshal(o.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO orders
		 (id, amount, currency, status, attempt_counter, success_token, stepup_context_id,
		  stepup_started_at, session_id, session_version, captured, gateway_txn_ref,
		  authorization_code, failure_reason, notes, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.Amount.ValueCents, o.Amount.Currency, string(o.Status), o.AttemptCounter,
		o.SuccessToken, o.StepUpContextID, o.StepUpStartedAt, o.SessionID, o.SessionVersion,
		o.Captured, o.GatewayTxnRef, o.AuthorizationCode, o.FailureReason, notes, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, amount, currency, status, attempt_counter, success_token, stepup_context_id,
		        stepup_started_at, session_id, session_version, captured, gateway_txn_ref,
		        authorization_code, failure_reason, notes, created_at, updated_at
		 FROM orders WHERE id = $1`, id)

	var (
		o      order.Order
		status string
		notes  []byte
	)
	err := row.Scan(
		&o.ID, &o.Amount.ValueCents, &o.Amount.Currency, &status, &o.AttemptCounter,
		&o.SuccessToken, &o.StepUpContextID, &o.StepUpStartedAt, &o.SessionID, &o.SessionVersion,
		&o.Captured, &o.GatewayTxnRef, &o.AuthorizationCode, &o.FailureReason, &notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainErrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	o.Status = order.Status(status)
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &o.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	return &o, nil
}

// Update writes the mutable slice of an order back. The attempt counter is
// guarded in SQL so it can never move backwards, even under a lost-update
// race.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	notes, err := json.Marshal(o.Notes)
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET
		   status = $2, attempt_counter = GREATEST(attempt_counter, $3), success_token = $4,
		   stepup_context_id = $5, stepup_started_at = $6, session_id = $7, session_version = $8,
		   captured = $9, gateway_txn_ref = $10, authorization_code = $11, failure_reason = $12,
		   notes = $13, updated_at = $14
		 WHERE id = $1`,
		o.ID, string(o.Status), o.AttemptCounter, o.SuccessToken,
		o.StepUpContextID, o.StepUpStartedAt, o.SessionID, o.SessionVersion, o.Captured,
		o.GatewayTxnRef, o.AuthorizationCode, o.FailureReason, notes, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// ListStaleProcessing returns processing orders whose last update predates
// cutoff, oldest first. Used by the reconciliation sweeper.
func (r *OrderRepository) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, amount, currency, status, attempt_counter, success_token, stepup_context_id,
		        stepup_started_at, session_id, session_version, captured, gateway_txn_ref,
		        authorization_code, failure_reason, notes, created_at, updated_at
		 FROM orders
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC
		 LIMIT $3`,
		string(order.StatusProcessing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		var (
			o      order.Order
			status string
			notes  []byte
		)
		err := rows.Scan(
			&o.ID, &o.Amount.ValueCents, &o.Amount.Currency, &status, &o.AttemptCounter,
			&o.SuccessToken, &o.StepUpContextID, &o.StepUpStartedAt, &o.SessionID, &o.SessionVersion,
			&o.Captured, &o.GatewayTxnRef, &o.AuthorizationCode, &o.FailureReason, &notes, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stale order: %w", err)
		}
		o.Status = order.Status(status)
		if len(notes) > 0 {
			if err := json.Unmarshal(notes, &o.Notes); err != nil {
				return nil, fmt.Errorf("unmarshal notes: %w", err)
			}
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}
