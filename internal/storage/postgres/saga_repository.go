package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type sagaRepository struct {
	db *sql.DB
}

// NewSagaRepository создаёт PostgreSQL-реализацию SagaRepository.
func NewSagaRepository(store *Store) domain.SagaRepository {
	return &sagaRepository{db: store.DB()}
}

func (r *sagaRepository) Create(saga domain.SagaState) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO saga_state (
			id, order_id, status, current_step, product_id, quantity,
			payment_transaction_id, warehouse_allocation, error_message,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		saga.ID, saga.OrderID, saga.Status, saga.CurrentStep, saga.ProductID, saga.Quantity,
		saga.PaymentTransactionID, encodeAllocation(saga.WarehouseAllocation), saga.ErrorMessage,
		saga.CreatedAt, saga.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert saga: %w", err)
	}

	return nil
}

func (r *sagaRepository) Get(id string) (domain.SagaState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, status, current_step, product_id, quantity,
		       payment_transaction_id, warehouse_allocation, error_message,
		       created_at, updated_at
		FROM saga_state
		WHERE id = $1
	`, id)

	var (
		saga       domain.SagaState
		allocation string
	)
	if err := row.Scan(
		&saga.ID, &saga.OrderID, &saga.Status, &saga.CurrentStep, &saga.ProductID, &saga.Quantity,
		&saga.PaymentTransactionID, &allocation, &saga.ErrorMessage,
		&saga.CreatedAt, &saga.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SagaState{}, domain.ErrSagaNotFound
		}
		return domain.SagaState{}, fmt.Errorf("select saga: %w", err)
	}

	flat, err := decodeAllocation(allocation)
	if err != nil {
		return domain.SagaState{}, fmt.Errorf("decode allocation for saga %s: %w", saga.ID, err)
	}
	saga.WarehouseAllocation = flat

	return saga, nil
}

func (r *sagaRepository) Save(saga domain.SagaState) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE saga_state
		SET order_id = $1,
		    status = $2,
		    current_step = $3,
		    payment_transaction_id = $4,
		    warehouse_allocation = $5,
		    error_message = $6,
		    updated_at = $7
		WHERE id = $8
	`,
		saga.OrderID,
		saga.Status,
		saga.CurrentStep,
		saga.PaymentTransactionID,
		encodeAllocation(saga.WarehouseAllocation),
		saga.ErrorMessage,
		saga.UpdatedAt,
		saga.ID,
	)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrSagaNotFound
	}

	return nil
}

var _ domain.SagaRepository = (*sagaRepository)(nil)
