package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stockRepository struct {
	db *sql.DB
}

// NewStockRepository создаёт PostgreSQL-реализацию StockRepository.
func NewStockRepository(store *Store) domain.StockRepository {
	return &stockRepository{db: store.DB()}
}

func (r *stockRepository) ListByProduct(productID int) ([]domain.WarehouseStock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT warehouse_id, product_id, quantity
		FROM warehouse_stock
		WHERE product_id = $1
		ORDER BY quantity DESC, warehouse_id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	stocks := make([]domain.WarehouseStock, 0)
	for rows.Next() {
		var stock domain.WarehouseStock
		if err := rows.Scan(&stock.WarehouseID, &stock.ProductID, &stock.Quantity); err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}

	return stocks, nil
}

func (r *stockRepository) Get(warehouseID, productID int) (domain.WarehouseStock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var stock domain.WarehouseStock
	err := r.db.QueryRowContext(ctx, `
		SELECT warehouse_id, product_id, quantity
		FROM warehouse_stock
		WHERE warehouse_id = $1 AND product_id = $2
	`, warehouseID, productID).Scan(&stock.WarehouseID, &stock.ProductID, &stock.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WarehouseStock{}, domain.ErrStockRowNotFound
		}
		return domain.WarehouseStock{}, fmt.Errorf("select stock: %w", err)
	}

	return stock, nil
}

func (r *stockRepository) Save(stock domain.WarehouseStock) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO warehouse_stock (warehouse_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (warehouse_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity
	`, stock.WarehouseID, stock.ProductID, stock.Quantity)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}

	return nil
}

var _ domain.StockRepository = (*stockRepository)(nil)
