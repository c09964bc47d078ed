package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stockKey struct {
	warehouseID int
	productID   int
}

// stockRepositoryInMemory хранит складские остатки в памяти.
// Репозиторий не сериализует конкурентные резервы: это делает
// инвентарный движок per-product блокировкой поверх него.
type stockRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[stockKey]domain.WarehouseStock
}

// NewStockRepository возвращает in-memory реализацию StockRepository.
func NewStockRepository() domain.StockRepository {
	return &stockRepositoryInMemory{
		items: make(map[stockKey]domain.WarehouseStock),
	}
}

// ListByProduct возвращает остатки товара, отсортированные по убыванию количества.
// При равном количестве порядок стабилен по warehouse id.
func (r *stockRepositoryInMemory) ListByProduct(productID int) ([]domain.WarehouseStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.WarehouseStock
	for key, stock := range r.items {
		if key.productID != productID {
			continue
		}
		result = append(result, stock)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Quantity != result[j].Quantity {
			return result[i].Quantity > result[j].Quantity
		}
		return result[i].WarehouseID < result[j].WarehouseID
	})

	return result, nil
}

// Get возвращает остаток для пары (склад, товар) или ErrStockRowNotFound.
func (r *stockRepositoryInMemory) Get(warehouseID, productID int) (domain.WarehouseStock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stock, ok := r.items[stockKey{warehouseID: warehouseID, productID: productID}]
	if !ok {
		return domain.WarehouseStock{}, domain.ErrStockRowNotFound
	}
	return stock, nil
}

// Save перезаписывает остаток, создавая запись при необходимости.
func (r *stockRepositoryInMemory) Save(stock domain.WarehouseStock) error {
	if errs := stock.Validate(); len(errs) > 0 {
		return errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[stockKey{warehouseID: stock.WarehouseID, productID: stock.ProductID}] = stock
	return nil
}

var _ domain.StockRepository = (*stockRepositoryInMemory)(nil)
