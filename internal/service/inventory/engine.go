package inventory

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// engine реализует резервирование остатков поверх StockRepository.
//
// Планирование (Plan) выполняется без блокировок и может устареть к моменту
// резервирования. Reserve повторяет планирование уже под per-product
// блокировкой, перечитывая остатки, поэтому два конкурентных резерва одного
// товара никогда не спишут одну и ту же единицу дважды.
type engine struct {
	stocks domain.StockRepository
	logger *log.Entry

	mu    sync.Mutex
	locks map[int]*sync.Mutex // product id -> блокировка резервирования
}

// NewEngine создаёт движок резервирования.
func NewEngine(stocks domain.StockRepository, logger *log.Entry) domain.InventoryService {
	if logger == nil {
		logger = log.New().WithField("component", "inventory")
	}
	return &engine{
		stocks: stocks,
		logger: logger,
		locks:  make(map[int]*sync.Mutex),
	}
}

// productLock возвращает мьютекс товара, создавая его при первом обращении.
func (e *engine) productLock(productID int) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[productID] = lock
	}
	return lock
}

// Plan жадно распределяет quantity по складам: сначала самый полный склад.
// Список остатков уже отсортирован по убыванию количества репозиторием.
func (e *engine) Plan(productID, quantity int) (domain.AllocationPlan, error) {
	if productID <= 0 {
		return domain.AllocationPlan{}, domain.ErrProductRequired
	}
	if quantity <= 0 {
		return domain.AllocationPlan{}, domain.ErrQuantityInvalid
	}

	stocks, err := e.stocks.ListByProduct(productID)
	if err != nil {
		return domain.AllocationPlan{}, fmt.Errorf("list stock: %w", err)
	}

	return greedyPlan(stocks, quantity), nil
}

// Reserve атомарно применяет план резервирования. Если между Plan и Reserve
// остатки изменились, план строится заново по свежим данным; при нехватке
// возвращается ErrInsufficientStock без каких-либо списаний.
func (e *engine) Reserve(productID, quantity int, orderID string) ([]domain.Allocation, error) {
	if productID <= 0 {
		return nil, domain.ErrProductRequired
	}
	if quantity <= 0 {
		return nil, domain.ErrQuantityInvalid
	}

	lock := e.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	stocks, err := e.stocks.ListByProduct(productID)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}

	plan := greedyPlan(stocks, quantity)
	if !plan.CanFulfill {
		e.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"product_id": productID,
			"quantity":   quantity,
		}).Warn("insufficient stock for reservation")
		return nil, domain.ErrInsufficientStock
	}

	applied := make([]domain.Allocation, 0, len(plan.Allocations))
	for _, alloc := range plan.Allocations {
		current, err := e.stocks.Get(alloc.WarehouseID, productID)
		if err != nil {
			e.rollback(productID, applied)
			return nil, fmt.Errorf("read stock w=%d: %w", alloc.WarehouseID, err)
		}
		// Остаток перечитан под блокировкой; расхождение с планом означает
		// запись в обход движка.
		if current.Quantity < alloc.Qty {
			e.rollback(productID, applied)
			return nil, domain.ErrStockConflict
		}

		current.Quantity -= alloc.Qty
		if err := e.stocks.Save(current); err != nil {
			e.rollback(productID, applied)
			return nil, fmt.Errorf("save stock w=%d: %w", alloc.WarehouseID, err)
		}
		applied = append(applied, alloc)
	}

	e.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"product_id": productID,
		"quantity":   quantity,
		"warehouses": len(applied),
	}).Info("stock reserved")

	return applied, nil
}

// Release возвращает аллокации на склады. Используется компенсацией саги
// и отменой заказа; выполняется под той же per-product блокировкой.
func (e *engine) Release(productID int, allocations []domain.Allocation) error {
	if productID <= 0 {
		return domain.ErrProductRequired
	}
	if len(allocations) == 0 {
		return nil
	}

	lock := e.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	e.release(productID, allocations)
	return nil
}

// Confirm фиксирует резерв за заказом. Списание уже произошло в Reserve,
// поэтому дополнительных действий не требуется; hook оставлен под будущее
// двухфазное резервирование.
func (e *engine) Confirm(orderID string) error {
	e.logger.WithField("order_id", orderID).Debug("reservation confirmed")
	return nil
}

// rollback откатывает частично применённый резерв. Вызывается только
// под блокировкой товара.
func (e *engine) rollback(productID int, applied []domain.Allocation) {
	if len(applied) == 0 {
		return
	}
	e.logger.WithFields(log.Fields{
		"product_id": productID,
		"warehouses": len(applied),
	}).Warn("rolling back partial reservation")
	e.release(productID, applied)
}

func (e *engine) release(productID int, allocations []domain.Allocation) {
	for _, alloc := range allocations {
		current, err := e.stocks.Get(alloc.WarehouseID, productID)
		if err != nil {
			// Строка могла не существовать, если склад создавался динамически.
			current = domain.WarehouseStock{WarehouseID: alloc.WarehouseID, ProductID: productID}
		}
		current.Quantity += alloc.Qty
		if err := e.stocks.Save(current); err != nil {
			e.logger.WithError(err).WithFields(log.Fields{
				"product_id":   productID,
				"warehouse_id": alloc.WarehouseID,
			}).Error("failed to return stock to warehouse")
		}
	}
}

// greedyPlan строит план: склады перебираются в порядке убывания остатка,
// с каждого берётся максимум доступного.
func greedyPlan(stocks []domain.WarehouseStock, quantity int) domain.AllocationPlan {
	remaining := quantity
	var allocations []domain.Allocation

	for _, stock := range stocks {
		if remaining == 0 {
			break
		}
		if stock.Quantity <= 0 {
			continue
		}

		take := stock.Quantity
		if take > remaining {
			take = remaining
		}
		allocations = append(allocations, domain.Allocation{WarehouseID: stock.WarehouseID, Qty: take})
		remaining -= take
	}

	if remaining > 0 {
		return domain.AllocationPlan{CanFulfill: false}
	}
	return domain.AllocationPlan{CanFulfill: true, Allocations: allocations}
}

var _ domain.InventoryService = (*engine)(nil)
