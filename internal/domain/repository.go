package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя с опциональным ограничением на количество.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// SagaRepository описывает хранилище состояний саг.
type SagaRepository interface {
	Create(saga SagaState) error
	// Get возвращает сагу или ErrSagaNotFound.
	Get(id string) (SagaState, error)
	Save(saga SagaState) error
}

// StockRepository описывает хранилище складских остатков.
// Сериализация конкурентных резервов — ответственность инвентарного движка
// (per-product блокировка поверх репозитория), а не репозитория.
type StockRepository interface {
	// ListByProduct возвращает все остатки товара, отсортированные по убыванию количества.
	ListByProduct(productID int) ([]WarehouseStock, error)
	// Get возвращает остаток для пары (склад, товар) или ErrStockRowNotFound.
	Get(warehouseID, productID int) (WarehouseStock, error)
	// Save перезаписывает количество для пары (склад, товар), создавая запись при необходимости.
	Save(stock WarehouseStock) error
}
