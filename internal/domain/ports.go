package domain

import "time"

// InventoryService описывает движок резервирования складских остатков.
type InventoryService interface {
	// Plan жадно планирует аллокацию без блокировок и без мутаций (advisory).
	Plan(productID, quantity int) (AllocationPlan, error)
	// Reserve повторяет планирование под per-product блокировкой и применяет его
	// атомарно. Возвращает фактически применённые аллокации.
	Reserve(productID, quantity int, orderID string) ([]Allocation, error)
	// Release возвращает аллокации на склады (компенсация).
	Release(productID int, allocations []Allocation) error
	// Confirm — no-op hook под будущее двухфазное подтверждение.
	Confirm(orderID string) error
}

// Ledger описывает банковского коллаборатора. Обе операции идемпотентны
// по паре (orderID, тип транзакции): повторный вызов возвращает уже
// существующую SUCCESS-транзакцию.
type Ledger interface {
	Pay(orderID, fromAccount, toAccount string, amountMinor int64) (LedgerTransaction, error)
	Refund(orderID, originalTransactionID string, amountMinor int64) (LedgerTransaction, error)
}

// UserDirectory — справочник пользователей.
type UserDirectory interface {
	FindByUsername(username string) (User, error)
}

// DeliveryDispatch планирует отложенную отправку запроса доставки через
// messaging-слой. Вызов синхронно проверяет доступность брокера; сама
// отправка выполняется позже, fire-and-forget.
type DeliveryDispatch interface {
	Schedule(order Order, user User, quantity int, warehouseIDs []int) error
}

// Kind события для NotificationSink.
const (
	// NotifyDeliveryFailed — алерт о невозможности доставить запрос/обновление доставки.
	NotifyDeliveryFailed = "DELIVERY_FAILED"
)

// NotificationSink отправляет уведомление пользователю. Fire-and-forget:
// ошибки логируются и никогда не эскалируются в ошибку саги.
type NotificationSink interface {
	Notify(orderID, kind string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит обработанные сообщения по message id,
// чтобы at-least-once redelivery не применялась повторно.
type IdempotencyRepository interface {
	CreateProcessing(key string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string) error
	MarkFailed(key string) error
	DeleteExpired(before time.Time, limit int) (int, error)
}
