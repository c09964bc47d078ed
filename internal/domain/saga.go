package domain

import (
	"time"

	"github.com/google/uuid"
)

// SagaStatus описывает состояние саги создания заказа.
type SagaStatus string

const (
	// SagaStatusStarted — сага создана, ни один шаг ещё не выполнен.
	SagaStatusStarted SagaStatus = "STARTED"
	// SagaStatusUserValidated — пользователь найден и проверен.
	SagaStatusUserValidated SagaStatus = "USER_VALIDATED"
	// SagaStatusInventoryAvailable — склад подтвердил доступность товара (без резервирования).
	SagaStatusInventoryAvailable SagaStatus = "INVENTORY_AVAILABLE"
	// SagaStatusInventoryReserved — товар зарезервирован на складах.
	SagaStatusInventoryReserved SagaStatus = "INVENTORY_RESERVED"
	// SagaStatusOrderCreated — запись заказа сохранена.
	SagaStatusOrderCreated SagaStatus = "ORDER_CREATED"
	// SagaStatusPaymentCompleted — оплата подтверждена банком.
	SagaStatusPaymentCompleted SagaStatus = "PAYMENT_COMPLETED"
	// SagaStatusDeliveryRequested — запрос на доставку передан в messaging-слой.
	SagaStatusDeliveryRequested SagaStatus = "DELIVERY_REQUESTED"
	// SagaStatusCompleted — сага завершена успешно (терминальный статус).
	SagaStatusCompleted SagaStatus = "COMPLETED"
	// SagaStatusCompensating — запущена компенсация после ошибки.
	SagaStatusCompensating SagaStatus = "COMPENSATING"
	// SagaStatusCompensated — все компенсирующие действия выполнены (терминальный статус).
	SagaStatusCompensated SagaStatus = "COMPENSATED"
	// SagaStatusFailed — часть компенсаций не удалась; требуется ручное вмешательство.
	// Терминальный статус, автоматический retry запрещён.
	SagaStatusFailed SagaStatus = "FAILED"
)

// Terminal сообщает, является ли статус конечным: терминальные саги никогда не мутируются повторно.
func (s SagaStatus) Terminal() bool {
	switch s {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed:
		return true
	default:
		return false
	}
}

// SagaState — персистируемое состояние одной попытки создания заказа.
//
// WarehouseAllocation фиксируется на шаге INVENTORY_RESERVED: если сага
// упадёт до создания записи заказа, компенсации всё равно будет откуда
// взять применённые аллокации для возврата на склад.
type SagaState struct {
	ID                   string
	OrderID              string // пустой, пока заказ не создан
	Status               SagaStatus
	CurrentStep          string // свободная метка для диагностики
	ProductID            int
	Quantity             int
	PaymentTransactionID string
	WarehouseAllocation  []int
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewSagaState создаёт сагу в статусе STARTED.
func NewSagaState(productID, quantity int) SagaState {
	now := time.Now().UTC()
	return SagaState{
		ID:          uuid.NewString(),
		Status:      SagaStatusStarted,
		CurrentStep: string(SagaStatusStarted),
		ProductID:   productID,
		Quantity:    quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
