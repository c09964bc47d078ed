package domain

import "time"

// DeliveryStatus описывает жизненный цикл доставки заказа.
type DeliveryStatus string

const (
	// DeliveryStatusReceived — заказ принят магазином, курьер ещё не забрал товар.
	DeliveryStatusReceived DeliveryStatus = "RECEIVED"
	// DeliveryStatusPickedUp — курьер забрал товар со склада.
	DeliveryStatusPickedUp DeliveryStatus = "PICKED_UP"
	// DeliveryStatusOnDelivery — заказ в пути к покупателю.
	DeliveryStatusOnDelivery DeliveryStatus = "ON_DELIVERY"
	// DeliveryStatusDelivered — заказ доставлен (терминальный статус).
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	// DeliveryStatusLost — заказ утерян при доставке (терминальный статус, влечёт возврат средств).
	DeliveryStatusLost DeliveryStatus = "LOST"
	// DeliveryStatusCancelled — заказ отменён; достижим только из RECEIVED.
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

const failedStatusPrefix = "FAILED_"

// FailedStatus возвращает деградированный статус вида FAILED_<status>,
// который фиксируется локально, когда событие не удалось доставить ни через
// брокер, ни через синхронный fallback.
func FailedStatus(s DeliveryStatus) DeliveryStatus {
	return DeliveryStatus(failedStatusPrefix + string(s))
}

// IsFailedStatus проверяет, относится ли статус к семейству FAILED_*.
func (s DeliveryStatus) IsFailedStatus() bool {
	return len(s) > len(failedStatusPrefix) && s[:len(failedStatusPrefix)] == failedStatusPrefix
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusReceived, DeliveryStatusPickedUp, DeliveryStatusOnDelivery,
		DeliveryStatusDelivered, DeliveryStatusLost, DeliveryStatusCancelled:
		return true
	default:
		return s.IsFailedStatus()
	}
}

// ParseDeliveryStatus преобразует строковое представление статуса.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	s := DeliveryStatus(raw)
	if !s.Valid() {
		return "", ErrInvalidDeliveryStatus
	}
	return s, nil
}

// Order агрегирует состояние заказа.
//
// WarehouseAllocation хранится в «плоском» виде — по одному элементу на
// каждую зарезервированную единицу товара (warehouse id повторяется qty раз).
// Такое кодирование переживает round-trip через одну строковую колонку БД;
// перед возвратом на склад список агрегируется обратно (см. allocation.go).
type Order struct {
	ID                  string
	UserID              string
	ProductID           int
	Quantity            int
	TotalAmountMinor    int64
	Status              string // string-кодированный DeliveryStatus
	BankTransactionID   string
	WarehouseAllocation []int
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DeliveryStatus возвращает типизированный статус доставки заказа.
func (o *Order) DeliveryStatus() DeliveryStatus {
	return DeliveryStatus(o.Status)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.ProductID <= 0 {
		errs = append(errs, ErrProductRequired)
	}
	if o.Quantity <= 0 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if o.TotalAmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// При непустой аллокации каждой единице товара соответствует ровно одна запись.
	if len(o.WarehouseAllocation) > 0 && len(o.WarehouseAllocation) != o.Quantity {
		errs = append(errs, ErrAllocationMismatch)
	}

	return errs
}
