package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего имени пользователя в запросе.
	ErrUsernameRequired = errors.New("username is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductRequired = errors.New("product_id is required")
	// Ошибка отсутствующего идентификатора склада.
	ErrWarehouseRequired = errors.New("warehouse_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка отрицательного остатка на складе.
	ErrStockNegative = errors.New("warehouse stock must be non-negative")
	// Ошибка расхождения количества и плоской аллокации складов.
	ErrAllocationMismatch = errors.New("warehouse allocation does not match order quantity")
	// Ошибка нераспознанного статуса доставки.
	ErrInvalidDeliveryStatus = errors.New("invalid delivery status")

	// ErrUserNotFound возвращается, если пользователь не найден в справочнике.
	ErrUserNotFound = errors.New("user not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSagaNotFound возвращается, если сага не найдена; компенсацию придётся выполнять вручную.
	ErrSagaNotFound = errors.New("saga state not found")
	// ErrStockRowNotFound возвращается при отсутствии записи остатка для пары складов/товар.
	ErrStockRowNotFound = errors.New("warehouse stock row not found")
	// ErrAccountNotFound возвращается банковским коллаборатором при неизвестном счёте.
	ErrAccountNotFound = errors.New("bank account not found")

	// ErrInsufficientStock — склад не может полностью покрыть запрошенное количество.
	// Резервирование атомарно: частичные списания откатываются.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict — между планированием и резервированием остаток изменился конкурентно.
	ErrStockConflict = errors.New("concurrent stock update detected")
	// ErrInsufficientFunds — на счёте недостаточно средств для оплаты.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrPaymentFailed — банк отклонил платёж или вернул не-SUCCESS статус.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrRefundFailed — возврат средств не выполнен; сообщение содержит причину.
	ErrRefundFailed = errors.New("refund failed")
	// ErrRefundNotAllowed — заказ уже забран курьером, клиентская отмена невозможна.
	ErrRefundNotAllowed = errors.New("order cannot be cancelled once picked up by the carrier")

	// ErrBrokerUnavailable — брокер сообщений недоступен на момент синхронной проверки.
	ErrBrokerUnavailable = errors.New("message broker unavailable")
	// ErrAlertFallbackFailed — синхронный REST fallback тоже не сработал.
	ErrAlertFallbackFailed = errors.New("alert endpoint unavailable")

	// ErrOrderCreationFailed — единый клиентский ответ при любом сбое саги создания заказа.
	// Детали шага остаются в логах и в saga state, но не в ответе клиенту.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrCompensationFailed — часть компенсирующих действий не удалась; сага в терминальном
	// статусе FAILED и разбирается вручную.
	ErrCompensationFailed = errors.New("saga compensation failed")

	// ErrInvalidStatusTransition — запрошенный переход статуса доставки запрещён.
	ErrInvalidStatusTransition = errors.New("invalid delivery status transition")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrIdempotencyKeyRequired — пустой ключ обработанного сообщения.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyKeyAlreadyExists — сообщение с таким ключом уже зарегистрировано.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись об обработке сообщения отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой товара.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}
