package saga

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// OrderCreationRequest — входные данные саги создания заказа.
type OrderCreationRequest struct {
	Username       string
	ProductID      int
	Quantity       int
	UnitPriceMinor int64
}

// Orchestrator управляет сагой создания заказа и пользовательскими возвратами.
type Orchestrator interface {
	// ExecuteOrderCreation проводит заказ через все шаги саги. При любой
	// ошибке запускается компенсация, а клиент получает обобщённую
	// ErrOrderCreationFailed независимо от её исхода.
	ExecuteOrderCreation(req OrderCreationRequest) (domain.Order, error)
	// ExecuteRefund — пользовательский возврат. Допустим только пока заказ
	// в статусе RECEIVED; состояние саги не затрагивает.
	ExecuteRefund(orderID string) error
	// Compensate откатывает уже применённые шаги саги в обратном порядке.
	Compensate(sagaID string) error
}

// Имена компенсируемых шагов: из них собирается итоговое сообщение
// FAILED-саги вида "FAILED_PAYMENT; FAILED_INVENTORY".
const (
	compStepPayment   = "PAYMENT"
	compStepOrder     = "ORDER"
	compStepInventory = "INVENTORY"
)

type orchestrator struct {
	sagas     domain.SagaRepository
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	inventory domain.InventoryService
	ledger    domain.Ledger
	users     domain.UserDirectory
	dispatch  domain.DeliveryDispatch
	notify    domain.NotificationSink

	storeAccountID string
	logger         *log.Entry
	metrics        *metrics.SagaMetrics
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
// storeAccountID — счёт магазина, на который уходят платежи.
func NewOrchestrator(
	sagas domain.SagaRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	inventory domain.InventoryService,
	ledger domain.Ledger,
	users domain.UserDirectory,
	dispatch domain.DeliveryDispatch,
	notify domain.NotificationSink,
	storeAccountID string,
	logger *log.Entry,
) Orchestrator {
	o := newOrchestrator(sagas, orders, timeline, inventory, ledger, users, dispatch, notify, storeAccountID, logger)
	o.metrics = metrics.NewSagaMetrics()
	return o
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	sagas domain.SagaRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	inventory domain.InventoryService,
	ledger domain.Ledger,
	users domain.UserDirectory,
	dispatch domain.DeliveryDispatch,
	notify domain.NotificationSink,
	storeAccountID string,
	logger *log.Entry,
) Orchestrator {
	return newOrchestrator(sagas, orders, timeline, inventory, ledger, users, dispatch, notify, storeAccountID, logger)
}

func newOrchestrator(
	sagas domain.SagaRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	inventory domain.InventoryService,
	ledger domain.Ledger,
	users domain.UserDirectory,
	dispatch domain.DeliveryDispatch,
	notify domain.NotificationSink,
	storeAccountID string,
	logger *log.Entry,
) *orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}
	return &orchestrator{
		sagas:          sagas,
		orders:         orders,
		timeline:       timeline,
		inventory:      inventory,
		ledger:         ledger,
		users:          users,
		dispatch:       dispatch,
		notify:         notify,
		storeAccountID: storeAccountID,
		logger:         logger,
	}
}

var _ Orchestrator = (*orchestrator)(nil)

// ExecuteOrderCreation запускает сагу. Ошибки шагов не доходят до клиента
// в исходном виде: детали остаются в состоянии саги и в логах.
func (o *orchestrator) ExecuteOrderCreation(req OrderCreationRequest) (domain.Order, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordSagaStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordSagaDuration(time.Since(start))
			o.metrics.RecordSagaInFlightFinished()
		}
	}()

	saga := domain.NewSagaState(req.ProductID, req.Quantity)
	if err := o.sagas.Create(saga); err != nil {
		o.logger.WithError(err).Error("failed to create saga state")
		if o.metrics != nil {
			o.metrics.RecordSagaFailed()
		}
		return domain.Order{}, fmt.Errorf("create saga: %w", err)
	}

	logger := o.logger.WithField("saga_id", saga.ID)

	order, err := o.runForward(&saga, req, logger)
	if err != nil {
		logger.WithError(err).WithField("last_status", saga.Status).Warn("saga step failed, compensating")
		o.recordError(&saga, err)

		if compErr := o.Compensate(saga.ID); compErr != nil {
			logger.WithError(compErr).Error("compensation incomplete")
		}

		// Клиент всегда получает обобщённый отказ: компенсация могла
		// пройти успешно, но заказ всё равно не создан.
		return domain.Order{}, fmt.Errorf("saga %s: %w", saga.ID, domain.ErrOrderCreationFailed)
	}

	if o.metrics != nil {
		o.metrics.RecordSagaCompleted()
	}
	logger.WithField("order_id", order.ID).Info("saga completed")
	return order, nil
}

func (o *orchestrator) runForward(saga *domain.SagaState, req OrderCreationRequest, logger *log.Entry) (domain.Order, error) {
	// Шаг 1: валидация пользователя.
	stepStart := time.Now()
	user, err := o.users.FindByUsername(req.Username)
	if err != nil {
		return domain.Order{}, fmt.Errorf("validate user %q: %w", req.Username, err)
	}
	o.observeStep("validate_user", stepStart)
	if err := o.advance(saga, domain.SagaStatusUserValidated); err != nil {
		return domain.Order{}, err
	}

	// Шаг 2: проверка доступности без резервирования.
	stepStart = time.Now()
	plan, err := o.inventory.Plan(req.ProductID, req.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("plan inventory: %w", err)
	}
	if !plan.CanFulfill {
		return domain.Order{}, fmt.Errorf("plan inventory: %w", domain.ErrInsufficientStock)
	}
	o.observeStep("check_inventory", stepStart)
	if err := o.advance(saga, domain.SagaStatusInventoryAvailable); err != nil {
		return domain.Order{}, err
	}

	// Шаг 3: резервирование. Применённые аллокации сохраняются в саге до
	// создания заказа, чтобы компенсации было что возвращать на склад.
	stepStart = time.Now()
	allocations, err := o.inventory.Reserve(req.ProductID, req.Quantity, saga.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("reserve inventory: %w", err)
	}
	saga.WarehouseAllocation = domain.ExpandAllocations(allocations)
	o.observeStep("reserve_inventory", stepStart)
	if err := o.advance(saga, domain.SagaStatusInventoryReserved); err != nil {
		return domain.Order{}, err
	}

	// Шаг 4: запись заказа.
	stepStart = time.Now()
	now := time.Now().UTC()
	order := domain.Order{
		ID:                  uuid.NewString(),
		UserID:              user.ID,
		ProductID:           req.ProductID,
		Quantity:            req.Quantity,
		TotalAmountMinor:    req.UnitPriceMinor * int64(req.Quantity),
		Status:              string(domain.DeliveryStatusReceived),
		WarehouseAllocation: saga.WarehouseAllocation,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := o.orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	saga.OrderID = order.ID
	o.observeStep("create_order", stepStart)
	if err := o.advance(saga, domain.SagaStatusOrderCreated); err != nil {
		return domain.Order{}, err
	}
	o.appendTimeline(order.ID, "ORDER_CREATED", "")

	// Шаг 5: оплата.
	stepStart = time.Now()
	tx, err := o.ledger.Pay(order.ID, user.BankAccountID, o.storeAccountID, order.TotalAmountMinor)
	if err != nil {
		return domain.Order{}, fmt.Errorf("process payment: %w", err)
	}
	if tx.Status != domain.TransactionStatusSuccess {
		return domain.Order{}, fmt.Errorf("process payment: %w", domain.ErrPaymentFailed)
	}
	saga.PaymentTransactionID = tx.TransactionID
	order.BankTransactionID = tx.TransactionID
	if err := o.saveOrder(&order, func(fresh *domain.Order) {
		fresh.BankTransactionID = tx.TransactionID
	}); err != nil {
		return domain.Order{}, fmt.Errorf("record payment on order: %w", err)
	}
	o.observeStep("process_payment", stepStart)
	if err := o.advance(saga, domain.SagaStatusPaymentCompleted); err != nil {
		return domain.Order{}, err
	}
	o.appendTimeline(order.ID, "PAYMENT_COMPLETED", "")

	// Шаг 6: постановка запроса доставки. Schedule синхронно проверяет
	// доступность брокера; сама отправка отложенная.
	stepStart = time.Now()
	warehouses := domain.DistinctWarehouses(order.WarehouseAllocation)
	if err := o.dispatch.Schedule(order, user, order.Quantity, warehouses); err != nil {
		return domain.Order{}, fmt.Errorf("schedule delivery: %w", err)
	}
	o.observeStep("request_delivery", stepStart)
	if err := o.advance(saga, domain.SagaStatusDeliveryRequested); err != nil {
		return domain.Order{}, err
	}

	if err := o.advance(saga, domain.SagaStatusCompleted); err != nil {
		return domain.Order{}, err
	}

	return order, nil
}

// Compensate откатывает шаги в обратном порядке, начиная с последнего
// успешно достигнутого. Каждый компенсирующий шаг изолирован: его ошибка
// не мешает остальным, а только попадает в итоговый список.
func (o *orchestrator) Compensate(sagaID string) error {
	saga, err := o.sagas.Get(sagaID)
	if err != nil {
		return fmt.Errorf("load saga %s: %w", sagaID, err)
	}
	if saga.Status.Terminal() {
		o.logger.WithFields(log.Fields{
			"saga_id": saga.ID,
			"status":  saga.Status,
		}).Debug("saga already terminal, compensation skipped")
		return nil
	}

	logger := o.logger.WithField("saga_id", saga.ID)
	last := saga.Status

	saga.CurrentStep = "COMPENSATING_" + string(last)
	saga.Status = domain.SagaStatusCompensating
	saga.UpdatedAt = time.Now().UTC()
	if err := o.sagas.Save(saga); err != nil {
		return fmt.Errorf("persist compensating status: %w", err)
	}

	var failed []string

	switch last {
	case domain.SagaStatusPaymentCompleted, domain.SagaStatusDeliveryRequested:
		if err := o.compensatePayment(&saga); err != nil {
			logger.WithError(err).Error("payment compensation failed")
			failed = append(failed, compStepPayment)
		}
		fallthrough
	case domain.SagaStatusOrderCreated:
		if err := o.compensateOrder(&saga); err != nil {
			logger.WithError(err).Error("order compensation failed")
			failed = append(failed, compStepOrder)
		}
		fallthrough
	case domain.SagaStatusInventoryReserved:
		if err := o.compensateInventory(&saga); err != nil {
			logger.WithError(err).Error("inventory compensation failed")
			failed = append(failed, compStepInventory)
		}
	default:
		// До резервирования ни один шаг ничего не мутирует.
	}

	saga.UpdatedAt = time.Now().UTC()
	if len(failed) == 0 {
		saga.Status = domain.SagaStatusCompensated
		if err := o.sagas.Save(saga); err != nil {
			return fmt.Errorf("persist compensated status: %w", err)
		}
		if o.metrics != nil {
			o.metrics.RecordSagaCompensated()
		}
		logger.Info("saga compensated")
		return nil
	}

	// Частично проваленная компенсация — терминальный тупик: повторный
	// автоматический запуск запрещён, разбирается человек.
	for i, step := range failed {
		failed[i] = "FAILED_" + step
	}
	message := strings.Join(failed, "; ")

	saga.Status = domain.SagaStatusFailed
	if saga.ErrorMessage != "" {
		saga.ErrorMessage += "; " + message
	} else {
		saga.ErrorMessage = message
	}
	if err := o.sagas.Save(saga); err != nil {
		return fmt.Errorf("persist failed status: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RecordSagaFailed()
	}
	logger.WithField("failed_steps", message).Error("saga compensation incomplete, manual intervention required")
	return fmt.Errorf("%w: %s", domain.ErrCompensationFailed, message)
}

// ExecuteRefund — возврат по инициативе пользователя: refund → cancel →
// release → уведомление. Разрешён только пока заказ не забрал курьер.
func (o *orchestrator) ExecuteRefund(orderID string) error {
	order, err := o.orders.Get(orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	if order.DeliveryStatus() != domain.DeliveryStatusReceived {
		o.logger.WithFields(log.Fields{
			"order_id": orderID,
			"status":   order.Status,
		}).Warn("refund rejected: order already in delivery")
		return fmt.Errorf("order %s in status %s: %w", orderID, order.Status, domain.ErrRefundNotAllowed)
	}

	if order.BankTransactionID != "" {
		if _, err := o.ledger.Refund(order.ID, order.BankTransactionID, order.TotalAmountMinor); err != nil {
			return fmt.Errorf("%w: failed to refund payment for order %s: %v", domain.ErrRefundFailed, orderID, err)
		}
	}

	if err := o.saveOrder(&order, func(fresh *domain.Order) {
		fresh.Status = string(domain.DeliveryStatusCancelled)
	}); err != nil {
		return fmt.Errorf("%w: failed to cancel order %s: %v", domain.ErrRefundFailed, orderID, err)
	}

	if len(order.WarehouseAllocation) > 0 {
		allocations := domain.AggregateAllocation(order.WarehouseAllocation)
		if err := o.inventory.Release(order.ProductID, allocations); err != nil {
			return fmt.Errorf("%w: failed to release inventory for order %s: %v", domain.ErrRefundFailed, orderID, err)
		}
	}

	o.appendTimeline(orderID, "ORDER_REFUNDED", "")
	if err := o.notify.Notify(orderID, string(domain.DeliveryStatusCancelled)); err != nil {
		o.logger.WithError(err).WithField("order_id", orderID).Warn("failed to send cancellation notification")
	}

	if o.metrics != nil {
		o.metrics.RecordSagaRefunded()
	}
	o.logger.WithField("order_id", orderID).Info("order refunded")
	return nil
}

func (o *orchestrator) compensatePayment(saga *domain.SagaState) error {
	if saga.PaymentTransactionID == "" {
		return nil
	}

	order, err := o.orders.Get(saga.OrderID)
	if err != nil {
		o.recordCompensationStep("refund_payment", false)
		return fmt.Errorf("load order for refund: %w", err)
	}

	_, err = o.ledger.Refund(saga.OrderID, saga.PaymentTransactionID, order.TotalAmountMinor)
	o.recordCompensationStep("refund_payment", err == nil)
	if err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	return nil
}

func (o *orchestrator) compensateOrder(saga *domain.SagaState) error {
	if saga.OrderID == "" {
		return nil
	}

	order, err := o.orders.Get(saga.OrderID)
	if err != nil {
		o.recordCompensationStep("cancel_order", false)
		return fmt.Errorf("load order for cancel: %w", err)
	}

	err = o.saveOrder(&order, func(fresh *domain.Order) {
		fresh.Status = string(domain.DeliveryStatusCancelled)
	})
	o.recordCompensationStep("cancel_order", err == nil)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	o.appendTimeline(saga.OrderID, "ORDER_CANCELLED", "saga compensation")
	return nil
}

func (o *orchestrator) compensateInventory(saga *domain.SagaState) error {
	if len(saga.WarehouseAllocation) == 0 {
		return nil
	}

	allocations := domain.AggregateAllocation(saga.WarehouseAllocation)
	err := o.inventory.Release(saga.ProductID, allocations)
	o.recordCompensationStep("release_inventory", err == nil)
	if err != nil {
		return fmt.Errorf("release inventory: %w", err)
	}
	return nil
}

// advance переводит сагу в следующий forward-статус и персистит её.
func (o *orchestrator) advance(saga *domain.SagaState, status domain.SagaStatus) error {
	saga.Status = status
	saga.CurrentStep = string(status)
	saga.UpdatedAt = time.Now().UTC()
	if err := o.sagas.Save(*saga); err != nil {
		return fmt.Errorf("persist saga status %s: %w", status, err)
	}
	return nil
}

func (o *orchestrator) recordError(saga *domain.SagaState, stepErr error) {
	saga.ErrorMessage = stepErr.Error()
	saga.UpdatedAt = time.Now().UTC()
	if err := o.sagas.Save(*saga); err != nil {
		o.logger.WithError(err).WithField("saga_id", saga.ID).Warn("failed to persist saga error message")
	}
}

// saveOrder применяет mutate к заказу с retry на version conflict:
// при конфликте заказ перечитывается и мутация применяется заново.
// Сохранённая версия возвращается через order.
func (o *orchestrator) saveOrder(order *domain.Order, mutate func(*domain.Order)) error {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	current := *order
	for attempt := 0; attempt < maxRetries; attempt++ {
		mutate(&current)
		current.UpdatedAt = time.Now().UTC()

		err := o.orders.Save(current)
		if err == nil {
			current.Version++
			*order = current
			return nil
		}

		if !domain.IsVersionConflict(err) || attempt == maxRetries-1 {
			return err
		}

		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt + 1,
		}).Warn("version conflict detected, retrying")

		fresh, loadErr := o.orders.Get(order.ID)
		if loadErr != nil {
			return loadErr
		}
		current = fresh

		time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
	}

	return domain.ErrOrderVersionConflict
}

func (o *orchestrator) observeStep(step string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStepDuration(step, time.Since(start))
	}
}

func (o *orchestrator) recordCompensationStep(step string, success bool) {
	if o.metrics != nil {
		o.metrics.RecordCompensationStep(step, success)
	}
}

func (o *orchestrator) appendTimeline(orderID, eventType, reason string) {
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := o.timeline.Append(event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	} else if o.metrics != nil {
		o.metrics.RecordTimelineEvent()
	}
}
