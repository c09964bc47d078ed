package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fsm"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type handlerFixture struct {
	handler     *UpdateHandler
	orders      domain.OrderRepository
	idempotency domain.IdempotencyRepository
	ledger      *ledger.MockService
	notify      *notify.Recorder
	timeline    domain.TimelineRepository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	orders := memory.NewOrderRepository()
	idempotency := memory.NewIdempotencyRepository()
	bank := ledger.NewMockService()
	recorder := notify.NewRecorder()
	timeline := memory.NewTimelineRepository()

	handler := NewUpdateHandler(
		orders,
		idempotency,
		fsm.NewDeliveryStateMachine(),
		bank,
		recorder,
		timeline,
		nil,
		testLogger(),
	)

	return &handlerFixture{
		handler:     handler,
		orders:      orders,
		idempotency: idempotency,
		ledger:      bank,
		notify:      recorder,
		timeline:    timeline,
	}
}

func (f *handlerFixture) createOrder(t *testing.T, status domain.DeliveryStatus) domain.Order {
	t.Helper()

	order := domain.Order{
		ID:                "order-1",
		UserID:            "user-1",
		ProductID:         7,
		Quantity:          1,
		TotalAmountMinor:  500,
		Status:            string(status),
		BankTransactionID: "tx-1",
	}
	if err := f.orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func updateMessage(t *testing.T, update *kafka.DeliveryUpdate) *sarama.ConsumerMessage {
	t.Helper()

	value, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: kafka.TopicDeliveryUpdate, Value: value}
}

func TestUpdateHandler_AppliesTransition(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusReceived)

	msg := updateMessage(t, kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusPickedUp)))
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order, _ := f.orders.Get("order-1")
	if order.DeliveryStatus() != domain.DeliveryStatusPickedUp {
		t.Fatalf("expected PICKED_UP, got %s", order.Status)
	}

	calls := f.notify.Recorded()
	if len(calls) != 1 || calls[0].Kind != string(domain.DeliveryStatusPickedUp) {
		t.Fatalf("unexpected notifications: %+v", calls)
	}
	if f.ledger.RefundCalls != 0 {
		t.Fatal("refund must not run for a regular transition")
	}
}

func TestUpdateHandler_DeduplicatesByMessageID(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusReceived)

	update := kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusPickedUp))
	msg := updateMessage(t, update)

	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("first handle failed: %v", err)
	}
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	if calls := f.notify.Recorded(); len(calls) != 1 {
		t.Fatalf("duplicate must be skipped, got %d notifications", len(calls))
	}
}

func TestUpdateHandler_InFlightRecordRetriedOnRedelivery(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusReceived)

	update := kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusPickedUp))

	// A previous attempt claimed the key and crashed before recording
	// a verdict. Acking the redelivery would lose the update.
	if _, err := f.idempotency.CreateProcessing(update.MessageID, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("seed in-flight record: %v", err)
	}

	if err := f.handler.Handle(context.Background(), updateMessage(t, update)); err == nil {
		t.Fatal("expected retryable error for an in-flight update")
	}

	order, _ := f.orders.Get("order-1")
	if order.DeliveryStatus() != domain.DeliveryStatusReceived {
		t.Fatalf("order must stay RECEIVED, got %s", order.Status)
	}
	if calls := f.notify.Recorded(); len(calls) != 0 {
		t.Fatalf("no notifications expected, got %d", len(calls))
	}
}

func TestUpdateHandler_InvalidTransitionDropped(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusReceived)

	// RECEIVED cannot jump straight to DELIVERED.
	msg := updateMessage(t, kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusDelivered)))
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("invalid transition should be dropped, got %v", err)
	}

	order, _ := f.orders.Get("order-1")
	if order.DeliveryStatus() != domain.DeliveryStatusReceived {
		t.Fatalf("order must stay RECEIVED, got %s", order.Status)
	}
	if len(f.notify.Recorded()) != 0 {
		t.Fatal("no notification for a dropped update")
	}
}

func TestUpdateHandler_LostTriggersRefund(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusOnDelivery)

	msg := updateMessage(t, kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusLost)))
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	order, _ := f.orders.Get("order-1")
	if order.DeliveryStatus() != domain.DeliveryStatusLost {
		t.Fatalf("expected LOST, got %s", order.Status)
	}
	if f.ledger.RefundCalls != 1 {
		t.Fatalf("expected exactly one refund, got %d", f.ledger.RefundCalls)
	}
}

func TestUpdateHandler_RefundFailureRetriedOnRedelivery(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusOnDelivery)
	f.ledger.RefundErr = errors.New("bank down")

	update := kafka.NewDeliveryUpdate("order-1", string(domain.DeliveryStatusLost))
	msg := updateMessage(t, update)

	if err := f.handler.Handle(context.Background(), msg); err == nil {
		t.Fatal("expected error while bank is down")
	}

	// The status change is already persisted; the redelivered message must
	// still complete the refund.
	order, _ := f.orders.Get("order-1")
	if order.DeliveryStatus() != domain.DeliveryStatusLost {
		t.Fatalf("expected LOST, got %s", order.Status)
	}

	f.ledger.RefundErr = nil
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if f.ledger.RefundCalls != 2 {
		t.Fatalf("expected refund retry, got %d calls", f.ledger.RefundCalls)
	}
}

func TestUpdateHandler_UnknownOrder(t *testing.T) {
	f := newHandlerFixture(t)

	msg := updateMessage(t, kafka.NewDeliveryUpdate("ghost", string(domain.DeliveryStatusPickedUp)))
	err := f.handler.Handle(context.Background(), msg)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUpdateHandler_InvalidStatusValue(t *testing.T) {
	f := newHandlerFixture(t)
	f.createOrder(t, domain.DeliveryStatusReceived)

	msg := updateMessage(t, &kafka.DeliveryUpdate{
		MessageID: kafka.NewMessageID("order-1"),
		OrderID:   "order-1",
		Status:    "TELEPORTED",
		Timestamp: time.Now().UTC(),
	})

	err := f.handler.Handle(context.Background(), msg)
	if !errors.Is(err, domain.ErrInvalidDeliveryStatus) {
		t.Fatalf("expected ErrInvalidDeliveryStatus, got %v", err)
	}
}
