package kafka

import (
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := NewDeliveryUpdate("order-123", "PICKED_UP")

	// Публикуем событие
	err := producer.PublishEvent(TopicDeliveryUpdate, "order-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewDeliveryUpdate("order-123", "PICKED_UP")

	// Публикуем событие
	err := producer.PublishEvent(TopicDeliveryUpdate, "order-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("order-42")

	if !strings.HasPrefix(id, "order-order-42-") {
		t.Fatalf("unexpected message id format: %s", id)
	}
	if id == NewMessageID("order-42") {
		t.Fatal("message ids must be unique")
	}
}

func TestNewDeliveryRequest(t *testing.T) {
	req := NewDeliveryRequest("order-42", "Alice Liddell", 7, 5, []int{2, 1})

	if req.MessageID == "" {
		t.Fatal("message id should be set")
	}
	if req.OrderID != "order-42" {
		t.Errorf("unexpected order id: %s", req.OrderID)
	}
	if req.RecipientName != "Alice Liddell" {
		t.Errorf("unexpected recipient: %s", req.RecipientName)
	}
	if req.ProductID != 7 || req.Quantity != 5 {
		t.Errorf("unexpected product/quantity: %d/%d", req.ProductID, req.Quantity)
	}
	if len(req.WarehouseIDs) != 2 {
		t.Errorf("unexpected warehouses: %v", req.WarehouseIDs)
	}
	if req.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
	if time.Since(req.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewDeliveryUpdate(t *testing.T) {
	update := NewDeliveryUpdate("order-42", "ON_DELIVERY")

	if update.MessageID == "" {
		t.Fatal("message id should be set")
	}
	if update.OrderID != "order-42" {
		t.Errorf("unexpected order id: %s", update.OrderID)
	}
	if update.Status != "ON_DELIVERY" {
		t.Errorf("unexpected status: %s", update.Status)
	}
	if update.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}
