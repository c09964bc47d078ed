package kafka

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics для Kafka
const (
	// TopicDeliveryRequest — запросы на доставку для внешнего delivery-сервиса.
	TopicDeliveryRequest = "store.delivery.request"
	// TopicDeliveryUpdate — обновления статусов доставки от delivery-сервиса.
	TopicDeliveryUpdate = "store.delivery.update"
	// TopicNotifications — уведомления пользователей.
	TopicNotifications = "store.notifications"

	// DLQSuffix добавляется к исходному топику при исчерпании retry.
	DLQSuffix = ".dlq"

	// TopicDeliveryRequestDLQ и TopicDeliveryUpdateDLQ — Dead Letter Queues.
	TopicDeliveryRequestDLQ = TopicDeliveryRequest + DLQSuffix
	TopicDeliveryUpdateDLQ  = TopicDeliveryUpdate + DLQSuffix
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// NewMessageID генерирует идентификатор сообщения вида order-<orderID>-<uuid>.
// Используется и как correlation id для publisher confirms, и как ключ
// дедупликации на стороне consumer'а.
func NewMessageID(orderID string) string {
	return fmt.Sprintf("order-%s-%s", orderID, uuid.NewString())
}

// DeliveryRequest — запрос на доставку заказа.
type DeliveryRequest struct {
	MessageID     string    `json:"message_id"`
	OrderID       string    `json:"order_id"`
	RecipientName string    `json:"recipient_name"`
	ProductID     int       `json:"product_id"`
	Quantity      int       `json:"quantity"`
	WarehouseIDs  []int     `json:"warehouse_ids"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeliveryUpdate — обновление статуса доставки заказа.
type DeliveryUpdate struct {
	MessageID string    `json:"message_id"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationEvent — уведомление пользователя о событии заказа.
type NotificationEvent struct {
	MessageID string    `json:"message_id"`
	OrderID   string    `json:"order_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// DLQEnvelope — конверт, в котором исходное сообщение попадает в DLQ.
type DLQEnvelope struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// NewDeliveryRequest создаёт запрос на доставку с новым message id.
func NewDeliveryRequest(orderID, recipientName string, productID, quantity int, warehouseIDs []int) *DeliveryRequest {
	return &DeliveryRequest{
		MessageID:     NewMessageID(orderID),
		OrderID:       orderID,
		RecipientName: recipientName,
		ProductID:     productID,
		Quantity:      quantity,
		WarehouseIDs:  warehouseIDs,
		Timestamp:     time.Now().UTC(),
	}
}

// NewDeliveryUpdate создаёт обновление статуса с новым message id.
func NewDeliveryUpdate(orderID, status string) *DeliveryUpdate {
	return &DeliveryUpdate{
		MessageID: NewMessageID(orderID),
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationEvent создаёт событие уведомления с новым message id.
func NewNotificationEvent(orderID, kind string) *NotificationEvent {
	return &NotificationEvent{
		MessageID: NewMessageID(orderID),
		OrderID:   orderID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}
