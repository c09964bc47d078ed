package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fsm"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// RequestDLQHandler reacts to delivery requests that exhausted their retries.
// The downstream delivery service never saw the order, so the only action
// left is to alert the user. Handler errors are logged and swallowed: a DLQ
// message must not be dead-lettered again.
type RequestDLQHandler struct {
	notify   domain.NotificationSink
	timeline domain.TimelineRepository
	logger   *log.Entry
}

// NewRequestDLQHandler creates a handler for the delivery-request DLQ topic.
func NewRequestDLQHandler(notify domain.NotificationSink, timeline domain.TimelineRepository, logger *log.Entry) *RequestDLQHandler {
	if logger == nil {
		logger = log.New().WithField("component", "delivery-request-dlq")
	}

	return &RequestDLQHandler{
		notify:   notify,
		timeline: timeline,
		logger:   logger,
	}
}

// Handle implements kafka.MessageHandler for the delivery-request DLQ.
func (h *RequestDLQHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseDLQEnvelope(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to parse DLQ envelope, dropping")
		return nil
	}

	var req kafka.DeliveryRequest
	if err := json.Unmarshal([]byte(envelope.OriginalValue), &req); err != nil {
		h.logger.WithError(err).WithField("original_topic", envelope.OriginalTopic).Error("Failed to parse dead-lettered delivery request, dropping")
		return nil
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id":   req.OrderID,
		"message_id": req.MessageID,
		"error":      envelope.ErrorMessage,
	})
	logger.Warn("Delivery request dead-lettered")

	if err := h.timeline.Append(domain.TimelineEvent{
		OrderID:  req.OrderID,
		Type:     "DELIVERY_REQUEST_DEAD_LETTERED",
		Reason:   envelope.ErrorMessage,
		Occurred: time.Now().UTC(),
	}); err != nil {
		logger.WithError(err).Warn("Failed to append timeline event")
	}

	if err := h.notify.Notify(req.OrderID, domain.NotifyDeliveryFailed); err != nil {
		logger.WithError(err).Warn("Failed to send delivery-failed notification")
	}

	return nil
}

// UpdateDLQHandler reacts to delivery status updates that could not be
// applied. The order's real-world state is unknown at this point, so the
// handler compensates coarsely: notify the user, cancel the order when the
// status machine still allows it, and refund the payment. The ledger makes
// the refund idempotent. All steps are best-effort.
type UpdateDLQHandler struct {
	orders  domain.OrderRepository
	machine *fsm.DeliveryStateMachine
	ledger  domain.Ledger
	notify  domain.NotificationSink
	logger  *log.Entry

	statusRetries int
}

// NewUpdateDLQHandler creates a handler for the delivery-update DLQ topic.
func NewUpdateDLQHandler(
	orders domain.OrderRepository,
	machine *fsm.DeliveryStateMachine,
	ledger domain.Ledger,
	notify domain.NotificationSink,
	logger *log.Entry,
) *UpdateDLQHandler {
	if logger == nil {
		logger = log.New().WithField("component", "delivery-update-dlq")
	}

	return &UpdateDLQHandler{
		orders:        orders,
		machine:       machine,
		ledger:        ledger,
		notify:        notify,
		logger:        logger,
		statusRetries: defaultStatusRetries,
	}
}

// Handle implements kafka.MessageHandler for the delivery-update DLQ.
func (h *UpdateDLQHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := kafka.ParseDLQEnvelope(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to parse DLQ envelope, dropping")
		return nil
	}

	var update kafka.DeliveryUpdate
	if err := json.Unmarshal([]byte(envelope.OriginalValue), &update); err != nil {
		h.logger.WithError(err).WithField("original_topic", envelope.OriginalTopic).Error("Failed to parse dead-lettered delivery update, dropping")
		return nil
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id":   update.OrderID,
		"message_id": update.MessageID,
		"status":     update.Status,
		"error":      envelope.ErrorMessage,
	})
	logger.Warn("Delivery update dead-lettered, compensating")

	if err := h.notify.Notify(update.OrderID, domain.NotifyDeliveryFailed); err != nil {
		logger.WithError(err).Warn("Failed to send delivery-failed notification")
	}

	order, err := h.cancelOrder(ctx, logger, update.OrderID)
	if err != nil {
		logger.WithError(err).Error("Failed to cancel order after dead-lettered update")
		return nil
	}

	if order.BankTransactionID != "" {
		if _, err := h.ledger.Refund(order.ID, order.BankTransactionID, order.TotalAmountMinor); err != nil {
			logger.WithError(err).Error("Failed to refund payment after dead-lettered update")
			return nil
		}
		logger.Info("Payment refunded after dead-lettered update")
	}

	return nil
}

func (h *UpdateDLQHandler) cancelOrder(ctx context.Context, logger *log.Entry, orderID string) (domain.Order, error) {
	for attempt := 0; attempt < h.statusRetries; attempt++ {
		order, err := h.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
		}

		if order.DeliveryStatus() == domain.DeliveryStatusCancelled {
			return order, nil
		}

		next, err := h.machine.Transition(ctx, order.DeliveryStatus(), fsm.EventCancel)
		if err != nil {
			// Past RECEIVED the order cannot be cancelled anymore; the
			// refund below still runs.
			logger.WithField("current", order.Status).Info("Order not cancellable, refund only")
			return order, nil
		}

		order.Status = string(next)
		err = h.orders.Save(order)
		if err == nil {
			logger.Info("Order cancelled after dead-lettered update")
			return order, nil
		}
		if !errors.Is(err, domain.ErrOrderVersionConflict) {
			return domain.Order{}, fmt.Errorf("save order %s: %w", orderID, err)
		}
	}

	return domain.Order{}, fmt.Errorf("cancel order %s: %w", orderID, domain.ErrOrderVersionConflict)
}
