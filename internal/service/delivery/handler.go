package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fsm"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const dedupTTL = 24 * time.Hour

// UpdateHandler consumes delivery status updates from the delivery service
// and advances orders through the status machine.
//
// Messages are deduplicated by message id, so at-least-once redelivery never
// applies a transition twice. Persistence failures propagate to the consumer
// for redelivery and eventual dead-lettering; invalid transitions are
// rejected permanently without touching the order.
type UpdateHandler struct {
	orders      domain.OrderRepository
	idempotency domain.IdempotencyRepository
	machine     *fsm.DeliveryStateMachine
	ledger      domain.Ledger
	notify      domain.NotificationSink
	timeline    domain.TimelineRepository
	metrics     *metrics.SagaMetrics
	logger      *log.Entry

	statusRetries int
}

// NewUpdateHandler creates a handler for the delivery-update topic.
// The metrics argument may be nil.
func NewUpdateHandler(
	orders domain.OrderRepository,
	idempotency domain.IdempotencyRepository,
	machine *fsm.DeliveryStateMachine,
	ledger domain.Ledger,
	notify domain.NotificationSink,
	timeline domain.TimelineRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *UpdateHandler {
	if logger == nil {
		logger = log.New().WithField("component", "delivery-update-handler")
	}

	return &UpdateHandler{
		orders:        orders,
		idempotency:   idempotency,
		machine:       machine,
		ledger:        ledger,
		notify:        notify,
		timeline:      timeline,
		metrics:       sagaMetrics,
		logger:        logger,
		statusRetries: defaultStatusRetries,
	}
}

// Handle implements kafka.MessageHandler for the delivery-update topic.
func (h *UpdateHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	update, err := kafka.ParseDeliveryUpdate(message)
	if err != nil {
		return fmt.Errorf("parse delivery update: %w", err)
	}

	target, err := domain.ParseDeliveryStatus(update.Status)
	if err != nil {
		return fmt.Errorf("delivery update for order %s: %w", update.OrderID, err)
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id":   update.OrderID,
		"message_id": update.MessageID,
		"status":     update.Status,
	})

	record, err := h.idempotency.CreateProcessing(update.MessageID, time.Now().UTC().Add(dedupTTL))
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
			switch record.Status {
			case domain.IdempotencyStatusDone:
				logger.Info("Duplicate delivery update, skipping")
				return nil
			case domain.IdempotencyStatusProcessing:
				// Either a concurrent delivery is mid-flight or a previous
				// attempt crashed before recording a verdict. Acking here
				// would lose the update for good, so let the consumer
				// redeliver; the transition itself is idempotent.
				logger.Info("Delivery update still in flight, retrying later")
				return fmt.Errorf("delivery update %s is still being processed", update.MessageID)
			}
			// failed record: reprocess
		} else {
			return fmt.Errorf("register delivery update %s: %w", update.MessageID, err)
		}
	}

	if err := h.applyUpdate(ctx, logger, update.OrderID, target); err != nil {
		if markErr := h.idempotency.MarkFailed(update.MessageID); markErr != nil {
			logger.WithError(markErr).Warn("Failed to mark message as failed")
		}
		return err
	}

	if err := h.idempotency.MarkDone(update.MessageID); err != nil {
		logger.WithError(err).Warn("Failed to mark message as done")
	}

	return nil
}

func (h *UpdateHandler) applyUpdate(ctx context.Context, logger *log.Entry, orderID string, target domain.DeliveryStatus) error {
	order, err := h.orders.Get(orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	if order.DeliveryStatus() == target {
		// Already applied by an earlier delivery of the same update. The
		// refund for LOST is idempotent in the ledger, so re-running it
		// here covers a crash between persist and refund.
		logger.Info("Order already at target status")
		return h.afterTransition(logger, order, target)
	}

	event, err := fsm.EventForStatus(target)
	if err != nil {
		logger.Warn("No transition event for target status, dropping update")
		return nil
	}

	if err := h.persistTransition(ctx, logger, orderID, event, target); err != nil {
		return err
	}

	order, err = h.orders.Get(orderID)
	if err != nil {
		return fmt.Errorf("reload order %s: %w", orderID, err)
	}

	return h.afterTransition(logger, order, target)
}

// persistTransition validates the transition against the current order state
// and saves it, retrying on version conflicts with a fresh read.
func (h *UpdateHandler) persistTransition(ctx context.Context, logger *log.Entry, orderID, event string, target domain.DeliveryStatus) error {
	for attempt := 0; attempt < h.statusRetries; attempt++ {
		order, err := h.orders.Get(orderID)
		if err != nil {
			return fmt.Errorf("load order %s: %w", orderID, err)
		}

		if order.DeliveryStatus() == target {
			return nil
		}

		next, err := h.machine.Transition(ctx, order.DeliveryStatus(), event)
		if err != nil {
			// Invalid transitions are permanent. Retrying the message
			// would never succeed and dead-lettering would trigger the
			// coarse compensation for what is a business rejection.
			logger.WithError(err).WithField("current", order.Status).Warn("Invalid delivery status transition, dropping update")
			return nil
		}

		order.Status = string(next)
		err = h.orders.Save(order)
		if err == nil {
			logger.WithField("new_status", order.Status).Info("Delivery status updated")
			return nil
		}
		if !errors.Is(err, domain.ErrOrderVersionConflict) {
			return fmt.Errorf("save order %s: %w", orderID, err)
		}
	}

	return fmt.Errorf("save order %s: %w", orderID, domain.ErrOrderVersionConflict)
}

// afterTransition runs the side effects of a persisted status change.
// The refund for LOST must succeed before the message is acknowledged;
// notifications are fire-and-forget.
func (h *UpdateHandler) afterTransition(logger *log.Entry, order domain.Order, target domain.DeliveryStatus) error {
	if target == domain.DeliveryStatusLost {
		if _, err := h.ledger.Refund(order.ID, order.BankTransactionID, order.TotalAmountMinor); err != nil {
			return fmt.Errorf("refund lost order %s: %w", order.ID, err)
		}
		logger.Info("Payment refunded for lost order")
	}

	h.appendTimeline(order.ID, "DELIVERY_STATUS_"+string(target))

	if err := h.notify.Notify(order.ID, string(target)); err != nil {
		logger.WithError(err).Warn("Failed to send status notification")
	}

	return nil
}

func (h *UpdateHandler) appendTimeline(orderID, eventType string) {
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Occurred: time.Now().UTC(),
	}

	if err := h.timeline.Append(event); err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to append timeline event")
	}

	if h.metrics != nil {
		h.metrics.RecordTimelineEvent()
	}
}
