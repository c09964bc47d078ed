package delivery

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultSendDelay      = 5 * time.Second
	defaultConfirmTimeout = 10 * time.Second
	defaultStatusRetries  = 3

	// statusRequestFailed is recorded on the order when neither the broker
	// nor the REST fallback accepted the delivery request.
	statusRequestFailed = "FAILED_DELIVERY_REQUEST"
)

// confirmer is the broker-acknowledgement handle of a published message.
type confirmer interface {
	Wait(timeout time.Duration) error
}

// publisher abstracts the confirming Kafka producer for tests.
type publisher interface {
	Healthy() bool
	Publish(topic, key, messageID string, event interface{}) (confirmer, error)
}

type kafkaPublisher struct {
	producer *kafka.ConfirmingProducer
}

func (p kafkaPublisher) Healthy() bool {
	return p.producer != nil && p.producer.Healthy()
}

func (p kafkaPublisher) Publish(topic, key, messageID string, event interface{}) (confirmer, error) {
	return p.producer.Publish(topic, key, messageID, event)
}

// Dispatcher schedules delivery requests for the external delivery service.
//
// Schedule checks broker reachability synchronously so the saga can fail
// fast, then arms a delayed fire-and-forget send. At fire time the order is
// re-read and skipped if it was cancelled in the meantime. The send outcome
// degrades in order: broker ack, REST fallback, durable FAILED status on the
// order. A request is never silently dropped.
type Dispatcher struct {
	pub      publisher
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	alerts   AlertSender
	breaker  *CircuitBreaker
	metrics  *metrics.SagaMetrics
	logger   *log.Entry

	sendDelay      time.Duration
	confirmTimeout time.Duration
	statusRetries  int

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the confirming producer.
// The metrics argument may be nil.
func NewDispatcher(
	producer *kafka.ConfirmingProducer,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	alerts AlertSender,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Dispatcher {
	if logger == nil {
		logger = log.New().WithField("component", "delivery-dispatcher")
	}

	return &Dispatcher{
		pub:            kafkaPublisher{producer: producer},
		orders:         orders,
		timeline:       timeline,
		alerts:         alerts,
		breaker:        NewCircuitBreaker(5, 30*time.Second, logger),
		metrics:        sagaMetrics,
		logger:         logger,
		sendDelay:      defaultSendDelay,
		confirmTimeout: defaultConfirmTimeout,
		statusRetries:  defaultStatusRetries,
	}
}

var _ domain.DeliveryDispatch = (*Dispatcher)(nil)

// Schedule validates broker reachability and arms the delayed send.
// Returns domain.ErrBrokerUnavailable when the broker cannot be reached,
// letting the caller compensate before anything is published.
func (d *Dispatcher) Schedule(order domain.Order, user domain.User, quantity int, warehouseIDs []int) error {
	if !d.pub.Healthy() {
		d.logger.WithField("order_id", order.ID).Error("Kafka broker unreachable, delivery request rejected")
		return domain.ErrBrokerUnavailable
	}

	recipient := user.FullName()
	d.wg.Add(1)
	time.AfterFunc(d.sendDelay, func() {
		defer d.wg.Done()
		d.dispatch(order.ID, recipient, order.ProductID, quantity, warehouseIDs)
	})

	d.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"delay":    d.sendDelay,
	}).Info("Delivery request scheduled")

	return nil
}

// Wait blocks until all armed sends have finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(orderID, recipient string, productID, quantity int, warehouseIDs []int) {
	logger := d.logger.WithField("order_id", orderID)

	order, err := d.orders.Get(orderID)
	if err != nil {
		logger.WithError(err).Error("Failed to re-read order before delivery request")
		d.recordOutcome(metrics.DispatchOutcomeFailed)
		return
	}

	if order.DeliveryStatus() == domain.DeliveryStatusCancelled {
		logger.Info("Order cancelled before delivery request, skipping send")
		d.appendTimeline(orderID, "DELIVERY_REQUEST_SKIPPED", "order cancelled")
		d.recordOutcome(metrics.DispatchOutcomeSkipped)
		return
	}

	req := kafka.NewDeliveryRequest(orderID, recipient, productID, quantity, warehouseIDs)

	sendErr := d.publishAndConfirm(req)
	if sendErr == nil {
		logger.WithField("message_id", req.MessageID).Info("Delivery request acknowledged by broker")
		d.appendTimeline(orderID, "DELIVERY_REQUESTED", "")
		d.recordOutcome(metrics.DispatchOutcomeAck)
		return
	}

	logger.WithError(sendErr).Warn("Broker send failed, trying REST fallback")

	fallbackErr := d.breaker.Execute("delivery-alert", func() error {
		return d.alerts.SendDeliveryRequest(req)
	})
	if fallbackErr == nil {
		d.appendTimeline(orderID, "DELIVERY_REQUEST_FALLBACK", sendErr.Error())
		d.recordOutcome(metrics.DispatchOutcomeFallback)
		return
	}

	logger.WithError(fallbackErr).Error("REST fallback failed, recording failed delivery request")
	d.recordFailedStatus(orderID)
	d.appendTimeline(orderID, "DELIVERY_REQUEST_FAILED", fallbackErr.Error())
	d.recordOutcome(metrics.DispatchOutcomeFailed)
}

func (d *Dispatcher) publishAndConfirm(req *kafka.DeliveryRequest) error {
	conf, err := d.pub.Publish(kafka.TopicDeliveryRequest, req.OrderID, req.MessageID, req)
	if err != nil {
		return err
	}
	return conf.Wait(d.confirmTimeout)
}

// recordFailedStatus durably marks the order so a later sweep can reconcile
// the undelivered request. Version conflicts are retried with a fresh read.
func (d *Dispatcher) recordFailedStatus(orderID string) {
	for attempt := 0; attempt < d.statusRetries; attempt++ {
		order, err := d.orders.Get(orderID)
		if err != nil {
			d.logger.WithError(err).WithField("order_id", orderID).Error("Failed to load order for failed-status record")
			return
		}

		order.Status = statusRequestFailed
		if err := d.orders.Save(order); err == nil {
			return
		} else if !errors.Is(err, domain.ErrOrderVersionConflict) {
			d.logger.WithError(err).WithField("order_id", orderID).Error("Failed to record failed delivery request status")
			return
		}
	}

	d.logger.WithField("order_id", orderID).Error("Gave up recording failed delivery request status after version conflicts")
}

func (d *Dispatcher) appendTimeline(orderID, eventType, reason string) {
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}

	if err := d.timeline.Append(event); err != nil {
		d.logger.WithError(err).WithField("order_id", orderID).Warn("Failed to append timeline event")
	}

	if d.metrics != nil {
		d.metrics.RecordTimelineEvent()
	}
}

func (d *Dispatcher) recordOutcome(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDispatchOutcome(outcome)
	}
}
