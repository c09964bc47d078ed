package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// EventPublisher — минимальный контракт producer'а, нужный sink'у.
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// KafkaSink публикует уведомления в топик уведомлений.
type KafkaSink struct {
	producer EventPublisher
	logger   *log.Entry
}

// NewKafkaSink создаёт sink поверх producer'а.
func NewKafkaSink(producer EventPublisher, logger *log.Entry) *KafkaSink {
	if logger == nil {
		logger = log.New().WithField("component", "notify-kafka")
	}
	return &KafkaSink{producer: producer, logger: logger}
}

// Notify публикует событие уведомления. Ошибка публикации логируется
// и возвращается вызывающему, который волен её проигнорировать.
func (s *KafkaSink) Notify(orderID, kind string) error {
	event := kafka.NewNotificationEvent(orderID, kind)
	if err := s.producer.PublishEvent(kafka.TopicNotifications, orderID, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"kind":     kind,
		}).Error("failed to publish notification")
		return err
	}
	return nil
}

var _ domain.NotificationSink = (*KafkaSink)(nil)
