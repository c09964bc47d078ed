package app

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// messaging объединяет producer'ы и consumers сервиса.
type messaging struct {
	// confirming — async producer с publisher confirms для запросов доставки.
	confirming *kafka.ConfirmingProducer
	// events — sync producer для уведомлений и маршрутизации в DLQ.
	events *kafka.Producer

	consumers []*kafka.Consumer
}

// initMessaging поднимает Kafka-слой. Возвращает nil, nil при пустом списке
// брокеров: сервис работает в деградированном режиме без consumers.
func initMessaging(cfg Config, logger *log.Entry) (*messaging, error) {
	brokers := cfg.brokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	confirming, err := kafka.NewConfirmingProducer(brokers)
	if err != nil {
		return nil, fmt.Errorf("create confirming producer: %w", err)
	}

	events, err := kafka.NewProducer(brokers)
	if err != nil {
		_ = confirming.Close()
		return nil, fmt.Errorf("create event producer: %w", err)
	}

	logger.WithField("brokers", brokers).Info("kafka producers initialized")
	return &messaging{confirming: confirming, events: events}, nil
}

// addConsumer регистрирует consumer группы, при withDLQ — с маршрутизацией
// недоставленных сообщений в DLQ-топик.
func (m *messaging) addConsumer(cfg Config, topics []string, handler kafka.MessageHandler, withDLQ bool) error {
	brokers := cfg.brokerList()

	var (
		consumer *kafka.Consumer
		err      error
	)
	if withDLQ {
		consumer, err = kafka.NewConsumerWithDLQ(brokers, cfg.ConsumerGroup, topics, handler, m.events, cfg.DLQMaxRetries)
	} else {
		consumer, err = kafka.NewConsumer(brokers, cfg.ConsumerGroup, topics, handler)
	}
	if err != nil {
		return fmt.Errorf("create consumer for %v: %w", topics, err)
	}

	m.consumers = append(m.consumers, consumer)
	return nil
}

// close останавливает consumers и producer'ы в порядке, обратном запуску.
func (m *messaging) close(logger *log.Entry) {
	if m == nil {
		return
	}

	for _, consumer := range m.consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}

	if m.confirming != nil {
		if err := m.confirming.Close(); err != nil {
			logger.WithError(err).Warn("failed to close confirming producer")
		}
	}
	if m.events != nil {
		if err := m.events.Close(); err != nil {
			logger.WithError(err).Warn("failed to close event producer")
		} else {
			logger.Info("kafka producers closed")
		}
	}
}
