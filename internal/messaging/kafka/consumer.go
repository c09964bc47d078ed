package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает сообщение из Kafka
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer представляет Kafka consumer с поддержкой DLQ.
// Сообщение, не обработанное за maxRetries попыток, уходит в
// <топик>.dlq в конверте DLQEnvelope.
type Consumer struct {
	consumer     sarama.ConsumerGroup
	topics       []string
	handler      MessageHandler
	logger       *log.Entry
	wg           sync.WaitGroup
	dlqProducer  *Producer     // Producer для отправки в DLQ
	maxRetries   int           // Максимальное количество попыток обработки
	retryBackoff time.Duration // Пауза между попытками
}

const defaultRetryBackoff = time.Second

// NewConsumer создает новый Kafka consumer
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создает consumer с поддержкой Dead Letter Queue
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxRetries int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:     consumer,
		topics:       topics,
		handler:      handler,
		logger:       log.WithField("component", "kafka-consumer"),
		dlqProducer:  dlqProducer,
		maxRetries:   maxRetries,
		retryBackoff: defaultRetryBackoff,
	}, nil
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume должен вызываться в цикле, так как при rebalance он завершается
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}

			// Проверяем, не отменен ли контекст
			if ctx.Err() != nil {
				return
			}
		}
	}()

	// Обработка ошибок
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("received message")

			// Обрабатываем сообщение с retry и DLQ логикой
			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed and was not dead-lettered")
				// Offset не коммитим: выходим из claim, чтобы сообщение
				// пришло повторно. Иначе mark следующего offset тихо
				// пропустит этот.
				return err
			}

			// Маркируем сообщение как обработанное
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry выполняет до maxRetries попыток обработки прямо
// в процессе. Исчерпав попытки, уводит сообщение в DLQ и считает его
// обработанным. Без DLQ-продюсера возвращает ошибку: offset остаётся
// незакоммиченным и сообщение придёт повторно.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	// Реплеи из DLQ несут счётчик прошлых попыток в header,
	// живой трафик начинает с нуля.
	priorAttempts := c.getRetryCount(message)
	attempts := c.maxRetries - priorAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.handler(ctx, message); err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"offset":      message.Offset,
			"attempt":     priorAttempts + attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")

		if c.retryBackoff > 0 {
			select {
			case <-time.After(c.retryBackoff):
			case <-ctx.Done():
				return err
			}
		}
	}

	if c.dlqProducer == nil {
		return err
	}

	totalAttempts := priorAttempts + attempts
	if dlqErr := c.sendToDLQ(message, err, totalAttempts); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"dlq_topic": message.Topic + DLQSuffix,
		"attempts":  totalAttempts,
	}).Info("message sent to DLQ after max retries")
	return nil
}

// getRetryCount извлекает счётчик попыток из headers сообщения.
// Header выставляет только DLQ-replay, у живого трафика его нет.
func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == HeaderRetryCount {
			count, err := strconv.Atoi(string(header.Value))
			if err == nil {
				return count
			}
		}
	}
	return 0
}

// sendToDLQ отправляет failed message в Dead Letter Queue своего топика.
func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, totalAttempts int) error {
	envelope := DLQEnvelope{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        totalAttempts,
	}

	return c.dlqProducer.PublishEvent(
		message.Topic+DLQSuffix,
		string(message.Key),
		envelope,
	)
}

// ParseDeliveryUpdate парсит DeliveryUpdate из сообщения
func ParseDeliveryUpdate(message *sarama.ConsumerMessage) (*DeliveryUpdate, error) {
	var event DeliveryUpdate
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery update: %w", err)
	}
	return &event, nil
}

// ParseDeliveryRequest парсит DeliveryRequest из сообщения
func ParseDeliveryRequest(message *sarama.ConsumerMessage) (*DeliveryRequest, error) {
	var event DeliveryRequest
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery request: %w", err)
	}
	return &event, nil
}

// ParseDLQEnvelope парсит DLQEnvelope из сообщения DLQ-топика.
func ParseDLQEnvelope(message *sarama.ConsumerMessage) (*DLQEnvelope, error) {
	var envelope DLQEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dlq envelope: %w", err)
	}
	return &envelope, nil
}
