package kafka

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ConfirmingProducer — асинхронный producer с publisher confirms.
// Каждая публикация возвращает Confirmation, который разрешается ack'ом
// или nack'ом брокера; continuation-логика (fallback, деградация статуса)
// навешивается вызывающей стороной.
type ConfirmingProducer struct {
	async  sarama.AsyncProducer
	client sarama.Client // nil в тестах
	logger *log.Entry
	wg     sync.WaitGroup
}

// NewConfirmingProducer создаёт producer с подключением к brokers.
func NewConfirmingProducer(brokers []string) (*ConfirmingProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	async, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka async producer: %w", err)
	}

	p := &ConfirmingProducer{
		async:  async,
		client: client,
		logger: log.WithField("component", "kafka-confirming-producer"),
	}
	p.startResolvers()
	return p, nil
}

// NewConfirmingProducerFromSarama оборачивает готовый AsyncProducer (для тестов).
func NewConfirmingProducerFromSarama(async sarama.AsyncProducer) *ConfirmingProducer {
	p := &ConfirmingProducer{
		async:  async,
		logger: log.WithField("component", "kafka-confirming-producer"),
	}
	p.startResolvers()
	return p
}

// startResolvers читает каналы успехов и ошибок и разрешает confirmations.
// Metadata каждого сообщения несёт его *Confirmation.
func (p *ConfirmingProducer) startResolvers() {
	p.wg.Add(2)

	go func() {
		defer p.wg.Done()
		for msg := range p.async.Successes() {
			conf, ok := msg.Metadata.(*Confirmation)
			if !ok {
				continue
			}
			p.logger.WithFields(log.Fields{
				"topic":      msg.Topic,
				"partition":  msg.Partition,
				"offset":     msg.Offset,
				"message_id": conf.MessageID,
			}).Debug("publish confirmed")
			conf.resolve(nil)
		}
	}()

	go func() {
		defer p.wg.Done()
		for prodErr := range p.async.Errors() {
			conf, ok := prodErr.Msg.Metadata.(*Confirmation)
			if !ok {
				continue
			}
			p.logger.WithError(prodErr.Err).WithFields(log.Fields{
				"topic":      prodErr.Msg.Topic,
				"message_id": conf.MessageID,
			}).Error("publish rejected by broker")
			conf.resolve(prodErr.Err)
		}
	}()
}

// Publish отправляет событие и возвращает handle подтверждения.
// messageID используется как correlation id.
func (p *ConfirmingProducer) Publish(topic, key, messageID string, event interface{}) (*Confirmation, error) {
	eventData, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	conf := newConfirmation(messageID)
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Timestamp: time.Now(),
		Metadata:  conf,
	}

	p.async.Input() <- msg
	return conf, nil
}

// Healthy проверяет доступность брокеров. Запрос контроллера дешёв и
// не зависит от состояния конкретного топика.
func (p *ConfirmingProducer) Healthy() bool {
	if p.client == nil {
		return true
	}
	if _, err := p.client.RefreshController(); err != nil {
		p.logger.WithError(err).Warn("kafka controller unreachable")
		return false
	}
	return true
}

// Close дожидается отправки буферизованных сообщений и закрывает producer.
func (p *ConfirmingProducer) Close() error {
	err := p.async.Close()
	p.wg.Wait()
	if p.client != nil {
		if cerr := p.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close kafka confirming producer: %w", err)
	}
	return nil
}
