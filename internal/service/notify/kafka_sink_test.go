package notify_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
)

type fakePublisher struct {
	topics []string
	keys   []string
	events []interface{}
	err    error
}

func (f *fakePublisher) PublishEvent(topic string, key string, event interface{}) error {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.events = append(f.events, event)
	return f.err
}

func TestKafkaSink_Notify(t *testing.T) {
	publisher := &fakePublisher{}
	sink := notify.NewKafkaSink(publisher, nil)

	if err := sink.Notify("order-1", domain.NotifyDeliveryFailed); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(publisher.topics) != 1 || publisher.topics[0] != kafka.TopicNotifications {
		t.Fatalf("unexpected topics: %v", publisher.topics)
	}
	if publisher.keys[0] != "order-1" {
		t.Fatalf("unexpected key: %s", publisher.keys[0])
	}

	event, ok := publisher.events[0].(*kafka.NotificationEvent)
	if !ok {
		t.Fatalf("unexpected event type: %T", publisher.events[0])
	}
	if event.Kind != domain.NotifyDeliveryFailed || event.OrderID != "order-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.MessageID == "" {
		t.Fatal("message id should be set")
	}
}

func TestKafkaSink_NotifyError(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	sink := notify.NewKafkaSink(publisher, nil)

	if err := sink.Notify("order-1", domain.NotifyDeliveryFailed); err == nil {
		t.Fatal("expected publish error")
	}
}
