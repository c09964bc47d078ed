package fsm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestDeliveryStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		name         string
		currentState domain.DeliveryStatus
		event        string
		wantState    domain.DeliveryStatus
	}{
		{
			name:         "received to picked up",
			currentState: domain.DeliveryStatusReceived,
			event:        EventPickUp,
			wantState:    domain.DeliveryStatusPickedUp,
		},
		{
			name:         "picked up to on delivery",
			currentState: domain.DeliveryStatusPickedUp,
			event:        EventDepart,
			wantState:    domain.DeliveryStatusOnDelivery,
		},
		{
			name:         "on delivery to delivered",
			currentState: domain.DeliveryStatusOnDelivery,
			event:        EventDeliver,
			wantState:    domain.DeliveryStatusDelivered,
		},
		{
			name:         "on delivery to lost",
			currentState: domain.DeliveryStatusOnDelivery,
			event:        EventLose,
			wantState:    domain.DeliveryStatusLost,
		},
		{
			name:         "received to cancelled",
			currentState: domain.DeliveryStatusReceived,
			event:        EventCancel,
			wantState:    domain.DeliveryStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsm := NewDeliveryStateMachine()
			ctx := context.Background()

			newState, err := dsm.Transition(ctx, tt.currentState, tt.event)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if newState != tt.wantState {
				t.Errorf("got state %q, want %q", newState, tt.wantState)
			}
		})
	}
}

func TestDeliveryStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name         string
		currentState domain.DeliveryStatus
		event        string
	}{
		{
			name:         "received cannot deliver directly",
			currentState: domain.DeliveryStatusReceived,
			event:        EventDeliver,
		},
		{
			name:         "received cannot be lost",
			currentState: domain.DeliveryStatusReceived,
			event:        EventLose,
		},
		{
			name:         "picked up cannot cancel",
			currentState: domain.DeliveryStatusPickedUp,
			event:        EventCancel,
		},
		{
			name:         "on delivery cannot cancel",
			currentState: domain.DeliveryStatusOnDelivery,
			event:        EventCancel,
		},
		{
			name:         "delivered is terminal",
			currentState: domain.DeliveryStatusDelivered,
			event:        EventLose,
		},
		{
			name:         "lost is terminal",
			currentState: domain.DeliveryStatusLost,
			event:        EventDeliver,
		},
		{
			name:         "cancelled is terminal",
			currentState: domain.DeliveryStatusCancelled,
			event:        EventPickUp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsm := NewDeliveryStateMachine()
			ctx := context.Background()

			_, err := dsm.Transition(ctx, tt.currentState, tt.event)
			if err == nil {
				t.Errorf("expected error for invalid transition %s + %s", tt.currentState, tt.event)
			}

			if !errors.Is(err, domain.ErrInvalidStatusTransition) {
				t.Errorf("expected ErrInvalidStatusTransition, got %T: %v", err, err)
			}
		})
	}
}

func TestDeliveryStateMachine_CanTransition(t *testing.T) {
	dsm := NewDeliveryStateMachine()

	tests := []struct {
		currentState domain.DeliveryStatus
		event        string
		want         bool
	}{
		{domain.DeliveryStatusReceived, EventPickUp, true},
		{domain.DeliveryStatusReceived, EventCancel, true},
		{domain.DeliveryStatusReceived, EventDeliver, false},
		{domain.DeliveryStatusPickedUp, EventDepart, true},
		{domain.DeliveryStatusPickedUp, EventCancel, false},
		{domain.DeliveryStatusOnDelivery, EventDeliver, true},
		{domain.DeliveryStatusOnDelivery, EventLose, true},
		{domain.DeliveryStatusDelivered, EventLose, false},
		{domain.DeliveryStatusLost, EventDeliver, false},
		{domain.DeliveryStatusCancelled, EventPickUp, false},
	}

	for _, tt := range tests {
		name := string(tt.currentState) + "_" + tt.event
		t.Run(name, func(t *testing.T) {
			got := dsm.CanTransition(tt.currentState, tt.event)
			if got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.currentState, tt.event, got, tt.want)
			}
		})
	}
}

func TestEventForStatus(t *testing.T) {
	tests := []struct {
		target    domain.DeliveryStatus
		wantEvent string
	}{
		{domain.DeliveryStatusPickedUp, EventPickUp},
		{domain.DeliveryStatusOnDelivery, EventDepart},
		{domain.DeliveryStatusDelivered, EventDeliver},
		{domain.DeliveryStatusLost, EventLose},
		{domain.DeliveryStatusCancelled, EventCancel},
	}

	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			got, err := EventForStatus(tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantEvent {
				t.Errorf("EventForStatus(%s) = %q, want %q", tt.target, got, tt.wantEvent)
			}
		})
	}

	if _, err := EventForStatus(domain.DeliveryStatusReceived); !errors.Is(err, domain.ErrInvalidDeliveryStatus) {
		t.Errorf("expected ErrInvalidDeliveryStatus for RECEIVED target, got %v", err)
	}
}

func TestDeliveryStateMachine_ConcurrentAccess(t *testing.T) {
	dsm := NewDeliveryStateMachine()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			dsm.CanTransition(domain.DeliveryStatusReceived, EventPickUp)
			dsm.AvailableEvents(domain.DeliveryStatusOnDelivery)

			_, _ = dsm.Transition(ctx, domain.DeliveryStatusReceived, EventPickUp)
			_, _ = dsm.Transition(ctx, domain.DeliveryStatusPickedUp, EventDepart)
		}()
	}

	wg.Wait()
}
