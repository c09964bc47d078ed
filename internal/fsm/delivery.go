// Package fsm holds the delivery lifecycle state machine. The underlying
// fsm instance is stateless from the caller's point of view: the current
// state is injected per call, so one machine serves every order.
package fsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	EventPickUp  = "pick_up"
	EventDepart  = "depart"
	EventDeliver = "deliver"
	EventLose    = "lose"
	EventCancel  = "cancel"
)

// DeliveryStateMachine validates and applies delivery status transitions.
// Cancellation is only reachable from RECEIVED; DELIVERED, LOST and
// CANCELLED are terminal.
type DeliveryStateMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

func NewDeliveryStateMachine() *DeliveryStateMachine {
	dsm := &DeliveryStateMachine{}
	dsm.fsm = fsm.NewFSM(
		string(domain.DeliveryStatusReceived),
		fsm.Events{
			{Name: EventPickUp, Src: []string{string(domain.DeliveryStatusReceived)}, Dst: string(domain.DeliveryStatusPickedUp)},
			{Name: EventDepart, Src: []string{string(domain.DeliveryStatusPickedUp)}, Dst: string(domain.DeliveryStatusOnDelivery)},
			{Name: EventDeliver, Src: []string{string(domain.DeliveryStatusOnDelivery)}, Dst: string(domain.DeliveryStatusDelivered)},
			{Name: EventLose, Src: []string{string(domain.DeliveryStatusOnDelivery)}, Dst: string(domain.DeliveryStatusLost)},
			{Name: EventCancel, Src: []string{string(domain.DeliveryStatusReceived)}, Dst: string(domain.DeliveryStatusCancelled)},
		},
		fsm.Callbacks{},
	)
	return dsm
}

// CanTransition reports whether event is allowed from currentState.
func (dsm *DeliveryStateMachine) CanTransition(currentState domain.DeliveryStatus, event string) bool {
	dsm.mu.Lock()
	defer dsm.mu.Unlock()
	dsm.fsm.SetState(string(currentState))
	return dsm.fsm.Can(event)
}

// Transition applies event from currentState and returns the resulting
// status. A forbidden transition yields domain.ErrInvalidStatusTransition
// so callers do not depend on looplab error types.
func (dsm *DeliveryStateMachine) Transition(ctx context.Context, currentState domain.DeliveryStatus, event string) (domain.DeliveryStatus, error) {
	dsm.mu.Lock()
	defer dsm.mu.Unlock()
	dsm.fsm.SetState(string(currentState))
	if err := dsm.fsm.Event(ctx, event); err != nil {
		return "", fmt.Errorf("%w: %s from %s: %v", domain.ErrInvalidStatusTransition, event, currentState, err)
	}
	return domain.DeliveryStatus(dsm.fsm.Current()), nil
}

// AvailableEvents lists the events allowed from currentState.
func (dsm *DeliveryStateMachine) AvailableEvents(currentState domain.DeliveryStatus) []string {
	dsm.mu.Lock()
	defer dsm.mu.Unlock()
	dsm.fsm.SetState(string(currentState))
	return dsm.fsm.AvailableTransitions()
}

// EventForStatus maps a desired target status to the event that produces it.
// Delivery updates arrive as target statuses, not events, so consumers use
// this to drive the machine.
func EventForStatus(target domain.DeliveryStatus) (string, error) {
	switch target {
	case domain.DeliveryStatusPickedUp:
		return EventPickUp, nil
	case domain.DeliveryStatusOnDelivery:
		return EventDepart, nil
	case domain.DeliveryStatusDelivered:
		return EventDeliver, nil
	case domain.DeliveryStatusLost:
		return EventLose, nil
	case domain.DeliveryStatusCancelled:
		return EventCancel, nil
	default:
		return "", domain.ErrInvalidDeliveryStatus
	}
}
