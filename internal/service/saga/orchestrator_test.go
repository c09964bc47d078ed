package saga_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type sagaRepoSpy struct {
	domain.SagaRepository
	createdIDs []string
}

func (s *sagaRepoSpy) Create(state domain.SagaState) error {
	s.createdIDs = append(s.createdIDs, state.ID)
	return s.SagaRepository.Create(state)
}

type dispatchCall struct {
	order        domain.Order
	user         domain.User
	quantity     int
	warehouseIDs []int
}

type mockDispatch struct {
	err   error
	calls []dispatchCall
}

func (m *mockDispatch) Schedule(order domain.Order, user domain.User, quantity int, warehouseIDs []int) error {
	m.calls = append(m.calls, dispatchCall{order: order, user: user, quantity: quantity, warehouseIDs: warehouseIDs})
	return m.err
}

type fixture struct {
	orch      saga.Orchestrator
	sagas     *sagaRepoSpy
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	inventory *inventory.MockService
	ledger    *ledger.MockService
	dispatch  *mockDispatch
	notify    *notify.Recorder
}

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	directory := users.NewDirectory()
	if err := directory.Add(domain.User{
		ID:            "user-1",
		Username:      "ivan",
		BankAccountID: "acc-ivan",
		FirstName:     "Ivan",
		LastName:      "Petrov",
	}); err != nil {
		t.Fatalf("add user: %v", err)
	}

	stock := inventory.NewMockService()
	stock.PlanResult = domain.AllocationPlan{
		CanFulfill:  true,
		Allocations: []domain.Allocation{{WarehouseID: 1, Qty: 2}},
	}
	stock.ReserveResp = []domain.Allocation{{WarehouseID: 1, Qty: 2}}

	f := &fixture{
		sagas:     &sagaRepoSpy{SagaRepository: memory.NewSagaRepository()},
		orders:    memory.NewOrderRepository(),
		timeline:  memory.NewTimelineRepository(),
		inventory: stock,
		ledger:    ledger.NewMockService(),
		dispatch:  &mockDispatch{},
		notify:    notify.NewRecorder(),
	}

	f.orch = saga.NewOrchestratorWithoutMetrics(
		f.sagas,
		f.orders,
		f.timeline,
		f.inventory,
		f.ledger,
		directory,
		f.dispatch,
		f.notify,
		"acc-store",
		testLogger(),
	)
	return f
}

func validRequest() saga.OrderCreationRequest {
	return saga.OrderCreationRequest{
		Username:       "ivan",
		ProductID:      7,
		Quantity:       2,
		UnitPriceMinor: 250,
	}
}

func (f *fixture) lastSaga(t *testing.T) domain.SagaState {
	t.Helper()

	if len(f.sagas.createdIDs) == 0 {
		t.Fatal("no saga was created")
	}
	state, err := f.sagas.Get(f.sagas.createdIDs[len(f.sagas.createdIDs)-1])
	if err != nil {
		t.Fatalf("load saga: %v", err)
	}
	return state
}

func TestExecuteOrderCreation_HappyPath(t *testing.T) {
	f := newFixture(t)

	order, err := f.orch.ExecuteOrderCreation(validRequest())
	if err != nil {
		t.Fatalf("saga failed: %v", err)
	}

	if order.TotalAmountMinor != 500 {
		t.Fatalf("unexpected total: %d", order.TotalAmountMinor)
	}
	if order.DeliveryStatus() != domain.DeliveryStatusReceived {
		t.Fatalf("expected RECEIVED, got %s", order.Status)
	}
	if len(order.WarehouseAllocation) != 2 || order.WarehouseAllocation[0] != 1 {
		t.Fatalf("unexpected allocation: %v", order.WarehouseAllocation)
	}
	if order.BankTransactionID == "" {
		t.Fatal("payment transaction must be recorded on the order")
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusCompleted {
		t.Fatalf("expected COMPLETED saga, got %s", state.Status)
	}
	if state.OrderID != order.ID {
		t.Fatalf("saga must record the order id")
	}
	if state.PaymentTransactionID == "" {
		t.Fatal("saga must record the payment transaction id")
	}

	if len(f.dispatch.calls) != 1 {
		t.Fatalf("expected one dispatch call, got %d", len(f.dispatch.calls))
	}
	call := f.dispatch.calls[0]
	if call.quantity != 2 || len(call.warehouseIDs) != 1 || call.warehouseIDs[0] != 1 {
		t.Fatalf("unexpected dispatch call: %+v", call)
	}
	if call.user.BankAccountID != "acc-ivan" {
		t.Fatalf("dispatch got wrong user: %+v", call.user)
	}
}

func TestExecuteOrderCreation_UserNotFound(t *testing.T) {
	f := newFixture(t)

	req := validRequest()
	req.Username = "ghost"

	_, err := f.orch.ExecuteOrderCreation(req)
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("client must see the generic failure, got %v", err)
	}

	if f.inventory.PlanCalls != 0 || f.inventory.ReserveCalls != 0 {
		t.Fatal("inventory must not be touched when the user is unknown")
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusCompensated {
		t.Fatalf("expected COMPENSATED saga, got %s", state.Status)
	}
	if state.ErrorMessage == "" {
		t.Fatal("saga must record the step error")
	}
}

func TestExecuteOrderCreation_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.inventory.PlanResult = domain.AllocationPlan{CanFulfill: false}

	_, err := f.orch.ExecuteOrderCreation(validRequest())
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("client must see the generic failure, got %v", err)
	}

	if f.inventory.ReserveCalls != 0 {
		t.Fatal("reserve must not run when the plan cannot fulfill")
	}
	if f.inventory.ReleaseCalls != 0 {
		t.Fatal("nothing was reserved, nothing to release")
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusCompensated {
		t.Fatalf("expected COMPENSATED saga, got %s", state.Status)
	}
}

func TestExecuteOrderCreation_PaymentFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.ledger.PayErr = domain.ErrInsufficientFunds

	_, err := f.orch.ExecuteOrderCreation(validRequest())
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("client must see the generic failure, got %v", err)
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusCompensated {
		t.Fatalf("expected COMPENSATED saga, got %s", state.Status)
	}

	// Оплата не прошла, возвращать нечего.
	if f.ledger.RefundCalls != 0 {
		t.Fatalf("refund must not run for a failed payment, got %d calls", f.ledger.RefundCalls)
	}

	if f.inventory.ReleaseCalls != 1 {
		t.Fatalf("expected one release call, got %d", f.inventory.ReleaseCalls)
	}
	released := f.inventory.ReleasedAllocations[0]
	if len(released) != 1 || released[0].WarehouseID != 1 || released[0].Qty != 2 {
		t.Fatalf("unexpected released allocations: %+v", released)
	}

	order, err := f.orders.Get(state.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.DeliveryStatus() != domain.DeliveryStatusCancelled {
		t.Fatalf("expected CANCELLED order, got %s", order.Status)
	}
}

func TestExecuteOrderCreation_DispatchFailureRefundsPayment(t *testing.T) {
	f := newFixture(t)
	f.dispatch.err = domain.ErrBrokerUnavailable

	_, err := f.orch.ExecuteOrderCreation(validRequest())
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("client must see the generic failure, got %v", err)
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusCompensated {
		t.Fatalf("expected COMPENSATED saga, got %s", state.Status)
	}

	// Компенсация после оплаты разматывает все три шага.
	if f.ledger.RefundCalls != 1 {
		t.Fatalf("expected one refund, got %d", f.ledger.RefundCalls)
	}
	if f.inventory.ReleaseCalls != 1 {
		t.Fatalf("expected one release, got %d", f.inventory.ReleaseCalls)
	}

	order, err := f.orders.Get(state.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.DeliveryStatus() != domain.DeliveryStatusCancelled {
		t.Fatalf("expected CANCELLED order, got %s", order.Status)
	}
}

func TestExecuteOrderCreation_PartialCompensationFails(t *testing.T) {
	f := newFixture(t)
	f.dispatch.err = domain.ErrBrokerUnavailable
	f.ledger.RefundErr = errors.New("bank down")

	_, err := f.orch.ExecuteOrderCreation(validRequest())
	if !errors.Is(err, domain.ErrOrderCreationFailed) {
		t.Fatalf("client must see the generic failure, got %v", err)
	}

	state := f.lastSaga(t)
	if state.Status != domain.SagaStatusFailed {
		t.Fatalf("expected FAILED saga, got %s", state.Status)
	}
	if !strings.Contains(state.ErrorMessage, "FAILED_PAYMENT") {
		t.Fatalf("error message must name the failed step: %q", state.ErrorMessage)
	}

	// Провал одного шага не останавливает остальные.
	if f.inventory.ReleaseCalls != 1 {
		t.Fatalf("inventory must still be released, got %d calls", f.inventory.ReleaseCalls)
	}
	order, err := f.orders.Get(state.OrderID)
	if err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.DeliveryStatus() != domain.DeliveryStatusCancelled {
		t.Fatalf("order must still be cancelled, got %s", order.Status)
	}
}

func TestCompensate_TerminalSagaUntouched(t *testing.T) {
	f := newFixture(t)

	order, err := f.orch.ExecuteOrderCreation(validRequest())
	if err != nil {
		t.Fatalf("saga failed: %v", err)
	}

	if err := f.orch.Compensate(f.sagas.createdIDs[0]); err != nil {
		t.Fatalf("compensating a completed saga must be a no-op, got %v", err)
	}

	if f.ledger.RefundCalls != 0 || f.inventory.ReleaseCalls != 0 {
		t.Fatal("no compensating actions for a completed saga")
	}

	stored, _ := f.orders.Get(order.ID)
	if stored.DeliveryStatus() != domain.DeliveryStatusReceived {
		t.Fatalf("order must stay RECEIVED, got %s", stored.Status)
	}
}

func TestExecuteRefund(t *testing.T) {
	f := newFixture(t)

	order := domain.Order{
		ID:                  "order-1",
		UserID:              "user-1",
		ProductID:           7,
		Quantity:            3,
		TotalAmountMinor:    750,
		Status:              string(domain.DeliveryStatusReceived),
		BankTransactionID:   "tx-1",
		WarehouseAllocation: []int{1, 1, 2},
	}
	if err := f.orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := f.orch.ExecuteRefund("order-1"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	if f.ledger.RefundCalls != 1 {
		t.Fatalf("expected one refund, got %d", f.ledger.RefundCalls)
	}

	stored, _ := f.orders.Get("order-1")
	if stored.DeliveryStatus() != domain.DeliveryStatusCancelled {
		t.Fatalf("expected CANCELLED order, got %s", stored.Status)
	}

	if f.inventory.ReleaseCalls != 1 {
		t.Fatalf("expected one release, got %d", f.inventory.ReleaseCalls)
	}
	released := f.inventory.ReleasedAllocations[0]
	if len(released) != 2 || released[0].WarehouseID != 1 || released[0].Qty != 2 || released[1].WarehouseID != 2 || released[1].Qty != 1 {
		t.Fatalf("allocation must be re-aggregated by warehouse: %+v", released)
	}

	calls := f.notify.Recorded()
	if len(calls) != 1 || calls[0].Kind != string(domain.DeliveryStatusCancelled) {
		t.Fatalf("unexpected notifications: %+v", calls)
	}
}

func TestExecuteRefund_RejectedAfterPickup(t *testing.T) {
	f := newFixture(t)

	order := domain.Order{
		ID:                "order-1",
		UserID:            "user-1",
		ProductID:         7,
		Quantity:          1,
		TotalAmountMinor:  250,
		Status:            string(domain.DeliveryStatusPickedUp),
		BankTransactionID: "tx-1",
	}
	if err := f.orders.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	err := f.orch.ExecuteRefund("order-1")
	if !errors.Is(err, domain.ErrRefundNotAllowed) {
		t.Fatalf("expected ErrRefundNotAllowed, got %v", err)
	}

	if f.ledger.RefundCalls != 0 {
		t.Fatal("refund must not run for an order in delivery")
	}
	stored, _ := f.orders.Get("order-1")
	if stored.DeliveryStatus() != domain.DeliveryStatusPickedUp {
		t.Fatalf("order must stay PICKED_UP, got %s", stored.Status)
	}
}

func TestExecuteRefund_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	err := f.orch.ExecuteRefund("ghost")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
