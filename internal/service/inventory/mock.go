package inventory

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// MockService — конфигурируемая заглушка InventoryService для тестов.
type MockService struct {
	PlanResult  domain.AllocationPlan
	PlanErr     error
	ReserveResp []domain.Allocation
	ReserveErr  error
	ReleaseErr  error
	ConfirmErr  error

	PlanCalls    int
	ReserveCalls int
	ReleaseCalls int
	ConfirmCalls int

	ReleasedAllocations [][]domain.Allocation
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		PlanResult: domain.AllocationPlan{
			CanFulfill:  true,
			Allocations: []domain.Allocation{{WarehouseID: 1, Qty: 1}},
		},
		ReserveResp: []domain.Allocation{{WarehouseID: 1, Qty: 1}},
	}
}

// Plan возвращает заранее настроенный план и считает вызовы.
func (m *MockService) Plan(productID, quantity int) (domain.AllocationPlan, error) {
	m.PlanCalls++
	return m.PlanResult, m.PlanErr
}

// Reserve возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Reserve(productID, quantity int, orderID string) ([]domain.Allocation, error) {
	m.ReserveCalls++
	return m.ReserveResp, m.ReserveErr
}

// Release считает вызовы и запоминает переданные аллокации.
func (m *MockService) Release(productID int, allocations []domain.Allocation) error {
	m.ReleaseCalls++
	m.ReleasedAllocations = append(m.ReleasedAllocations, allocations)
	return m.ReleaseErr
}

// Confirm возвращает настроенную ошибку и считает вызовы.
func (m *MockService) Confirm(orderID string) error {
	m.ConfirmCalls++
	return m.ConfirmErr
}

var _ domain.InventoryService = (*MockService)(nil)
