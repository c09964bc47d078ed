package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// sagaRepositoryInMemory хранит состояния саг в памяти.
type sagaRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SagaState
}

// NewSagaRepository возвращает in-memory реализацию SagaRepository.
func NewSagaRepository() domain.SagaRepository {
	return &sagaRepositoryInMemory{
		items: make(map[string]domain.SagaState),
	}
}

// Create сохраняет новую сагу.
func (r *sagaRepositoryInMemory) Create(saga domain.SagaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[saga.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.items[saga.ID] = cloneSaga(saga)
	return nil
}

// Get возвращает сагу или ErrSagaNotFound.
func (r *sagaRepositoryInMemory) Get(id string) (domain.SagaState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saga, ok := r.items[id]
	if !ok {
		return domain.SagaState{}, domain.ErrSagaNotFound
	}
	return cloneSaga(saga), nil
}

// Save перезаписывает сагу целиком.
func (r *sagaRepositoryInMemory) Save(saga domain.SagaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[saga.ID]; !ok {
		return domain.ErrSagaNotFound
	}
	r.items[saga.ID] = cloneSaga(saga)
	return nil
}

func cloneSaga(src domain.SagaState) domain.SagaState {
	dst := src
	dst.WarehouseAllocation = append([]int(nil), src.WarehouseAllocation...)
	return dst
}

var _ domain.SagaRepository = (*sagaRepositoryInMemory)(nil)
