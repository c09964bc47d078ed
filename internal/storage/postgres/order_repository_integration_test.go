package postgres

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestOrderRepository_PostgresCreateAndGet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	createdAt := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("order-1", "customer-1", createdAt)

	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.UserID != order.UserID || got.ProductID != order.ProductID || got.Quantity != order.Quantity {
		t.Fatalf("unexpected order fields: %+v", got)
	}
	if got.TotalAmountMinor != order.TotalAmountMinor {
		t.Fatalf("expected total %d, got %d", order.TotalAmountMinor, got.TotalAmountMinor)
	}
	if !reflect.DeepEqual(got.WarehouseAllocation, order.WarehouseAllocation) {
		t.Fatalf("allocation mismatch: %v vs %v", got.WarehouseAllocation, order.WarehouseAllocation)
	}
}

func TestOrderRepository_PostgresGetMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	_, err := repo.Get("does-not-exist")
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_PostgresOptimisticLock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	createdAt := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("order-lock", "customer-lock", createdAt)
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	current, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}

	current.Status = string(domain.DeliveryStatusPickedUp)
	current.UpdatedAt = createdAt.Add(time.Second)
	if err := repo.Save(current); err != nil {
		t.Fatalf("save order: %v", err)
	}

	// Second save with the stale version must conflict.
	current.Status = string(domain.DeliveryStatusCancelled)
	if err := repo.Save(current); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected ErrOrderVersionConflict, got %v", err)
	}

	reloaded, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != string(domain.DeliveryStatusPickedUp) {
		t.Fatalf("stale save must not win, status: %s", reloaded.Status)
	}
	if reloaded.Version != order.Version+1 {
		t.Fatalf("expected version %d, got %d", order.Version+1, reloaded.Version)
	}
}

func TestOrderRepository_PostgresSaveMissing(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-missing", "customer-missing", time.Now().UTC())
	if err := repo.Save(order); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_PostgresListByUser(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)
	for i, id := range []string{"list-1", "list-2", "list-3"} {
		order := sampleOrder(id, "customer-list", base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(order); err != nil {
			t.Fatalf("create order %s: %v", id, err)
		}
	}
	other := sampleOrder("list-other", "customer-other", base)
	if err := repo.Create(other); err != nil {
		t.Fatalf("create foreign order: %v", err)
	}

	orders, err := repo.ListByUser("customer-list", 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].ID != "list-3" || orders[2].ID != "list-1" {
		t.Fatalf("expected newest-first ordering, got %s..%s", orders[0].ID, orders[2].ID)
	}

	limited, err := repo.ListByUser("customer-list", 2)
	if err != nil {
		t.Fatalf("list orders with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 orders with limit, got %d", len(limited))
	}
}

func TestOrderRepository_PostgresEmptyAllocationRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	order := sampleOrder("order-noalloc", "customer-noalloc", time.Now().UTC())
	order.WarehouseAllocation = nil
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(got.WarehouseAllocation) != 0 {
		t.Fatalf("expected empty allocation, got %v", got.WarehouseAllocation)
	}
}
