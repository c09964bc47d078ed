package domain

// WarehouseStock — остаток товара на конкретном складе.
// Составной ключ (WarehouseID, ProductID); Quantity никогда не уходит в минус.
type WarehouseStock struct {
	WarehouseID int
	ProductID   int
	Quantity    int
}

// Validate проверяет корректность записи остатка.
func (w *WarehouseStock) Validate() []error {
	var errs []error

	if w.WarehouseID <= 0 {
		errs = append(errs, ErrWarehouseRequired)
	}
	if w.ProductID <= 0 {
		errs = append(errs, ErrProductRequired)
	}
	if w.Quantity < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}

// Allocation — доля резерва, пришедшаяся на один склад.
type Allocation struct {
	WarehouseID int
	Qty         int
}

// AllocationPlan — результат жадного планирования резерва по складам.
// План чисто информационный: plan не мутирует остатки.
type AllocationPlan struct {
	CanFulfill  bool
	Allocations []Allocation
}
