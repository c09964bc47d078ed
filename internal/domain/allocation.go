package domain

import "sort"

// ExpandAllocations разворачивает аллокации в плоский список warehouse id —
// по одной записи на каждую единицу товара.
func ExpandAllocations(allocations []Allocation) []int {
	var flat []int
	for _, a := range allocations {
		for i := 0; i < a.Qty; i++ {
			flat = append(flat, a.WarehouseID)
		}
	}
	return flat
}

// AggregateAllocation сворачивает плоский список обратно в аллокации
// по складам. Результат отсортирован по warehouse id, чтобы поведение
// было детерминированным.
func AggregateAllocation(flat []int) []Allocation {
	if len(flat) == 0 {
		return nil
	}

	counts := make(map[int]int, len(flat))
	for _, id := range flat {
		counts[id]++
	}

	result := make([]Allocation, 0, len(counts))
	for id, qty := range counts {
		result = append(result, Allocation{WarehouseID: id, Qty: qty})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].WarehouseID < result[j].WarehouseID
	})
	return result
}

// DistinctWarehouses возвращает уникальные warehouse id в порядке первого появления.
func DistinctWarehouses(flat []int) []int {
	seen := make(map[int]struct{}, len(flat))
	var result []int
	for _, id := range flat {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
