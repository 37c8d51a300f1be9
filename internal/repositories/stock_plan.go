package repositories

import (
	"fmt"
	"strings"

	domain "github.com/orderdesk/api/internal/domain"
)

const (
	stockField      = "stock"
	totalStockField = "totalStock"
)

// PlanStockMovements resolves every movement against items (keyed by folded
// code) and checks that no running balance drops below zero. Movements are
// evaluated in order, so restores listed before deductions free stock for them.
// It performs no I/O; persistence layers call it before writing increments.
func PlanStockMovements(items map[string]domain.InventoryItem, movements []domain.StockMovement) ([]domain.AppliedMovement, error) {
	balances := make(map[string]int)
	planned := make([]domain.AppliedMovement, 0, len(movements))

	for _, mv := range movements {
		code := strings.TrimSpace(mv.Code)
		if code == "" {
			return nil, NewInventoryError(InventoryErrorInvalidMovement, "product code is required", nil)
		}
		if mv.Delta == 0 {
			continue
		}

		item, ok := items[domain.FoldKey(code)]
		if !ok {
			return nil, NewInventoryError(InventoryErrorStockNotFound, fmt.Sprintf("inventory item %s not found", code), nil).forLine(code, mv.Size)
		}

		var (
			sizeKey string
			path    []string
			current int
		)
		switch item.Kind {
		case domain.ItemKindSingle:
			path = []string{totalStockField}
			current = item.TotalStock
		default:
			if strings.TrimSpace(mv.Size) == "" {
				return nil, NewInventoryError(InventoryErrorInvalidMovement, fmt.Sprintf("size is required for %s", item.Code), nil).forLine(item.Code, "")
			}
			key, found := item.ResolveSize(mv.Size)
			if !found {
				return nil, NewInventoryError(InventoryErrorSizeNotFound, fmt.Sprintf("size %s not stocked for %s", mv.Size, item.Code), nil).forLine(item.Code, mv.Size)
			}
			sizeKey = key
			path = []string{stockField, key}
			current = item.Stock[key]
		}

		balanceKey := domain.FoldKey(item.Code) + "\x00" + sizeKey
		balance, seen := balances[balanceKey]
		if !seen {
			balance = current
		}
		next := balance + mv.Delta
		if next < 0 {
			err := NewInventoryError(InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s%s: available %d, requested %d", item.Code, sizeSuffix(sizeKey), balance, -mv.Delta), nil).forLine(item.Code, sizeKey)
			err.Available = balance
			err.Requested = -mv.Delta
			return nil, err
		}
		balances[balanceKey] = next

		planned = append(planned, domain.AppliedMovement{
			Code:      item.Code,
			SizeKey:   sizeKey,
			FieldPath: path,
			Delta:     mv.Delta,
			Balance:   next,
		})
	}
	return planned, nil
}

// DistinctCodes returns the folded codes referenced by movements, in first-seen order.
func DistinctCodes(movements []domain.StockMovement) []string {
	seen := make(map[string]struct{}, len(movements))
	out := make([]string, 0, len(movements))
	for _, mv := range movements {
		key := domain.FoldKey(mv.Code)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func sizeSuffix(size string) string {
	if size == "" {
		return ""
	}
	return "/" + size
}
