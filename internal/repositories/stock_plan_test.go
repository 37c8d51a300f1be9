package repositories

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/orderdesk/api/internal/domain"
)

func planItems() map[string]domain.InventoryItem {
	return map[string]domain.InventoryItem{
		"a1":  {Code: "A1", Kind: domain.ItemKindVariable, Stock: map[string]int{"M": 10, "xl": 1}},
		"cap": {Code: "CAP", Kind: domain.ItemKindSingle, TotalStock: 2},
	}
}

func TestPlanStockMovementsResolvesStoredKeys(t *testing.T) {
	planned, err := PlanStockMovements(planItems(), []domain.StockMovement{
		{Code: "a1", Size: "m", Delta: -3},
		{Code: "A1", Size: "XL", Delta: -1},
		{Code: "cap", Delta: 1},
	})
	require.NoError(t, err)
	require.Len(t, planned, 3)

	assert.Equal(t, "A1", planned[0].Code)
	assert.Equal(t, "M", planned[0].SizeKey)
	assert.Equal(t, []string{"stock", "M"}, planned[0].FieldPath)
	assert.Equal(t, 7, planned[0].Balance)

	assert.Equal(t, "xl", planned[1].SizeKey)
	assert.Equal(t, 0, planned[1].Balance)

	assert.Equal(t, []string{"totalStock"}, planned[2].FieldPath)
	assert.Equal(t, 3, planned[2].Balance)
}

func TestPlanStockMovementsRejectsOversell(t *testing.T) {
	_, err := PlanStockMovements(planItems(), []domain.StockMovement{{Code: "A1", Size: "M", Delta: -11}})
	var invErr *InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, InventoryErrorInsufficientStock, invErr.Code)
	assert.Equal(t, 10, invErr.Available)
	assert.Equal(t, 11, invErr.Requested)
	assert.Equal(t, "M", invErr.Size)
}

func TestPlanStockMovementsRestoreBeforeDeduct(t *testing.T) {
	// CAP has 2 on hand; a restore listed first makes room for a larger deduction.
	_, err := PlanStockMovements(planItems(), []domain.StockMovement{
		{Code: "CAP", Delta: 2},
		{Code: "CAP", Delta: -4},
	})
	require.NoError(t, err)

	_, err = PlanStockMovements(planItems(), []domain.StockMovement{
		{Code: "CAP", Delta: -4},
		{Code: "CAP", Delta: 2},
	})
	require.Error(t, err)
}

func TestPlanStockMovementsMissingItemOrSize(t *testing.T) {
	_, err := PlanStockMovements(planItems(), []domain.StockMovement{{Code: "ZZ", Size: "M", Delta: 1}})
	var invErr *InventoryError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, InventoryErrorStockNotFound, invErr.Code)

	_, err = PlanStockMovements(planItems(), []domain.StockMovement{{Code: "A1", Size: "S", Delta: 1}})
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, InventoryErrorSizeNotFound, invErr.Code)

	_, err = PlanStockMovements(planItems(), []domain.StockMovement{{Code: "A1", Delta: 1}})
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, InventoryErrorInvalidMovement, invErr.Code)
}

func TestPlanStockMovementsSkipsZeroDelta(t *testing.T) {
	planned, err := PlanStockMovements(planItems(), []domain.StockMovement{{Code: "ZZ", Delta: 0}})
	require.NoError(t, err)
	assert.Empty(t, planned)
}

func TestDistinctCodes(t *testing.T) {
	codes := DistinctCodes([]domain.StockMovement{{Code: "A1"}, {Code: "a1"}, {Code: "Cap"}, {Code: " "}})
	assert.Equal(t, []string{"a1", "cap"}, codes)
}
