package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

type stubLocationRepo struct {
	insertFn func(context.Context, domain.Location) error
	findFn   func(context.Context, string) (domain.Location, error)
	listFn   func(context.Context) ([]domain.Location, error)
}

func (s *stubLocationRepo) Insert(ctx context.Context, location domain.Location) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, location)
	}
	return nil
}

func (s *stubLocationRepo) FindByID(ctx context.Context, id string) (domain.Location, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Location{ID: id}, nil
}

func (s *stubLocationRepo) List(ctx context.Context) ([]domain.Location, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func newTestInventoryService(t *testing.T, inv *memoryInventory, locations repositories.LocationRepository) InventoryService {
	t.Helper()
	ledger, _ := newTestLedger(t, inv)
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: inv,
		Locations: locations,
		Ledger:    ledger,
		Clock:     func() time.Time { return fixtureNow },
	})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	return svc
}

func TestInventoryServiceAddItem(t *testing.T) {
	inv := newMemoryInventory()
	svc := newTestInventoryService(t, inv, &stubLocationRepo{})
	ctx := context.Background()

	item, err := svc.AddItem(ctx, UpsertInventoryItemCommand{
		Code:       " TS-01 ",
		Name:       "Tee",
		Kind:       domain.ItemKindVariable,
		Stock:      map[string]int{"M": 5, " L ": 2},
		UnitCost:   dec("250.456"),
		LocationID: "loc_main",
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.Code != "TS-01" || item.Stock["L"] != 2 || !item.UnitCost.Equal(dec("250.46")) {
		t.Fatalf("unexpected item %+v", item)
	}
	if !item.CreatedAt.Equal(fixtureNow) {
		t.Fatalf("expected createdAt stamped, got %s", item.CreatedAt)
	}

	_, err = svc.AddItem(ctx, UpsertInventoryItemCommand{Code: "ts-01", Kind: domain.ItemKindVariable})
	if !errors.Is(err, ErrInventoryConflict) {
		t.Fatalf("expected conflict for case-insensitive duplicate, got %v", err)
	}
}

func TestInventoryServiceAddItemValidation(t *testing.T) {
	svc := newTestInventoryService(t, newMemoryInventory(), nil)

	tests := []struct {
		name  string
		cmd   UpsertInventoryItemCommand
		field string
	}{
		{"missing code", UpsertInventoryItemCommand{Kind: domain.ItemKindSingle}, "code"},
		{"slash in code", UpsertInventoryItemCommand{Code: "A/B", Kind: domain.ItemKindSingle}, "code"},
		{"unknown kind", UpsertInventoryItemCommand{Code: "A", Kind: "Bulk"}, "kind"},
		{"negative size stock", UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindVariable, Stock: map[string]int{"M": -1}}, "stock[M]"},
		{"sizes differing by case", UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindVariable, Stock: map[string]int{"m": 1, "M": 1}}, "stock"},
		{"single with sizes", UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindSingle, Stock: map[string]int{"M": 1}}, "stock"},
		{"negative total", UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindSingle, TotalStock: -4}, "totalStock"},
		{"negative cost", UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindSingle, UnitCost: dec("-1")}, "unitCost"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), tc.cmd)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected inventory invalid input, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected field %s in %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestInventoryServiceRejectsUnknownLocation(t *testing.T) {
	locations := &stubLocationRepo{findFn: func(context.Context, string) (domain.Location, error) {
		return domain.Location{}, notFoundError{}
	}}
	svc := newTestInventoryService(t, newMemoryInventory(), locations)

	_, err := svc.AddItem(context.Background(), UpsertInventoryItemCommand{Code: "A", Kind: domain.ItemKindSingle, LocationID: "loc_x"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["locationId"] == "" {
		t.Fatalf("expected locationId validation error, got %v", err)
	}
}

func TestInventoryServiceUpdateKeepsOriginalCode(t *testing.T) {
	created := fixtureNow.Add(-24 * time.Hour)
	existing := shirt(map[string]int{"M": 1})
	existing.CreatedAt = created
	inv := newMemoryInventory(existing)
	svc := newTestInventoryService(t, inv, nil)

	updated, err := svc.UpdateItem(context.Background(), UpsertInventoryItemCommand{
		Code:  "ts-01",
		Name:  "Tee v2",
		Kind:  domain.ItemKindVariable,
		Stock: map[string]int{"M": 9, "XL": 3},
	})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if updated.Code != "TS-01" || !updated.CreatedAt.Equal(created) || updated.Stock["XL"] != 3 {
		t.Fatalf("unexpected item %+v", updated)
	}

	_, err = svc.UpdateItem(context.Background(), UpsertInventoryItemCommand{Code: "NOPE", Kind: domain.ItemKindSingle})
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInventoryServiceAdjustStock(t *testing.T) {
	inv := newMemoryInventory(shirt(map[string]int{"M": 10}))
	svc := newTestInventoryService(t, inv, nil)
	ctx := context.Background()

	if _, err := svc.AdjustStock(ctx, StockAdjustmentCommand{Code: "TS-01", Size: "M", Delta: -3}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected reason required, got %v", err)
	}

	item, err := svc.AdjustStock(ctx, StockAdjustmentCommand{Code: "TS-01", Size: "M", Delta: -3, Reason: "stock take"})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if item.Stock["M"] != 7 {
		t.Fatalf("expected 7, got %d", item.Stock["M"])
	}

	_, err = svc.AdjustStock(ctx, StockAdjustmentCommand{Code: "TS-01", Size: "M", Delta: -8, Reason: "stock take"})
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := inv.stock("TS-01", "M"); got != 7 {
		t.Fatalf("expected stock to stay at 7, got %d", got)
	}
}

func TestInventoryServiceGetAndList(t *testing.T) {
	inv := newMemoryInventory(
		shirt(map[string]int{"M": 1}),
		domain.InventoryItem{Code: "CAP-9", Kind: domain.ItemKindSingle, TotalStock: 2},
	)
	svc := newTestInventoryService(t, inv, nil)
	ctx := context.Background()

	if _, err := svc.GetItem(ctx, "cap-9"); err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if _, err := svc.GetItem(ctx, "nope"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	items, err := svc.ListItems(ctx, repositories.InventoryListFilter{Kind: domain.ItemKindSingle})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].Code != "CAP-9" {
		t.Fatalf("unexpected items %+v", items)
	}
	if _, err := svc.ListItems(ctx, repositories.InventoryListFilter{Kind: "Bulk"}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}
