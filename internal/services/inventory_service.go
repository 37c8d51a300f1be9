package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Locations repositories.LocationRepository
	Ledger    StockLedger
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo      repositories.InventoryRepository
	locations repositories.LocationRepository
	ledger    StockLedger
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

var _ InventoryService = (*inventoryService)(nil)

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("inventory service: stock ledger is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:      deps.Inventory,
		locations: deps.Locations,
		ledger:    deps.Ledger,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) AddItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error) {
	item, err := s.buildItem(ctx, cmd)
	if err != nil {
		return InventoryItem{}, err
	}
	now := s.clock()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.repo.Insert(ctx, item); err != nil {
		return InventoryItem{}, mapInventoryError("inventory add", err)
	}
	s.logger(ctx, "inventory.item.added", map[string]any{"code": item.Code, "kind": string(item.Kind), "actor": cmd.ActorID})
	return item, nil
}

// UpdateItem overwrites catalogue fields and stock counts. Order workflows
// never call it; it exists for stock takes and corrections.
func (s *inventoryService) UpdateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error) {
	item, err := s.buildItem(ctx, cmd)
	if err != nil {
		return InventoryItem{}, err
	}
	item.UpdatedAt = s.clock()

	if err := s.repo.Replace(ctx, item); err != nil {
		return InventoryItem{}, mapInventoryError("inventory update", err)
	}
	updated, err := s.repo.FindByCode(ctx, item.Code)
	if err != nil {
		return InventoryItem{}, mapInventoryError("inventory update", err)
	}
	s.logger(ctx, "inventory.item.updated", map[string]any{"code": updated.Code, "actor": cmd.ActorID})
	return updated, nil
}

func (s *inventoryService) GetItem(ctx context.Context, code string) (InventoryItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return InventoryItem{}, fmt.Errorf("%w: product code is required", ErrInventoryInvalidInput)
	}
	item, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return InventoryItem{}, mapInventoryError("inventory get", err)
	}
	return item, nil
}

func (s *inventoryService) ListItems(ctx context.Context, filter repositories.InventoryListFilter) ([]InventoryItem, error) {
	if filter.Kind != "" && filter.Kind != domain.ItemKindVariable && filter.Kind != domain.ItemKindSingle {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInventoryInvalidInput, filter.Kind)
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, mapInventoryError("inventory list", err)
	}
	return items, nil
}

// AdjustStock applies a manual signed movement through the ledger and returns
// the item as stored afterwards.
func (s *inventoryService) AdjustStock(ctx context.Context, cmd StockAdjustmentCommand) (InventoryItem, error) {
	if strings.TrimSpace(cmd.Reason) == "" {
		return InventoryItem{}, &ValidationError{
			Kind:   ErrInventoryInvalidInput,
			Fields: map[string]string{"reason": "reason is required"},
		}
	}
	if _, err := s.ledger.Adjust(ctx, cmd); err != nil {
		return InventoryItem{}, err
	}
	item, err := s.repo.FindByCode(ctx, cmd.Code)
	if err != nil {
		return InventoryItem{}, mapInventoryError("inventory adjust", err)
	}
	return item, nil
}

func (s *inventoryService) buildItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error) {
	verr := validateStruct(ErrInventoryInvalidInput, cmd)
	if cmd.UnitCost.IsNegative() {
		verr.add("unitCost", "unitCost must not be negative")
	}
	if cmd.MRP.IsNegative() {
		verr.add("mrp", "mrp must not be negative")
	}

	stock := make(map[string]int, len(cmd.Stock))
	folded := make(map[string]string, len(cmd.Stock))
	for size, qty := range cmd.Stock {
		key := strings.TrimSpace(size)
		if prev, dup := folded[domain.FoldKey(key)]; dup {
			verr.add("stock", fmt.Sprintf("sizes %q and %q differ only by case", prev, key))
			continue
		}
		folded[domain.FoldKey(key)] = key
		stock[key] = qty
	}
	if cmd.Kind == domain.ItemKindSingle && len(stock) > 0 {
		verr.add("stock", "single items track totalStock only")
	}
	if cmd.Kind == domain.ItemKindVariable && cmd.TotalStock != 0 {
		verr.add("totalStock", "variable items track stock per size")
	}
	if err := verr.orNil(); err != nil {
		return InventoryItem{}, err
	}

	locationID := strings.TrimSpace(cmd.LocationID)
	if locationID != "" && s.locations != nil {
		if _, err := s.locations.FindByID(ctx, locationID); err != nil {
			if errors.Is(mapPersistenceError(err, ErrInventoryNotFound, ErrInventoryConflict), ErrInventoryNotFound) {
				return InventoryItem{}, &ValidationError{
					Kind:   ErrInventoryInvalidInput,
					Fields: map[string]string{"locationId": fmt.Sprintf("location %s does not exist", locationID)},
				}
			}
			return InventoryItem{}, mapPersistenceError(err, ErrInventoryNotFound, ErrInventoryConflict)
		}
	}

	item := InventoryItem{
		Code:       strings.TrimSpace(cmd.Code),
		Name:       strings.TrimSpace(cmd.Name),
		Kind:       cmd.Kind,
		UnitCost:   cmd.UnitCost.Round(2),
		MRP:        cmd.MRP.Round(2),
		LocationID: locationID,
	}
	if cmd.Kind == domain.ItemKindSingle {
		item.TotalStock = cmd.TotalStock
	} else {
		item.Stock = maps.Clone(stock)
	}
	return item, nil
}
