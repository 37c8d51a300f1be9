package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository implements repositories.InventoryRepository. Documents are
// keyed by the folded product code so lookups are case-insensitive.
type InventoryRepository struct {
	uow   repositories.UnitOfWork
	items *pfirestore.BaseRepository[inventoryDocument]
	clock func() time.Time
}

func NewInventoryRepository(provider *pfirestore.Provider, uow repositories.UnitOfWork) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	if uow == nil {
		uow = pfirestore.NewUnitOfWork(provider)
	}
	items := pfirestore.NewBaseRepository[inventoryDocument](provider, inventoryCollection, nil, nil)
	return &InventoryRepository{
		uow:   uow,
		items: items,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *InventoryRepository) Insert(ctx context.Context, item domain.InventoryItem) error {
	if r == nil || r.items == nil {
		return errors.New("inventory repository not initialised")
	}
	id := domain.FoldKey(item.Code)
	if id == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidMovement, "inventory insert: code is required", nil)
	}
	err := r.items.Create(ctx, id, newInventoryDocument(item))
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return wrapInventoryError("inventory.insert", repositories.NewInventoryError(repositories.InventoryErrorDuplicate, fmt.Sprintf("inventory item %s already exists", item.Code), err))
		}
		return wrapInventoryError("inventory.insert", err)
	}
	return nil
}

// Replace overwrites an existing item. The original code casing and creation
// time are preserved.
func (r *InventoryRepository) Replace(ctx context.Context, item domain.InventoryItem) error {
	if r == nil || r.items == nil {
		return errors.New("inventory repository not initialised")
	}
	id := domain.FoldKey(item.Code)
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		current, err := r.items.Get(ctx, id)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("inventory item %s not found", item.Code), err)
			}
			return err
		}
		doc := newInventoryDocument(item)
		doc.Code = current.Data.Code
		doc.CreatedAt = current.Data.CreatedAt
		return r.items.Set(ctx, id, doc)
	})
	return wrapInventoryError("inventory.replace", err)
}

func (r *InventoryRepository) FindByCode(ctx context.Context, code string) (domain.InventoryItem, error) {
	if r == nil || r.items == nil {
		return domain.InventoryItem{}, errors.New("inventory repository not initialised")
	}
	id := domain.FoldKey(code)
	if id == "" {
		return domain.InventoryItem{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidMovement, "inventory find: code is required", nil)
	}
	doc, err := r.items.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.InventoryItem{}, wrapInventoryError("inventory.find", repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("inventory item %s not found", code), err))
		}
		return domain.InventoryItem{}, wrapInventoryError("inventory.find", err)
	}
	return doc.Data.toDomain(), nil
}

// FindByCodes returns the items found, keyed by folded code. Unknown codes are omitted.
func (r *InventoryRepository) FindByCodes(ctx context.Context, codes []string) (map[string]domain.InventoryItem, error) {
	if r == nil || r.items == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	ids := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		id := domain.FoldKey(code)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	docs, err := r.items.GetAll(ctx, ids)
	if err != nil {
		return nil, wrapInventoryError("inventory.findMany", err)
	}
	out := make(map[string]domain.InventoryItem, len(docs))
	for id, doc := range docs {
		out[id] = doc.Data.toDomain()
	}
	return out, nil
}

func (r *InventoryRepository) List(ctx context.Context, filter repositories.InventoryListFilter) ([]domain.InventoryItem, error) {
	if r == nil || r.items == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		if loc := strings.TrimSpace(filter.LocationID); loc != "" {
			q = q.Where("locationId", "==", loc)
		}
		if filter.Kind != "" {
			q = q.Where("kind", "==", string(filter.Kind))
		}
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, wrapInventoryError("inventory.list", err)
	}
	items := make([]domain.InventoryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain())
	}
	return items, nil
}

// ApplyMovements reads every referenced item, plans the movements against the
// snapshot and writes one increment per document. It joins the caller's
// transaction when ctx carries one.
func (r *InventoryRepository) ApplyMovements(ctx context.Context, movements []domain.StockMovement) ([]domain.AppliedMovement, error) {
	if r == nil || r.items == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if len(movements) == 0 {
		return nil, nil
	}

	var applied []domain.AppliedMovement
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		docs, err := r.items.GetAll(ctx, repositories.DistinctCodes(movements))
		if err != nil {
			return err
		}
		items := make(map[string]domain.InventoryItem, len(docs))
		for id, doc := range docs {
			items[id] = doc.Data.toDomain()
		}

		planned, err := repositories.PlanStockMovements(items, movements)
		if err != nil {
			return err
		}

		order := make([]string, 0, len(docs))
		increments := make(map[string]map[string]*pfirestore.FieldIncrement)
		for _, mv := range planned {
			id := domain.FoldKey(mv.Code)
			perDoc, ok := increments[id]
			if !ok {
				perDoc = make(map[string]*pfirestore.FieldIncrement)
				increments[id] = perDoc
				order = append(order, id)
			}
			key := strings.Join(mv.FieldPath, "\x00")
			if inc, ok := perDoc[key]; ok {
				inc.Delta += int64(mv.Delta)
				continue
			}
			perDoc[key] = &pfirestore.FieldIncrement{Path: firestore.FieldPath(mv.FieldPath), Delta: int64(mv.Delta)}
		}

		now := r.clock()
		for _, id := range order {
			incs := make([]pfirestore.FieldIncrement, 0, len(increments[id]))
			for _, inc := range increments[id] {
				incs = append(incs, *inc)
			}
			if err := r.items.Increment(ctx, id, incs, firestore.Update{Path: "updatedAt", Value: now}); err != nil {
				return err
			}
		}
		applied = planned
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError("inventory.applyMovements", err)
	}
	return applied, nil
}

type inventoryDocument struct {
	Code       string         `firestore:"code"`
	Name       string         `firestore:"name"`
	Kind       string         `firestore:"kind"`
	Stock      map[string]int `firestore:"stock,omitempty"`
	TotalStock int            `firestore:"totalStock"`
	UnitCost   float64        `firestore:"unitCost"`
	MRP        float64        `firestore:"mrp"`
	LocationID string         `firestore:"locationId,omitempty"`
	CreatedAt  time.Time      `firestore:"createdAt"`
	UpdatedAt  time.Time      `firestore:"updatedAt"`
}

func newInventoryDocument(item domain.InventoryItem) inventoryDocument {
	doc := inventoryDocument{
		Code:       strings.TrimSpace(item.Code),
		Name:       strings.TrimSpace(item.Name),
		Kind:       string(item.Kind),
		UnitCost:   item.UnitCost.InexactFloat64(),
		MRP:        item.MRP.InexactFloat64(),
		LocationID: strings.TrimSpace(item.LocationID),
		CreatedAt:  item.CreatedAt.UTC(),
		UpdatedAt:  item.UpdatedAt.UTC(),
	}
	if item.Kind == domain.ItemKindSingle {
		doc.TotalStock = item.TotalStock
	} else {
		doc.Stock = make(map[string]int, len(item.Stock))
		for size, qty := range item.Stock {
			doc.Stock[size] = qty
		}
	}
	return doc
}

func (d inventoryDocument) toDomain() domain.InventoryItem {
	item := domain.InventoryItem{
		Code:       d.Code,
		Name:       d.Name,
		Kind:       domain.ItemKind(d.Kind),
		TotalStock: d.TotalStock,
		UnitCost:   decimal.NewFromFloat(d.UnitCost),
		MRP:        decimal.NewFromFloat(d.MRP),
		LocationID: d.LocationID,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	if item.Kind == "" {
		item.Kind = domain.ItemKindVariable
	}
	if len(d.Stock) > 0 {
		item.Stock = make(map[string]int, len(d.Stock))
		for size, qty := range d.Stock {
			item.Stock[size] = qty
		}
	}
	return item
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
