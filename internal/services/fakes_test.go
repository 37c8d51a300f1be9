package services

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

// memoryInventory plans movements with the same planner the Firestore
// repository uses and applies them to an in-memory map.
type memoryInventory struct {
	mu      sync.Mutex
	items   map[string]domain.InventoryItem
	applyFn func([]domain.StockMovement) error
	applied [][]domain.StockMovement
}

func newMemoryInventory(items ...domain.InventoryItem) *memoryInventory {
	inv := &memoryInventory{items: make(map[string]domain.InventoryItem)}
	for _, item := range items {
		if item.Kind == "" {
			item.Kind = domain.ItemKindVariable
		}
		inv.items[domain.FoldKey(item.Code)] = item
	}
	return inv
}

func (m *memoryInventory) Insert(_ context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.FoldKey(item.Code)
	if _, ok := m.items[key]; ok {
		return repositories.NewInventoryError(repositories.InventoryErrorDuplicate, "inventory item "+item.Code+" already exists", nil)
	}
	m.items[key] = item
	return nil
}

func (m *memoryInventory) Replace(_ context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := domain.FoldKey(item.Code)
	current, ok := m.items[key]
	if !ok {
		return repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "inventory item "+item.Code+" not found", nil)
	}
	item.Code = current.Code
	item.CreatedAt = current.CreatedAt
	m.items[key] = item
	return nil
}

func (m *memoryInventory) FindByCode(_ context.Context, code string) (domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[domain.FoldKey(code)]
	if !ok {
		return domain.InventoryItem{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "inventory item "+code+" not found", nil)
	}
	return cloneItem(item), nil
}

func (m *memoryInventory) FindByCodes(_ context.Context, codes []string) (map[string]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.InventoryItem)
	for _, code := range codes {
		key := domain.FoldKey(code)
		if item, ok := m.items[key]; ok {
			out[key] = cloneItem(item)
		}
	}
	return out, nil
}

func (m *memoryInventory) List(_ context.Context, filter repositories.InventoryListFilter) ([]domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InventoryItem
	for _, item := range m.items {
		if filter.Kind != "" && item.Kind != filter.Kind {
			continue
		}
		if filter.LocationID != "" && item.LocationID != filter.LocationID {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return domain.FoldKey(out[i].Code) < domain.FoldKey(out[j].Code) })
	return out, nil
}

func (m *memoryInventory) ApplyMovements(_ context.Context, movements []domain.StockMovement) ([]domain.AppliedMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyFn != nil {
		if err := m.applyFn(movements); err != nil {
			return nil, err
		}
	}
	planned, err := repositories.PlanStockMovements(m.items, movements)
	if err != nil {
		return nil, err
	}
	for _, mv := range planned {
		key := domain.FoldKey(mv.Code)
		item := cloneItem(m.items[key])
		if item.Kind == domain.ItemKindSingle {
			item.TotalStock += mv.Delta
		} else {
			item.Stock[mv.SizeKey] += mv.Delta
		}
		m.items[key] = item
	}
	m.applied = append(m.applied, append([]domain.StockMovement(nil), movements...))
	return planned, nil
}

func (m *memoryInventory) stock(code, size string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.items[domain.FoldKey(code)]
	available, _ := item.Available(size)
	return available
}

func (m *memoryInventory) snapshot() map[string]domain.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.InventoryItem, len(m.items))
	for key, item := range m.items {
		out[key] = cloneItem(item)
	}
	return out
}

func (m *memoryInventory) restore(items map[string]domain.InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

func cloneItem(item domain.InventoryItem) domain.InventoryItem {
	item.Stock = maps.Clone(item.Stock)
	return item
}

// memoryOrders is an order repository keyed by id.
type memoryOrders struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	replaceFn func(domain.Order) error
	inserted  []string
	deleted   []string
}

func newMemoryOrders(orders ...domain.Order) *memoryOrders {
	repo := &memoryOrders{orders: make(map[string]domain.Order)}
	for _, order := range orders {
		repo.orders[order.ID] = order.Clone()
	}
	return repo
}

func (m *memoryOrders) Insert(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return conflictError{}
	}
	m.orders[order.ID] = order.Clone()
	m.inserted = append(m.inserted, order.ID)
	return nil
}

func (m *memoryOrders) Replace(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceFn != nil {
		if err := m.replaceFn(order); err != nil {
			return err
		}
	}
	m.orders[order.ID] = order.Clone()
	return nil
}

func (m *memoryOrders) ApplyStatus(_ context.Context, update repositories.OrderStatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[update.OrderID]
	if !ok {
		return notFoundError{}
	}
	order = order.Clone()
	order.Status = update.Status
	order.History = append(order.History, update.Entry)
	order.UpdatedAt = update.UpdatedAt
	if update.Fields.TrackingID != nil {
		order.TrackingID = *update.Fields.TrackingID
	}
	if update.Fields.IsReturnReceived != nil {
		order.IsReturnReceived = *update.Fields.IsReturnReceived
	}
	if update.Fields.IsRefunded != nil {
		order.IsRefunded = *update.Fields.IsRefunded
	}
	if update.Fields.RevenueAdjustment != nil {
		order.RevenueAdjustment = decimal.NewFromFloat(*update.Fields.RevenueAdjustment)
	}
	if update.Fields.CollectedAmount != nil {
		order.CollectedAmount = decimal.NewFromFloat(*update.Fields.CollectedAmount)
	}
	if update.Fields.DueAmount != nil {
		order.DueAmount = decimal.NewFromFloat(*update.Fields.DueAmount)
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memoryOrders) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return notFoundError{}
	}
	delete(m.orders, orderID)
	m.deleted = append(m.deleted, orderID)
	return nil
}

func (m *memoryOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError{}
	}
	return order.Clone(), nil
}

func (m *memoryOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Order
	for _, order := range m.orders {
		if filter.Type != "" && order.Type != filter.Type {
			continue
		}
		if !filter.CreatedIn.Contains(order.CreatedAt) {
			continue
		}
		items = append(items, order.Clone())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (m *memoryOrders) MaxSequence(_ context.Context, orderType domain.OrderType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest int64
	for _, order := range m.orders {
		if order.Type == orderType && order.Sequence > highest {
			highest = order.Sequence
		}
	}
	return highest, nil
}

func (m *memoryOrders) get(id string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	return order.Clone(), ok
}

func (m *memoryOrders) snapshot() map[string]domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Order, len(m.orders))
	for id, order := range m.orders {
		out[id] = order.Clone()
	}
	return out
}

func (m *memoryOrders) restore(orders map[string]domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = orders
}

// rollbackUnitOfWork restores both stores when fn fails, mirroring a
// transaction that never commits.
type rollbackUnitOfWork struct {
	inventory *memoryInventory
	orders    *memoryOrders
	runs      int
}

type txKey struct{}

func (u *rollbackUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	u.runs++
	inv := u.inventory.snapshot()
	orders := u.orders.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		u.inventory.restore(inv)
		u.orders.restore(orders)
		return err
	}
	return nil
}

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, floor int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, floor)
	}
	return floor + 1, nil
}

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	out := make([]string, 0, len(c.events))
	for _, event := range c.events {
		out = append(out, event.Type)
	}
	return out
}

type captureStockEvents struct {
	events []StockEvent
}

func (c *captureStockEvents) PublishStockEvent(_ context.Context, event StockEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureArchiver struct {
	archived []domain.Order
	err      error
}

func (c *captureArchiver) ArchiveOrder(_ context.Context, order domain.Order) error {
	c.archived = append(c.archived, order)
	return c.err
}

type captureLogs struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLogs) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLogs) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

type notFoundError struct{}

func (notFoundError) Error() string       { return "not found" }
func (notFoundError) IsNotFound() bool    { return true }
func (notFoundError) IsConflict() bool    { return false }
func (notFoundError) IsUnavailable() bool { return false }

type conflictError struct{}

func (conflictError) Error() string       { return "conflict" }
func (conflictError) IsNotFound() bool    { return false }
func (conflictError) IsConflict() bool    { return true }
func (conflictError) IsUnavailable() bool { return false }

var errBoom = errors.New("boom")

// ledgerFixture wires an order service over the in-memory stores.
type ledgerFixture struct {
	inventory *memoryInventory
	orders    *memoryOrders
	uow       *rollbackUnitOfWork
	events    *captureOrderEvents
	stock     *captureStockEvents
	archiver  *captureArchiver
	logs      *captureLogs
	ledger    StockLedger
	svc       OrderService
	ids       int
}

var fixtureNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newLedgerFixture(items []domain.InventoryItem, orders ...domain.Order) *ledgerFixture {
	f := &ledgerFixture{
		inventory: newMemoryInventory(items...),
		orders:    newMemoryOrders(orders...),
		events:    &captureOrderEvents{},
		stock:     &captureStockEvents{},
		archiver:  &captureArchiver{},
		logs:      &captureLogs{},
	}
	f.uow = &rollbackUnitOfWork{inventory: f.inventory, orders: f.orders}
	clock := func() time.Time { return fixtureNow }

	ledger, err := NewStockLedger(StockLedgerDeps{
		Inventory:  f.inventory,
		UnitOfWork: f.uow,
		Events:     f.stock,
		Clock:      clock,
		Logger:     f.logs.log,
	})
	if err != nil {
		panic(err)
	}
	f.ledger = ledger

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     f.orders,
		Counters:   &stubCounterRepo{},
		Ledger:     ledger,
		UnitOfWork: f.uow,
		Archiver:   f.archiver,
		Events:     f.events,
		Clock:      clock,
		IDGenerator: func() string {
			f.ids++
			return strings.Repeat("0", 3) + string(rune('A'+f.ids-1))
		},
		Logger: f.logs.log,
	})
	if err != nil {
		panic(err)
	}
	f.svc = svc
	return f
}
