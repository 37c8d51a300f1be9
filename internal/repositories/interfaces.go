package repositories

import (
	"context"
	"time"

	domain "github.com/orderdesk/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one atomic commit. Reads must
// precede writes inside fn, and fn may be retried on contention.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryRepository stores stocked items. Codes are matched case-insensitively.
type InventoryRepository interface {
	Insert(ctx context.Context, item domain.InventoryItem) error
	Replace(ctx context.Context, item domain.InventoryItem) error
	FindByCode(ctx context.Context, code string) (domain.InventoryItem, error)
	FindByCodes(ctx context.Context, codes []string) (map[string]domain.InventoryItem, error)
	List(ctx context.Context, filter InventoryListFilter) ([]domain.InventoryItem, error)
	// ApplyMovements validates every movement against current stock, then
	// writes atomic increments. Nothing is written when any movement fails.
	ApplyMovements(ctx context.Context, movements []domain.StockMovement) ([]domain.AppliedMovement, error)
}

// InventoryListFilter narrows inventory listings.
type InventoryListFilter struct {
	LocationID string
	Kind       domain.ItemKind
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Replace(ctx context.Context, order domain.Order) error
	ApplyStatus(ctx context.Context, update OrderStatusUpdate) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	MaxSequence(ctx context.Context, orderType domain.OrderType) (int64, error)
}

// OrderStatusUpdate is a single-write status change: new status, one appended
// history entry and the merged extra fields.
type OrderStatusUpdate struct {
	OrderID   string
	Status    domain.OrderStatus
	Entry     domain.HistoryEntry
	Fields    OrderExtraFields
	UpdatedAt time.Time
}

// OrderExtraFields are the optional fields a transition may merge. Nil means unchanged.
type OrderExtraFields struct {
	TrackingID        *string
	IsReturnReceived  *bool
	IsRefunded        *bool
	CollectedAmount   *float64
	RevenueAdjustment *float64
	DueAmount         *float64
	Note              *string
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Type       domain.OrderType
	Statuses   []domain.OrderStatus
	CreatedIn  domain.TimeRange
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	// Next returns max(current, floor)+1 and stores it.
	Next(ctx context.Context, counterID string, floor int64) (int64, error)
}

// ExpenseRepository stores operating expenses.
type ExpenseRepository interface {
	Insert(ctx context.Context, expense domain.Expense) error
	List(ctx context.Context, spent domain.TimeRange) ([]domain.Expense, error)
}

// LocationRepository stores stock locations.
type LocationRepository interface {
	Insert(ctx context.Context, location domain.Location) error
	FindByID(ctx context.Context, locationID string) (domain.Location, error)
	List(ctx context.Context) ([]domain.Location, error)
}

// HealthRepository runs the readiness dependency checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
