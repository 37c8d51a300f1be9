package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	TimeRange          = domain.TimeRange
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderType          = domain.OrderType
	ProductLine        = domain.ProductLine
	Customer           = domain.Customer
	HistoryEntry       = domain.HistoryEntry
	ExchangeDetails    = domain.ExchangeDetails
	InventoryItem      = domain.InventoryItem
	StockMovement      = domain.StockMovement
	AppliedMovement    = domain.AppliedMovement
	Totals             = domain.Totals
	Charges            = domain.Charges
	LineProfit         = domain.LineProfit
	ProfitReport       = domain.ProfitReport
	Expense            = domain.Expense
	Location           = domain.Location
	SystemHealthReport = domain.SystemHealthReport
)

// StockLedger is the only component that mutates stock counts.
type StockLedger interface {
	// Adjust applies one movement in its own transaction and announces it.
	Adjust(ctx context.Context, cmd StockAdjustmentCommand) (AppliedMovement, error)
	// Check plans movements against current stock without writing.
	Check(ctx context.Context, movements []StockMovement) error
	// Apply plans and writes movements, joining the transaction on ctx.
	// Callers announce the result after their transaction commits.
	Apply(ctx context.Context, movements []StockMovement) ([]AppliedMovement, error)
	// Announce records metrics and publishes stock events for committed movements.
	Announce(ctx context.Context, applied []AppliedMovement, meta StockEventMeta)
}

// OrderService runs the order lifecycle: creation, status transitions, edits and exchanges.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error)
	SetFlags(ctx context.Context, cmd SetOrderFlagsCommand) (Order, error)
	EditOrder(ctx context.Context, cmd EditOrderCommand) (Order, error)
	ProcessExchange(ctx context.Context, cmd ExchangeCommand) (Order, error)
	ProcessPartialExchange(ctx context.Context, cmd PartialExchangeCommand) (PartialExchangeResult, error)
	CompletePartialExchange(ctx context.Context, cmd ExchangeCommand) (Order, error)
}

// InventoryService manages stocked items.
type InventoryService interface {
	AddItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error)
	UpdateItem(ctx context.Context, cmd UpsertInventoryItemCommand) (InventoryItem, error)
	GetItem(ctx context.Context, code string) (InventoryItem, error)
	ListItems(ctx context.Context, filter repositories.InventoryListFilter) ([]InventoryItem, error)
	AdjustStock(ctx context.Context, cmd StockAdjustmentCommand) (InventoryItem, error)
}

// ReportService builds period reports.
type ReportService interface {
	ProfitReport(ctx context.Context, period TimeRange) (ProfitReport, error)
}

// ExpenseService records operating expenses.
type ExpenseService interface {
	RecordExpense(ctx context.Context, cmd RecordExpenseCommand) (Expense, error)
	ListExpenses(ctx context.Context, period TimeRange) ([]Expense, error)
}

// LocationService manages stock locations.
type LocationService interface {
	CreateLocation(ctx context.Context, cmd CreateLocationCommand) (Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderArchiver keeps a snapshot of orders removed by a full exchange.
type OrderArchiver interface {
	ArchiveOrder(ctx context.Context, order Order) error
}

// ProductLineInput is a requested order line.
type ProductLineInput struct {
	Code  string          `validate:"required,max=64,excludesall=/"`
	Size  string          `validate:"max=32"`
	Qty   int             `validate:"gt=0"`
	Price decimal.Decimal `validate:"-"`
}

// CustomerInput carries delivery contact details. Online orders require all three.
type CustomerInput struct {
	Name    string `validate:"max=120"`
	Phone   string `validate:"omitempty,phone"`
	Address string `validate:"max=500"`
}

// ChargesInput carries the order-level money fields.
type ChargesInput struct {
	DiscountType    domain.DiscountType `validate:"omitempty,oneof=Fixed Percent"`
	DiscountValue   decimal.Decimal     `validate:"-"`
	DeliveryCharge  decimal.Decimal     `validate:"-"`
	AdvanceAmount   decimal.Decimal     `validate:"-"`
	CollectedAmount decimal.Decimal     `validate:"-"`
}

// CreateOrderCommand creates an order and deducts its stock when the status is active.
type CreateOrderCommand struct {
	Type     domain.OrderType   `validate:"required,oneof=Online Store"`
	Status   domain.OrderStatus `validate:"-"`
	Customer CustomerInput
	Products []ProductLineInput `validate:"required,min=1,dive"`
	Charges  ChargesInput
	Note     string `validate:"max=2000"`
	ActorID  string `validate:"-"`
}

// OrderListFilter narrows order listings.
type OrderListFilter = repositories.OrderListFilter

// OrderExtraFields are merged into the order on a status transition.
type OrderExtraFields struct {
	TrackingID        *string
	IsReturnReceived  *bool
	IsRefunded        *bool
	CollectedAmount   *decimal.Decimal
	RevenueAdjustment *decimal.Decimal
	Note              *string
}

// TransitionCommand moves an order to TargetStatus.
type TransitionCommand struct {
	OrderID      string
	TargetStatus domain.OrderStatus
	Note         string
	ExtraFields  OrderExtraFields
	ActorID      string
}

// SetOrderFlagsCommand updates return/refund flags without changing status.
type SetOrderFlagsCommand struct {
	OrderID          string
	IsReturnReceived *bool
	IsRefunded       *bool
	ActorID          string
}

// EditOrderCommand replaces an order's lines and charges, reconciling stock.
type EditOrderCommand struct {
	OrderID  string             `validate:"required"`
	Status   domain.OrderStatus `validate:"-"`
	Customer CustomerInput
	Products []ProductLineInput `validate:"required,min=1,dive"`
	Charges  ChargesInput
	Note     string `validate:"max=2000"`
	ActorID  string `validate:"-"`
}

// ExchangeCommand swaps an order's products for NewProducts. Completing a
// partial exchange may omit NewProducts to use the ones recorded at the split.
type ExchangeCommand struct {
	OrderID        string             `validate:"required"`
	NewProducts    []ProductLineInput `validate:"omitempty,dive"`
	DeliveryCharge decimal.Decimal    `validate:"-"`
	Note           string             `validate:"max=2000"`
	ActorID        string             `validate:"-"`
}

// PartialExchangeCommand moves the lines at ExchangedLines into a sibling order.
type PartialExchangeCommand struct {
	OrderID        string             `validate:"required"`
	ExchangedLines []int              `validate:"required,min=1,dive,gte=0"`
	NewProducts    []ProductLineInput `validate:"omitempty,dive"`
	ActorID        string             `validate:"-"`
}

// PartialExchangeResult holds both halves of a split.
type PartialExchangeResult struct {
	Original Order
	Exchange Order
}

// StockAdjustmentCommand is a manual signed stock change.
type StockAdjustmentCommand struct {
	Code    string
	Size    string
	Delta   int
	Reason  string
	ActorID string
}

// UpsertInventoryItemCommand creates or overwrites an inventory item.
type UpsertInventoryItemCommand struct {
	Code       string          `validate:"required,max=64,excludesall=/"`
	Name       string          `validate:"max=200"`
	Kind       domain.ItemKind `validate:"required,oneof=Variable Single"`
	Stock      map[string]int  `validate:"dive,keys,required,max=32,endkeys,gte=0"`
	TotalStock int             `validate:"gte=0"`
	UnitCost   decimal.Decimal `validate:"-"`
	MRP        decimal.Decimal `validate:"-"`
	LocationID string          `validate:"max=128"`
	ActorID    string          `validate:"-"`
}

// RecordExpenseCommand records one expense.
type RecordExpenseCommand struct {
	Category string          `validate:"required,max=80"`
	Amount   decimal.Decimal `validate:"-"`
	Note     string          `validate:"max=1000"`
	SpentAt  time.Time       `validate:"-"`
	ActorID  string          `validate:"-"`
}

// CreateLocationCommand creates a stock location.
type CreateLocationCommand struct {
	Name    string `validate:"required,max=120"`
	Address string `validate:"max=500"`
}
