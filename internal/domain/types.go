package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// TimeRange is a half-open [From, To) window. Zero bounds are unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether ts falls inside the window.
func (r TimeRange) Contains(ts time.Time) bool {
	if !r.From.IsZero() && ts.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !ts.Before(r.To) {
		return false
	}
	return true
}

// ItemKind distinguishes per-size stock tracking from a single counter.
type ItemKind string

const (
	// ItemKindVariable tracks stock per size label.
	ItemKindVariable ItemKind = "Variable"
	// ItemKindSingle tracks one total stock count.
	ItemKindSingle ItemKind = "Single"
)

// InventoryItem is a stocked product.
type InventoryItem struct {
	Code       string
	Name       string
	Kind       ItemKind
	Stock      map[string]int
	TotalStock int
	UnitCost   decimal.Decimal
	MRP        decimal.Decimal
	LocationID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ResolveSize returns the stored size key matching size case-insensitively.
func (i InventoryItem) ResolveSize(size string) (string, bool) {
	if _, ok := i.Stock[size]; ok {
		return size, true
	}
	want := FoldKey(size)
	if want == "" {
		return "", false
	}
	for key := range i.Stock {
		if FoldKey(key) == want {
			return key, true
		}
	}
	return "", false
}

// Available returns the on-hand count for size (ignored for Single items).
func (i InventoryItem) Available(size string) (int, bool) {
	if i.Kind == ItemKindSingle {
		return i.TotalStock, true
	}
	key, ok := i.ResolveSize(size)
	if !ok {
		return 0, false
	}
	return i.Stock[key], true
}

// StockMovement is a signed quantity change for one item/size.
// Positive deltas return stock, negative deltas consume it.
type StockMovement struct {
	Code  string
	Size  string
	Delta int
}

// AppliedMovement reports the resolved target and resulting balance of a movement.
type AppliedMovement struct {
	Code      string
	SizeKey   string
	FieldPath []string
	Delta     int
	Balance   int
}

// OrderType is fixed at creation and decides which sequence and due rules apply.
type OrderType string

const (
	// OrderTypeOnline is a delivered order with advance/collection tracking.
	OrderTypeOnline OrderType = "Online"
	// OrderTypeStore is an in-store sale paid in full at checkout.
	OrderTypeStore OrderType = "Store"
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	// DiscountFixed subtracts DiscountValue as an absolute amount.
	DiscountFixed DiscountType = "Fixed"
	// DiscountPercent subtracts DiscountValue percent of the subtotal.
	DiscountPercent DiscountType = "Percent"
)

// ProductLine is one line item on an order.
type ProductLine struct {
	Code  string
	Size  string
	Qty   int
	Price decimal.Decimal
}

// Value returns price multiplied by quantity.
func (l ProductLine) Value() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Customer holds delivery contact details.
type Customer struct {
	Name    string
	Phone   string
	Address string
}

// ExchangeDetails records what an exchange replaced.
type ExchangeDetails struct {
	OriginalProducts []ProductLine
	NewProducts      []ProductLine
	PriceDeviation   decimal.Decimal
	IsPartial        bool
	OriginalOrderID  string
	// CompletedAt is set once the exchange half of a partial split is settled.
	CompletedAt time.Time
}

// PendingPartial reports whether d is the exchange half of a partial split
// still waiting to be completed.
func (d *ExchangeDetails) PendingPartial() bool {
	return d != nil && d.IsPartial && d.CompletedAt.IsZero()
}

// HistoryEntry is one audit record on an order.
type HistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      string
	UpdatedBy string
}

// Order is the aggregate mutated by the ledger workflows.
type Order struct {
	ID                string
	Type              OrderType
	MerchantOrderID   string
	StoreOrderID      string
	Sequence          int64
	Status            OrderStatus
	Products          []ProductLine
	Customer          Customer
	Subtotal          decimal.Decimal
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	DeliveryCharge    decimal.Decimal
	AdvanceAmount     decimal.Decimal
	CollectedAmount   decimal.Decimal
	GrandTotal        decimal.Decimal
	DueAmount         decimal.Decimal
	RevenueAdjustment decimal.Decimal
	ExchangeDetails   *ExchangeDetails
	History           []HistoryEntry
	IsReturnReceived  bool
	IsRefunded        bool
	TrackingID        string
	Note              string
	AddedBy           string
	LastEditedBy      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DisplayID returns the human-facing sequence id for the order's type.
func (o Order) DisplayID() string {
	if o.Type == OrderTypeStore {
		return o.StoreOrderID
	}
	return o.MerchantOrderID
}

// TotalQty sums line quantities.
func (o Order) TotalQty() int {
	total := 0
	for _, line := range o.Products {
		total += line.Qty
	}
	return total
}

// Clone returns a deep copy so workflows can mutate without aliasing.
func (o Order) Clone() Order {
	out := o
	out.Products = CloneLines(o.Products)
	if o.History != nil {
		out.History = append([]HistoryEntry(nil), o.History...)
	}
	if o.ExchangeDetails != nil {
		details := *o.ExchangeDetails
		details.OriginalProducts = CloneLines(o.ExchangeDetails.OriginalProducts)
		details.NewProducts = CloneLines(o.ExchangeDetails.NewProducts)
		out.ExchangeDetails = &details
	}
	return out
}

// CloneLines copies a product line slice.
func CloneLines(lines []ProductLine) []ProductLine {
	if lines == nil {
		return nil
	}
	return append([]ProductLine(nil), lines...)
}

// Location is a physical place where stock is kept.
type Location struct {
	ID        string
	Name      string
	Address   string
	CreatedAt time.Time
}

// Expense is an operating cost deducted in profit reports.
type Expense struct {
	ID         string
	Category   string
	Amount     decimal.Decimal
	Note       string
	SpentAt    time.Time
	RecordedBy string
	CreatedAt  time.Time
}

const (
	// HealthStatusOK indicates the dependency is healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates partial failure.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the dependency check failed.
	HealthStatusError = "error"
)

// SystemHealthCheck is the outcome of one dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
