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
	"github.com/orderdesk/api/internal/platform/pagination"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
	// Firestore caps "in" filters at 30 values.
	maxStatusFilter = 30
)

// OrderRepository persists orders in Firestore. Every method joins the
// transaction carried by ctx, if any.
type OrderRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order insert: id is required")
	}
	return r.orders.Create(ctx, id, newOrderDocument(order))
}

// Replace overwrites the whole document. Callers read the order first within
// the same transaction when they need a not-found check.
func (r *OrderRepository) Replace(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order replace: id is required")
	}
	return r.orders.Set(ctx, id, newOrderDocument(order))
}

// ApplyStatus writes the status, appends the history entry and merges the
// extra fields in a single update.
func (r *OrderRepository) ApplyStatus(ctx context.Context, update repositories.OrderStatusUpdate) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(update.OrderID)
	if id == "" {
		return errors.New("order apply status: id is required")
	}

	updatedAt := update.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	fields := []firestore.Update{
		{Path: "status", Value: string(update.Status)},
		{Path: "updatedAt", Value: updatedAt},
	}
	extra := update.Fields
	if extra.TrackingID != nil {
		fields = append(fields, firestore.Update{Path: "trackingId", Value: strings.TrimSpace(*extra.TrackingID)})
	}
	if extra.IsReturnReceived != nil {
		fields = append(fields, firestore.Update{Path: "isReturnReceived", Value: *extra.IsReturnReceived})
	}
	if extra.IsRefunded != nil {
		fields = append(fields, firestore.Update{Path: "isRefunded", Value: *extra.IsRefunded})
	}
	if extra.CollectedAmount != nil {
		fields = append(fields, firestore.Update{Path: "collectedAmount", Value: *extra.CollectedAmount})
	}
	if extra.RevenueAdjustment != nil {
		fields = append(fields, firestore.Update{Path: "revenueAdjustment", Value: *extra.RevenueAdjustment})
	}
	if extra.DueAmount != nil {
		fields = append(fields, firestore.Update{Path: "dueAmount", Value: *extra.DueAmount})
	}
	if extra.Note != nil {
		fields = append(fields, firestore.Update{Path: "note", Value: *extra.Note})
	}

	entry := newHistoryDocument(update.Entry)
	return r.orders.ArrayUnion(ctx, id, "history", []any{entry}, fields...)
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	return r.orders.Delete(ctx, strings.TrimSpace(orderID), firestore.Exists)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first using (createdAt, id) cursors.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	if limit > maxOrderPageSize {
		limit = maxOrderPageSize
	}
	if len(filter.Statuses) > maxStatusFilter {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order list: at most %d statuses can be filtered", maxStatusFilter)
	}

	cursor, err := pagination.DecodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Type != "" {
			q = q.Where("type", "==", string(filter.Type))
		}
		switch len(filter.Statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Statuses[0]))
		default:
			values := make([]string, 0, len(filter.Statuses))
			for _, status := range filter.Statuses {
				values = append(values, string(status))
			}
			q = q.Where("status", "in", values)
		}
		if !filter.CreatedIn.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.CreatedIn.From.UTC())
		}
		if !filter.CreatedIn.To.IsZero() {
			q = q.Where("createdAt", "<", filter.CreatedIn.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.CreatedAt.UTC(), cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}

	var nextToken string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextToken, err = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// MaxSequence returns the highest stored sequence number for the order type, or zero.
func (r *OrderRepository) MaxSequence(ctx context.Context, orderType domain.OrderType) (int64, error) {
	if r == nil || r.orders == nil {
		return 0, errors.New("order repository not initialised")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("type", "==", string(orderType)).OrderBy("sequence", firestore.Desc).Limit(1)
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	return docs[0].Data.Sequence, nil
}

type orderDocument struct {
	Type              string                   `firestore:"type"`
	MerchantOrderID   string                   `firestore:"merchantOrderId,omitempty"`
	StoreOrderID      string                   `firestore:"storeOrderId,omitempty"`
	Sequence          int64                    `firestore:"sequence"`
	Status            string                   `firestore:"status"`
	Products          []productLineDocument    `firestore:"products"`
	Customer          customerDocument         `firestore:"customer"`
	Subtotal          float64                  `firestore:"subtotal"`
	DiscountType      string                   `firestore:"discountType"`
	DiscountValue     float64                  `firestore:"discountValue"`
	DeliveryCharge    float64                  `firestore:"deliveryCharge"`
	AdvanceAmount     float64                  `firestore:"advanceAmount"`
	CollectedAmount   float64                  `firestore:"collectedAmount"`
	GrandTotal        float64                  `firestore:"grandTotal"`
	DueAmount         float64                  `firestore:"dueAmount"`
	RevenueAdjustment float64                  `firestore:"revenueAdjustment"`
	ExchangeDetails   *exchangeDetailsDocument `firestore:"exchangeDetails,omitempty"`
	History           []historyDocument        `firestore:"history"`
	IsReturnReceived  bool                     `firestore:"isReturnReceived"`
	IsRefunded        bool                     `firestore:"isRefunded"`
	TrackingID        string                   `firestore:"trackingId,omitempty"`
	Note              string                   `firestore:"note,omitempty"`
	AddedBy           string                   `firestore:"addedBy,omitempty"`
	LastEditedBy      string                   `firestore:"lastEditedBy,omitempty"`
	CreatedAt         time.Time                `firestore:"createdAt"`
	UpdatedAt         time.Time                `firestore:"updatedAt"`
}

type productLineDocument struct {
	Code  string  `firestore:"code"`
	Size  string  `firestore:"size,omitempty"`
	Qty   int     `firestore:"qty"`
	Price float64 `firestore:"price"`
}

type customerDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address,omitempty"`
}

type exchangeDetailsDocument struct {
	OriginalProducts []productLineDocument `firestore:"originalProducts"`
	NewProducts      []productLineDocument `firestore:"newProducts"`
	PriceDeviation   float64               `firestore:"priceDeviation"`
	IsPartial        bool                  `firestore:"isPartial"`
	OriginalOrderID  string                `firestore:"originalOrderId,omitempty"`
	CompletedAt      *time.Time            `firestore:"completedAt,omitempty"`
}

type historyDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	Note      string    `firestore:"note"`
	UpdatedBy string    `firestore:"updatedBy"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Type:            string(order.Type),
		MerchantOrderID: strings.TrimSpace(order.MerchantOrderID),
		StoreOrderID:    strings.TrimSpace(order.StoreOrderID),
		Sequence:        order.Sequence,
		Status:          string(order.Status),
		Products:        newProductLineDocuments(order.Products),
		Customer: customerDocument{
			Name:    order.Customer.Name,
			Phone:   order.Customer.Phone,
			Address: order.Customer.Address,
		},
		Subtotal:          order.Subtotal.InexactFloat64(),
		DiscountType:      string(order.DiscountType),
		DiscountValue:     order.DiscountValue.InexactFloat64(),
		DeliveryCharge:    order.DeliveryCharge.InexactFloat64(),
		AdvanceAmount:     order.AdvanceAmount.InexactFloat64(),
		CollectedAmount:   order.CollectedAmount.InexactFloat64(),
		GrandTotal:        order.GrandTotal.InexactFloat64(),
		DueAmount:         order.DueAmount.InexactFloat64(),
		RevenueAdjustment: order.RevenueAdjustment.InexactFloat64(),
		IsReturnReceived:  order.IsReturnReceived,
		IsRefunded:        order.IsRefunded,
		TrackingID:        order.TrackingID,
		Note:              order.Note,
		AddedBy:           order.AddedBy,
		LastEditedBy:      order.LastEditedBy,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}
	doc.History = make([]historyDocument, 0, len(order.History))
	for _, entry := range order.History {
		doc.History = append(doc.History, newHistoryDocument(entry))
	}
	if ex := order.ExchangeDetails; ex != nil {
		doc.ExchangeDetails = &exchangeDetailsDocument{
			OriginalProducts: newProductLineDocuments(ex.OriginalProducts),
			NewProducts:      newProductLineDocuments(ex.NewProducts),
			PriceDeviation:   ex.PriceDeviation.InexactFloat64(),
			IsPartial:        ex.IsPartial,
			OriginalOrderID:  ex.OriginalOrderID,
		}
		if !ex.CompletedAt.IsZero() {
			completed := ex.CompletedAt.UTC()
			doc.ExchangeDetails.CompletedAt = &completed
		}
	}
	return doc
}

func newHistoryDocument(entry domain.HistoryEntry) historyDocument {
	return historyDocument{
		Status:    string(entry.Status),
		Timestamp: entry.Timestamp.UTC(),
		Note:      entry.Note,
		UpdatedBy: entry.UpdatedBy,
	}
}

func newProductLineDocuments(lines []domain.ProductLine) []productLineDocument {
	out := make([]productLineDocument, 0, len(lines))
	for _, line := range lines {
		out = append(out, productLineDocument{
			Code:  line.Code,
			Size:  line.Size,
			Qty:   line.Qty,
			Price: line.Price.InexactFloat64(),
		})
	}
	return out
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:              id,
		Type:            domain.OrderType(d.Type),
		MerchantOrderID: d.MerchantOrderID,
		StoreOrderID:    d.StoreOrderID,
		Sequence:        d.Sequence,
		Status:          domain.OrderStatus(d.Status),
		Products:        productLinesToDomain(d.Products),
		Customer: domain.Customer{
			Name:    d.Customer.Name,
			Phone:   d.Customer.Phone,
			Address: d.Customer.Address,
		},
		Subtotal:          decimal.NewFromFloat(d.Subtotal),
		DiscountType:      domain.DiscountType(d.DiscountType),
		DiscountValue:     decimal.NewFromFloat(d.DiscountValue),
		DeliveryCharge:    decimal.NewFromFloat(d.DeliveryCharge),
		AdvanceAmount:     decimal.NewFromFloat(d.AdvanceAmount),
		CollectedAmount:   decimal.NewFromFloat(d.CollectedAmount),
		GrandTotal:        decimal.NewFromFloat(d.GrandTotal),
		DueAmount:         decimal.NewFromFloat(d.DueAmount),
		RevenueAdjustment: decimal.NewFromFloat(d.RevenueAdjustment),
		IsReturnReceived:  d.IsReturnReceived,
		IsRefunded:        d.IsRefunded,
		TrackingID:        d.TrackingID,
		Note:              d.Note,
		AddedBy:           d.AddedBy,
		LastEditedBy:      d.LastEditedBy,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if order.DiscountType == "" {
		order.DiscountType = domain.DiscountFixed
	}
	order.History = make([]domain.HistoryEntry, 0, len(d.History))
	for _, entry := range d.History {
		order.History = append(order.History, domain.HistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if ex := d.ExchangeDetails; ex != nil {
		order.ExchangeDetails = &domain.ExchangeDetails{
			OriginalProducts: productLinesToDomain(ex.OriginalProducts),
			NewProducts:      productLinesToDomain(ex.NewProducts),
			PriceDeviation:   decimal.NewFromFloat(ex.PriceDeviation),
			IsPartial:        ex.IsPartial,
			OriginalOrderID:  ex.OriginalOrderID,
		}
		if ex.CompletedAt != nil {
			order.ExchangeDetails.CompletedAt = ex.CompletedAt.UTC()
		}
	}
	return order
}

func productLinesToDomain(lines []productLineDocument) []domain.ProductLine {
	out := make([]domain.ProductLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.ProductLine{
			Code:  line.Code,
			Size:  line.Size,
			Qty:   line.Qty,
			Price: decimal.NewFromFloat(line.Price),
		})
	}
	return out
}
