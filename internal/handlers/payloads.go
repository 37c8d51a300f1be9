package handlers

import (
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/services"
)

type productLinePayload struct {
	Code  string          `json:"code"`
	Size  string          `json:"size,omitempty"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

type customerPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type historyPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Note      string `json:"note,omitempty"`
	UpdatedBy string `json:"updatedBy"`
}

type exchangePayload struct {
	OriginalProducts []productLinePayload `json:"originalProducts"`
	NewProducts      []productLinePayload `json:"newProducts"`
	PriceDeviation   decimal.Decimal      `json:"priceDeviation"`
	IsPartial        bool                 `json:"isPartial"`
	OriginalOrderID  string               `json:"originalOrderId,omitempty"`
	CompletedAt      string               `json:"completedAt,omitempty"`
}

type orderPayload struct {
	ID                string               `json:"id"`
	DisplayID         string               `json:"displayId"`
	Type              string               `json:"type"`
	Status            string               `json:"status"`
	Products          []productLinePayload `json:"products"`
	Customer          customerPayload      `json:"customer"`
	Subtotal          decimal.Decimal      `json:"subtotal"`
	DiscountType      string               `json:"discountType"`
	DiscountValue     decimal.Decimal      `json:"discountValue"`
	DeliveryCharge    decimal.Decimal      `json:"deliveryCharge"`
	AdvanceAmount     decimal.Decimal      `json:"advanceAmount"`
	CollectedAmount   decimal.Decimal      `json:"collectedAmount"`
	GrandTotal        decimal.Decimal      `json:"grandTotal"`
	DueAmount         decimal.Decimal      `json:"dueAmount"`
	RevenueAdjustment decimal.Decimal      `json:"revenueAdjustment"`
	ExchangeDetails   *exchangePayload     `json:"exchangeDetails,omitempty"`
	History           []historyPayload     `json:"history"`
	IsReturnReceived  bool                 `json:"isReturnReceived"`
	IsRefunded        bool                 `json:"isRefunded"`
	TrackingID        string               `json:"trackingId,omitempty"`
	Note              string               `json:"note,omitempty"`
	AddedBy           string               `json:"addedBy"`
	LastEditedBy      string               `json:"lastEditedBy,omitempty"`
	CreatedAt         string               `json:"createdAt"`
	UpdatedAt         string               `json:"updatedAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type partialExchangeResponse struct {
	Original orderPayload `json:"original"`
	Exchange orderPayload `json:"exchange"`
}

func buildLinePayloads(lines []services.ProductLine) []productLinePayload {
	out := make([]productLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, productLinePayload{Code: line.Code, Size: line.Size, Qty: line.Qty, Price: line.Price})
	}
	return out
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		DisplayID:         order.DisplayID(),
		Type:              string(order.Type),
		Status:            string(order.Status),
		Products:          buildLinePayloads(order.Products),
		Customer:          customerPayload{Name: order.Customer.Name, Phone: order.Customer.Phone, Address: order.Customer.Address},
		Subtotal:          order.Subtotal,
		DiscountType:      string(order.DiscountType),
		DiscountValue:     order.DiscountValue,
		DeliveryCharge:    order.DeliveryCharge,
		AdvanceAmount:     order.AdvanceAmount,
		CollectedAmount:   order.CollectedAmount,
		GrandTotal:        order.GrandTotal,
		DueAmount:         order.DueAmount,
		RevenueAdjustment: order.RevenueAdjustment,
		History:           make([]historyPayload, 0, len(order.History)),
		IsReturnReceived:  order.IsReturnReceived,
		IsRefunded:        order.IsRefunded,
		TrackingID:        order.TrackingID,
		Note:              order.Note,
		AddedBy:           order.AddedBy,
		LastEditedBy:      order.LastEditedBy,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	for _, entry := range order.History {
		payload.History = append(payload.History, historyPayload{
			Status:    string(entry.Status),
			Timestamp: formatTime(entry.Timestamp),
			Note:      entry.Note,
			UpdatedBy: entry.UpdatedBy,
		})
	}
	if details := order.ExchangeDetails; details != nil {
		payload.ExchangeDetails = &exchangePayload{
			OriginalProducts: buildLinePayloads(details.OriginalProducts),
			NewProducts:      buildLinePayloads(details.NewProducts),
			PriceDeviation:   details.PriceDeviation,
			IsPartial:        details.IsPartial,
			OriginalOrderID:  details.OriginalOrderID,
			CompletedAt:      formatTime(details.CompletedAt),
		}
	}
	return payload
}

type inventoryItemPayload struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Stock      map[string]int  `json:"stock,omitempty"`
	TotalStock int             `json:"totalStock"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	MRP        decimal.Decimal `json:"mrp"`
	LocationID string          `json:"locationId,omitempty"`
	CreatedAt  string          `json:"createdAt"`
	UpdatedAt  string          `json:"updatedAt"`
}

func buildInventoryPayload(item services.InventoryItem) inventoryItemPayload {
	total := item.TotalStock
	if item.Kind == domain.ItemKindVariable {
		total = 0
		for _, count := range item.Stock {
			total += count
		}
	}
	return inventoryItemPayload{
		Code:       item.Code,
		Name:       item.Name,
		Kind:       string(item.Kind),
		Stock:      item.Stock,
		TotalStock: total,
		UnitCost:   item.UnitCost,
		MRP:        item.MRP,
		LocationID: item.LocationID,
		CreatedAt:  formatTime(item.CreatedAt),
		UpdatedAt:  formatTime(item.UpdatedAt),
	}
}

type expensePayload struct {
	ID         string          `json:"id"`
	Category   string          `json:"category"`
	Amount     decimal.Decimal `json:"amount"`
	Note       string          `json:"note,omitempty"`
	SpentAt    string          `json:"spentAt"`
	RecordedBy string          `json:"recordedBy"`
	CreatedAt  string          `json:"createdAt"`
}

func buildExpensePayload(expense services.Expense) expensePayload {
	return expensePayload{
		ID:         expense.ID,
		Category:   expense.Category,
		Amount:     expense.Amount,
		Note:       expense.Note,
		SpentAt:    formatTime(expense.SpentAt),
		RecordedBy: expense.RecordedBy,
		CreatedAt:  formatTime(expense.CreatedAt),
	}
}

type locationPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func buildLocationPayload(location services.Location) locationPayload {
	return locationPayload{
		ID:        location.ID,
		Name:      location.Name,
		Address:   location.Address,
		CreatedAt: formatTime(location.CreatedAt),
	}
}
