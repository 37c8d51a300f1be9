package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/platform/pagination"
	"github.com/orderdesk/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

type chargesRequest struct {
	DiscountType    string          `json:"discountType"`
	DiscountValue   decimal.Decimal `json:"discountValue"`
	DeliveryCharge  decimal.Decimal `json:"deliveryCharge"`
	AdvanceAmount   decimal.Decimal `json:"advanceAmount"`
	CollectedAmount decimal.Decimal `json:"collectedAmount"`
}

type orderRequest struct {
	Type     string               `json:"type"`
	Status   string               `json:"status"`
	Customer customerPayload      `json:"customer"`
	Products []productLinePayload `json:"products"`
	chargesRequest
	Note string `json:"note"`
}

type extraFieldsRequest struct {
	TrackingID        *string          `json:"trackingId"`
	IsReturnReceived  *bool            `json:"isReturnReceived"`
	IsRefunded        *bool            `json:"isRefunded"`
	CollectedAmount   *decimal.Decimal `json:"collectedAmount"`
	RevenueAdjustment *decimal.Decimal `json:"revenueAdjustment"`
	Note              *string          `json:"note"`
}

type transitionRequest struct {
	Status      string             `json:"status"`
	Note        string             `json:"note"`
	ExtraFields extraFieldsRequest `json:"extraFields"`
}

type flagsRequest struct {
	IsReturnReceived *bool `json:"isReturnReceived"`
	IsRefunded       *bool `json:"isRefunded"`
}

type exchangeRequest struct {
	NewProducts    []productLinePayload `json:"newProducts"`
	DeliveryCharge decimal.Decimal      `json:"deliveryCharge"`
	Note           string               `json:"note"`
}

type partialExchangeRequest struct {
	ExchangedItems []int                `json:"exchangedItems"`
	NewProducts    []productLinePayload `json:"newProducts"`
}

// OrderHandlers exposes the order lifecycle to staff operators.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}", h.editOrder)
	r.Post("/{orderID}:transition", h.transitionOrder)
	r.Post("/{orderID}:flags", h.setFlags)
	r.Post("/{orderID}:exchange", h.exchangeOrder)
	r.Post("/{orderID}:partial-exchange", h.partialExchange)
	r.Post("/{orderID}:complete-exchange", h.completeExchange)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Type:     domain.OrderType(strings.TrimSpace(req.Type)),
		Status:   domain.OrderStatus(strings.TrimSpace(req.Status)),
		Customer: customerInput(req.Customer),
		Products: lineInputs(req.Products),
		Charges:  chargesInput(req.chargesRequest),
		Note:     req.Note,
		ActorID:  actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}

	page, err := pagination.FromRequest(r, pagination.Options{DefaultPageSize: defaultOrderPageSize, MaxPageSize: maxOrderPageSize})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	created, err := parseRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		Type:       domain.OrderType(strings.TrimSpace(query.Get("type"))),
		CreatedIn:  created,
		Pagination: services.Pagination{PageSize: page.PageSize, PageToken: page.PageToken},
	}
	for _, raw := range parseFilterValues(query["status"]) {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status "+raw, http.StatusBadRequest))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	result, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: strings.TrimSpace(result.NextPageToken)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) editOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req orderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.EditOrder(ctx, services.EditOrderCommand{
		OrderID:  orderID,
		Status:   domain.OrderStatus(strings.TrimSpace(req.Status)),
		Customer: customerInput(req.Customer),
		Products: lineInputs(req.Products),
		Charges:  chargesInput(req.chargesRequest),
		Note:     req.Note,
		ActorID:  actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, known := domain.ParseOrderStatus(req.Status)
	if !known {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a known order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		Note:         req.Note,
		ExtraFields: services.OrderExtraFields{
			TrackingID:        req.ExtraFields.TrackingID,
			IsReturnReceived:  req.ExtraFields.IsReturnReceived,
			IsRefunded:        req.ExtraFields.IsRefunded,
			CollectedAmount:   req.ExtraFields.CollectedAmount,
			RevenueAdjustment: req.ExtraFields.RevenueAdjustment,
			Note:              req.ExtraFields.Note,
		},
		ActorID: actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) setFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req flagsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := h.orders.SetFlags(ctx, services.SetOrderFlagsCommand{
		OrderID:          orderID,
		IsReturnReceived: req.IsReturnReceived,
		IsRefunded:       req.IsRefunded,
		ActorID:          actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) exchangeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req exchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.NewProducts) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "newProducts must not be empty", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ProcessExchange(ctx, services.ExchangeCommand{
		OrderID:        orderID,
		NewProducts:    lineInputs(req.NewProducts),
		DeliveryCharge: req.DeliveryCharge,
		Note:           req.Note,
		ActorID:        actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	// Full exchanges reissue the order under a new id.
	w.Header().Set("Location", r.URL.Path[:strings.LastIndex(r.URL.Path, "/")+1]+order.ID)
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) partialExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req partialExchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.orders.ProcessPartialExchange(ctx, services.PartialExchangeCommand{
		OrderID:        orderID,
		ExchangedLines: req.ExchangedItems,
		NewProducts:    lineInputs(req.NewProducts),
		ActorID:        actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, partialExchangeResponse{
		Original: buildOrderPayload(result.Original),
		Exchange: buildOrderPayload(result.Exchange),
	})
}

func (h *OrderHandlers) completeExchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req exchangeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	order, err := h.orders.CompletePartialExchange(ctx, services.ExchangeCommand{
		OrderID:        orderID,
		NewProducts:    lineInputs(req.NewProducts),
		DeliveryCharge: req.DeliveryCharge,
		Note:           req.Note,
		ActorID:        actorFrom(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func parseFilterValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func lineInputs(lines []productLinePayload) []services.ProductLineInput {
	if len(lines) == 0 {
		return nil
	}
	out := make([]services.ProductLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, services.ProductLineInput{Code: line.Code, Size: line.Size, Qty: line.Qty, Price: line.Price})
	}
	return out
}

func customerInput(c customerPayload) services.CustomerInput {
	return services.CustomerInput{Name: c.Name, Phone: c.Phone, Address: c.Address}
}

func chargesInput(c chargesRequest) services.ChargesInput {
	return services.ChargesInput{
		DiscountType:    domain.DiscountType(strings.TrimSpace(c.DiscountType)),
		DiscountValue:   c.DiscountValue,
		DeliveryCharge:  c.DeliveryCharge,
		AdvanceAmount:   c.AdvanceAmount,
		CollectedAmount: c.CollectedAmount,
	}
}
