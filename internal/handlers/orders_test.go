package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/platform/requestctx"
	"github.com/orderdesk/api/internal/services"
)

type stubOrderService struct {
	createFn     func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn        func(context.Context, string) (services.Order, error)
	listFn       func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn func(context.Context, services.TransitionCommand) (services.Order, error)
	flagsFn      func(context.Context, services.SetOrderFlagsCommand) (services.Order, error)
	editFn       func(context.Context, services.EditOrderCommand) (services.Order, error)
	exchangeFn   func(context.Context, services.ExchangeCommand) (services.Order, error)
	partialFn    func(context.Context, services.PartialExchangeCommand) (services.PartialExchangeResult, error)
	completeFn   func(context.Context, services.ExchangeCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.TransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) SetFlags(ctx context.Context, cmd services.SetOrderFlagsCommand) (services.Order, error) {
	if s.flagsFn != nil {
		return s.flagsFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) EditOrder(ctx context.Context, cmd services.EditOrderCommand) (services.Order, error) {
	if s.editFn != nil {
		return s.editFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ProcessExchange(ctx context.Context, cmd services.ExchangeCommand) (services.Order, error) {
	if s.exchangeFn != nil {
		return s.exchangeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ProcessPartialExchange(ctx context.Context, cmd services.PartialExchangeCommand) (services.PartialExchangeResult, error) {
	if s.partialFn != nil {
		return s.partialFn(ctx, cmd)
	}
	return services.PartialExchangeResult{}, errors.New("not implemented")
}

func (s *stubOrderService) CompletePartialExchange(ctx context.Context, cmd services.ExchangeCommand) (services.Order, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

var handlerNow = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func sampleOrder(id string) services.Order {
	return services.Order{
		ID:              id,
		Type:            domain.OrderTypeOnline,
		MerchantOrderID: "42",
		Status:          domain.OrderStatusPending,
		Products:        []services.ProductLine{{Code: "TS-01", Size: "M", Qty: 2, Price: decimal.RequireFromString("300")}},
		Customer:        services.Customer{Name: "Rahim", Phone: "01711000000", Address: "Dhaka"},
		Subtotal:        decimal.RequireFromString("600"),
		GrandTotal:      decimal.RequireFromString("660"),
		DueAmount:       decimal.RequireFromString("660"),
		History:         []services.HistoryEntry{{Status: domain.OrderStatusPending, Timestamp: handlerNow, UpdatedBy: "nadia@example.com"}},
		AddedBy:         "nadia@example.com",
		CreatedAt:       handlerNow,
		UpdatedAt:       handlerNow,
	}
}

func orderRouter(svc services.OrderService) chi.Router {
	return NewRouter(WithOrderRoutes(NewOrderHandlers(svc).Routes))
}

func withActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestctx.WithActor(req.Context(), actor))
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rr, &body)
	return body.Error
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
		captured = cmd
		return sampleOrder("ord_1"), nil
	}}

	body := `{"type":"Online","customer":{"name":"Rahim","phone":"01711000000","address":"Dhaka"},
		"products":[{"code":"TS-01","size":"M","qty":2,"price":300}],
		"discountType":"Fixed","deliveryCharge":"60","note":"fragile"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), "nadia@example.com")
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Type != domain.OrderTypeOnline || captured.ActorID != "nadia@example.com" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if len(captured.Products) != 1 || !captured.Products[0].Price.Equal(decimal.RequireFromString("300")) {
		t.Fatalf("unexpected products %+v", captured.Products)
	}
	if !captured.Charges.DeliveryCharge.Equal(decimal.RequireFromString("60")) || captured.Charges.DiscountType != domain.DiscountFixed {
		t.Fatalf("unexpected charges %+v", captured.Charges)
	}

	var resp orderResponse
	decodeJSON(t, rr, &resp)
	if resp.Order.ID != "ord_1" || resp.Order.DisplayID != "42" || len(resp.Order.History) != 1 {
		t.Fatalf("unexpected payload %+v", resp.Order)
	}
}

func TestOrderHandlersCreateOrderRejectsBadJSON(t *testing.T) {
	called := false
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
		called = true
		return services.Order{}, nil
	}}

	for name, body := range map[string]string{
		"empty":         "",
		"malformed":     "{",
		"unknown field": `{"type":"Online","bogus":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
	if called {
		t.Fatalf("service must not be called for invalid payloads")
	}
}

func TestOrderHandlersValidationDetails(t *testing.T) {
	svc := &stubOrderService{createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
		return services.Order{}, &services.ValidationError{
			Kind:   services.ErrOrderInvalidInput,
			Fields: map[string]string{"customer.phone": "phone is invalid"},
		}
	}}

	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"type":"Online"}`)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeJSON(t, rr, &body)
	if body.Error != "validation_failed" || body.Fields["customer.phone"] == "" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
		captured = filter
		return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder("ord_1")}, NextPageToken: "next"}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=pending,Confirmed&type=Online&pageSize=500&from=2025-06-01&to=2025-06-30", nil)
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Statuses) != 2 || captured.Statuses[0] != domain.OrderStatusPending {
		t.Fatalf("unexpected statuses %v", captured.Statuses)
	}
	if captured.Pagination.PageSize != maxOrderPageSize {
		t.Fatalf("expected page size capped at %d, got %d", maxOrderPageSize, captured.Pagination.PageSize)
	}
	wantTo := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	if !captured.CreatedIn.To.Equal(wantTo) {
		t.Fatalf("expected inclusive end day, got %s", captured.CreatedIn.To)
	}

	var resp orderListResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Items) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersListOrdersRejectsUnknownStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	orderRouter(&stubOrderService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=Lost", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersTransition(t *testing.T) {
	var captured services.TransitionCommand
	svc := &stubOrderService{transitionFn: func(_ context.Context, cmd services.TransitionCommand) (services.Order, error) {
		captured = cmd
		order := sampleOrder(cmd.OrderID)
		order.Status = cmd.TargetStatus
		return order, nil
	}}

	body := `{"status":"dispatched","note":"courier picked","extraFields":{"trackingId":"TRK-9","collectedAmount":"660"}}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:transition", strings.NewReader(body)), "nadia@example.com")
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusDispatched {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ExtraFields.TrackingID == nil || *captured.ExtraFields.TrackingID != "TRK-9" {
		t.Fatalf("expected tracking id forwarded")
	}
	if captured.ExtraFields.CollectedAmount == nil || !captured.ExtraFields.CollectedAmount.Equal(decimal.RequireFromString("660")) {
		t.Fatalf("expected collected amount forwarded")
	}
	if captured.ExtraFields.IsRefunded != nil {
		t.Fatalf("absent flags must stay nil")
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{"invalid state", services.ErrOrderInvalidState, http.StatusConflict, "order_invalid_state"},
		{"conflict", services.ErrOrderConflict, http.StatusConflict, "order_conflict"},
		{"unavailable", services.ErrPersistenceUnavailable, http.StatusServiceUnavailable, "persistence_unavailable"},
		{"insufficient stock", &services.StockError{Step: "deduct", Code: "TS-01", Size: "M", Requested: 3, Available: 1, Err: services.ErrInventoryInsufficientStock}, http.StatusUnprocessableEntity, "insufficient_stock"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{transitionFn: func(context.Context, services.TransitionCommand) (services.Order, error) {
				return services.Order{}, tc.err
			}}
			rr := httptest.NewRecorder()
			orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:transition", strings.NewReader(`{"status":"Confirmed"}`)))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := errorCode(t, rr); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestOrderHandlersInsufficientStockDetails(t *testing.T) {
	svc := &stubOrderService{editFn: func(context.Context, services.EditOrderCommand) (services.Order, error) {
		return services.Order{}, &services.StockError{Code: "TS-01", Size: "M", Requested: 5, Available: 2, Err: services.ErrInventoryInsufficientStock}
	}}
	body := `{"products":[{"code":"TS-01","size":"M","qty":5,"price":"300"}]}`
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/orders/ord_1", strings.NewReader(body)))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp struct {
		Error   string `json:"error"`
		OrderID string `json:"order_id"`
		Stock   struct {
			Code      string `json:"code"`
			Size      string `json:"size"`
			Requested int    `json:"requested"`
			Available int    `json:"available"`
		} `json:"stock"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Error != "insufficient_stock" || resp.OrderID != "ord_1" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if resp.Stock.Code != "TS-01" || resp.Stock.Size != "M" || resp.Stock.Requested != 5 || resp.Stock.Available != 2 {
		t.Fatalf("unexpected stock details %+v", resp.Stock)
	}
}

func TestOrderHandlersExchange(t *testing.T) {
	var captured services.ExchangeCommand
	svc := &stubOrderService{exchangeFn: func(_ context.Context, cmd services.ExchangeCommand) (services.Order, error) {
		captured = cmd
		order := sampleOrder("ord_new")
		order.Status = domain.OrderStatusExchanged
		return order, nil
	}}

	body := `{"newProducts":[{"code":"TS-02","size":"L","qty":1,"price":"700"}],"deliveryCharge":"80"}`
	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:exchange", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || len(captured.NewProducts) != 1 || !captured.DeliveryCharge.Equal(decimal.RequireFromString("80")) {
		t.Fatalf("unexpected command %+v", captured)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/orders/ord_new" {
		t.Fatalf("unexpected location %q", loc)
	}

	rr = httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:exchange", strings.NewReader(`{"newProducts":[]}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty newProducts, got %d", rr.Code)
	}
}

func TestOrderHandlersPartialExchange(t *testing.T) {
	var captured services.PartialExchangeCommand
	svc := &stubOrderService{partialFn: func(_ context.Context, cmd services.PartialExchangeCommand) (services.PartialExchangeResult, error) {
		captured = cmd
		sibling := sampleOrder("ord_1-EXC-123456")
		sibling.ExchangeDetails = &services.ExchangeDetails{IsPartial: true, OriginalOrderID: "ord_1"}
		return services.PartialExchangeResult{Original: sampleOrder("ord_1"), Exchange: sibling}, nil
	}}

	rr := httptest.NewRecorder()
	orderRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:partial-exchange", strings.NewReader(`{"exchangedItems":[1]}`)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.ExchangedLines) != 1 || captured.ExchangedLines[0] != 1 || captured.NewProducts != nil {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp partialExchangeResponse
	decodeJSON(t, rr, &resp)
	if resp.Exchange.ExchangeDetails == nil || resp.Exchange.ExchangeDetails.OriginalOrderID != "ord_1" {
		t.Fatalf("unexpected sibling %+v", resp.Exchange)
	}
}

func TestOrderHandlersCompleteExchangeAndFlags(t *testing.T) {
	var completed services.ExchangeCommand
	var flags services.SetOrderFlagsCommand
	svc := &stubOrderService{
		completeFn: func(_ context.Context, cmd services.ExchangeCommand) (services.Order, error) {
			completed = cmd
			return sampleOrder(cmd.OrderID), nil
		},
		flagsFn: func(_ context.Context, cmd services.SetOrderFlagsCommand) (services.Order, error) {
			flags = cmd
			return sampleOrder(cmd.OrderID), nil
		},
	}
	router := orderRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1-EXC-123456:complete-exchange", strings.NewReader(`{"deliveryCharge":"50"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if completed.OrderID != "ord_1-EXC-123456" || completed.NewProducts != nil {
		t.Fatalf("unexpected command %+v", completed)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord_1:flags", strings.NewReader(`{"isRefunded":true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if flags.IsRefunded == nil || !*flags.IsRefunded || flags.IsReturnReceived != nil {
		t.Fatalf("unexpected flags %+v", flags)
	}
}

func TestOrderHandlersUnavailableService(t *testing.T) {
	rr := httptest.NewRecorder()
	orderRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
