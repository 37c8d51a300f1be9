package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/repositories"
	"github.com/orderdesk/api/internal/services"
)

type inventoryItemRequest struct {
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind"`
	Stock      map[string]int  `json:"stock"`
	TotalStock int             `json:"totalStock"`
	UnitCost   decimal.Decimal `json:"unitCost"`
	MRP        decimal.Decimal `json:"mrp"`
	LocationID string          `json:"locationId"`
}

type stockAdjustmentRequest struct {
	Size   string `json:"size"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type inventoryItemResponse struct {
	Item inventoryItemPayload `json:"item"`
}

type inventoryListResponse struct {
	Items []inventoryItemPayload `json:"items"`
}

// InventoryHandlers manages stocked items and manual stock adjustments.
type InventoryHandlers struct {
	inventory services.InventoryService
	limiter   RateLimiter
}

// InventoryOption customises inventory handlers.
type InventoryOption func(*InventoryHandlers)

// WithAdjustmentLimiter throttles manual adjustments per operator.
func WithAdjustmentLimiter(limiter RateLimiter) InventoryOption {
	return func(h *InventoryHandlers) {
		h.limiter = limiter
	}
}

// NewInventoryHandlers constructs inventory handlers.
func NewInventoryHandlers(inventory services.InventoryService, opts ...InventoryOption) *InventoryHandlers {
	h := &InventoryHandlers{inventory: inventory}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.addItem)
	r.Get("/", h.listItems)
	r.Get("/{code}", h.getItem)
	r.Put("/{code}", h.updateItem)
	r.Post("/{code}:adjust", h.adjustStock)
}

func (h *InventoryHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	var req inventoryItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.inventory.AddItem(ctx, upsertCommand(req, req.Code, actorFrom(ctx)))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, inventoryItemResponse{Item: buildInventoryPayload(item)})
}

func (h *InventoryHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	var req inventoryItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code != "" && !domain.SameKey(req.Code, code) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code in body does not match path", http.StatusBadRequest))
		return
	}
	item, err := h.inventory.UpdateItem(ctx, upsertCommand(req, code, actorFrom(ctx)))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryPayload(item)})
}

func (h *InventoryHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	item, err := h.inventory.GetItem(ctx, code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryPayload(item)})
}

func (h *InventoryHandlers) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	query := r.URL.Query()
	items, err := h.inventory.ListItems(ctx, repositories.InventoryListFilter{
		LocationID: strings.TrimSpace(query.Get("locationId")),
		Kind:       domain.ItemKind(strings.TrimSpace(query.Get("kind"))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := inventoryListResponse{Items: make([]inventoryItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, buildInventoryPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *InventoryHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	actor := actorFrom(ctx)
	if h.limiter != nil && !h.limiter.Allow(actor) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many stock adjustments; retry shortly", http.StatusTooManyRequests))
		return
	}
	var req stockAdjustmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := h.inventory.AdjustStock(ctx, services.StockAdjustmentCommand{
		Code:    code,
		Size:    req.Size,
		Delta:   req.Delta,
		Reason:  req.Reason,
		ActorID: actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, inventoryItemResponse{Item: buildInventoryPayload(item)})
}

func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "item code is required", http.StatusBadRequest))
		return "", false
	}
	return code, true
}

func upsertCommand(req inventoryItemRequest, code, actor string) services.UpsertInventoryItemCommand {
	return services.UpsertInventoryItemCommand{
		Code:       code,
		Name:       req.Name,
		Kind:       domain.ItemKind(strings.TrimSpace(req.Kind)),
		Stock:      req.Stock,
		TotalStock: req.TotalStock,
		UnitCost:   req.UnitCost,
		MRP:        req.MRP,
		LocationID: req.LocationID,
		ActorID:    actor,
	}
}
