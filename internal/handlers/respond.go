package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/platform/requestctx"
	"github.com/orderdesk/api/internal/services"
)

const maxRequestBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a bounded JSON body into dst, writing the 4xx itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	data, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return false
	}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

// actorFrom returns the operator recorded by the auth middleware. The services
// fall back to the configured default actor when it is blank.
func actorFrom(ctx context.Context) string {
	return requestctx.Actor(ctx)
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// parseRange reads from/to query parameters into a half-open window.
// A date-only "to" includes that whole day.
func parseRange(r *http.Request) (services.TimeRange, error) {
	var period services.TimeRange
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return period, fmt.Errorf("from must be RFC3339 or YYYY-MM-DD")
		}
		period.From = ts
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return period, fmt.Errorf("to must be RFC3339 or YYYY-MM-DD")
		}
		if _, dateErr := time.Parse(time.DateOnly, raw); dateErr == nil {
			ts = ts.AddDate(0, 0, 1)
		}
		period.To = ts
	}
	return period, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// writeServiceError maps service sentinels onto the JSON error envelope. Errors
// on an order route name the order they were raised for.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	apiErr := serviceError(ctx, err)
	if orderID := strings.TrimSpace(chi.URLParamFromCtx(ctx, "orderID")); orderID != "" {
		apiErr = apiErr.WithOrderID(orderID)
	}
	httpx.WriteError(ctx, w, apiErr)
}

func serviceError(ctx context.Context, err error) httpx.Error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return httpx.NewError("validation_failed", err.Error(), http.StatusBadRequest).WithFields(verr.Fields)
	}

	var stockErr *services.StockError
	if errors.As(err, &stockErr) && errors.Is(err, services.ErrInventoryInsufficientStock) {
		return httpx.NewError("insufficient_stock", err.Error(), http.StatusUnprocessableEntity).WithStock(httpx.StockShortfall{
			Code:      stockErr.Code,
			Size:      stockErr.Size,
			Step:      stockErr.Step,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrInventoryInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError("order_not_found", "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInventoryNotFound):
		return httpx.NewError("inventory_not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		return httpx.NewError("insufficient_stock", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrOrderInvalidState):
		return httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrOrderConflict):
		return httpx.NewError("order_conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInventoryConflict):
		return httpx.NewError("inventory_conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrPersistenceUnavailable):
		return httpx.NewError("persistence_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable)
	}
	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	return httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError)
}
