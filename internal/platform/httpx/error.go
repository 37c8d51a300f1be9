package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderdesk/api/internal/platform/requestctx"
)

// Error is the JSON error envelope of the order desk API.
//
//	{"error":"insufficient_stock","message":"...","status":422,
//	 "order_id":"ord_1","stock":{"code":"TS-01","size":"M","requested":5,"available":2}}
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	OrderID   string
	Fields    map[string]string
	Stock     *StockShortfall
}

// StockShortfall names the first movement a stock plan could not apply.
type StockShortfall struct {
	Code      string `json:"code"`
	Size      string `json:"size,omitempty"`
	Step      string `json:"step,omitempty"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type envelope struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	OrderID   string            `json:"order_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Stock     *StockShortfall   `json:"stock,omitempty"`
}

func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, 80)
	return e
}

func (e Error) WithTraceID(id string) Error {
	e.TraceID = sanitize(id, 64)
	return e
}

// WithOrderID names the order the failed request addressed.
func (e Error) WithOrderID(id string) Error {
	e.OrderID = sanitize(id, 64)
	return e
}

// WithFields attaches per-field validation messages keyed by JSON path
// ("customer.phone", "products[0].qty").
func (e Error) WithFields(fields map[string]string) Error {
	if len(fields) == 0 {
		return e
	}
	copied := make(map[string]string, len(fields))
	for field, message := range fields {
		copied[sanitize(field, 80)] = sanitize(message, 256)
	}
	e.Fields = copied
	return e
}

// WithStock attaches the rejected stock movement.
func (e Error) WithStock(shortfall StockShortfall) Error {
	shortfall.Code = sanitize(shortfall.Code, 48)
	shortfall.Size = sanitize(shortfall.Size, 16)
	shortfall.Step = sanitize(shortfall.Step, 48)
	e.Stock = &shortfall
	return e
}

// WriteError writes err as JSON, filling request and trace ids from ctx when
// err does not carry them.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: err.RequestID,
		TraceID:   err.TraceID,
		OrderID:   err.OrderID,
		Fields:    err.Fields,
		Stock:     err.Stock,
	}
	if body.RequestID == "" {
		body.RequestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	if body.TraceID == "" {
		body.TraceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sanitize(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
