package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/orderdesk/api/internal/platform/httpx"
	"github.com/orderdesk/api/internal/services"
)

type profitLinePayload struct {
	Code       string          `json:"code"`
	Qty        int             `json:"qty"`
	Gross      decimal.Decimal `json:"gross"`
	NetRevenue decimal.Decimal `json:"netRevenue"`
	Cost       decimal.Decimal `json:"cost"`
	Profit     decimal.Decimal `json:"profit"`
}

type profitReportResponse struct {
	From         string              `json:"from,omitempty"`
	To           string              `json:"to,omitempty"`
	OrderCount   int                 `json:"orderCount"`
	Products     []profitLinePayload `json:"products"`
	GrossRevenue decimal.Decimal     `json:"grossRevenue"`
	NetRevenue   decimal.Decimal     `json:"netRevenue"`
	Cost         decimal.Decimal     `json:"cost"`
	GrossProfit  decimal.Decimal     `json:"grossProfit"`
	Expenses     decimal.Decimal     `json:"expenses"`
	NetProfit    decimal.Decimal     `json:"netProfit"`
}

type expenseRequest struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Note     string          `json:"note"`
	SpentAt  string          `json:"spentAt"`
}

type expenseResponse struct {
	Expense expensePayload `json:"expense"`
}

type expenseListResponse struct {
	Items []expensePayload `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

// ReportHandlers serves profit reporting.
type ReportHandlers struct {
	reports services.ReportService
}

// NewReportHandlers constructs report handlers.
func NewReportHandlers(reports services.ReportService) *ReportHandlers {
	return &ReportHandlers{reports: reports}
}

// Routes registers the /reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/profit", h.profitReport)
}

func (h *ReportHandlers) profitReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeUnavailable(ctx, w, "report")
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	report, err := h.reports.ProfitReport(ctx, period)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := profitReportResponse{
		From:         formatTime(report.Range.From),
		To:           formatTime(report.Range.To),
		OrderCount:   report.OrderCount,
		Products:     make([]profitLinePayload, 0, len(report.Products)),
		GrossRevenue: report.GrossRevenue,
		NetRevenue:   report.NetRevenue,
		Cost:         report.Cost,
		GrossProfit:  report.GrossProfit,
		Expenses:     report.Expenses,
		NetProfit:    report.NetProfit,
	}
	for _, line := range report.Products {
		payload.Products = append(payload.Products, profitLinePayload{
			Code:       line.Code,
			Qty:        line.Qty,
			Gross:      line.Gross,
			NetRevenue: line.NetRevenue,
			Cost:       line.Cost,
			Profit:     line.Profit,
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// ExpenseHandlers records and lists operating expenses.
type ExpenseHandlers struct {
	expenses services.ExpenseService
}

// NewExpenseHandlers constructs expense handlers.
func NewExpenseHandlers(expenses services.ExpenseService) *ExpenseHandlers {
	return &ExpenseHandlers{expenses: expenses}
}

// Routes registers the /expenses endpoints.
func (h *ExpenseHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.recordExpense)
	r.Get("/", h.listExpenses)
}

func (h *ExpenseHandlers) recordExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.expenses == nil {
		writeUnavailable(ctx, w, "expense")
		return
	}
	var req expenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cmd := services.RecordExpenseCommand{
		Category: req.Category,
		Amount:   req.Amount,
		Note:     req.Note,
		ActorID:  actorFrom(ctx),
	}
	if raw := strings.TrimSpace(req.SpentAt); raw != "" {
		spent, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "spentAt must be RFC3339 or YYYY-MM-DD", http.StatusBadRequest))
			return
		}
		cmd.SpentAt = spent
	}

	expense, err := h.expenses.RecordExpense(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, expenseResponse{Expense: buildExpensePayload(expense)})
}

func (h *ExpenseHandlers) listExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.expenses == nil {
		writeUnavailable(ctx, w, "expense")
		return
	}
	period, err := parseRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	expenses, err := h.expenses.ListExpenses(ctx, period)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := expenseListResponse{Items: make([]expensePayload, 0, len(expenses)), Total: decimal.Zero}
	for _, expense := range expenses {
		payload.Items = append(payload.Items, buildExpensePayload(expense))
		payload.Total = payload.Total.Add(expense.Amount)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
