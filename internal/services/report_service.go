package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

const reportPageSize = 200

// ReportServiceDeps bundles the collaborators required to construct a report service.
type ReportServiceDeps struct {
	Orders     repositories.OrderRepository
	Inventory  repositories.InventoryRepository
	Expenses   repositories.ExpenseRepository
	Calculator FinancialCalculator
}

type reportService struct {
	orders    repositories.OrderRepository
	inventory repositories.InventoryRepository
	expenses  repositories.ExpenseRepository
	calc      FinancialCalculator
}

var _ ReportService = (*reportService)(nil)

// NewReportService wires dependencies into a concrete ReportService implementation.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("report service: inventory repository is required")
	}
	return &reportService{
		orders:    deps.Orders,
		inventory: deps.Inventory,
		expenses:  deps.Expenses,
		calc:      deps.Calculator,
	}, nil
}

// ProfitReport attributes each active order's deductions to its lines by value
// share, costs them at the current unit cost and subtracts expenses spent in
// the same period.
func (s *reportService) ProfitReport(ctx context.Context, period TimeRange) (ProfitReport, error) {
	if !period.From.IsZero() && !period.To.IsZero() && !period.From.Before(period.To) {
		return ProfitReport{}, fmt.Errorf("%w: report range must end after it starts", ErrOrderInvalidInput)
	}

	orders, err := s.activeOrders(ctx, period)
	if err != nil {
		return ProfitReport{}, err
	}

	var codes []string
	for _, order := range orders {
		for _, line := range order.Products {
			codes = append(codes, line.Code)
		}
	}
	items, err := s.inventory.FindByCodes(ctx, codes)
	if err != nil {
		return ProfitReport{}, mapInventoryError("profit report", err)
	}

	report := ProfitReport{
		Range:        period,
		OrderCount:   len(orders),
		GrossRevenue: decimal.Zero,
		NetRevenue:   decimal.Zero,
		Cost:         decimal.Zero,
		GrossProfit:  decimal.Zero,
		Expenses:     decimal.Zero,
	}
	byCode := make(map[string]*domain.ProfitSummary)
	for _, order := range orders {
		subtotal := s.calc.Subtotal(order.Products)
		deductions := s.calc.OrderDeductions(order)
		for _, line := range order.Products {
			unitCost := decimal.Zero
			if item, ok := items[domain.FoldKey(line.Code)]; ok {
				unitCost = item.UnitCost
			}
			profit := s.calc.ProRatedLineProfit(line, subtotal, deductions, unitCost)

			key := domain.FoldKey(line.Code)
			summary, ok := byCode[key]
			if !ok {
				summary = &domain.ProfitSummary{Code: line.Code}
				byCode[key] = summary
			}
			summary.Qty += profit.Qty
			summary.Gross = summary.Gross.Add(profit.Gross)
			summary.NetRevenue = summary.NetRevenue.Add(profit.NetRevenue)
			summary.Cost = summary.Cost.Add(profit.Cost)
			summary.Profit = summary.Profit.Add(profit.Profit)

			report.GrossRevenue = report.GrossRevenue.Add(profit.Gross)
			report.NetRevenue = report.NetRevenue.Add(profit.NetRevenue)
			report.Cost = report.Cost.Add(profit.Cost)
			report.GrossProfit = report.GrossProfit.Add(profit.Profit)
		}
	}

	report.Products = make([]domain.ProfitSummary, 0, len(byCode))
	for _, summary := range byCode {
		summary.NetRevenue = summary.NetRevenue.Round(2)
		summary.Profit = summary.Profit.Round(2)
		report.Products = append(report.Products, *summary)
	}
	sort.Slice(report.Products, func(i, j int) bool {
		if !report.Products[i].Profit.Equal(report.Products[j].Profit) {
			return report.Products[i].Profit.GreaterThan(report.Products[j].Profit)
		}
		return report.Products[i].Code < report.Products[j].Code
	})

	if s.expenses != nil {
		expenses, err := s.expenses.List(ctx, period)
		if err != nil {
			return ProfitReport{}, mapPersistenceError(err, ErrOrderNotFound, ErrOrderConflict)
		}
		for _, expense := range expenses {
			report.Expenses = report.Expenses.Add(expense.Amount)
		}
	}

	report.NetRevenue = report.NetRevenue.Round(2)
	report.GrossProfit = report.GrossProfit.Round(2)
	report.NetProfit = report.GrossProfit.Sub(report.Expenses)
	return report, nil
}

func (s *reportService) activeOrders(ctx context.Context, period TimeRange) ([]Order, error) {
	filter := repositories.OrderListFilter{
		CreatedIn:  period,
		Pagination: Pagination{PageSize: reportPageSize},
	}
	var out []Order
	for {
		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return nil, mapPersistenceError(err, ErrOrderNotFound, ErrOrderConflict)
		}
		for _, order := range page.Items {
			if order.Status.IsActive() {
				out = append(out, order)
			}
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		filter.Pagination.PageToken = page.NextPageToken
	}
}
