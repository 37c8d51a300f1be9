package domain

import "github.com/shopspring/decimal"

// Charges are the order-level inputs to the totals calculation.
type Charges struct {
	DiscountType    DiscountType
	DiscountValue   decimal.Decimal
	DeliveryCharge  decimal.Decimal
	AdvanceAmount   decimal.Decimal
	CollectedAmount decimal.Decimal
}

// ChargesOf extracts the charge fields from an order.
func ChargesOf(o Order) Charges {
	return Charges{
		DiscountType:    o.DiscountType,
		DiscountValue:   o.DiscountValue,
		DeliveryCharge:  o.DeliveryCharge,
		AdvanceAmount:   o.AdvanceAmount,
		CollectedAmount: o.CollectedAmount,
	}
}

// Totals is the computed financial summary of an order.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
	Due            decimal.Decimal
}

// LineProfit attributes revenue and cost to one product line.
type LineProfit struct {
	Code       string
	Size       string
	Qty        int
	Gross      decimal.Decimal
	Deduction  decimal.Decimal
	NetRevenue decimal.Decimal
	Cost       decimal.Decimal
	Profit     decimal.Decimal
}

// ProfitSummary aggregates line profit by product code.
type ProfitSummary struct {
	Code       string
	Qty        int
	Gross      decimal.Decimal
	NetRevenue decimal.Decimal
	Cost       decimal.Decimal
	Profit     decimal.Decimal
}

// ProfitReport is the period report returned to operators.
type ProfitReport struct {
	Range        TimeRange
	OrderCount   int
	Products     []ProfitSummary
	GrossRevenue decimal.Decimal
	NetRevenue   decimal.Decimal
	Cost         decimal.Decimal
	GrossProfit  decimal.Decimal
	Expenses     decimal.Decimal
	NetProfit    decimal.Decimal
}
