package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// FinancialCalculator holds the pure money rules shared by order workflows and reports.
type FinancialCalculator struct{}

// Subtotal sums price × qty.
func (FinancialCalculator) Subtotal(lines []ProductLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Value())
	}
	return total
}

// DiscountAmount resolves a fixed or percentage discount against subtotal.
func (FinancialCalculator) DiscountAmount(subtotal decimal.Decimal, discountType domain.DiscountType, value decimal.Decimal) decimal.Decimal {
	if discountType == domain.DiscountPercent {
		return subtotal.Mul(value).Div(hundred)
	}
	return value
}

// ComputeTotals returns subtotal, discount, grand total and due. Store sales
// are collected in full, so their due is always zero.
func (c FinancialCalculator) ComputeTotals(orderType OrderType, lines []ProductLine, charges Charges) Totals {
	subtotal := c.Subtotal(lines)
	discount := c.DiscountAmount(subtotal, charges.DiscountType, charges.DiscountValue)
	grand := subtotal.Sub(discount).Add(charges.DeliveryCharge)

	due := decimal.Zero
	if orderType != domain.OrderTypeStore {
		due = grand.Sub(charges.AdvanceAmount).Sub(charges.CollectedAmount)
	}
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		GrandTotal:     grand,
		Due:            due,
	}
}

// ProRatedLineProfit attributes totalDeductions to line by its share of
// subtotal. A zero subtotal attributes nothing.
func (FinancialCalculator) ProRatedLineProfit(line ProductLine, subtotal, totalDeductions, unitCost decimal.Decimal) LineProfit {
	gross := line.Value()
	deduction := decimal.Zero
	if !subtotal.IsZero() {
		deduction = totalDeductions.Mul(gross).Div(subtotal)
	}
	net := gross.Sub(deduction)
	cost := unitCost.Mul(decimal.NewFromInt(int64(line.Qty)))
	return LineProfit{
		Code:       line.Code,
		Size:       line.Size,
		Qty:        line.Qty,
		Gross:      gross,
		Deduction:  deduction,
		NetRevenue: net,
		Cost:       cost,
		Profit:     net.Sub(cost),
	}
}

// OrderDeductions is the discount plus the signed revenue adjustment: a
// shortfall at delivery adds to it, an excess (negative) reduces it.
func (c FinancialCalculator) OrderDeductions(order Order) decimal.Decimal {
	subtotal := c.Subtotal(order.Products)
	discount := c.DiscountAmount(subtotal, order.DiscountType, order.DiscountValue)
	return discount.Add(order.RevenueAdjustment)
}

// RecomputeForKeptLines returns the charges and totals an order keeps after
// some lines leave it. A fixed discount shrinks with the kept share of the
// subtotal; a percentage discount applies unchanged.
func (c FinancialCalculator) RecomputeForKeptLines(order Order, kept []ProductLine) (Charges, Totals) {
	charges := domain.ChargesOf(order)
	if charges.DiscountType != domain.DiscountPercent {
		oldSubtotal := c.Subtotal(order.Products)
		keptSubtotal := c.Subtotal(kept)
		if oldSubtotal.IsZero() {
			charges.DiscountValue = decimal.Zero
		} else {
			charges.DiscountValue = order.DiscountValue.Mul(keptSubtotal).Div(oldSubtotal).Round(2)
		}
	}
	return charges, c.ComputeTotals(order.Type, kept, charges)
}

// PriceDeviation is newValue − oldValue: positive means the customer owes more.
func (c FinancialCalculator) PriceDeviation(oldLines, newLines []ProductLine) decimal.Decimal {
	return c.Subtotal(newLines).Sub(c.Subtotal(oldLines))
}
