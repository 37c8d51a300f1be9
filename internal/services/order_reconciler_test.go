package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/orderdesk/api/internal/domain"
)

func twoItemStock() []domain.InventoryItem {
	return []domain.InventoryItem{
		shirt(map[string]int{"M": 10, "L": 6}),
		{Code: "CAP-9", Kind: domain.ItemKindSingle, TotalStock: 4, UnitCost: dec("90")},
	}
}

func TestEditOrderNetsStockDifference(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 2, Price: dec("400")})
	f := newLedgerFixture(twoItemStock(), order)

	edited, err := f.svc.EditOrder(context.Background(), EditOrderCommand{
		OrderID:  "ord_1",
		Customer: onlineCustomer(),
		Products: []ProductLineInput{
			{Code: "TS-01", Size: "M", Qty: 5, Price: dec("400")},
			{Code: "cap-9", Qty: 1, Price: dec("150")},
		},
		Charges: ChargesInput{DeliveryCharge: dec("60")},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, f.inventory.stock("TS-01", "M"), "old 2 restored, new 5 deducted")
	assert.Equal(t, 3, f.inventory.stock("CAP-9", ""))
	assert.True(t, edited.Subtotal.Equal(dec("2150")))
	assert.True(t, edited.GrandTotal.Equal(dec("2210")))
	assert.Equal(t, "ord_1", edited.ID)
	assert.Equal(t, domain.OrderStatusPending, edited.Status)
	assert.Equal(t, "Order edited", edited.History[len(edited.History)-1].Note)
	assert.Equal(t, []string{orderEventEdited}, f.events.types())
}

func TestEditOrderToInactiveStatusOnlyRestores(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "L", Qty: 2, Price: dec("400")})
	f := newLedgerFixture(twoItemStock(), order)

	_, err := f.svc.EditOrder(context.Background(), EditOrderCommand{
		OrderID:  "ord_1",
		Status:   domain.OrderStatusCancelled,
		Customer: onlineCustomer(),
		Products: []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 4, Price: dec("400")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 8, f.inventory.stock("TS-01", "L"))
}

func TestEditOrderRejectionLeavesEverythingUntouched(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 2, Price: dec("400")})
	f := newLedgerFixture(twoItemStock(), order)

	_, err := f.svc.EditOrder(context.Background(), EditOrderCommand{
		OrderID:  "ord_1",
		Customer: onlineCustomer(),
		Products: []ProductLineInput{
			{Code: "TS-01", Size: "M", Qty: 1, Price: dec("400")},
			{Code: "CAP-9", Qty: 9, Price: dec("150")},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInventoryInsufficientStock)

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "CAP-9", stockErr.Code)
	assert.Equal(t, 4, stockErr.Available)

	stored, _ := f.orders.get("ord_1")
	assert.Equal(t, 2, stored.Products[0].Qty)
	assert.Len(t, stored.History, 1)
	assert.Equal(t, 10, f.inventory.stock("TS-01", "M"))
	assert.Equal(t, 4, f.inventory.stock("CAP-9", ""))
	assert.Empty(t, f.events.events)
	assert.Empty(t, f.stock.events)
}

func TestEditOrderRequiresCustomerForOnline(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("400")})
	f := newLedgerFixture(twoItemStock(), order)

	_, err := f.svc.EditOrder(context.Background(), EditOrderCommand{
		OrderID:  "ord_1",
		Products: []ProductLineInput{{Code: "TS-01", Size: "M", Qty: 1, Price: dec("400")}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "customer.address")
}

func TestProcessExchangePositiveDeviation(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")})
	order.Status = domain.OrderStatusDelivered
	order.DeliveryCharge = dec("60")
	order.GrandTotal = dec("560")
	order.CollectedAmount = dec("560")
	order.DueAmount = dec("0")
	f := newLedgerFixture(twoItemStock(), order)

	exchanged, err := f.svc.ProcessExchange(context.Background(), ExchangeCommand{
		OrderID:        "ord_1",
		NewProducts:    []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("650")}},
		DeliveryCharge: dec("50"),
		Note:           "size swap",
	})
	require.NoError(t, err)

	assert.NotEqual(t, "ord_1", exchanged.ID)
	assert.True(t, strings.HasPrefix(exchanged.ID, orderIDPrefix))
	assert.Equal(t, "1001", exchanged.DisplayID())
	assert.Equal(t, int64(1001), exchanged.Sequence)
	assert.Equal(t, domain.OrderStatusExchanged, exchanged.Status)

	require.NotNil(t, exchanged.ExchangeDetails)
	assert.True(t, exchanged.ExchangeDetails.PriceDeviation.Equal(dec("150")))
	assert.True(t, exchanged.DueAmount.Equal(dec("200")), "deviation 150 plus delivery 50")
	assert.True(t, exchanged.DeliveryCharge.Equal(dec("110")))
	assert.True(t, exchanged.GrandTotal.Equal(dec("760")))
	assert.Equal(t, "M", exchanged.ExchangeDetails.OriginalProducts[0].Size)

	assert.Equal(t, 11, f.inventory.stock("TS-01", "M"))
	assert.Equal(t, 5, f.inventory.stock("TS-01", "L"))

	_, stillThere := f.orders.get("ord_1")
	assert.False(t, stillThere, "original document deleted")
	_, created := f.orders.get(exchanged.ID)
	assert.True(t, created)

	require.Len(t, f.archiver.archived, 1)
	assert.Equal(t, "ord_1", f.archiver.archived[0].ID)
	assert.Equal(t, domain.OrderStatusDelivered, f.archiver.archived[0].Status)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, orderEventExchanged, f.events.events[0].Type)
	assert.Equal(t, "ord_1", f.events.events[0].Metadata["previousOrderId"])
	assert.Contains(t, exchanged.History[len(exchanged.History)-1].Note, "net adjustment: 200.00")
}

func TestProcessExchangeNegativeDeviationOwesNothing(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 2, Price: dec("500")})
	f := newLedgerFixture(twoItemStock(), order)

	exchanged, err := f.svc.ProcessExchange(context.Background(), ExchangeCommand{
		OrderID:     "ord_1",
		NewProducts: []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("700")}},
	})
	require.NoError(t, err)

	assert.True(t, exchanged.ExchangeDetails.PriceDeviation.Equal(dec("-300")))
	assert.True(t, exchanged.DueAmount.IsZero())
	assert.True(t, exchanged.RevenueAdjustment.IsZero())
	assert.True(t, exchanged.GrandTotal.Equal(dec("700")))
	assert.Equal(t, 12, f.inventory.stock("TS-01", "M"))
	assert.Equal(t, 5, f.inventory.stock("TS-01", "L"))
}

func TestProcessExchangeRejectsInactiveAndPartialOrders(t *testing.T) {
	cancelled := pendingOrder("ord_c", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")})
	cancelled.Status = domain.OrderStatusCancelled
	sibling := pendingOrder("ord_p-EXC-123456", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")})
	sibling.Status = domain.OrderStatusExchanged
	sibling.ExchangeDetails = &domain.ExchangeDetails{IsPartial: true, OriginalOrderID: "ord_p"}
	f := newLedgerFixture(twoItemStock(), cancelled, sibling)
	cmd := ExchangeCommand{NewProducts: []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("500")}}}

	cmd.OrderID = "ord_c"
	_, err := f.svc.ProcessExchange(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrOrderInvalidState)

	cmd.OrderID = sibling.ID
	_, err = f.svc.ProcessExchange(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrOrderInvalidState)

	cmd.OrderID = "ord_c"
	_, err = f.svc.CompletePartialExchange(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrOrderInvalidState)

	_, err = f.svc.ProcessExchange(context.Background(), ExchangeCommand{OrderID: "ord_c"})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestProcessExchangeInsufficientStockKeepsOriginal(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")})
	f := newLedgerFixture(twoItemStock(), order)

	_, err := f.svc.ProcessExchange(context.Background(), ExchangeCommand{
		OrderID:     "ord_1",
		NewProducts: []ProductLineInput{{Code: "CAP-9", Qty: 5, Price: dec("100")}},
	})
	require.ErrorIs(t, err, ErrInventoryInsufficientStock)

	_, ok := f.orders.get("ord_1")
	assert.True(t, ok)
	assert.Empty(t, f.orders.inserted)
	assert.Empty(t, f.archiver.archived)
	assert.Equal(t, 10, f.inventory.stock("TS-01", "M"))
}

func TestPartialExchangeSplitsWithoutMovingStock(t *testing.T) {
	order := pendingOrder("ord_1",
		domain.ProductLine{Code: "TS-01", Size: "M", Qty: 2, Price: dec("500")},
		domain.ProductLine{Code: "CAP-9", Qty: 1, Price: dec("300")},
		domain.ProductLine{Code: "TS-01", Size: "L", Qty: 1, Price: dec("200")},
	)
	order.DiscountValue = dec("150")
	order.GrandTotal = dec("1350")
	order.AdvanceAmount = dec("100")
	order.DueAmount = dec("1250")
	f := newLedgerFixture(twoItemStock(), order)

	result, err := f.svc.ProcessPartialExchange(context.Background(), PartialExchangeCommand{
		OrderID:        "ord_1",
		ExchangedLines: []int{1, 2},
		NewProducts:    []ProductLineInput{{Code: "TS-01", Size: "M", Qty: 1, Price: dec("450")}},
	})
	require.NoError(t, err)

	original, sibling := result.Original, result.Exchange
	assert.Equal(t, "ord_1", original.ID)
	assert.Len(t, original.Products, 1)
	assert.Len(t, sibling.Products, 2)
	assert.Equal(t, 4, original.TotalQty()+sibling.TotalQty(), "line quantities are conserved across the split")
	assert.True(t, original.Subtotal.Add(sibling.Subtotal).Equal(dec("1500")))

	assert.True(t, strings.HasPrefix(sibling.ID, "ord_1"+exchangeIDInfix))
	assert.True(t, strings.HasPrefix(sibling.DisplayID(), "1001"+exchangeIDInfix))
	assert.Equal(t, domain.OrderStatusExchanged, sibling.Status)
	assert.True(t, sibling.GrandTotal.Equal(dec("500")))
	assert.True(t, sibling.DueAmount.IsZero())
	require.NotNil(t, sibling.ExchangeDetails)
	assert.True(t, sibling.ExchangeDetails.IsPartial)
	assert.Equal(t, "ord_1", sibling.ExchangeDetails.OriginalOrderID)
	assert.Len(t, sibling.ExchangeDetails.NewProducts, 1)

	assert.Equal(t, domain.OrderStatusPending, original.Status)
	assert.True(t, original.DiscountValue.Equal(dec("100")), "fixed discount pro-rated to the kept share")
	assert.True(t, original.GrandTotal.Equal(dec("900")))
	assert.True(t, original.DueAmount.Equal(dec("800")))

	assert.Empty(t, f.inventory.applied)
	assert.Equal(t, []string{sibling.ID}, f.orders.inserted)
	assert.Equal(t, []string{orderEventPartialSplit}, f.events.types())
}

func TestPartialExchangeOfEveryLineMarksOriginalExchanged(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "CAP-9", Qty: 1, Price: dec("300")})
	f := newLedgerFixture(twoItemStock(), order)

	result, err := f.svc.ProcessPartialExchange(context.Background(), PartialExchangeCommand{OrderID: "ord_1", ExchangedLines: []int{0}})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusExchanged, result.Original.Status)
	assert.Empty(t, result.Original.Products)
	assert.True(t, result.Original.GrandTotal.IsZero())
}

func TestPartialExchangeValidatesIndexes(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "CAP-9", Qty: 1, Price: dec("300")})
	f := newLedgerFixture(twoItemStock(), order)

	_, err := f.svc.ProcessPartialExchange(context.Background(), PartialExchangeCommand{OrderID: "ord_1", ExchangedLines: []int{3}})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)

	_, err = f.svc.ProcessPartialExchange(context.Background(), PartialExchangeCommand{OrderID: "ord_1", ExchangedLines: []int{0, 0}})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)

	assert.Empty(t, f.orders.inserted)
}

func TestCompletePartialExchangeUpdatesSiblingInPlace(t *testing.T) {
	order := pendingOrder("ord_1",
		domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")},
		domain.ProductLine{Code: "CAP-9", Qty: 2, Price: dec("150")},
	)
	f := newLedgerFixture(twoItemStock(), order)
	ctx := context.Background()

	split, err := f.svc.ProcessPartialExchange(ctx, PartialExchangeCommand{
		OrderID:        "ord_1",
		ExchangedLines: []int{1},
		NewProducts:    []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("400")}},
	})
	require.NoError(t, err)

	completed, err := f.svc.CompletePartialExchange(ctx, ExchangeCommand{OrderID: split.Exchange.ID, DeliveryCharge: dec("40")})
	require.NoError(t, err)

	assert.Equal(t, split.Exchange.ID, completed.ID)
	assert.Equal(t, domain.OrderStatusExchanged, completed.Status)
	assert.Equal(t, "L", completed.Products[0].Size)
	assert.True(t, completed.ExchangeDetails.IsPartial)
	assert.Equal(t, "ord_1", completed.ExchangeDetails.OriginalOrderID)
	assert.True(t, completed.ExchangeDetails.PriceDeviation.Equal(dec("100")))
	assert.True(t, completed.DueAmount.Equal(dec("140")))

	assert.Equal(t, 6, f.inventory.stock("CAP-9", ""), "two caps returned")
	assert.Equal(t, 5, f.inventory.stock("TS-01", "L"))
	assert.Empty(t, f.orders.deleted)
	assert.Empty(t, f.archiver.archived)

	original, _ := f.orders.get("ord_1")
	assert.Len(t, original.Products, 1)
}

func TestCompletePartialExchangeRunsOnce(t *testing.T) {
	order := pendingOrder("ord_1",
		domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")},
		domain.ProductLine{Code: "CAP-9", Qty: 2, Price: dec("150")},
	)
	f := newLedgerFixture(twoItemStock(), order)
	ctx := context.Background()

	split, err := f.svc.ProcessPartialExchange(ctx, PartialExchangeCommand{
		OrderID:        "ord_1",
		ExchangedLines: []int{1},
		NewProducts:    []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("400")}},
	})
	require.NoError(t, err)
	assert.True(t, split.Exchange.ExchangeDetails.PendingPartial())

	completed, err := f.svc.CompletePartialExchange(ctx, ExchangeCommand{OrderID: split.Exchange.ID, DeliveryCharge: dec("40")})
	require.NoError(t, err)
	assert.False(t, completed.ExchangeDetails.PendingPartial())
	assert.Equal(t, fixtureNow, completed.ExchangeDetails.CompletedAt)

	_, err = f.svc.CompletePartialExchange(ctx, ExchangeCommand{OrderID: split.Exchange.ID})
	require.ErrorIs(t, err, ErrOrderInvalidState)

	stored, ok := f.orders.get(split.Exchange.ID)
	require.True(t, ok)
	assert.True(t, stored.DueAmount.Equal(dec("140")), "due %s", stored.DueAmount)
	assert.True(t, stored.ExchangeDetails.PriceDeviation.Equal(dec("100")))
	assert.Equal(t, "CAP-9", stored.ExchangeDetails.OriginalProducts[0].Code)
	assert.Len(t, stored.History, len(completed.History))
	assert.Equal(t, 5, f.inventory.stock("TS-01", "L"))
	assert.Equal(t, 6, f.inventory.stock("CAP-9", ""))
}

func TestProcessExchangeRejectsOrderWithoutProducts(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "CAP-9", Qty: 1, Price: dec("300")})
	f := newLedgerFixture(twoItemStock(), order)
	ctx := context.Background()

	_, err := f.svc.ProcessPartialExchange(ctx, PartialExchangeCommand{OrderID: "ord_1", ExchangedLines: []int{0}})
	require.NoError(t, err)

	_, err = f.svc.ProcessExchange(ctx, ExchangeCommand{
		OrderID:     "ord_1",
		NewProducts: []ProductLineInput{{Code: "TS-01", Size: "M", Qty: 2, Price: dec("500")}},
	})
	require.ErrorIs(t, err, ErrOrderInvalidState)
	assert.Equal(t, 10, f.inventory.stock("TS-01", "M"))
	assert.Empty(t, f.orders.deleted)
}

func TestExchangeArchiveFailureIsLogged(t *testing.T) {
	order := pendingOrder("ord_1", domain.ProductLine{Code: "TS-01", Size: "M", Qty: 1, Price: dec("500")})
	f := newLedgerFixture(twoItemStock(), order)
	f.archiver.err = errors.New("bucket missing")

	_, err := f.svc.ProcessExchange(context.Background(), ExchangeCommand{
		OrderID:     "ord_1",
		NewProducts: []ProductLineInput{{Code: "TS-01", Size: "L", Qty: 1, Price: dec("500")}},
	})
	require.NoError(t, err)
	assert.True(t, f.logs.has("order.archive.failed"))
}
