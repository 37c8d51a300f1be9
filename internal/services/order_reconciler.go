package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderdesk/api/internal/domain"
)

const exchangeIDInfix = "-EXC-"

// reconcileKind selects how the rebuilt order is persisted.
type reconcileKind int

const (
	// reconcileReplace overwrites the order document in place.
	reconcileReplace reconcileKind = iota
	// reconcileReissue writes the rebuilt order under a new id and deletes the old one.
	reconcileReissue
)

type reconcileRequest struct {
	orderID string
	span    string
	actor   string
	// build derives the next state from a private copy of the current order.
	build func(current Order, now time.Time) (Order, reconcileKind, error)
}

type reconcileResult struct {
	previous Order
	next     Order
	kind     reconcileKind
	applied  []AppliedMovement
}

// reconcile reads the order, rebuilds it and nets the stock difference in one
// transaction: the old lines are restored when the old status was active and
// the new lines deducted when the new status is active.
func (s *orderService) reconcile(ctx context.Context, req reconcileRequest) (res reconcileResult, err error) {
	orderID := strings.TrimSpace(req.orderID)
	ctx, span := s.startSpan(ctx, req.span, orderID)
	defer func() { endSpan(span, err) }()

	now := s.now()
	reissuedID := s.nextOrderID()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		res = reconcileResult{}
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		next, kind, err := req.build(current.Clone(), now)
		if err != nil {
			return err
		}

		var movements []StockMovement
		if current.Status.IsActive() {
			movements = append(movements, movementsFor(current.Products, 1)...)
		}
		if next.Status.IsActive() {
			movements = append(movements, movementsFor(next.Products, -1)...)
		}
		applied, err := s.ledger.Apply(txCtx, movements)
		if err != nil {
			return err
		}

		next.UpdatedAt = now
		next.LastEditedBy = req.actor
		switch kind {
		case reconcileReissue:
			next.ID = reissuedID
			if err := s.orders.Insert(txCtx, next); err != nil {
				return s.mapRepositoryError(err)
			}
			if err := s.orders.Delete(txCtx, current.ID); err != nil {
				return s.mapRepositoryError(err)
			}
		default:
			if err := s.orders.Replace(txCtx, next); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		res = reconcileResult{previous: current, next: next, kind: kind, applied: applied}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.reconcile.rejected", map[string]any{"order": orderID, "op": req.span, "error": err.Error()})
		return reconcileResult{}, unwrapTxError(err)
	}

	s.ledger.Announce(ctx, res.applied, StockEventMeta{OrderID: res.next.ID, Reason: req.span, ActorID: req.actor})
	if res.kind == reconcileReissue {
		s.archive(ctx, res.previous)
	}
	return res, nil
}

func (s *orderService) EditOrder(ctx context.Context, cmd EditOrderCommand) (Order, error) {
	verr := validateStruct(ErrOrderInvalidInput, cmd)
	if cmd.Status != "" && !cmd.Status.IsKnown() {
		verr.add("status", fmt.Sprintf("unknown status %q", cmd.Status))
	}
	validateLines(verr, "products", cmd.Products)
	lines := buildLines(cmd.Products)
	charges := buildCharges(cmd.Charges)
	validateCharges(verr, s.calc, lines, charges)
	if err := verr.orNil(); err != nil {
		return Order{}, err
	}

	actor := s.actor(cmd.ActorID)
	note := sanitizeNote(cmd.Note)

	res, err := s.reconcile(ctx, reconcileRequest{
		orderID: cmd.OrderID,
		span:    "order.edit",
		actor:   actor,
		build: func(order Order, now time.Time) (Order, reconcileKind, error) {
			status := order.Status
			if cmd.Status != "" {
				status = cmd.Status
			}
			if !status.AllowedFor(order.Type) {
				return Order{}, 0, fmt.Errorf("%w: status %s is not valid for %s orders", ErrOrderInvalidState, status, order.Type)
			}
			customerErr := &ValidationError{Kind: ErrOrderInvalidInput}
			validateCustomer(customerErr, order.Type, cmd.Customer)
			if err := customerErr.orNil(); err != nil {
				return Order{}, 0, err
			}

			totals := s.calc.ComputeTotals(order.Type, lines, charges)
			order.Status = status
			order.Products = domain.CloneLines(lines)
			order.Customer = buildCustomer(cmd.Customer)
			applyCharges(&order, charges, totals)

			entryNote := "Order edited"
			if note != "" {
				entryNote = note
				order.Note = note
			}
			order.History = append(order.History, HistoryEntry{
				Status:    status,
				Timestamp: now,
				Note:      entryNote,
				UpdatedBy: actor,
			})
			return order, reconcileReplace, nil
		},
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventEdited,
		OrderID:        res.next.ID,
		DisplayID:      res.next.DisplayID(),
		OrderType:      string(res.next.Type),
		PreviousStatus: string(res.previous.Status),
		CurrentStatus:  string(res.next.Status),
		ActorID:        actor,
		OccurredAt:     res.next.UpdatedAt,
		Metadata: map[string]any{
			"grandTotal": res.next.GrandTotal.String(),
			"lines":      len(res.next.Products),
		},
	})
	return res.next, nil
}

func (s *orderService) ProcessExchange(ctx context.Context, cmd ExchangeCommand) (Order, error) {
	verr := validateExchange(cmd)
	if len(cmd.NewProducts) == 0 {
		verr.add("newProducts", "newProducts is required")
	}
	if err := verr.orNil(); err != nil {
		return Order{}, err
	}
	return s.exchange(ctx, cmd, false)
}

func (s *orderService) CompletePartialExchange(ctx context.Context, cmd ExchangeCommand) (Order, error) {
	if err := validateExchange(cmd).orNil(); err != nil {
		return Order{}, err
	}
	return s.exchange(ctx, cmd, true)
}

// exchange swaps the order's lines for the requested ones. A regular exchange
// reissues the order under a new id and archives the old document; completing
// the exchange half of a partial split updates that order in place.
func (s *orderService) exchange(ctx context.Context, cmd ExchangeCommand, completing bool) (Order, error) {
	actor := s.actor(cmd.ActorID)
	note := sanitizeNote(cmd.Note)
	requested := buildLines(cmd.NewProducts)
	delivery := cmd.DeliveryCharge

	var deviation, adjustment decimal.Decimal
	span := "order.exchange"
	if completing {
		span = "order.exchange.complete"
	}

	res, err := s.reconcile(ctx, reconcileRequest{
		orderID: cmd.OrderID,
		span:    span,
		actor:   actor,
		build: func(order Order, now time.Time) (Order, reconcileKind, error) {
			if !order.Status.IsActive() {
				return Order{}, 0, fmt.Errorf("%w: cannot exchange a %s order", ErrOrderInvalidState, order.Status)
			}
			if !domain.OrderStatusExchanged.AllowedFor(order.Type) {
				return Order{}, 0, fmt.Errorf("%w: %s orders cannot be exchanged", ErrOrderInvalidState, order.Type)
			}
			if len(order.Products) == 0 {
				return Order{}, 0, fmt.Errorf("%w: order %s has no products to exchange", ErrOrderInvalidState, order.ID)
			}
			partial := order.ExchangeDetails.PendingPartial()
			if completing != partial {
				switch {
				case completing && order.ExchangeDetails != nil && order.ExchangeDetails.IsPartial:
					return Order{}, 0, fmt.Errorf("%w: partial exchange %s is already completed", ErrOrderInvalidState, order.ID)
				case completing:
					return Order{}, 0, fmt.Errorf("%w: order %s is not a partial exchange", ErrOrderInvalidState, order.ID)
				}
				return Order{}, 0, fmt.Errorf("%w: order %s is a partial exchange; complete it instead", ErrOrderInvalidState, order.ID)
			}

			newLines := requested
			if len(newLines) == 0 && partial {
				newLines = domain.CloneLines(order.ExchangeDetails.NewProducts)
			}
			if len(newLines) == 0 {
				return Order{}, 0, &ValidationError{
					Kind:   ErrOrderInvalidInput,
					Fields: map[string]string{"newProducts": "newProducts is required"},
				}
			}

			deviation = s.calc.PriceDeviation(order.Products, newLines)
			adjustment = deviation.Add(delivery)

			charges := domain.ChargesOf(order)
			charges.DeliveryCharge = order.DeliveryCharge.Add(delivery)
			totals := s.calc.ComputeTotals(order.Type, newLines, charges)

			details := &ExchangeDetails{
				OriginalProducts: domain.CloneLines(order.Products),
				NewProducts:      domain.CloneLines(newLines),
				PriceDeviation:   deviation,
			}
			if partial {
				details.IsPartial = true
				details.OriginalOrderID = order.ExchangeDetails.OriginalOrderID
				details.CompletedAt = now
			}

			order.Products = domain.CloneLines(newLines)
			order.Status = domain.OrderStatusExchanged
			order.Subtotal = totals.Subtotal
			order.DeliveryCharge = charges.DeliveryCharge
			order.GrandTotal = totals.GrandTotal
			order.DueAmount = decimal.Max(decimal.Zero, adjustment)
			order.ExchangeDetails = details

			entryNote := fmt.Sprintf("Exchange processed. Price deviation: %s, net adjustment: %s", deviation.StringFixed(2), adjustment.StringFixed(2))
			if note != "" {
				entryNote += ". " + note
			}
			order.History = append(order.History, HistoryEntry{
				Status:    domain.OrderStatusExchanged,
				Timestamp: now,
				Note:      entryNote,
				UpdatedBy: actor,
			})

			if completing {
				return order, reconcileReplace, nil
			}
			return order, reconcileReissue, nil
		},
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{
		"priceDeviation": deviation.String(),
		"netAdjustment":  adjustment.String(),
		"partial":        completing,
	}
	if res.kind == reconcileReissue {
		metadata["previousOrderId"] = res.previous.ID
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventExchanged,
		OrderID:        res.next.ID,
		DisplayID:      res.next.DisplayID(),
		OrderType:      string(res.next.Type),
		PreviousStatus: string(res.previous.Status),
		CurrentStatus:  string(res.next.Status),
		ActorID:        actor,
		OccurredAt:     res.next.UpdatedAt,
		Metadata:       metadata,
	})
	return res.next, nil
}

// ProcessPartialExchange moves the selected lines into a sibling order in
// Exchanged status. Stock is not touched: the lines stay deducted under the
// sibling until its exchange is completed.
func (s *orderService) ProcessPartialExchange(ctx context.Context, cmd PartialExchangeCommand) (result PartialExchangeResult, err error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	ctx, span := s.startSpan(ctx, "order.exchange.partial", orderID)
	defer func() { endSpan(span, err) }()

	verr := validateStruct(ErrOrderInvalidInput, cmd)
	validateLines(verr, "newProducts", cmd.NewProducts)
	seen := make(map[int]struct{}, len(cmd.ExchangedLines))
	for _, idx := range cmd.ExchangedLines {
		if _, dup := seen[idx]; dup {
			verr.add("exchangedLines", fmt.Sprintf("line %d is listed more than once", idx))
		}
		seen[idx] = struct{}{}
	}
	if err := verr.orNil(); err != nil {
		return PartialExchangeResult{}, err
	}

	actor := s.actor(cmd.ActorID)
	requested := buildLines(cmd.NewProducts)
	now := s.now()
	suffix := exchangeSuffix(now)

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		result = PartialExchangeResult{}
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if !current.Status.IsActive() {
			return fmt.Errorf("%w: cannot exchange a %s order", ErrOrderInvalidState, current.Status)
		}
		if !domain.OrderStatusExchanged.AllowedFor(current.Type) {
			return fmt.Errorf("%w: %s orders cannot be exchanged", ErrOrderInvalidState, current.Type)
		}
		if current.ExchangeDetails != nil && current.ExchangeDetails.IsPartial {
			return fmt.Errorf("%w: order %s is already a partial exchange", ErrOrderInvalidState, current.ID)
		}

		var exchanged, kept []ProductLine
		for i, line := range current.Products {
			if _, ok := seen[i]; ok {
				exchanged = append(exchanged, line)
				continue
			}
			kept = append(kept, line)
		}
		for idx := range seen {
			if idx >= len(current.Products) {
				return &ValidationError{
					Kind:   ErrOrderInvalidInput,
					Fields: map[string]string{"exchangedLines": fmt.Sprintf("line %d does not exist on order %s", idx, current.DisplayID())},
				}
			}
		}

		sibling := s.partialSibling(current, exchanged, requested, suffix, actor, now)
		if err := s.orders.Insert(txCtx, sibling); err != nil {
			return s.mapRepositoryError(err)
		}

		next := current.Clone()
		charges, totals := s.calc.RecomputeForKeptLines(current, kept)
		next.Products = kept
		applyCharges(&next, charges, totals)
		next.DueAmount = decimal.Max(decimal.Zero, next.DueAmount)
		if len(kept) == 0 {
			next.Status = domain.OrderStatusExchanged
		}
		next.History = append(next.History, HistoryEntry{
			Status:    next.Status,
			Timestamp: now,
			Note:      fmt.Sprintf("Partial exchange: %d line(s) moved to %s", len(exchanged), sibling.DisplayID()),
			UpdatedBy: actor,
		})
		next.LastEditedBy = actor
		next.UpdatedAt = now
		if err := s.orders.Replace(txCtx, next); err != nil {
			return s.mapRepositoryError(err)
		}

		result = PartialExchangeResult{Original: next, Exchange: sibling}
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.reconcile.rejected", map[string]any{"order": orderID, "op": "order.exchange.partial", "error": err.Error()})
		return PartialExchangeResult{}, unwrapTxError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPartialSplit,
		OrderID:       result.Original.ID,
		DisplayID:     result.Original.DisplayID(),
		OrderType:     string(result.Original.Type),
		CurrentStatus: string(result.Original.Status),
		ActorID:       actor,
		OccurredAt:    now,
		Metadata: map[string]any{
			"exchangeOrderId":   result.Exchange.ID,
			"exchangeDisplayId": result.Exchange.DisplayID(),
			"lines":             len(result.Exchange.Products),
		},
	})
	return result, nil
}

func (s *orderService) partialSibling(original Order, exchanged, requested []ProductLine, suffix, actor string, now time.Time) Order {
	value := s.calc.Subtotal(exchanged)
	details := &ExchangeDetails{
		OriginalProducts: domain.CloneLines(exchanged),
		NewProducts:      domain.CloneLines(requested),
		IsPartial:        true,
		OriginalOrderID:  original.ID,
	}
	if len(requested) > 0 {
		details.PriceDeviation = s.calc.PriceDeviation(exchanged, requested)
	}

	sibling := Order{
		ID:              original.ID + exchangeIDInfix + suffix,
		Type:            original.Type,
		Sequence:        original.Sequence,
		Status:          domain.OrderStatusExchanged,
		Products:        domain.CloneLines(exchanged),
		Customer:        original.Customer,
		Subtotal:        value,
		DiscountType:    domain.DiscountFixed,
		DiscountValue:   decimal.Zero,
		DeliveryCharge:  decimal.Zero,
		AdvanceAmount:   decimal.Zero,
		CollectedAmount: decimal.Zero,
		GrandTotal:      value,
		DueAmount:       decimal.Zero,
		ExchangeDetails: details,
		AddedBy:         actor,
		LastEditedBy:    actor,
		CreatedAt:       now,
		UpdatedAt:       now,
		History: []HistoryEntry{{
			Status:    domain.OrderStatusExchanged,
			Timestamp: now,
			Note:      "Partial exchange from order " + original.DisplayID(),
			UpdatedBy: actor,
		}},
	}
	sibling.MerchantOrderID = original.DisplayID() + exchangeIDInfix + suffix
	return sibling
}

func (s *orderService) archive(ctx context.Context, order Order) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveOrder(ctx, order); err != nil {
		s.logger(ctx, "order.archive.failed", map[string]any{"order": order.ID, "error": err.Error()})
	}
}

func validateExchange(cmd ExchangeCommand) *ValidationError {
	verr := validateStruct(ErrOrderInvalidInput, cmd)
	validateLines(verr, "newProducts", cmd.NewProducts)
	if cmd.DeliveryCharge.IsNegative() {
		verr.add("deliveryCharge", "deliveryCharge must not be negative")
	}
	return verr
}

func applyCharges(order *Order, charges Charges, totals Totals) {
	order.DiscountType = charges.DiscountType
	order.DiscountValue = charges.DiscountValue
	order.DeliveryCharge = charges.DeliveryCharge
	order.AdvanceAmount = charges.AdvanceAmount
	order.CollectedAmount = charges.CollectedAmount
	order.Subtotal = totals.Subtotal
	order.GrandTotal = totals.GrandTotal
	order.DueAmount = totals.Due
}

// exchangeSuffix is the last six digits of the millisecond timestamp.
func exchangeSuffix(now time.Time) string {
	digits := strconv.FormatInt(now.UnixMilli(), 10)
	if len(digits) > 6 {
		digits = digits[len(digits)-6:]
	}
	return digits
}
