package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/orderdesk/api/internal/domain"
	"github.com/orderdesk/api/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	storeDisplayPrefix  = "S-"
	defaultActor        = "Admin"
	counterPrefixOrders = "orders:"
)

var notePolicy = bluemonday.StrictPolicy()

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Counters     repositories.CounterRepository
	Ledger       StockLedger
	UnitOfWork   repositories.UnitOfWork
	Archiver     OrderArchiver
	Events       OrderEventPublisher
	Calculator   FinancialCalculator
	DefaultActor string
	Clock        func() time.Time
	IDGenerator  func() string
	Tracer       trace.Tracer
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	counters     repositories.CounterRepository
	ledger       StockLedger
	unitOfWork   repositories.UnitOfWork
	archiver     OrderArchiver
	events       OrderEventPublisher
	calc         FinancialCalculator
	defaultActor string
	clock        func() time.Time
	newID        func() string
	tracer       trace.Tracer
	logger       func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: stock ledger is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}

	actor := strings.TrimSpace(deps.DefaultActor)
	if actor == "" {
		actor = defaultActor
	}

	return &orderService{
		orders:       deps.Orders,
		counters:     deps.Counters,
		ledger:       deps.Ledger,
		unitOfWork:   unit,
		archiver:     deps.Archiver,
		events:       deps.Events,
		calc:         deps.Calculator,
		defaultActor: actor,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		tracer: tracer,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (order Order, err error) {
	ctx, span := s.startSpan(ctx, "order.create", "")
	defer func() { endSpan(span, err) }()

	verr := validateStruct(ErrOrderInvalidInput, cmd)
	status := cmd.Status
	if status == "" {
		status = domain.OrderStatusPending
	}
	if !status.AllowedFor(cmd.Type) {
		verr.add("status", fmt.Sprintf("status %q is not valid for %s orders", status, cmd.Type))
	}
	validateCustomer(verr, cmd.Type, cmd.Customer)
	validateLines(verr, "products", cmd.Products)
	lines := buildLines(cmd.Products)
	charges := buildCharges(cmd.Charges)
	validateCharges(verr, s.calc, lines, charges)
	if err := verr.orNil(); err != nil {
		return Order{}, err
	}

	seq, err := s.nextSequence(ctx, cmd.Type)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	actor := s.actor(cmd.ActorID)
	totals := s.calc.ComputeTotals(cmd.Type, lines, charges)

	order = Order{
		ID:              s.nextOrderID(),
		Type:            cmd.Type,
		Sequence:        seq,
		Status:          status,
		Products:        lines,
		Customer:        buildCustomer(cmd.Customer),
		Subtotal:        totals.Subtotal,
		DiscountType:    charges.DiscountType,
		DiscountValue:   charges.DiscountValue,
		DeliveryCharge:  charges.DeliveryCharge,
		AdvanceAmount:   charges.AdvanceAmount,
		CollectedAmount: charges.CollectedAmount,
		GrandTotal:      totals.GrandTotal,
		DueAmount:       totals.Due,
		Note:            sanitizeNote(cmd.Note),
		AddedBy:         actor,
		LastEditedBy:    actor,
		CreatedAt:       now,
		UpdatedAt:       now,
		History: []HistoryEntry{{
			Status:    status,
			Timestamp: now,
			Note:      "Order created",
			UpdatedBy: actor,
		}},
	}
	assignDisplayID(&order, seq)

	var applied []AppliedMovement
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		applied = nil
		if status.IsActive() {
			result, err := s.ledger.Apply(txCtx, movementsFor(lines, -1))
			if err != nil {
				return err
			}
			applied = result
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, unwrapTxError(err)
	}

	s.ledger.Announce(ctx, applied, StockEventMeta{OrderID: order.ID, Reason: orderEventCreated, ActorID: actor})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		DisplayID:     order.DisplayID(),
		OrderType:     string(order.Type),
		CurrentStatus: string(order.Status),
		ActorID:       actor,
		OccurredAt:    now,
		Metadata: map[string]any{
			"grandTotal": order.GrandTotal.String(),
			"lines":      len(order.Products),
		},
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Statuses {
		if !status.IsKnown() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error) {
	target := cmd.TargetStatus
	if !target.IsKnown() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	return s.transition(ctx, transitionRequest{
		orderID: cmd.OrderID,
		target:  &target,
		note:    cmd.Note,
		extra:   cmd.ExtraFields,
		actorID: cmd.ActorID,
	})
}

func (s *orderService) SetFlags(ctx context.Context, cmd SetOrderFlagsCommand) (Order, error) {
	if cmd.IsReturnReceived == nil && cmd.IsRefunded == nil {
		return Order{}, fmt.Errorf("%w: at least one flag is required", ErrOrderInvalidInput)
	}
	var notes []string
	if cmd.IsReturnReceived != nil {
		notes = append(notes, fmt.Sprintf("Return received: %t", *cmd.IsReturnReceived))
	}
	if cmd.IsRefunded != nil {
		notes = append(notes, fmt.Sprintf("Refunded: %t", *cmd.IsRefunded))
	}
	return s.transition(ctx, transitionRequest{
		orderID: cmd.OrderID,
		note:    strings.Join(notes, ", "),
		extra: OrderExtraFields{
			IsReturnReceived: cmd.IsReturnReceived,
			IsRefunded:       cmd.IsRefunded,
		},
		actorID: cmd.ActorID,
	})
}

type transitionRequest struct {
	orderID string
	// target nil keeps the current status.
	target  *OrderStatus
	note    string
	extra   OrderExtraFields
	actorID string
}

// transition classifies the status change, moves stock for every line and
// writes status, history and extra fields, all in one transaction.
func (s *orderService) transition(ctx context.Context, req transitionRequest) (order Order, err error) {
	orderID := strings.TrimSpace(req.orderID)
	ctx, span := s.startSpan(ctx, "order.transition", orderID)
	defer func() { endSpan(span, err) }()

	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if err := validateExtraFields(req.extra); err != nil {
		return Order{}, err
	}

	now := s.now()
	actor := s.actor(req.actorID)

	var (
		previous OrderStatus
		kind     domain.TransitionKind
		applied  []AppliedMovement
	)
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		applied = nil
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		target := current.Status
		if req.target != nil {
			target = *req.target
		}
		if !target.AllowedFor(current.Type) {
			return fmt.Errorf("%w: status %s is not valid for %s orders", ErrOrderInvalidState, target, current.Type)
		}

		kind = domain.ClassifyTransition(current.Status, target)
		if sign := kind.StockSign(); sign != 0 {
			result, err := s.ledger.Apply(txCtx, movementsFor(current.Products, sign))
			if err != nil {
				return err
			}
			applied = result
		}

		note := sanitizeNote(req.note)
		if note == "" {
			note = fmt.Sprintf("Status updated to %s", target)
		}
		entry := HistoryEntry{Status: target, Timestamp: now, Note: note, UpdatedBy: actor}
		fields := s.mergeExtraFields(&current, req.extra)

		if err := s.orders.ApplyStatus(txCtx, repositories.OrderStatusUpdate{
			OrderID:   current.ID,
			Status:    target,
			Entry:     entry,
			Fields:    fields,
			UpdatedAt: now,
		}); err != nil {
			return s.mapRepositoryError(err)
		}

		previous = current.Status
		current.Status = target
		current.History = append(current.History, entry)
		current.UpdatedAt = now
		order = current
		return nil
	})
	if err != nil {
		s.logger(ctx, "order.transition.rejected", map[string]any{"order": orderID, "error": err.Error()})
		return Order{}, unwrapTxError(err)
	}

	span.SetAttributes(attribute.String("order.transition", kind.String()))
	s.ledger.Announce(ctx, applied, StockEventMeta{OrderID: order.ID, Reason: "order.transition." + kind.String(), ActorID: actor})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		DisplayID:      order.DisplayID(),
		OrderType:      string(order.Type),
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       map[string]any{"transition": kind.String()},
	})
	return order, nil
}

// mergeExtraFields applies extra to order and returns the persisted form.
// Changing the collected amount on an online order also refreshes the due.
func (s *orderService) mergeExtraFields(order *Order, extra OrderExtraFields) repositories.OrderExtraFields {
	var fields repositories.OrderExtraFields
	if extra.TrackingID != nil {
		value := strings.TrimSpace(*extra.TrackingID)
		order.TrackingID = value
		fields.TrackingID = &value
	}
	if extra.IsReturnReceived != nil {
		order.IsReturnReceived = *extra.IsReturnReceived
		fields.IsReturnReceived = extra.IsReturnReceived
	}
	if extra.IsRefunded != nil {
		order.IsRefunded = *extra.IsRefunded
		fields.IsRefunded = extra.IsRefunded
	}
	if extra.RevenueAdjustment != nil {
		order.RevenueAdjustment = *extra.RevenueAdjustment
		fields.RevenueAdjustment = floatPtr(order.RevenueAdjustment)
	}
	if extra.Note != nil {
		order.Note = sanitizeNote(*extra.Note)
		fields.Note = &order.Note
	}
	if extra.CollectedAmount != nil {
		order.CollectedAmount = *extra.CollectedAmount
		fields.CollectedAmount = floatPtr(order.CollectedAmount)
		if order.Type == domain.OrderTypeOnline {
			order.DueAmount = order.GrandTotal.Sub(order.AdvanceAmount).Sub(order.CollectedAmount)
			fields.DueAmount = floatPtr(order.DueAmount)
		}
	}
	return fields
}

func (s *orderService) nextSequence(ctx context.Context, orderType OrderType) (int64, error) {
	floor, err := s.orders.MaxSequence(ctx, orderType)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	seq, err := s.counters.Next(ctx, counterPrefixOrders+string(orderType), floor)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return 0, fmt.Errorf("%w: %s", ErrOrderInvalidInput, counterErr.Message)
		}
		return 0, s.mapRepositoryError(err)
	}
	return seq, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	return mapPersistenceError(err, ErrOrderNotFound, ErrOrderConflict)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) actor(actorID string) string {
	if trimmed := strings.TrimSpace(actorID); trimmed != "" {
		return trimmed
	}
	return s.defaultActor
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) startSpan(ctx context.Context, name, orderID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if orderID != "" {
		span.SetAttributes(attribute.String("order.id", orderID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func assignDisplayID(order *Order, seq int64) {
	id := strconv.FormatInt(seq, 10)
	if order.Type == domain.OrderTypeStore {
		order.StoreOrderID = storeDisplayPrefix + id
		return
	}
	order.MerchantOrderID = id
}

// movementsFor converts lines into movements of sign×qty.
func movementsFor(lines []ProductLine, sign int) []StockMovement {
	out := make([]StockMovement, 0, len(lines))
	for _, line := range lines {
		out = append(out, StockMovement{Code: line.Code, Size: line.Size, Delta: sign * line.Qty})
	}
	return out
}

func buildLines(inputs []ProductLineInput) []ProductLine {
	lines := make([]ProductLine, 0, len(inputs))
	for _, in := range inputs {
		lines = append(lines, ProductLine{
			Code:  strings.TrimSpace(in.Code),
			Size:  strings.TrimSpace(in.Size),
			Qty:   in.Qty,
			Price: in.Price,
		})
	}
	return lines
}

func buildCharges(in ChargesInput) Charges {
	discountType := in.DiscountType
	if discountType == "" {
		discountType = domain.DiscountFixed
	}
	return Charges{
		DiscountType:    discountType,
		DiscountValue:   in.DiscountValue,
		DeliveryCharge:  in.DeliveryCharge,
		AdvanceAmount:   in.AdvanceAmount,
		CollectedAmount: in.CollectedAmount,
	}
}

func buildCustomer(in CustomerInput) Customer {
	return Customer{
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
	}
}

func validateCustomer(verr *ValidationError, orderType OrderType, in CustomerInput) {
	if orderType != domain.OrderTypeOnline {
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		verr.add("customer.name", "customer.name is required")
	}
	if strings.TrimSpace(in.Phone) == "" {
		verr.add("customer.phone", "customer.phone is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		verr.add("customer.address", "customer.address is required")
	}
}

func validateLines(verr *ValidationError, field string, inputs []ProductLineInput) {
	for i, in := range inputs {
		if in.Price.IsNegative() {
			verr.add(fmt.Sprintf("%s[%d].price", field, i), fmt.Sprintf("%s[%d].price must not be negative", field, i))
		}
	}
}

func validateCharges(verr *ValidationError, calc FinancialCalculator, lines []ProductLine, charges Charges) {
	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"charges.discountValue", charges.DiscountValue},
		{"charges.deliveryCharge", charges.DeliveryCharge},
		{"charges.advanceAmount", charges.AdvanceAmount},
		{"charges.collectedAmount", charges.CollectedAmount},
	}
	for _, check := range checks {
		if check.value.IsNegative() {
			verr.add(check.field, check.field+" must not be negative")
		}
	}
	if charges.DiscountType == domain.DiscountPercent && charges.DiscountValue.GreaterThan(hundred) {
		verr.add("charges.discountValue", "charges.discountValue must be at most 100 percent")
	}
	subtotal := calc.Subtotal(lines)
	if calc.DiscountAmount(subtotal, charges.DiscountType, charges.DiscountValue).GreaterThan(subtotal) {
		verr.add("charges.discountValue", "charges.discountValue must not exceed the subtotal")
	}
}

func validateExtraFields(extra OrderExtraFields) error {
	verr := &ValidationError{Kind: ErrOrderInvalidInput}
	if extra.CollectedAmount != nil && extra.CollectedAmount.IsNegative() {
		verr.add("extraFields.collectedAmount", "extraFields.collectedAmount must not be negative")
	}
	return verr.orNil()
}

func sanitizeNote(note string) string {
	return strings.TrimSpace(notePolicy.Sanitize(note))
}

func floatPtr(value decimal.Decimal) *float64 {
	f := value.InexactFloat64()
	return &f
}
