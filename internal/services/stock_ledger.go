package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/orderdesk/api/internal/repositories"
)

const instrumentationName = "github.com/orderdesk/api/internal/services"

// StockLedgerDeps bundles the collaborators required to construct a stock ledger.
type StockLedgerDeps struct {
	Inventory  repositories.InventoryRepository
	UnitOfWork repositories.UnitOfWork
	Events     StockEventPublisher
	Meter      metric.Meter
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type stockLedger struct {
	inventory   repositories.InventoryRepository
	unitOfWork  repositories.UnitOfWork
	events      StockEventPublisher
	adjustments metric.Int64Counter
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

var _ StockLedger = (*stockLedger)(nil)

// NewStockLedger wires dependencies into a concrete StockLedger implementation.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Inventory == nil {
		return nil, errors.New("stock ledger: inventory repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	adjustments, err := meter.Int64Counter(
		"ledger.stock.adjustments",
		metric.WithDescription("Units moved by committed stock adjustments"),
	)
	if err != nil {
		logger(context.Background(), "stock.metric.register.failed", map[string]any{"error": err.Error()})
	}

	return &stockLedger{
		inventory:   deps.Inventory,
		unitOfWork:  unit,
		events:      deps.Events,
		adjustments: adjustments,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (l *stockLedger) Adjust(ctx context.Context, cmd StockAdjustmentCommand) (AppliedMovement, error) {
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return AppliedMovement{}, fmt.Errorf("%w: product code is required", ErrInventoryInvalidInput)
	}
	if cmd.Delta == 0 {
		return AppliedMovement{}, fmt.Errorf("%w: delta must not be zero", ErrInventoryInvalidInput)
	}

	movements := []StockMovement{{Code: code, Size: strings.TrimSpace(cmd.Size), Delta: cmd.Delta}}
	var applied []AppliedMovement
	err := l.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		result, err := l.Apply(txCtx, movements)
		if err != nil {
			return err
		}
		applied = result
		return nil
	})
	if err != nil {
		return AppliedMovement{}, unwrapTxError(err)
	}
	if len(applied) == 0 {
		return AppliedMovement{}, fmt.Errorf("%w: nothing applied for %s", ErrInventoryInvalidInput, code)
	}

	l.Announce(ctx, applied, StockEventMeta{Reason: strings.TrimSpace(cmd.Reason), ActorID: cmd.ActorID})
	return applied[0], nil
}

func (l *stockLedger) Check(ctx context.Context, movements []StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	items, err := l.inventory.FindByCodes(ctx, repositories.DistinctCodes(movements))
	if err != nil {
		return mapInventoryError("stock check", err)
	}
	if _, err := repositories.PlanStockMovements(items, movements); err != nil {
		return mapInventoryError("stock check", err)
	}
	return nil
}

func (l *stockLedger) Apply(ctx context.Context, movements []StockMovement) ([]AppliedMovement, error) {
	if len(movements) == 0 {
		return nil, nil
	}
	applied, err := l.inventory.ApplyMovements(ctx, movements)
	if err != nil {
		return nil, mapInventoryError("stock apply", err)
	}
	return applied, nil
}

func (l *stockLedger) Announce(ctx context.Context, applied []AppliedMovement, meta StockEventMeta) {
	now := l.clock()
	for _, mv := range applied {
		if l.adjustments != nil {
			direction := "deduct"
			if mv.Delta > 0 {
				direction = "restore"
			}
			qty := int64(mv.Delta)
			if qty < 0 {
				qty = -qty
			}
			l.adjustments.Add(ctx, qty, metric.WithAttributes(
				attribute.String("code", mv.Code),
				attribute.String("direction", direction),
			))
		}

		l.logger(ctx, stockEventAdjusted, map[string]any{
			"code":    mv.Code,
			"size":    mv.SizeKey,
			"delta":   mv.Delta,
			"balance": mv.Balance,
			"orderId": meta.OrderID,
		})

		if l.events == nil {
			continue
		}
		event := StockEvent{
			Type:       stockEventAdjusted,
			Code:       mv.Code,
			Size:       mv.SizeKey,
			Delta:      mv.Delta,
			Balance:    mv.Balance,
			OrderID:    meta.OrderID,
			Reason:     meta.Reason,
			ActorID:    meta.ActorID,
			OccurredAt: now,
		}
		if err := l.events.PublishStockEvent(ctx, event); err != nil {
			l.logger(ctx, "stock.event.publish.failed", map[string]any{
				"code":  mv.Code,
				"error": err.Error(),
			})
		}
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
