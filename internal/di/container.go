package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderdesk/api/internal/platform/config"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/repositories"
	firestoreRepo "github.com/orderdesk/api/internal/repositories/firestore"
	"github.com/orderdesk/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Orders    services.OrderService
	Inventory services.InventoryService
	Reports   services.ReportService
	Expenses  services.ExpenseService
	Locations services.LocationService
	System    services.SystemService
	Ledger    services.StockLedger
}

// Infrastructure carries optional collaborators built outside the container.
// Nil publishers and archivers disable those side effects.
type Infrastructure struct {
	OrderEvents services.OrderEventPublisher
	StockEvents services.StockEventPublisher
	Archiver    services.OrderArchiver
	Health      []repositories.DependencyCheck
	Build       services.BuildInfo
	Meter       metric.Meter
	Tracer      trace.Tracer
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Clock       func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config   config.Config
	Provider *pfirestore.Provider
	Services Services
}

// NewContainer constructs Firestore repositories and the services on top of them.
func NewContainer(ctx context.Context, cfg config.Config, provider *pfirestore.Provider, infra Infrastructure) (*Container, error) {
	if provider == nil {
		return nil, errors.New("firestore provider is required")
	}

	svc, err := buildServices(ctx, cfg, provider, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:   cfg,
		Provider: provider,
		Services: svc,
	}, nil
}

// Close releases the Firestore client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Provider == nil {
		return nil
	}
	return c.Provider.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, provider *pfirestore.Provider, infra Infrastructure) (Services, error) {
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	uow := pfirestore.NewUnitOfWork(provider,
		pfirestore.WithTxAttempts(cfg.Ledger.TxAttempts),
		pfirestore.WithTxTimeout(cfg.Ledger.TxTimeout),
	)

	inventoryRepo, err := firestoreRepo.NewInventoryRepository(provider, uow)
	if err != nil {
		return Services{}, fmt.Errorf("build inventory repository: %w", err)
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build order repository: %w", err)
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(provider, uow)
	if err != nil {
		return Services{}, fmt.Errorf("build counter repository: %w", err)
	}
	expenseRepo, err := firestoreRepo.NewExpenseRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build expense repository: %w", err)
	}
	locationRepo, err := firestoreRepo.NewLocationRepository(provider)
	if err != nil {
		return Services{}, fmt.Errorf("build location repository: %w", err)
	}

	var svc Services

	svc.Ledger, err = services.NewStockLedger(services.StockLedgerDeps{
		Inventory:  inventoryRepo,
		UnitOfWork: uow,
		Events:     infra.StockEvents,
		Meter:      infra.Meter,
		Clock:      clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock ledger: %w", err)
	}

	svc.Inventory, err = services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: inventoryRepo,
		Locations: locationRepo,
		Ledger:    svc.Ledger,
		Clock:     clock,
		Logger:    infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:       orderRepo,
		Counters:     counterRepo,
		Ledger:       svc.Ledger,
		UnitOfWork:   uow,
		Archiver:     infra.Archiver,
		Events:       infra.OrderEvents,
		DefaultActor: cfg.Ledger.DefaultActor,
		Clock:        clock,
		Tracer:       infra.Tracer,
		Logger:       infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Reports, err = services.NewReportService(services.ReportServiceDeps{
		Orders:    orderRepo,
		Inventory: inventoryRepo,
		Expenses:  expenseRepo,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build report service: %w", err)
	}

	svc.Expenses, err = services.NewExpenseService(services.ExpenseServiceDeps{
		Expenses:     expenseRepo,
		DefaultActor: cfg.Ledger.DefaultActor,
		Clock:        clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build expense service: %w", err)
	}

	svc.Locations, err = services.NewLocationService(services.LocationServiceDeps{
		Locations: locationRepo,
		Clock:     clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build location service: %w", err)
	}

	checks := append([]repositories.DependencyCheck{{
		Name:     "firestore",
		Timeout:  1500 * time.Millisecond,
		Required: true,
		Check:    provider.Ping,
	}}, infra.Health...)
	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	build := infra.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	svc.System, err = services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return svc, nil
}
