package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/orderdesk/api/internal/di"
	"github.com/orderdesk/api/internal/handlers"
	"github.com/orderdesk/api/internal/platform/auth"
	"github.com/orderdesk/api/internal/platform/config"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
	"github.com/orderdesk/api/internal/platform/idempotency"
	"github.com/orderdesk/api/internal/platform/jobs"
	"github.com/orderdesk/api/internal/platform/observability"
	"github.com/orderdesk/api/internal/platform/secrets"
	platformstorage "github.com/orderdesk/api/internal/platform/storage"
	"github.com/orderdesk/api/internal/repositories"
	"github.com/orderdesk/api/internal/services"
)

const instrumentationName = "github.com/orderdesk/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	meter := otel.Meter(instrumentationName)
	tracer := otel.Tracer(instrumentationName)

	resolver, err := newSecretResolver(ctx, logger, envValues, meter)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(resolver),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	// Money crosses the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var providerOpts []pfirestore.ProviderOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)

	infra := di.Infrastructure{
		Build:  buildInfo,
		Meter:  meter,
		Tracer: tracer,
		Logger: observability.EventLogger(logger.Named("ledger")),
		Clock:  time.Now,
	}

	topic, stopTopic := newOrderEventsTopic(ctx, logger, cfg)
	defer stopTopic()
	if topic != nil {
		publisher, err := jobs.NewPubSubEventPublisher(topic, jobs.BreakerSettings{
			ConsecutiveFailures: cfg.PubSub.BreakerFailures,
			Cooldown:            cfg.PubSub.BreakerCooldown,
		})
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		infra.OrderEvents = publisher
		infra.StockEvents = publisher
		infra.Health = append(infra.Health, repositories.DependencyCheck{
			Name:    "order_events",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}

	if bucket := strings.TrimSpace(cfg.Storage.ArchiveBucket); bucket != "" {
		storageClient, err := cloudstorage.NewClient(ctx, clientOptions(cfg)...)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		archiver, err := platformstorage.NewArchiver(storageClient, bucket, platformstorage.WithArchivePrefix(cfg.Storage.ArchivePrefix))
		if err != nil {
			logger.Fatal("failed to initialise order archiver", zap.Error(err))
		}
		infra.Archiver = archiver
		infra.Health = append(infra.Health, repositories.DependencyCheck{
			Name:    "archive_bucket",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := storageClient.Bucket(bucket).Attrs(ctx)
				return err
			},
		})
	}

	container, err := di.NewContainer(ctx, cfg, firestoreProvider, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		idempotency.RunCleanup(cleanupCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	svc := container.Services
	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)
	adjustmentLimiter := handlers.NewOperatorRateLimiter(cfg.Ledger.AdjustmentsPerMinute, time.Minute, nil)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithAPIMiddlewares(authenticator.RequireRoles(cfg.Ledger.AllowedRoles...), idempotencyMiddleware),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(svc.Orders).Routes),
		handlers.WithInventoryRoutes(handlers.NewInventoryHandlers(svc.Inventory, handlers.WithAdjustmentLimiter(adjustmentLimiter)).Routes),
		handlers.WithReportRoutes(handlers.NewReportHandlers(svc.Reports).Routes),
		handlers.WithExpenseRoutes(handlers.NewExpenseHandlers(svc.Expenses).Routes),
		handlers.WithLocationRoutes(handlers.NewLocationHandlers(svc.Locations).Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("orderdesk api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newOrderEventsTopic returns nil when no topic is configured. The returned
// stop func flushes pending publishes and closes the client.
func newOrderEventsTopic(ctx context.Context, logger *zap.Logger, cfg config.Config) (*pubsub.Topic, func()) {
	topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic)
	if topicID == "" {
		logger.Info("order events topic not configured; publishing disabled")
		return nil, func() {}
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		projectID = traceProjectID(cfg)
	}
	client, err := pubsub.NewClient(ctx, projectID, clientOptions(cfg)...)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	topic := client.Topic(topicID)
	return topic, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string, meter metric.Meter) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallback := lookup("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallback),
		secrets.WithMeter(meter),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if file := lookup("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewResolver(ctx, opts...)
}

// requiredSecretNames marks the Firebase credentials as mandatory outside
// local development when no credentials file is mounted.
func requiredSecretNames(env map[string]string) []string {
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	if environment == "" || environment == "local" {
		return nil
	}
	if strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]) != "" {
		return nil
	}
	return []string{"Firebase.CredentialsJSON"}
}
