package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "orderdesk-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "orderdesk-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "orderdesk-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Ledger.DefaultActor != "Admin" {
		t.Errorf("expected default actor Admin, got %s", cfg.Ledger.DefaultActor)
	}
	if cfg.Ledger.TxAttempts != defaultLedgerTxAttempts {
		t.Errorf("unexpected tx attempts: %d", cfg.Ledger.TxAttempts)
	}
	if len(cfg.Ledger.AllowedRoles) != 2 {
		t.Errorf("expected staff and admin roles, got %v", cfg.Ledger.AllowedRoles)
	}
	if cfg.Ledger.AdjustmentsPerMinute != defaultAdjustmentRate {
		t.Errorf("unexpected adjustment rate: %d", cfg.Ledger.AdjustmentsPerMinute)
	}
	if cfg.Storage.ArchivePrefix != defaultArchivePrefix {
		t.Errorf("unexpected archive prefix: %s", cfg.Storage.ArchivePrefix)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatch {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_SERVER_WRITE_TIMEOUT":      "25s",
		"API_FIREBASE_PROJECT_ID":       "orderdesk-prod",
		"API_FIREBASE_CREDENTIALS_JSON": "sm://firebase/admin",
		"API_FIRESTORE_PROJECT_ID":      "orderdesk-db",
		"API_STORAGE_ARCHIVE_BUCKET":    "orderdesk-archive",
		"API_STORAGE_ARCHIVE_PREFIX":    "/snapshots/",
		"API_PUBSUB_ORDER_EVENTS_TOPIC": "order-events",
		"API_PUBSUB_BREAKER_COOLDOWN":   "1m",
		"API_LEDGER_TX_ATTEMPTS":        "3",
		"API_LEDGER_DEFAULT_ACTOR":      "Store Desk",
		"API_LEDGER_ALLOWED_ROLES":      "Admin, manager",
		"API_SECURITY_ENVIRONMENT":      "PROD",
	}

	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		return `{"type":"service_account"}`, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Firebase.CredentialsJSON"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "orderdesk-db" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Firebase.CredentialsJSON != `{"type":"service_account"}` {
		t.Errorf("expected resolved credentials, got %q", cfg.Firebase.CredentialsJSON)
	}
	if len(requested) != 1 || requested[0] != "secret://firebase/admin" {
		t.Errorf("expected normalised secret ref, got %v", requested)
	}
	if cfg.Storage.ArchivePrefix != "snapshots" {
		t.Errorf("expected trimmed archive prefix, got %q", cfg.Storage.ArchivePrefix)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" || cfg.PubSub.BreakerCooldown != time.Minute {
		t.Errorf("pubsub overrides not applied: %+v", cfg.PubSub)
	}
	if cfg.Ledger.TxAttempts != 3 || cfg.Ledger.DefaultActor != "Store Desk" {
		t.Errorf("ledger overrides not applied: %+v", cfg.Ledger)
	}
	if len(cfg.Ledger.AllowedRoles) != 2 || cfg.Ledger.AllowedRoles[0] != "admin" || cfg.Ledger.AllowedRoles[1] != "manager" {
		t.Errorf("unexpected roles: %v", cfg.Ledger.AllowedRoles)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadValidationError(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"API_LEDGER_TX_ATTEMPTS": "0",
	}), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := vErr.Fields()
	if len(fields) != 3 || fields[0] != "Firebase.ProjectID" || fields[2] != "Ledger.TxAttempts" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID":       "orderdesk",
		"API_FIREBASE_CREDENTIALS_JSON": "secret://firebase/admin",
	}), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadMissingRequiredSecret(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "orderdesk",
	}), WithoutSystemEnv(), WithEnvFile(""), WithRequiredSecrets("Firebase.CredentialsJSON"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Firebase.CredentialsJSON" {
		t.Fatalf("unexpected names: %v", names)
	}
	if len(missing.RedactedNames()) != 1 {
		t.Fatalf("expected one redacted name")
	}
}

func TestLoadReadsDotEnvWithLowerPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_FIREBASE_PROJECT_ID=from-dotenv\nexport API_SERVER_PORT=7070\nAPI_LEDGER_DEFAULT_ACTOR=\"Counter Staff\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-dotenv" {
		t.Errorf("expected dotenv project, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.Ledger.DefaultActor != "Counter Staff" {
		t.Errorf("expected quoted dotenv value to be unquoted, got %q", cfg.Ledger.DefaultActor)
	}
}

func TestEnvironmentValuesMissingFileIsIgnored(t *testing.T) {
	values, err := EnvironmentValues(WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithoutSystemEnv(), WithEnvMap(map[string]string{"A": "1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["A"] != "1" {
		t.Fatalf("expected explicit value, got %v", values)
	}
}
