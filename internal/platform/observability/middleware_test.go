package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orderdesk/api/internal/platform/requestctx"
)

func withOperator(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestctx.WithActor(r.Context(), name)))
		})
	}
}

func ledgerRouter(logger *zap.Logger, handler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(logger), TraceMiddleware("orderdesk-test"), RecoveryMiddleware(logger), RequestLoggerMiddleware("orderdesk-test"))
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(withOperator("Nadia Rahman"))
		api.Route("/orders", func(orders chi.Router) {
			orders.Put("/{orderID}", handler)
			orders.Post("/{orderID}:exchange", handler)
		})
		api.Route("/inventory", func(inv chi.Router) {
			inv.Post("/{code}:adjust", handler)
		})
	})
	return r
}

func completionEntry(t *testing.T, logs *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion line, got %d", len(entries))
	}
	return entries[0]
}

func TestRequestLoggerRecordsOrderAction(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := ledgerRouter(zap.New(core), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-12:exchange", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	entry := completionEntry(t, logs)
	fields := entry.ContextMap()
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level, got %s", entry.Level)
	}
	if fields["order_id"] != "ORD-12" || fields["action"] != "exchange" || fields["resource"] != "orders" {
		t.Fatalf("unexpected ledger fields %v", fields)
	}
	if fields["operator"] != "Nadia Rahman" {
		t.Fatalf("expected operator set below the logger, got %v", fields["operator"])
	}
	if fields["route"] != "/api/v1/orders/{orderID}:exchange" || fields["status"] != int64(http.StatusCreated) {
		t.Fatalf("unexpected route or status %v", fields)
	}
	if fields["trace_id"] != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected incoming trace id, got %v", fields["trace_id"])
	}
	if fields["logging.googleapis.com/trace"] != "projects/orderdesk-test/traces/105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace resource %v", fields["logging.googleapis.com/trace"])
	}
}

func TestRequestLoggerWarnsOnRejectedAdjustment(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := ledgerRouter(zap.New(core), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/TS-01:adjust", nil))

	entry := completionEntry(t, logs)
	fields := entry.ContextMap()
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entry.Level)
	}
	if fields["item_code"] != "TS-01" || fields["action"] != "adjust" {
		t.Fatalf("unexpected ledger fields %v", fields)
	}
	if _, ok := fields["order_id"]; ok {
		t.Fatalf("inventory route must not log an order id: %v", fields)
	}
}

func TestRecoveryLogsOrderOnPanic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := ledgerRouter(zap.New(core), func(http.ResponseWriter, *http.Request) {
		panic("stock plan exploded")
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/orders/ord_9", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	panics := logs.FilterMessage("panic recovered").All()
	if len(panics) != 1 {
		t.Fatalf("expected a panic line, got %d", len(panics))
	}
	fields := panics[0].ContextMap()
	if fields["order_id"] != "ord_9" || fields["action"] != "edit" {
		t.Fatalf("unexpected panic fields %v", fields)
	}
	if entry := completionEntry(t, logs); entry.Level != zapcore.ErrorLevel {
		t.Fatalf("expected error completion, got %s", entry.Level)
	}
}

func TestClassifyPattern(t *testing.T) {
	cases := []struct {
		method   string
		pattern  string
		resource string
		action   string
	}{
		{http.MethodPost, "/api/v1/orders/", "orders", "create"},
		{http.MethodGet, "/api/v1/orders", "orders", "list"},
		{http.MethodGet, "/api/v1/orders/{orderID}", "orders", "get"},
		{http.MethodPut, "/api/v1/orders/{orderID}", "orders", "edit"},
		{http.MethodPost, "/api/v1/orders/{orderID}:partial-exchange", "orders", "partial-exchange"},
		{http.MethodPost, "/api/v1/orders/{orderID}:complete-exchange", "orders", "complete-exchange"},
		{http.MethodPut, "/api/v1/inventory/{code}", "inventory", "update"},
		{http.MethodGet, "/api/v1/reports/profit", "reports", "profit"},
		{http.MethodGet, "/healthz", "", ""},
	}
	for _, tc := range cases {
		resource, action := classifyPattern(tc.method, tc.pattern)
		if resource != tc.resource || action != tc.action {
			t.Errorf("%s %s: got (%q, %q), want (%q, %q)", tc.method, tc.pattern, resource, action, tc.resource, tc.action)
		}
	}
}

func TestSanitizeLedgerIdentifiers(t *testing.T) {
	if got := SanitizeOrderID("ORD-12-EX1"); got != "ORD-12-EX1" {
		t.Fatalf("exchange id altered: %q", got)
	}
	if got := SanitizeOrderID("ord_1\n{\"level\":\"info\"}"); got != "ord_1???level???info??" {
		t.Fatalf("unexpected sanitized id %q", got)
	}
	if got := SanitizeAction("Partial-Exchange"); got != "partial-exchange" {
		t.Fatalf("unexpected action %q", got)
	}
	if got := SanitizeAction("exchange;drop"); got != "" {
		t.Fatalf("expected rejected action, got %q", got)
	}
	if got := SanitizeActor("  Nadia\tRahman "); got != "NadiaRahman" {
		t.Fatalf("unexpected actor %q", got)
	}
}

func TestParseCloudTraceContext(t *testing.T) {
	info, spanCtx, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if info.TraceID != "105445aa7843bc8bf206b12000100000" || !info.Sampled || !spanCtx.IsRemote() {
		t.Fatalf("unexpected trace info %+v", info)
	}
	if info.SpanID != "0000000000000001" {
		t.Fatalf("expected decimal span id, got %s", info.SpanID)
	}
	if _, _, ok := parseCloudTraceContext("not-a-trace"); ok {
		t.Fatalf("expected malformed header to be ignored")
	}
}
