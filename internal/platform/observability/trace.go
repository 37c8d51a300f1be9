package observability

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderdesk/api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

// Span attribute keys for ledger requests.
const (
	AttrResource = attribute.Key("orderdesk.resource")
	AttrAction   = attribute.Key("orderdesk.action")
	AttrOrderID  = attribute.Key("orderdesk.order.id")
	AttrItemCode = attribute.Key("orderdesk.item.code")
	AttrOperator = attribute.Key("orderdesk.operator")
)

var tracer = otel.Tracer("github.com/orderdesk/api/http")

// TraceMiddleware continues an incoming Cloud Trace context, opens the server
// span, and once the handler returns renames it to the matched route
// ("POST /api/v1/orders/{orderID}:exchange") with the ledger attributes.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, op := requestctx.WithOperation(r.Context())

			info, remote, ok := parseCloudTraceContext(r.Header.Get(cloudTraceHeader))
			if ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, SanitizeMethod(r.Method)+" "+SanitizeRoute(r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestSpanAttributes(r)...),
			)
			defer span.End()

			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				info.TraceID = spanCtx.TraceID().String()
				info.SpanID = spanCtx.SpanID().String()
				info.Sampled = spanCtx.IsSampled()
			}
			info.ProjectID = projectID
			ctx = requestctx.WithTrace(ctx, info)

			if header := formatCloudTraceHeader(info); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}

			recorder := newResponseRecorder(w)
			r = r.WithContext(ctx)
			defer func() {
				route := ResolveLedgerRoute(r)
				span.SetName(SanitizeMethod(r.Method) + " " + SanitizeRoute(route.Pattern))
				span.SetAttributes(semconv.HTTPRoute(SanitizeRoute(route.Pattern)))
				span.SetAttributes(LedgerSpanAttributes(route, op.Actor())...)
				span.SetAttributes(semconv.HTTPResponseStatusCode(recorder.Status()))
				setSpanStatus(span, recorder.Status())
			}()

			next.ServeHTTP(recorder, r)
		})
	}
}

// LedgerSpanAttributes lists the non-empty ledger attributes of route.
func LedgerSpanAttributes(route LedgerRoute, actor string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 5)
	if route.Resource != "" {
		attrs = append(attrs, AttrResource.String(route.Resource))
	}
	if route.Action != "" {
		attrs = append(attrs, AttrAction.String(route.Action))
	}
	if route.OrderID != "" {
		attrs = append(attrs, AttrOrderID.String(route.OrderID))
	}
	if route.ItemCode != "" {
		attrs = append(attrs, AttrItemCode.String(route.ItemCode))
	}
	if actor = SanitizeActor(actor); actor != "" {
		attrs = append(attrs, AttrOperator.String(actor))
	}
	return attrs
}

func setSpanStatus(span trace.Span, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		span.SetStatus(codes.Error, http.StatusText(status))
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		// Rejected stock movements and state transitions are expected
		// outcomes; record them without failing the span.
		span.AddEvent("ledger.rejected", trace.WithAttributes(semconv.HTTPResponseStatusCode(status)))
	}
}

func requestSpanAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
		semconv.URLScheme(scheme),
	}
	if r.URL != nil && r.URL.Path != "" {
		attrs = append(attrs, semconv.URLPath(SanitizeRoute(r.URL.Path)))
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(sanitizeString(r.Host, 128)))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(sanitizeString(ua, 256)))
	}
	return attrs
}

// parseCloudTraceContext reads "TRACE_ID/SPAN_ID;o=OPTIONS". SPAN_ID is
// decimal on the wire but some proxies forward it as hex.
func parseCloudTraceContext(header string) (requestctx.TraceInfo, trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found || len(traceHex) != 32 {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return requestctx.TraceInfo{}, trace.SpanContext{}, false
	}

	sampled := strings.TrimSpace(options) == "o=1"
	var flags trace.TraceFlags
	if sampled {
		flags = trace.FlagsSampled
	}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return requestctx.TraceInfo{
		TraceID: traceID.String(),
		SpanID:  spanID.String(),
		Sampled: sampled,
	}, spanCtx, true
}

func parseSpanID(value string) (trace.SpanID, bool) {
	if value == "" {
		return trace.SpanID{}, false
	}
	if num, err := strconv.ParseUint(value, 10, 64); err == nil {
		var spanID trace.SpanID
		binary.BigEndian.PutUint64(spanID[:], num)
		return spanID, spanID.IsValid()
	}
	if len(value) <= 16 {
		spanID, err := trace.SpanIDFromHex(strings.Repeat("0", 16-len(value)) + value)
		return spanID, err == nil && spanID.IsValid()
	}
	return trace.SpanID{}, false
}

func formatCloudTraceHeader(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	option := 0
	if info.Sampled {
		option = 1
	}
	return fmt.Sprintf("%s/%s;o=%d", info.TraceID, info.SpanID, option)
}
