package observability

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// LedgerRoute is what a matched request does to the order desk: the resource
// it targets, the action it performs, and the order or item it names.
type LedgerRoute struct {
	Pattern  string
	Resource string
	Action   string
	OrderID  string
	ItemCode string
}

var ledgerResources = map[string]struct{}{
	"orders":    {},
	"inventory": {},
	"reports":   {},
	"expenses":  {},
	"locations": {},
}

// ResolveLedgerRoute reads the matched chi pattern and path parameters. It is
// only complete once routing has run, so middleware calls it after next.
func ResolveLedgerRoute(r *http.Request) LedgerRoute {
	route := LedgerRoute{Pattern: routePattern(r)}
	if r == nil {
		return route
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route.OrderID = SanitizeOrderID(rctx.URLParam("orderID"))
		route.ItemCode = SanitizeItemCode(rctx.URLParam("code"))
	}
	route.Resource, route.Action = classifyPattern(r.Method, route.Pattern)
	return route
}

// classifyPattern maps "/api/v1/orders/{orderID}:exchange" to
// ("orders", "exchange"). Plain REST verbs map by method.
func classifyPattern(method, pattern string) (string, string) {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	resource, idx := "", -1
	for i, segment := range segments {
		if _, ok := ledgerResources[segment]; ok {
			resource, idx = segment, i
			break
		}
	}
	if resource == "" {
		return "", ""
	}

	rest := segments[idx+1:]
	if len(rest) == 0 {
		switch method {
		case http.MethodGet:
			return resource, "list"
		case http.MethodPost:
			return resource, "create"
		}
		return resource, ""
	}

	last := rest[len(rest)-1]
	if i := strings.LastIndex(last, ":"); i >= 0 && !strings.HasSuffix(last, "}") {
		return resource, SanitizeAction(last[i+1:])
	}
	if !strings.HasPrefix(last, "{") {
		return resource, SanitizeAction(last)
	}

	switch method {
	case http.MethodGet:
		return resource, "get"
	case http.MethodPut, http.MethodPatch:
		if resource == "orders" {
			return resource, "edit"
		}
		return resource, "update"
	case http.MethodDelete:
		return resource, "delete"
	}
	return resource, ""
}

func routePattern(r *http.Request) string {
	if r == nil {
		return "/"
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	if r.URL != nil && r.URL.Path != "" {
		return r.URL.Path
	}
	return "/"
}
