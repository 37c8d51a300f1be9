package domain

import "strings"

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusConfirmed  OrderStatus = "Confirmed"
	OrderStatusDispatched OrderStatus = "Dispatched"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusHold       OrderStatus = "Hold"
	OrderStatusExchanged  OrderStatus = "Exchanged"
	OrderStatusCancelled  OrderStatus = "Cancelled"
	OrderStatusReturned   OrderStatus = "Returned"
	// OrderStatusCompleted is the terminal state for store sales.
	OrderStatusCompleted OrderStatus = "Completed"
)

type statusInfo struct {
	active bool
	online bool
	store  bool
}

// Single source of truth for stock consumption. An active order holds its
// line quantities out of inventory; an inactive one does not.
var statusTable = map[OrderStatus]statusInfo{
	OrderStatusPending:    {active: true, online: true, store: true},
	OrderStatusConfirmed:  {active: true, online: true},
	OrderStatusDispatched: {active: true, online: true},
	OrderStatusDelivered:  {active: true, online: true},
	OrderStatusHold:       {active: true, online: true},
	OrderStatusExchanged:  {active: true, online: true},
	OrderStatusCancelled:  {active: false, online: true},
	OrderStatusReturned:   {active: false, online: true},
	OrderStatusCompleted:  {active: true, store: true},
}

// OrderStatuses lists every status in display order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusDispatched,
		OrderStatusDelivered,
		OrderStatusHold,
		OrderStatusExchanged,
		OrderStatusCancelled,
		OrderStatusReturned,
		OrderStatusCompleted,
	}
}

// ParseOrderStatus matches raw case-insensitively against known statuses.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	raw = strings.TrimSpace(raw)
	for status := range statusTable {
		if strings.EqualFold(string(status), raw) {
			return status, true
		}
	}
	return "", false
}

// IsKnown reports whether s is a defined status.
func (s OrderStatus) IsKnown() bool {
	_, ok := statusTable[s]
	return ok
}

// IsActive reports whether an order in this status consumes inventory.
func (s OrderStatus) IsActive() bool {
	return statusTable[s].active
}

// AllowedFor reports whether the status applies to the order type.
func (s OrderStatus) AllowedFor(t OrderType) bool {
	info, ok := statusTable[s]
	if !ok {
		return false
	}
	switch t {
	case OrderTypeOnline:
		return info.online
	case OrderTypeStore:
		return info.store
	default:
		return false
	}
}

// TransitionKind classifies a status change by its stock consequence.
type TransitionKind int

const (
	// TransitionLateral moves within the active or inactive set; no stock moves.
	TransitionLateral TransitionKind = iota
	// TransitionDeactivating leaves the active set; line quantities return to stock.
	TransitionDeactivating
	// TransitionReactivating enters the active set; line quantities are deducted again.
	TransitionReactivating
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionDeactivating:
		return "deactivating"
	case TransitionReactivating:
		return "reactivating"
	default:
		return "lateral"
	}
}

// ClassifyTransition depends only on the previous and target statuses.
func ClassifyTransition(from, to OrderStatus) TransitionKind {
	switch {
	case from.IsActive() && !to.IsActive():
		return TransitionDeactivating
	case !from.IsActive() && to.IsActive():
		return TransitionReactivating
	default:
		return TransitionLateral
	}
}

// StockSign is the per-line delta multiplier for the transition.
func (k TransitionKind) StockSign() int {
	switch k {
	case TransitionDeactivating:
		return 1
	case TransitionReactivating:
		return -1
	default:
		return 0
	}
}
