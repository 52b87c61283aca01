package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderKind distinguishes limit and market orders.
type OrderKind string

const (
	KindLimit     OrderKind = "LIMIT"
	KindMarket    OrderKind = "MARKET"
	KindStopLimit OrderKind = "STOP_LOSS_LIMIT"
)

// OrderStatus is the confirmed exchange-side state of an order.
type OrderStatus int

const (
	// StatusUnknown means the gateway could not confirm the order state.
	// It is distinct from a network error and must never be treated as filled.
	StatusUnknown OrderStatus = iota
	StatusOpen
	StatusFilled
	StatusCanceled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status is a final state.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// OrderIntent is an order about to be submitted. Ephemeral: produced by the
// executor, consumed immediately by the gateway.
type OrderIntent struct {
	Symbol    string
	Side      Side
	Kind      OrderKind
	Qty       decimal.Decimal
	Price     decimal.Decimal // zero for market orders
	StopPrice decimal.Decimal // zero unless a stop order
	ClientID  string
}

// OrderHandle identifies a live order on the exchange. It is the sole handle
// used to poll status; losing it leaves an untracked live order.
type OrderHandle struct {
	OrderID     string
	Symbol      string
	SubmittedAt time.Time
}

// Zero reports whether the handle is empty.
func (h OrderHandle) Zero() bool {
	return h.OrderID == ""
}

// OrderInfo is the exchange's view of an order, as returned by a status
// lookup. Price and Qty are the original order values, used when resuming
// tracking of an order placed before a restart.
type OrderInfo struct {
	Handle OrderHandle
	Status OrderStatus
	Price  decimal.Decimal
	Qty    decimal.Decimal
}
