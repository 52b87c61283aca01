package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertKind classifies operator alerts raised by the execution core.
type AlertKind string

const (
	// AlertUnprotectedPosition is the single most dangerous state: a filled
	// entry whose bracket could not be submitted after all retries.
	AlertUnprotectedPosition AlertKind = "UNPROTECTED_POSITION"
	// AlertPriceTarget fires when a watched price level is crossed.
	AlertPriceTarget AlertKind = "PRICE_TARGET"
)

// Alert is a message for the operator. The core only emits alerts; delivery
// (log, journal, external hook) belongs to the caller.
type Alert struct {
	Kind    AlertKind
	Symbol  string
	Message string
	At      time.Time
}

// PriceAlert watches a price level in a given direction.
type PriceAlert struct {
	Symbol string
	Target decimal.Decimal
	Above  bool // true: fire when price >= target, false: price <= target
	active bool
}

// NewPriceAlert creates an active price alert. Direction is inferred from the
// current price the way the operator would expect: targets above current fire
// upward, targets below fire downward.
func NewPriceAlert(symbol string, target, current decimal.Decimal) *PriceAlert {
	return &PriceAlert{
		Symbol: symbol,
		Target: target,
		Above:  target.GreaterThanOrEqual(current),
		active: true,
	}
}

// Active returns whether the alert is armed.
func (a *PriceAlert) Active() bool { return a.active }

// Disarm deactivates the alert.
func (a *PriceAlert) Disarm() { a.active = false }

// Check reports whether the alert condition is met at the given price.
func (a *PriceAlert) Check(price decimal.Decimal) bool {
	if !a.active {
		return false
	}
	if a.Above {
		return price.GreaterThanOrEqual(a.Target)
	}
	return price.LessThanOrEqual(a.Target)
}
