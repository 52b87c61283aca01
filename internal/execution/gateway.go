package execution

import (
	"context"

	"swing_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Gateway is the authenticated exchange surface the executor trades through.
// It abstracts the real exchange, the paper simulator, and test fakes.
// Implementations map failures onto the domain error taxonomy; they do not
// retry — retry policy lives in RetryingGateway.
type Gateway interface {
	// Balance fetches the current balance for one asset.
	Balance(ctx context.Context, asset string) (domain.Balance, error)

	// LastPrice returns the current ticker price for a symbol.
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// PlaceOrder submits an order and returns its handle on acceptance.
	PlaceOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderHandle, error)

	// Order looks up an order's exchange-side state.
	Order(ctx context.Context, h domain.OrderHandle) (domain.OrderInfo, error)

	// OrderStatus polls the confirmed status of an order.
	OrderStatus(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error)

	// CancelOrder cancels a live order. Returns domain.ErrAlreadyFilled when
	// the cancel raced a fill.
	CancelOrder(ctx context.Context, h domain.OrderHandle) error

	// OpenOrders lists live orders for a symbol.
	OpenOrders(ctx context.Context, symbol string) ([]domain.OrderHandle, error)

	// Close releases resources and wipes credentials.
	Close() error
}

// Journal records the executor's order and position history for auditing.
// The exchange stays the source of truth; journal failures are logged and
// never fail a trade.
type Journal interface {
	RecordOrder(ctx context.Context, intent domain.OrderIntent, h domain.OrderHandle) error
	RecordOrderStatus(ctx context.Context, h domain.OrderHandle, status domain.OrderStatus) error
	RecordPositionOpened(ctx context.Context, p *domain.Position) error
	RecordPositionClosed(ctx context.Context, p *domain.Position, outcome string) error
	RecordAlert(ctx context.Context, a domain.Alert) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(a domain.Alert)
}
