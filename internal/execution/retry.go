package execution

import (
	"context"
	"log/slog"

	"swing_go/internal/domain"
	"swing_go/internal/infra"

	"github.com/shopspring/decimal"
)

// maxAttempts bounds the retry loop: one initial call plus two retries,
// with 1s and 2s backoff between them.
const maxAttempts = 3

// RetryingGateway decorates a Gateway with bounded exponential backoff for
// transient failures (network, rate limit). Deterministic refusals such as
// domain.ErrOrderRejected pass through untouched: retrying those would
// resubmit into the same rejection, or worse, duplicate live exposure.
type RetryingGateway struct {
	inner Gateway
	sleep func(ctx context.Context, attempt int) error
}

// NewRetryingGateway wraps a gateway with the retry policy.
func NewRetryingGateway(inner Gateway) *RetryingGateway {
	return &RetryingGateway{
		inner: inner,
		sleep: infra.SleepBackoff,
	}
}

// retry runs op up to maxAttempts times, sleeping between transient failures.
func (g *RetryingGateway) retry(ctx context.Context, name string, op func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			slog.Warn("retrying gateway call",
				slog.String("op", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			if serr := g.sleep(ctx, attempt-1); serr != nil {
				return serr
			}
		}
		err = op()
		if err == nil || !domain.Retryable(err) {
			return err
		}
	}
	return err
}

func (g *RetryingGateway) Balance(ctx context.Context, asset string) (domain.Balance, error) {
	var b domain.Balance
	err := g.retry(ctx, "balance", func() error {
		var err error
		b, err = g.inner.Balance(ctx, asset)
		return err
	})
	return b, err
}

func (g *RetryingGateway) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var p decimal.Decimal
	err := g.retry(ctx, "last_price", func() error {
		var err error
		p, err = g.inner.LastPrice(ctx, symbol)
		return err
	})
	return p, err
}

func (g *RetryingGateway) PlaceOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderHandle, error) {
	var h domain.OrderHandle
	err := g.retry(ctx, "place_order", func() error {
		var err error
		h, err = g.inner.PlaceOrder(ctx, intent)
		return err
	})
	return h, err
}

func (g *RetryingGateway) Order(ctx context.Context, h domain.OrderHandle) (domain.OrderInfo, error) {
	var info domain.OrderInfo
	err := g.retry(ctx, "order", func() error {
		var err error
		info, err = g.inner.Order(ctx, h)
		return err
	})
	return info, err
}

func (g *RetryingGateway) OrderStatus(ctx context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	var st domain.OrderStatus
	err := g.retry(ctx, "order_status", func() error {
		var err error
		st, err = g.inner.OrderStatus(ctx, h)
		return err
	})
	return st, err
}

func (g *RetryingGateway) CancelOrder(ctx context.Context, h domain.OrderHandle) error {
	return g.retry(ctx, "cancel_order", func() error {
		return g.inner.CancelOrder(ctx, h)
	})
}

func (g *RetryingGateway) OpenOrders(ctx context.Context, symbol string) ([]domain.OrderHandle, error) {
	var hs []domain.OrderHandle
	err := g.retry(ctx, "open_orders", func() error {
		var err error
		hs, err = g.inner.OpenOrders(ctx, symbol)
		return err
	})
	return hs, err
}

func (g *RetryingGateway) Close() error {
	return g.inner.Close()
}
