package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"swing_go/internal/domain"

	"github.com/shopspring/decimal"
)

// paperOrder is a resting simulated order.
type paperOrder struct {
	intent     domain.OrderIntent
	handle     domain.OrderHandle
	status     domain.OrderStatus
	pollsUntil int // status polls remaining before the order fills
}

// PaperGateway simulates the exchange against virtual balances. Limit orders
// rest for a configurable number of status polls before filling, which
// exercises the same polling paths a live order does. Balances settle at fill
// time; placement only checks that funds exist, so two exit legs over the
// same units can rest concurrently the way an exchange-side bracket does.
// Used for strategy validation before real money is at risk.
type PaperGateway struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	prices   map[string]decimal.Decimal
	orders   map[string]*paperOrder
	nextID   int64

	// FillAfterPolls is how many status polls a resting order survives
	// before it fills. Zero fills on the first poll.
	FillAfterPolls int
}

// NewPaperGateway creates a simulator seeded with a quote-asset balance.
func NewPaperGateway(quoteAsset string, initialBalance decimal.Decimal) *PaperGateway {
	return &PaperGateway{
		balances: map[string]decimal.Decimal{quoteAsset: initialBalance},
		prices:   make(map[string]decimal.Decimal),
		orders:   make(map[string]*paperOrder),
	}
}

// SetPrice seeds or updates the simulated market price for a symbol.
func (p *PaperGateway) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// Deposit credits the virtual account.
func (p *PaperGateway) Deposit(asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[asset] = p.balances[asset].Add(amount)
}

func (p *PaperGateway) Balance(_ context.Context, asset string) (domain.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.Balance{Asset: asset, Free: p.balances[asset]}, nil
}

func (p *PaperGateway) LastPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no price for %s", domain.ErrDataUnavailable, symbol)
	}
	return price, nil
}

func (p *PaperGateway) PlaceOrder(_ context.Context, intent domain.OrderIntent) (domain.OrderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price := intent.Price
	if intent.Kind == domain.KindMarket {
		var ok bool
		if price, ok = p.prices[intent.Symbol]; !ok {
			return domain.OrderHandle{}, fmt.Errorf("%w: no price for %s", domain.ErrOrderRejected, intent.Symbol)
		}
	}

	base, quote := splitSymbol(intent.Symbol)
	if intent.Side == domain.SideBuy {
		if cost := price.Mul(intent.Qty); p.balances[quote].LessThan(cost) {
			return domain.OrderHandle{}, fmt.Errorf("%w: need %s %s, have %s",
				domain.ErrInsufficientBalance, cost, quote, p.balances[quote])
		}
	} else if p.balances[base].LessThan(intent.Qty) {
		return domain.OrderHandle{}, fmt.Errorf("%w: need %s %s, have %s",
			domain.ErrInsufficientBalance, intent.Qty, base, p.balances[base])
	}

	p.nextID++
	handle := domain.OrderHandle{
		OrderID:     strconv.FormatInt(p.nextID, 10),
		Symbol:      intent.Symbol,
		SubmittedAt: time.Now().UTC(),
	}
	order := &paperOrder{
		intent:     intent,
		handle:     handle,
		status:     domain.StatusOpen,
		pollsUntil: p.FillAfterPolls,
	}
	if intent.Kind == domain.KindMarket {
		p.fillLocked(order, price)
	}
	p.orders[handle.OrderID] = order

	slog.Info("paper order placed",
		slog.String("id", handle.OrderID),
		slog.String("symbol", intent.Symbol),
		slog.String("side", string(intent.Side)),
		slog.String("qty", intent.Qty.String()))
	return handle, nil
}

// fillLocked settles an order against the virtual balances.
func (p *PaperGateway) fillLocked(o *paperOrder, price decimal.Decimal) {
	base, quote := splitSymbol(o.intent.Symbol)
	if o.intent.Side == domain.SideBuy {
		p.balances[quote] = p.balances[quote].Sub(price.Mul(o.intent.Qty))
		p.balances[base] = p.balances[base].Add(o.intent.Qty)
	} else {
		p.balances[base] = p.balances[base].Sub(o.intent.Qty)
		p.balances[quote] = p.balances[quote].Add(price.Mul(o.intent.Qty))
	}
	o.status = domain.StatusFilled
	slog.Info("paper order filled",
		slog.String("id", o.handle.OrderID),
		slog.String("price", price.String()))
}

func (p *PaperGateway) Order(_ context.Context, h domain.OrderHandle) (domain.OrderInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[h.OrderID]
	if !ok {
		return domain.OrderInfo{}, fmt.Errorf("%w: order %s not found", domain.ErrOrderRejected, h.OrderID)
	}
	return domain.OrderInfo{
		Handle: o.handle,
		Status: o.status,
		Price:  o.intent.Price,
		Qty:    o.intent.Qty,
	}, nil
}

func (p *PaperGateway) OrderStatus(_ context.Context, h domain.OrderHandle) (domain.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[h.OrderID]
	if !ok {
		return domain.StatusUnknown, fmt.Errorf("%w: order %s not found", domain.ErrOrderRejected, h.OrderID)
	}
	if o.status == domain.StatusOpen {
		if o.pollsUntil <= 0 {
			// A sell leg whose units were already sold by its sibling
			// expires instead of filling.
			base, _ := splitSymbol(o.intent.Symbol)
			if o.intent.Side == domain.SideSell && p.balances[base].LessThan(o.intent.Qty) {
				o.status = domain.StatusCanceled
			} else {
				p.fillLocked(o, o.intent.Price)
			}
		} else {
			o.pollsUntil--
		}
	}
	return o.status, nil
}

func (p *PaperGateway) CancelOrder(_ context.Context, h domain.OrderHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[h.OrderID]
	if !ok {
		return fmt.Errorf("%w: order %s not found", domain.ErrAlreadyFilled, h.OrderID)
	}
	if o.status == domain.StatusFilled {
		return fmt.Errorf("%w: order %s", domain.ErrAlreadyFilled, h.OrderID)
	}
	o.status = domain.StatusCanceled
	slog.Info("paper order canceled", slog.String("id", h.OrderID))
	return nil
}

func (p *PaperGateway) OpenOrders(_ context.Context, symbol string) ([]domain.OrderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var handles []domain.OrderHandle
	for _, o := range p.orders {
		if o.status == domain.StatusOpen && o.handle.Symbol == symbol {
			handles = append(handles, o.handle)
		}
	}
	return handles, nil
}

func (p *PaperGateway) Close() error { return nil }

// splitSymbol separates base and quote assets of a trading pair.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	// Fallback for 3-letter quotes.
	if len(symbol) > 3 {
		return symbol[:len(symbol)-3], symbol[len(symbol)-3:]
	}
	return symbol, ""
}
