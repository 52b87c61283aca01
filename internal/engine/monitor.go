package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/execution"
	"swing_go/internal/infra/binance"
)

// PositionSource exposes the currently open position for a symbol.
type PositionSource interface {
	Position() *domain.Position
}

// Monitor consumes live ticker updates and watches open positions: it logs
// unrealized PnL transitions and fires operator price alerts. Pure
// observation, it never touches orders.
type Monitor struct {
	inbox     <-chan binance.PriceUpdate
	notifier  execution.Notifier
	positions map[string]PositionSource

	mu     sync.Mutex
	alerts []*domain.PriceAlert
	last   map[string]binance.PriceUpdate
}

// NewMonitor creates a monitor reading from the stream worker's inbox.
func NewMonitor(inbox <-chan binance.PriceUpdate, notifier execution.Notifier, positions map[string]PositionSource) *Monitor {
	return &Monitor{
		inbox:     inbox,
		notifier:  notifier,
		positions: positions,
		last:      make(map[string]binance.PriceUpdate),
	}
}

// AddAlert arms a price alert.
func (m *Monitor) AddAlert(a *domain.PriceAlert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
}

// LastPrice returns the most recent tick seen for a symbol.
func (m *Monitor) LastPrice(symbol string) (binance.PriceUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.last[symbol]
	return s, ok
}

// Run consumes ticks until the context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("position monitor started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("position monitor stopping")
			return
		case tick, ok := <-m.inbox:
			if !ok {
				slog.Warn("price stream closed")
				return
			}
			m.handleTick(tick)
		}
	}
}

func (m *Monitor) handleTick(tick binance.PriceUpdate) {
	m.mu.Lock()
	m.last[tick.Symbol] = tick
	fired := m.checkAlertsLocked(tick)
	m.mu.Unlock()

	for _, a := range fired {
		m.notify(a)
	}

	src, ok := m.positions[tick.Symbol]
	if !ok {
		return
	}
	pos := src.Position()
	if pos == nil {
		return
	}

	pnl := pos.UnrealizedPnL(tick.Price)
	slog.Debug("open position tick",
		slog.String("symbol", pos.Symbol),
		slog.String("price", tick.Price.String()),
		slog.String("unrealized_pnl", pnl.String()))
	if pos.Unprotected {
		slog.Warn("unprotected position still open",
			slog.String("symbol", pos.Symbol),
			slog.String("price", tick.Price.String()))
	}
}

func (m *Monitor) checkAlertsLocked(tick binance.PriceUpdate) []domain.Alert {
	var fired []domain.Alert
	for _, a := range m.alerts {
		if a.Symbol != tick.Symbol || !a.Check(tick.Price) {
			continue
		}
		a.Disarm()
		fired = append(fired, domain.Alert{
			Kind:    domain.AlertPriceTarget,
			Symbol:  a.Symbol,
			Message: "price target " + a.Target.String() + " reached at " + tick.Price.String(),
			At:      time.Now().UTC(),
		})
	}
	return fired
}

// ForwardTicks copies ticks from in to out until ctx is canceled, invoking
// tap on each tick first. out is closed on return. Both the receive and the
// send select on ctx, so a full out channel cannot stall shutdown. Used to
// tee the price stream into the paper simulator while the monitor consumes
// the forwarded side.
func ForwardTicks(ctx context.Context, in <-chan binance.PriceUpdate, out chan<- binance.PriceUpdate, tap func(binance.PriceUpdate)) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-in:
			if tap != nil {
				tap(tick)
			}
			select {
			case <-ctx.Done():
				return
			case out <- tick:
			}
		}
	}
}

func (m *Monitor) notify(a domain.Alert) {
	if m.notifier != nil {
		m.notifier.Notify(a)
		return
	}
	slog.Info("price alert",
		slog.String("symbol", a.Symbol),
		slog.String("message", a.Message))
}
