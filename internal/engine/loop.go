package engine

import (
	"context"
	"log/slog"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/execution"
	"swing_go/internal/infra"
	"swing_go/internal/strategy"
)

// MarketData is the read-only market surface the loop evaluates against.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int, since time.Time) ([]domain.Candle, error)
}

// Trader drives one symbol's order lifecycle.
type Trader interface {
	Execute(ctx context.Context) (execution.State, error)
	Resume(ctx context.Context) (execution.State, error)
	State() execution.State
}

// Loop runs the evaluate-and-trade cycle for a single symbol. One loop per
// symbol; loops are independent and a failing cycle only costs that cycle.
type Loop struct {
	Symbol        string
	Interval      string
	CycleInterval time.Duration

	market   MarketData
	strategy *strategy.VWAPCross
	trader   Trader

	// sleep is the backoff hook for reconciliation retries.
	sleep func(ctx context.Context, attempt int) error
}

// NewLoop assembles a trading loop for one symbol.
func NewLoop(symbol, interval string, cycleInterval time.Duration, market MarketData, strat *strategy.VWAPCross, trader Trader) *Loop {
	if cycleInterval == 0 {
		cycleInterval = 10 * time.Second
	}
	return &Loop{
		Symbol:        symbol,
		Interval:      interval,
		CycleInterval: cycleInterval,
		market:        market,
		strategy:      strat,
		trader:        trader,
		sleep:         infra.SleepBackoff,
	}
}

// Run reconciles any in-flight order from a previous run, then evaluates on a
// fixed cadence until the context is canceled. A panicking or failing cycle
// is logged and the next tick proceeds; nothing short of cancellation stops
// the loop.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("trading loop started",
		slog.String("symbol", l.Symbol),
		slog.Duration("cadence", l.CycleInterval))

	if err := l.reconcile(ctx); err != nil {
		return
	}

	ticker := time.NewTicker(l.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("trading loop stopping", slog.String("symbol", l.Symbol))
			return
		case <-ticker.C:
			l.safeCycle(ctx)
		}
	}
}

// reconcile retries restart reconciliation with backoff until the exchange's
// open-order listing is confirmed. Trading may not begin on an unverified
// slate: a live order from the previous run could be doubled by a fresh
// entry. Returns non-nil only on cancellation.
func (l *Loop) reconcile(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		st, err := l.trader.Resume(ctx)
		if err == nil {
			if st != execution.StateIdle {
				slog.Info("reconciled previous session",
					slog.String("symbol", l.Symbol),
					slog.String("state", st.String()))
			}
			return nil
		}
		slog.Error("restart reconciliation failed, retrying",
			slog.String("symbol", l.Symbol),
			slog.String("state", st.String()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if serr := l.sleep(ctx, attempt); serr != nil {
			return serr
		}
	}
}

// safeCycle runs one cycle, containing panics so a bug in one evaluation
// cannot take the process down.
func (l *Loop) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle panicked", slog.String("symbol", l.Symbol), slog.Any("panic", r))
		}
	}()
	if err := l.Cycle(ctx); err != nil {
		slog.Warn("cycle failed, will retry next tick",
			slog.String("symbol", l.Symbol),
			slog.Any("error", err))
	}
}

// Cycle performs one evaluation: skip if a trade is in flight, fetch fresh
// candles, evaluate the crossover, and enter on a signal.
func (l *Loop) Cycle(ctx context.Context) error {
	if l.trader.State() != execution.StateIdle {
		slog.Debug("position in flight, skipping evaluation", slog.String("symbol", l.Symbol))
		return nil
	}

	candles, err := l.market.Klines(ctx, l.Symbol, l.Interval, l.strategy.MinCandles(), time.Time{})
	if err != nil {
		return err
	}

	signal, err := l.strategy.Evaluate(candles)
	if err != nil {
		return err
	}
	if signal != strategy.SignalBullishCross {
		return nil
	}

	slog.Info("bullish crossover detected", slog.String("symbol", l.Symbol))
	st, err := l.trader.Execute(ctx)
	if err != nil {
		slog.Error("trade attempt failed",
			slog.String("symbol", l.Symbol),
			slog.String("state", st.String()),
			slog.Any("error", err))
		return err
	}
	slog.Info("trade attempt finished",
		slog.String("symbol", l.Symbol),
		slog.String("state", st.String()))
	return nil
}
