package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"swing_go/internal/domain"
	"swing_go/internal/execution"
	"swing_go/internal/strategy"

	"github.com/shopspring/decimal"
)

// crossCandles yields a series whose fast VWAP crosses above the slow VWAP
// on the final candle.
func crossCandles() []domain.Candle {
	prices := []string{"100", "100", "100", "100", "100", "90", "140"}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(prices))
	for i, p := range prices {
		d := decimal.RequireFromString(p)
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * 4 * time.Hour),
			Open:     d, High: d, Low: d, Close: d,
			Volume: decimal.NewFromInt(1),
		}
	}
	return out
}

// flatCandles yields a series with no crossover.
func flatCandles() []domain.Candle {
	prices := []string{"100", "100", "100", "100", "100", "100", "100"}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(prices))
	for i, p := range prices {
		d := decimal.RequireFromString(p)
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * 4 * time.Hour),
			Open:     d, High: d, Low: d, Close: d,
			Volume: decimal.NewFromInt(1),
		}
	}
	return out
}

type fakeMarket struct {
	mu      sync.Mutex
	candles []domain.Candle
	err     error
	calls   int
}

func (m *fakeMarket) Klines(context.Context, string, string, int, time.Time) ([]domain.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.candles, m.err
}

type fakeTrader struct {
	mu          sync.Mutex
	state       execution.State
	executes    int
	resumes     int
	result      execution.State
	err         error
	failResumes int // this many Resume calls fail before succeeding
	resumeErr   error
}

func (t *fakeTrader) Execute(context.Context) (execution.State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executes++
	return t.result, t.err
}

func (t *fakeTrader) Resume(context.Context) (execution.State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumes++
	if t.resumes <= t.failResumes {
		return execution.StateReconciling, t.resumeErr
	}
	return execution.StateIdle, nil
}

func (t *fakeTrader) State() execution.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func mustStrategy(t *testing.T) *strategy.VWAPCross {
	t.Helper()
	s, err := strategy.NewVWAPCross(1, 6)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCycleExecutesOnCrossover(t *testing.T) {
	market := &fakeMarket{candles: crossCandles()}
	trader := &fakeTrader{result: execution.StateClosed}
	l := NewLoop("BTCUSDT", "4h", time.Second, market, mustStrategy(t), trader)

	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if trader.executes != 1 {
		t.Errorf("executes = %d, want 1", trader.executes)
	}
}

func TestCycleNoSignalNoTrade(t *testing.T) {
	market := &fakeMarket{candles: flatCandles()}
	trader := &fakeTrader{}
	l := NewLoop("BTCUSDT", "4h", time.Second, market, mustStrategy(t), trader)

	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if trader.executes != 0 {
		t.Errorf("executes = %d, want 0 without a signal", trader.executes)
	}
}

func TestCycleSkipsWhileTradeInFlight(t *testing.T) {
	market := &fakeMarket{candles: crossCandles()}
	trader := &fakeTrader{state: execution.StateEntryPolling}
	l := NewLoop("BTCUSDT", "4h", time.Second, market, mustStrategy(t), trader)

	if err := l.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if market.calls != 0 {
		t.Error("busy cycle must not fetch market data")
	}
	if trader.executes != 0 {
		t.Error("busy cycle must not trade")
	}
}

func TestCycleDataUnavailable(t *testing.T) {
	market := &fakeMarket{err: fmt.Errorf("klines: %w", domain.ErrDataUnavailable)}
	trader := &fakeTrader{}
	l := NewLoop("BTCUSDT", "4h", time.Second, market, mustStrategy(t), trader)

	err := l.Cycle(context.Background())
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
	if trader.executes != 0 {
		t.Error("no trade may happen on bad data")
	}
}

func TestRunRetriesReconciliationBeforeTrading(t *testing.T) {
	market := &fakeMarket{candles: crossCandles()}
	trader := &fakeTrader{
		result:      execution.StateClosed,
		failResumes: 2,
		resumeErr:   fmt.Errorf("list: %w", domain.ErrNetwork),
	}
	l := NewLoop("BTCUSDT", "4h", 2*time.Millisecond, market, mustStrategy(t), trader)
	l.sleep = func(ctx context.Context, _ int) error { return ctx.Err() }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	trader.mu.Lock()
	resumes, executes := trader.resumes, trader.executes
	trader.mu.Unlock()
	if resumes != 3 {
		t.Errorf("resumes = %d, want 3 (two failures retried, then success)", resumes)
	}
	if executes == 0 {
		t.Error("loop never traded after reconciliation succeeded")
	}
}

func TestRunHoldsTradingWhileReconciliationFails(t *testing.T) {
	market := &fakeMarket{candles: crossCandles()}
	trader := &fakeTrader{
		failResumes: 1 << 30, // never succeeds
		resumeErr:   fmt.Errorf("list: %w", domain.ErrNetwork),
	}
	l := NewLoop("BTCUSDT", "4h", 2*time.Millisecond, market, mustStrategy(t), trader)
	l.sleep = func(ctx context.Context, _ int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	trader.mu.Lock()
	defer trader.mu.Unlock()
	if trader.resumes < 2 {
		t.Errorf("resumes = %d, want repeated retries", trader.resumes)
	}
	// An unverified open-order slate must never be traded on.
	if trader.executes != 0 {
		t.Errorf("executes = %d, want 0 while reconciliation keeps failing", trader.executes)
	}
	if market.calls != 0 {
		t.Errorf("market calls = %d, want 0 before reconciliation", market.calls)
	}
}

func TestRunSurvivesFailingCycles(t *testing.T) {
	market := &fakeMarket{err: errors.New("exchange down")}
	trader := &fakeTrader{}
	l := NewLoop("BTCUSDT", "4h", 2*time.Millisecond, market, mustStrategy(t), trader)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	if trader.resumes != 1 {
		t.Errorf("resumes = %d, want reconciliation exactly once at startup", trader.resumes)
	}
	market.mu.Lock()
	calls := market.calls
	market.mu.Unlock()
	if calls < 2 {
		t.Errorf("calls = %d, failing cycles must not stop the loop", calls)
	}
}
