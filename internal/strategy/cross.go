package strategy

import (
	"fmt"

	"swing_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Signal is the discrete output of the evaluator.
type Signal int

const (
	SignalNone Signal = iota
	SignalBullishCross
)

func (s Signal) String() string {
	if s == SignalBullishCross {
		return "BULLISH_CROSS"
	}
	return "NONE"
}

// EvaluateCross returns SignalBullishCross iff the fast VWAP strictly crossed
// above the slow VWAP on the latest step: prevFast < prevSlow and
// currFast > currSlow. A flat-above state re-emits nothing, which is what
// keeps the loop from re-entering every cycle while fast stays above slow.
func EvaluateCross(prevFast, currFast, prevSlow, currSlow decimal.Decimal) Signal {
	if prevFast.LessThan(prevSlow) && currFast.GreaterThan(currSlow) {
		return SignalBullishCross
	}
	return SignalNone
}

// VWAPCross evaluates the two-period VWAP crossover over a candle series.
type VWAPCross struct {
	FastPeriod int
	SlowPeriod int
}

// NewVWAPCross creates the evaluator. fast must be strictly below slow.
func NewVWAPCross(fastPeriod, slowPeriod int) (*VWAPCross, error) {
	if fastPeriod <= 0 || fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("vwap periods must satisfy 0 < fast < slow, got %d/%d", fastPeriod, slowPeriod)
	}
	return &VWAPCross{FastPeriod: fastPeriod, SlowPeriod: slowPeriod}, nil
}

// MinCandles is the series length required to observe two slow VWAP values.
func (v *VWAPCross) MinCandles() int {
	return v.SlowPeriod + 1
}

// Evaluate computes both VWAP series and evaluates the last two values of
// each. Pure: no side effects, no network.
func (v *VWAPCross) Evaluate(candles []domain.Candle) (Signal, error) {
	if len(candles) < v.MinCandles() {
		return SignalNone, fmt.Errorf("%w: need %d candles, have %d",
			domain.ErrDataUnavailable, v.MinCandles(), len(candles))
	}

	fast, err := VWAP(candles, v.FastPeriod)
	if err != nil {
		return SignalNone, err
	}
	slow, err := VWAP(candles, v.SlowPeriod)
	if err != nil {
		return SignalNone, err
	}

	return EvaluateCross(
		fast[len(fast)-2], fast[len(fast)-1],
		slow[len(slow)-2], slow[len(slow)-1],
	), nil
}
