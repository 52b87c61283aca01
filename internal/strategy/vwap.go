package strategy

import (
	"fmt"

	"swing_go/internal/domain"

	"github.com/shopspring/decimal"
)

// VWAP computes the rolling volume-weighted average price over the candle
// series: sum(typicalPrice*volume) / sum(volume) across a window of period
// candles. The result has len(candles)-period+1 values, one per complete
// window, aligned so the last value corresponds to the last candle.
func VWAP(candles []domain.Candle, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, fmt.Errorf("vwap period must be positive, got %d", period)
	}
	if len(candles) < period {
		return nil, fmt.Errorf("%w: need %d candles for vwap period, have %d",
			domain.ErrDataUnavailable, period, len(candles))
	}

	out := make([]decimal.Decimal, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		pv := decimal.Zero
		vol := decimal.Zero
		for j := i - period + 1; j <= i; j++ {
			c := candles[j]
			pv = pv.Add(c.TypicalPrice().Mul(c.Volume))
			vol = vol.Add(c.Volume)
		}
		if vol.IsZero() {
			return nil, fmt.Errorf("%w: zero volume in vwap window ending at %s",
				domain.ErrDataUnavailable, candles[i].OpenTime)
		}
		out = append(out, pv.Div(vol))
	}
	return out, nil
}
