package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV candlestick. Immutable once fetched.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// TypicalPrice returns (High + Low + Close) / 3.
func (c Candle) TypicalPrice() decimal.Decimal {
	return c.High.Add(c.Low).Add(c.Close).Div(decimal.NewFromInt(3))
}

// ValidateSeries checks that candles form a usable series: non-empty, strictly
// increasing open times, no duplicates. A series failing this check must not be
// fed to the strategy.
func ValidateSeries(candles []Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("%w: empty candle series", ErrDataUnavailable)
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: candle %d open time %s not after %s",
				ErrDataUnavailable, i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}
