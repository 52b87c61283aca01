package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func candleAt(ts time.Time) Candle {
	return Candle{
		OpenTime: ts,
		Open:     decimal.NewFromInt(1),
		High:     decimal.NewFromInt(2),
		Low:      decimal.NewFromInt(1),
		Close:    decimal.NewFromInt(2),
		Volume:   decimal.NewFromInt(10),
	}
}

func TestValidateSeries(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("ascending series is valid", func(t *testing.T) {
		candles := []Candle{candleAt(base), candleAt(base.Add(4 * time.Hour)), candleAt(base.Add(8 * time.Hour))}
		if err := ValidateSeries(candles); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("empty series fails", func(t *testing.T) {
		if err := ValidateSeries(nil); !errors.Is(err, ErrDataUnavailable) {
			t.Fatalf("want ErrDataUnavailable, got %v", err)
		}
	})

	t.Run("duplicate timestamp fails", func(t *testing.T) {
		candles := []Candle{candleAt(base), candleAt(base)}
		if err := ValidateSeries(candles); !errors.Is(err, ErrDataUnavailable) {
			t.Fatalf("want ErrDataUnavailable, got %v", err)
		}
	})

	t.Run("out of order fails", func(t *testing.T) {
		candles := []Candle{candleAt(base.Add(4 * time.Hour)), candleAt(base)}
		if err := ValidateSeries(candles); !errors.Is(err, ErrDataUnavailable) {
			t.Fatalf("want ErrDataUnavailable, got %v", err)
		}
	})
}

func TestCandle_TypicalPrice(t *testing.T) {
	c := Candle{
		High:  decimal.RequireFromString("12"),
		Low:   decimal.RequireFromString("9"),
		Close: decimal.RequireFromString("12"),
	}
	if got := c.TypicalPrice(); !got.Equal(decimal.RequireFromString("11")) {
		t.Errorf("TypicalPrice = %s, want 11", got)
	}
}
