package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position is an open trade: a filled entry plus its bracket exit orders.
// At most one open Position exists per symbol at any time.
type Position struct {
	Symbol      string
	Entry       OrderHandle
	EntryPrice  decimal.Decimal
	Qty         decimal.Decimal
	TakeProfit  OrderHandle
	StopLoss    OrderHandle
	OpenedAt    time.Time
	Unprotected bool // entry filled but bracket submission failed
}

// UnrealizedPnL returns (price - entry) * qty for a long position.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Mul(p.Qty)
}

// BracketPrices computes the protective exit prices for a long entry:
// stop loss at entry*(1 - riskPct/100), take profit at
// entry*(1 + riskPct*rewardRatio/100).
func BracketPrices(entry, riskPct, rewardRatio decimal.Decimal) (takeProfit, stopLoss decimal.Decimal) {
	risk := riskPct.Div(hundred)
	takeProfit = entry.Mul(decimal.NewFromInt(1).Add(risk.Mul(rewardRatio)))
	stopLoss = entry.Mul(decimal.NewFromInt(1).Sub(risk))
	return takeProfit, stopLoss
}
