package domain

import "github.com/shopspring/decimal"

// Balance is an account balance for a single asset, refreshed on demand
// before sizing a trade and never cached across loop iterations.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total returns free plus locked funds.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}
