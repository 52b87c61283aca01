package execution

import (
	"fmt"
	"log/slog"
	"os"

	"swing_go/internal/infra"
	"swing_go/internal/infra/binance"

	"github.com/shopspring/decimal"
)

// Mode selects the execution backend.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeReal  Mode = "REAL"
)

// EnvConfirmReal is the safety latch for live trading. Even a fully
// credentialed REAL config refuses to start without it.
const EnvConfirmReal = "CONFIRM_REAL_MONEY"

// paperInitialBalance seeds the simulator's virtual quote account.
var paperInitialBalance = decimal.NewFromInt(10_000)

// NewGateway builds the execution gateway for the configured mode. The real
// gateway is wrapped with the bounded retry policy; the paper simulator is
// not, since it has no transient failures to retry.
func NewGateway(cfg *infra.Config) (Gateway, error) {
	mode := Mode(cfg.Trading.Mode)
	slog.Info("initializing execution gateway", slog.String("mode", string(mode)))

	switch mode {
	case ModePaper:
		paper := NewPaperGateway(cfg.Trading.QuoteAsset, paperInitialBalance)
		paper.FillAfterPolls = 1
		return paper, nil

	case ModeReal:
		if os.Getenv(EnvConfirmReal) != "true" {
			return nil, fmt.Errorf("real trading requires %s=true", EnvConfirmReal)
		}
		if cfg.API.Binance.APIKey == "" || cfg.API.Binance.SecretKey == "" {
			return nil, fmt.Errorf("real trading requires %s and %s", infra.EnvAPIKey, infra.EnvSecretKey)
		}
		signer := binance.NewSigner(cfg.API.Binance.APIKey, cfg.API.Binance.SecretKey)
		slog.Warn("LIVE trading enabled, real funds at risk")
		client := binance.NewClient(cfg.API.Binance.RestURL, signer)
		return NewRetryingGateway(client), nil

	default:
		return nil, fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}
}
