// swing-go - autonomous VWAP-crossover swing trading bot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"swing_go/internal/app"
	"swing_go/internal/engine"
	"swing_go/internal/execution"
	"swing_go/internal/infra"
	"swing_go/internal/infra/binance"
	"swing_go/internal/strategy"
)

var (
	version    = "0.1.0"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swing-go",
		Short: "Autonomous VWAP-crossover swing trading bot",
		Long: `swing-go watches spot markets for a fast/slow VWAP crossover and runs
each entry through a bracketed order lifecycle: limit entry, take-profit and
stop-loss exits, with bounded polling and restart reconciliation.`,
		RunE: runBot,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(klinesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("swing-go version %s\n", version)
		},
	}
}

// runBot is the main trading entrypoint: one loop per configured symbol, a
// shared price stream and a position monitor, all torn down on SIGINT/SIGTERM.
func runBot(cmd *cobra.Command, args []string) error {
	boot := app.NewBootstrap()
	if err := boot.Initialize(configPath); err != nil {
		return err
	}
	defer boot.Shutdown()
	cfg := boot.Config

	params, err := cfg.Params()
	if err != nil {
		return err
	}

	gateway, err := execution.NewGateway(cfg)
	if err != nil {
		return err
	}
	defer gateway.Close()

	// Public market data never needs credentials, even in REAL mode.
	market := binance.NewClient(cfg.API.Binance.RestURL, binance.NewSigner("", ""))
	defer market.Close()

	strat, err := strategy.NewVWAPCross(cfg.Trading.FastVWAP, cfg.Trading.SlowVWAP)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paper, _ := gateway.(*execution.PaperGateway)
	if paper != nil {
		seedPaperPrices(ctx, paper, market, cfg.Trading.Symbols)
	}

	executors := make(map[string]*execution.Executor, len(cfg.Trading.Symbols))
	positions := make(map[string]engine.PositionSource, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		exec := execution.NewExecutor(execution.Config{
			Symbol:         symbol,
			QuoteAsset:     cfg.Trading.QuoteAsset,
			RiskPct:        params.RiskPct,
			RewardRatio:    params.RewardRatio,
			RiskFraction:   params.RiskFraction,
			MinQty:         params.MinQty,
			PollInterval:   params.PollInterval,
			MaxWait:        params.MaxWait,
			MaxExitRetries: cfg.Trading.MaxExitRetries,
		}, gateway, boot.Journal, nil)
		executors[symbol] = exec
		positions[symbol] = exec
	}

	// Live ticker stream feeds the monitor, and in paper mode also the
	// simulator's price book.
	streamInbox := make(chan binance.PriceUpdate, 256)
	monitorInbox := make(chan binance.PriceUpdate, 256)
	stream := binance.NewStreamWorker(cfg.API.Binance.WSURL, cfg.Trading.Symbols, streamInbox)
	if err := stream.Connect(ctx); err != nil {
		slog.Warn("price stream unavailable, continuing without live ticks", slog.Any("error", err))
	}
	defer stream.Disconnect()

	var tap func(binance.PriceUpdate)
	if paper != nil {
		tap = func(tick binance.PriceUpdate) { paper.SetPrice(tick.Symbol, tick.Price) }
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.ForwardTicks(ctx, streamInbox, monitorInbox, tap)
	}()

	monitor := engine.NewMonitor(monitorInbox, nil, positions)
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	for _, symbol := range cfg.Trading.Symbols {
		loop := engine.NewLoop(symbol, cfg.Trading.Interval, params.CycleInterval,
			market, strat, executors[symbol])
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Run(ctx)
		}()
	}

	slog.Info("all loops running", slog.Int("symbols", len(cfg.Trading.Symbols)))
	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	return nil
}

// seedPaperPrices primes the simulator so sizing works before the first
// websocket tick arrives.
func seedPaperPrices(ctx context.Context, paper *execution.PaperGateway, market *binance.Client, symbols []string) {
	for _, symbol := range symbols {
		price, err := market.LastPrice(ctx, symbol)
		if err != nil {
			slog.Warn("could not seed paper price", slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		paper.SetPrice(symbol, price)
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the quote-asset balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot := app.NewBootstrap()
			if err := boot.Initialize(configPath); err != nil {
				return err
			}
			defer boot.Shutdown()

			gateway, err := execution.NewGateway(boot.Config)
			if err != nil {
				return err
			}
			defer gateway.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bal, err := gateway.Balance(ctx, boot.Config.Trading.QuoteAsset)
			if err != nil {
				return err
			}
			fmt.Printf("%s: free %s, locked %s\n", bal.Asset, bal.Free, bal.Locked)
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile in-flight orders from a previous run, without trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot := app.NewBootstrap()
			if err := boot.Initialize(configPath); err != nil {
				return err
			}
			defer boot.Shutdown()
			cfg := boot.Config

			params, err := cfg.Params()
			if err != nil {
				return err
			}
			gateway, err := execution.NewGateway(cfg)
			if err != nil {
				return err
			}
			defer gateway.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for _, symbol := range cfg.Trading.Symbols {
				exec := execution.NewExecutor(execution.Config{
					Symbol:         symbol,
					QuoteAsset:     cfg.Trading.QuoteAsset,
					RiskPct:        params.RiskPct,
					RewardRatio:    params.RewardRatio,
					RiskFraction:   params.RiskFraction,
					MinQty:         params.MinQty,
					PollInterval:   params.PollInterval,
					MaxWait:        params.MaxWait,
					MaxExitRetries: cfg.Trading.MaxExitRetries,
				}, gateway, boot.Journal, nil)

				st, err := exec.Resume(ctx)
				if err != nil {
					fmt.Printf("%s: %s (%v)\n", symbol, st, err)
					continue
				}
				fmt.Printf("%s: %s\n", symbol, st)
			}
			return nil
		},
	}
}

func klinesCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "klines SYMBOL",
		Short: "Fetch recent candles and VWAPs for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := args[0]
			cfgPath := configPath
			if cfgPath == "" {
				cfgPath = infra.ResolveConfigPath()
			}
			cfg, err := infra.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			slog.SetDefault(infra.NewLogger(cfg))

			market := binance.NewClient(cfg.API.Binance.RestURL, binance.NewSigner("", ""))
			defer market.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			candles, err := market.Klines(ctx, symbol, cfg.Trading.Interval, limit, time.Time{})
			if err != nil {
				return err
			}

			fast, fastErr := strategy.VWAP(candles, cfg.Trading.FastVWAP)
			slow, slowErr := strategy.VWAP(candles, cfg.Trading.SlowVWAP)

			fmt.Printf("%-22s %-12s %-12s %-12s\n", "OPEN TIME", "CLOSE", "HIGH", "LOW")
			for _, c := range candles {
				fmt.Printf("%-22s %-12s %-12s %-12s\n",
					c.OpenTime.Format(time.RFC3339), c.Close, c.High, c.Low)
			}
			if fastErr == nil && slowErr == nil {
				fmt.Printf("\nfast VWAP(%d): %s\nslow VWAP(%d): %s\n",
					cfg.Trading.FastVWAP, fast[len(fast)-1],
					cfg.Trading.SlowVWAP, slow[len(slow)-1])
			}
			return nil
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 7, "Number of candles to fetch")
	return c
}
