package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"swing_go/internal/infra"
	"swing_go/internal/storage"
)

// Bootstrap wires up the shared application infrastructure: configuration,
// logging, workspace directories, the instance lock and the trade journal.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.TradeJournal

	unlock func()
}

// NewBootstrap creates an empty bootstrap; call Initialize before use.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger, prepares the
// workspace and opens the journal. Data is isolated per trading mode so a
// paper run can never pollute the real-money history.
func (b *Bootstrap) Initialize(configPath string) error {
	if configPath == "" {
		configPath = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("starting",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("mode", cfg.Trading.Mode))

	mode := strings.ToLower(cfg.Trading.Mode)
	workDir := infra.WorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// One process per workspace: two bots over the same journal and the
	// same exchange account would double-trade.
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.unlock = unlock

	journal, err := storage.NewTradeJournal(filepath.Join(dataDir, "journal.db"))
	if err != nil {
		unlock()
		return fmt.Errorf("open journal: %w", err)
	}
	b.Journal = journal
	slog.Info("journal ready", slog.String("path", filepath.Join(dataDir, "journal.db")))

	return nil
}

// Shutdown releases everything Initialize acquired.
func (b *Bootstrap) Shutdown() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("journal close failed", slog.Any("error", err))
		}
	}
	if b.unlock != nil {
		b.unlock()
	}
}
