// Package cli implements the econ command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tutu-network/econ/internal/app/actions"
	"github.com/tutu-network/econ/internal/app/clan"
	"github.com/tutu-network/econ/internal/app/dispatch"
	"github.com/tutu-network/econ/internal/app/leaderboard"
	"github.com/tutu-network/econ/internal/app/ledger"
	"github.com/tutu-network/econ/internal/daemon"
	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/logging"
	"github.com/tutu-network/econ/internal/infra/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "econ",
	Short: "Chat-bot economy ledger and action engine",
	Long: `econ keeps per-user wallets and banks for a chat community and runs
the economy actions on top of them: work, daily, rob, transfers, deposits,
clans and the net-worth leaderboard. Run 'econ serve' to expose the HTTP
API, or 'econ exec' to run a single command against the configured store.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.econ/config.toml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── App Wiring ─────────────────────────────────────────────────────────────

// app bundles the services a command needs.
type app struct {
	cfg        daemon.Config
	logger     *zap.Logger
	store      domain.Store
	engine     *ledger.Engine
	clans      *clan.Service
	board      *leaderboard.Board
	dispatcher *dispatch.Dispatcher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.StorageTimeout()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	lcfg := ledger.DefaultConfig()
	lcfg.Timeout = timeout
	engine := ledger.New(store, rules, logger, ledger.WithConfig(lcfg))
	clans := clan.New(engine)
	board := leaderboard.New(engine, cfg.LeaderboardLimits())

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		engine:     engine,
		clans:      clans,
		board:      board,
		dispatcher: dispatch.New(engine, actions.New(engine, nil), clans, board, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
