package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vaultwatch/internal/chain"
	"vaultwatch/internal/committer"
	"vaultwatch/internal/config"
	"vaultwatch/internal/hub"
	"vaultwatch/internal/model"
	"vaultwatch/internal/monitor"
	"vaultwatch/internal/registry"
	"vaultwatch/internal/server"
	"vaultwatch/internal/storage"
	"vaultwatch/internal/storage/postgres"
	"vaultwatch/internal/vault"
	"vaultwatch/internal/watcher"
)

const historyLimit = 1024

func main() {
	root := &cobra.Command{
		Use:          "vaultwatch",
		Short:        "On-chain vault trade monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring pipeline and alert server",
		RunE:  runWatch,
	}

	runCmd.Flags().String("rpc", "", "websocket-capable RPC URL")
	runCmd.Flags().String("factory", "", "vault factory address (optional)")
	runCmd.Flags().StringSlice("vaults", nil, "initial vault addresses (comma-separated)")
	runCmd.Flags().String("alert-registry", "", "alert registry contract address")
	runCmd.Flags().String("private-key", "", "signing key hex (prefer VAULTWATCH_PRIVATE_KEY)")
	runCmd.Flags().String("listen", ":3000", "HTTP/websocket listen address")
	runCmd.Flags().Int("max-retries", 5, "maximum commit retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("confirm-timeout", 2*time.Minute, "transaction confirmation timeout")
	runCmd.Flags().Int("commit-queue", 64, "pending commit queue size")
	runCmd.Flags().String("alerts-out", "", "optional JSONL alert mirror path")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the alert archive")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "List alerts recorded in the on-chain registry",
		RunE:  runAlerts,
	}

	alertsCmd.Flags().String("rpc", "", "RPC URL")
	alertsCmd.Flags().String("alert-registry", "", "alert registry contract address")
	alertsCmd.Flags().Int("limit", 20, "maximum alerts to fetch, newest first")
	alertsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(alertsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.AlertRegistry == "" {
		return fmt.Errorf("alert registry address is required")
	}
	if !common.IsHexAddress(cfg.AlertRegistry) {
		return fmt.Errorf("invalid alert registry address: %s", cfg.AlertRegistry)
	}
	if cfg.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}

	signer, err := chain.NewSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get head block: %w", err)
	}

	logger.Info("vaultwatch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("head_block", head),
		zap.String("alert_registry", cfg.AlertRegistry),
		zap.String("signer", signer.Address().Hex()),
		zap.Int("initial_vaults", len(cfg.Vaults)),
		zap.String("listen", cfg.ListenAddr),
	)

	alertBook := vault.NewAlertBook(
		chainClient,
		signer,
		common.HexToAddress(cfg.AlertRegistry),
		chainID,
		cfg.ConfirmTimeout,
		logger,
	)

	alertHub := hub.NewHub()
	history := hub.NewHistory(historyLimit)

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	publish := func(alert model.Alert) {
		history.Append(alert)
		alertHub.Broadcast(alert)
		if len(sinks) > 0 {
			if err := sinks.SaveAlert(ctx, alert); err != nil {
				logger.Warn("alert mirror write failed", zap.Uint64("id", alert.ID), zap.Error(err))
			}
		}
	}

	commits := committer.New(alertBook, publish, cfg.CommitQueue, cfg.MaxRetries, cfg.RetryBackoff, logger)
	go commits.Run(ctx)

	fetcher := vault.NewAllowListFetcher(chainClient, logger)
	pipeline := monitor.New(fetcher, commits, logger)
	streams := watcher.New(ctx, chainClient, pipeline, cfg.RetryBackoff, logger)
	reg := registry.New(streams, logger)

	for _, address := range cfg.Vaults {
		if err := reg.Add(address); err != nil && !errors.Is(err, registry.ErrAlreadyWatched) {
			logger.Warn("configured vault not watched", zap.String("address", address), zap.Error(err))
		}
	}

	if cfg.FactoryAddress != "" {
		if !common.IsHexAddress(cfg.FactoryAddress) {
			return fmt.Errorf("invalid factory address: %s", cfg.FactoryAddress)
		}
		factory := common.HexToAddress(cfg.FactoryAddress)
		go func() {
			if err := streams.WatchFactory(ctx, factory, reg); err != nil {
				logger.Error("factory watch failed", zap.Error(err))
			}
		}()
	} else {
		logger.Info("no factory address configured, skipping creation stream")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	server.New(reg, alertHub, history, logger).Register(e)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- e.Start(cfg.ListenAddr)
	}()
	logger.Info("server listening", zap.String("addr", cfg.ListenAddr))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.AlertRegistry == "" {
		return fmt.Errorf("alert registry address is required")
	}
	if !common.IsHexAddress(cfg.AlertRegistry) {
		return fmt.Errorf("invalid alert registry address: %s", cfg.AlertRegistry)
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	alerts, err := vault.FetchSavedAlerts(ctx, chainClient, common.HexToAddress(cfg.AlertRegistry), limit)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, alert := range alerts {
		if err := encoder.Encode(alert); err != nil {
			return err
		}
	}
	logger.Info("alerts fetched", zap.Int("count", len(alerts)))
	return nil
}

func buildSinks(ctx context.Context, cfg config.Config) (storage.MultiSink, func(), error) {
	var sinks storage.MultiSink
	closers := make([]func(), 0, 1)

	if cfg.AlertsOut != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.AlertsOut))
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("ensure alerts schema: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	return sinks, func() {
		for _, close := range closers {
			close()
		}
	}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
