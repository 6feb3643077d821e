// Command sovereign computes portfolio drift against target weights and,
// in execute mode, closes it with laddered market orders.
//
// Usage:
//
//	sovereign -config config.yaml
//	sovereign -config config.yaml -yes -lock-wait 30s
//
// Credentials are read from the environment (a .env file is loaded when
// present):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//	For Hyperliquid: HYPERLIQUID_PRIVATE_KEY
//
// Exit codes: 0 run completed, 1 error, 2 preflight failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/config"
	"github.com/vadiminshakov/sovereign/internal"
	"github.com/vadiminshakov/sovereign/internal/domain"
	"github.com/vadiminshakov/sovereign/internal/runlock"
	"github.com/vadiminshakov/sovereign/internal/setup"
	"github.com/vadiminshakov/sovereign/internal/storage/runlog"
)

const (
	exitOK              = 0
	exitError           = 1
	exitPreflightFailed = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	yes := flag.Bool("yes", false, "dispatch without the interactive confirmation")
	lockWait := flag.Duration("lock-wait", 0, "how long to wait for a concurrent run to finish")
	flag.Parse()

	// a missing .env is fine; variables may come from the environment
	_ = godotenv.Load()

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := runlock.Acquire(ctx, conf.LogDir, runlock.Options{Wait: *lockWait, Logger: logger})
	if err != nil {
		logger.Error("failed to acquire run lock", zap.Error(err))
		return exitError
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("failed to release run lock", zap.Error(err))
		}
	}()

	store, err := runlog.NewWALStore(filepath.Join(conf.LogDir, "wal"),
		runlog.WithSegments(conf.RunLog.SegmentEntries, conf.RunLog.MaxSegments))
	if err != nil {
		logger.Error("failed to open run log", zap.Error(err))
		return exitError
	}
	defer store.Close()

	deps := internal.Deps{RunLog: store, Logger: logger}
	if conf.Mode == domain.ModeExecute && !*yes {
		deps.Confirm = setup.Confirm
	}

	rebalancer, err := internal.New(ctx, conf, deps)
	if err != nil {
		logger.Error("failed to build rebalancer", zap.Error(err))
		return exitError
	}

	start := time.Now()
	record, err := rebalancer.Run(ctx)
	fmt.Println(setup.RenderRecord(record))
	logger.Info("run finished", zap.String("run_id", record.RunID), zap.Duration("took", time.Since(start)))

	switch {
	case errors.Is(err, internal.ErrDeclined):
		return exitOK
	case err != nil:
		return exitError
	case record.Preflight != nil && !record.Preflight.OverallPass:
		return exitPreflightFailed
	case record.Outcome != nil && !record.Outcome.Complete():
		return exitError
	default:
		return exitOK
	}
}

// newLogger returns a development logger when SOVEREIGN_ENV=dev, otherwise
// a production JSON logger.
func newLogger() (*zap.Logger, error) {
	if os.Getenv("SOVEREIGN_ENV") == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
