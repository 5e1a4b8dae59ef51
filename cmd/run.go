package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crypto-trading-bot/internal/api"
	"crypto-trading-bot/internal/engine"
	"crypto-trading-bot/internal/executor"
	"crypto-trading-bot/internal/notify"
	"crypto-trading-bot/internal/service"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [instance...]",
	Short: "Start the decision loops",
	Long: `Start one decision loop per instance (all configured instances when none
are named). Stops between cycles on SIGINT/SIGTERM and sends a final
notification.

Example:
  trading-bot run --config ./config btc eth`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = service.Logger.Sync() }()

	names, err := selectInstances(cfg, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := notify.New(cfg.Notification, service.Logger)
	manual := engine.NewManualConfirmation(sink, service.Logger)
	hub := api.NewHub(service.Logger)

	// 1. 为每个实例创建客户端与引擎，配置错误在任何周期开始前返回
	engines := make([]*engine.Engine, 0, len(names))
	for _, name := range names {
		inst := cfg.Instances[name]
		client, err := executor.NewExchangeClient(cfg.Exchange, inst, service.Logger)
		if err != nil {
			return fmt.Errorf("instance %s: %w", name, err)
		}
		var confirm engine.ConfirmationPort = engine.AutoConfirm{}
		if !inst.Strategy.AutoExecute {
			confirm = manual
		}
		engines = append(engines, engine.New(engine.Options{
			Instance:  name,
			Config:    inst,
			Client:    client,
			Sink:      sink,
			Confirm:   confirm,
			Publisher: hub,
			Logger:    service.Logger,
		}))
		service.Logger.Info("Instance configured",
			zap.String("Instance", name),
			zap.String("Pair", inst.Pair().String()),
			zap.String("Exchange", client.Name()),
			zap.Bool("AutoExecute", inst.Strategy.AutoExecute))
	}

	// 2. 遥测与 HTTP 接口
	go hub.Run(ctx)
	if cfg.Server.Addr != "" {
		sources := make([]api.QuoteSource, 0, len(engines))
		for _, e := range engines {
			sources = append(sources, e)
		}
		srv := api.NewServer(cfg.Server.Addr, hub, sources, manual, service.Logger)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// 3. 每个实例一个隔离的 goroutine
	var (
		wg   conc.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range engines {
		wg.Go(func() {
			if err := e.Run(ctx); err != nil {
				service.Logger.Error("Engine exited", zap.String("Instance", e.Name()), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}
