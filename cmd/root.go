package main

import (
	"fmt"
	"sort"

	"crypto-trading-bot/internal/service"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trading-bot",
	Short: "Spot trading bot driven by recent trade history and orderbook depth",
	Long: `Trading bot that runs one isolated decision loop per configured pair.

Each cycle fetches public and account trade history, the orderbook, fees,
open orders and balances, then proposes buy/sell quotes and either executes
them, holds, or skips.

Commands:
  run     - start the decision loops (and the HTTP surface when configured)
  quote   - compute the current quotes once without placing orders
  config  - print the effective configuration with secrets redacted`,
	SilenceUsage: true,
}

var configDir string

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "config", "directory containing config.yaml")
}

// loadConfig 读取配置并初始化全局日志
func loadConfig() (*service.Config, error) {
	cfg, err := service.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}
	if err := service.InitLogger(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectInstances 按名称排序；names 非空时只保留指定的实例
func selectInstances(cfg *service.Config, names []string) ([]string, error) {
	if len(names) == 0 {
		for name := range cfg.Instances {
			names = append(names, name)
		}
	} else {
		for _, name := range names {
			if _, ok := cfg.Instances[name]; !ok {
				return nil, fmt.Errorf("%w: unknown instance %q", service.ErrInvalidConfig, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
