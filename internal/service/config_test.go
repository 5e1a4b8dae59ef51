package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
Log:
  Level: debug
Exchange:
  Name: paper
Server:
  Addr: ":8080"
Instances:
  btc:
    ExchangeCurrency: btc
    TargetCurrency: usdt
    PricePrecision: 2
    Strategy:
      AutoExecute: true
      StopLine: 900
      OrderCapPercentOnInit: 0.5
    Paper:
      ExchangeBalance: 1
      TargetBalance: 1000
      BuyingFeePercent: 0.1
      SellingFeePercent: 0.1
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ExchangePaper, cfg.Exchange.Name)
	assert.Equal(t, "https://www.okx.com", cfg.Exchange.RESTURL)
	assert.Equal(t, 15*time.Second, cfg.Exchange.RequestTimeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Trading Bot", cfg.Notification.Username)

	require.Contains(t, cfg.Instances, "btc")
	inst := cfg.Instances["btc"]
	assert.Equal(t, "BTC", inst.ExchangeCurrency)
	assert.Equal(t, "USDT", inst.TargetCurrency)
	assert.Equal(t, "BTC/USDT", inst.Pair().String())
	assert.Equal(t, int32(2), inst.PricePrecision)
	assert.Equal(t, 1000.0, inst.Paper.TargetBalance)

	// 显式配置保留，其余回落到默认值
	assert.True(t, inst.Strategy.AutoExecute)
	assert.Equal(t, 900.0, inst.Strategy.StopLine)
	assert.Equal(t, 0.5, inst.Strategy.OrderCapPercentOnInit)
	assert.Equal(t, 0.3, inst.Strategy.OrderCapPercentAfterInit)
	assert.Equal(t, 3, inst.Strategy.MinutesOfPublicHistoryForBuy)
	assert.Equal(t, 0.2, inst.Strategy.MinimumReservePercentAfterInitExchange)
	assert.Equal(t, 0.005, inst.Strategy.MarketChangeSensitivityRatio)
	assert.Equal(t, 6*time.Hour, inst.Strategy.PriceCorrectionFrequency())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TRADER_EXCHANGE_NAME", "okx")
	t.Setenv("TRADER_EXCHANGE_APIKEY", "key")
	t.Setenv("TRADER_EXCHANGE_SECRETKEY", "secret")
	t.Setenv("TRADER_EXCHANGE_PASSPHRASE", "pass")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, ExchangeOkx, cfg.Exchange.Name)
	assert.Equal(t, "key", cfg.Exchange.APIKey)
	assert.Equal(t, "pass", cfg.Exchange.Passphrase)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "config file not found")

	_, err = LoadConfig(writeConfig(t, "Exchange:\n  Name: okx\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "okx requires APIKey")
	assert.ErrorContains(t, err, "no instances configured")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Exchange: ExchangeConfig{Name: ExchangePaper},
			Instances: map[string]InstanceConfig{
				"btc": {ExchangeCurrency: "BTC", TargetCurrency: "USDT", Strategy: DefaultStrategy()},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown exchange", func(c *Config) { c.Exchange.Name = "binance" }, "unsupported exchange"},
		{"same currency", func(c *Config) {
			c.Instances["btc"] = InstanceConfig{ExchangeCurrency: "BTC", TargetCurrency: "BTC", Strategy: DefaultStrategy()}
		}, "must differ"},
		{"missing currency", func(c *Config) {
			c.Instances["btc"] = InstanceConfig{ExchangeCurrency: "BTC", Strategy: DefaultStrategy()}
		}, "currencies are required"},
		{"cap out of range", func(c *Config) {
			inst := c.Instances["btc"]
			inst.Strategy.OrderCapPercentAfterInit = 1.5
			c.Instances["btc"] = inst
		}, "OrderCapPercentAfterInit"},
		{"negative stop line", func(c *Config) {
			inst := c.Instances["btc"]
			inst.Strategy.StopLine = -1
			c.Instances["btc"] = inst
		}, "StopLine"},
		{"price precision", func(c *Config) {
			inst := c.Instances["btc"]
			inst.PricePrecision = 9
			c.Instances["btc"] = inst
		}, "PricePrecision"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	s := StrategyConfig{OrderCapPercentOnInit: -1, MinutesOfAccountHistoryForSell: 0}.WithDefaults()
	assert.Equal(t, 0.25, s.OrderCapPercentOnInit)
	assert.Equal(t, 0.3, s.OrderCapPercentAfterInit)
	assert.Equal(t, 5*time.Minute, s.AccountWindowForSell())
	assert.Equal(t, 3*time.Minute, s.PublicLookback())

	// 允许为 0 的参数保持原值
	assert.Equal(t, 0.0, s.MinimumReservePercentAfterInitTarget)
	assert.Equal(t, 0.0, s.MarketChangeSensitivityRatio)
	assert.Equal(t, 0.0, s.TradingValueBleedRatio)
}

func TestLoadConfig_ExplicitZeros(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
Exchange:
  Name: paper
Instances:
  btc:
    ExchangeCurrency: BTC
    TargetCurrency: USDT
    Strategy:
      MinimumReservePercentAfterInitTarget: 0
      MinimumReservePercentAfterInitExchange: 0
      MarketChangeSensitivityRatio: 0
      TradingValueBleedRatio: 0
  eth:
    ExchangeCurrency: ETH
    TargetCurrency: USDT
`))
	require.NoError(t, err)

	btc := cfg.Instances["btc"].Strategy
	assert.Equal(t, 0.0, btc.MinimumReservePercentAfterInitTarget)
	assert.Equal(t, 0.0, btc.MinimumReservePercentAfterInitExchange)
	assert.Equal(t, 0.0, btc.MarketChangeSensitivityRatio)
	assert.Equal(t, 0.0, btc.TradingValueBleedRatio)

	// 未配置的实例使用默认值
	eth := cfg.Instances["eth"].Strategy
	assert.Equal(t, 0.2, eth.MinimumReservePercentAfterInitTarget)
	assert.Equal(t, 0.2, eth.MinimumReservePercentAfterInitExchange)
	assert.Equal(t, 0.005, eth.MarketChangeSensitivityRatio)
	assert.Equal(t, 0.1, eth.TradingValueBleedRatio)
	assert.Equal(t, 0.25, eth.OrderCapPercentOnInit)
}

func TestRedacted(t *testing.T) {
	c := Config{
		Exchange:     ExchangeConfig{APIKey: "k", SecretKey: "s"},
		Notification: NotificationConfig{SlackWebhookURL: "https://hooks.slack.com/x"},
	}
	r := c.Redacted()
	assert.Equal(t, "******", r.Exchange.APIKey)
	assert.Equal(t, "******", r.Exchange.SecretKey)
	assert.Equal(t, "", r.Exchange.Passphrase)
	assert.Equal(t, "******", r.Notification.SlackWebhookURL)
	assert.Equal(t, "k", c.Exchange.APIKey)
}
