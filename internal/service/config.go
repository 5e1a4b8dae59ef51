// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-trading-bot/internal/model"

	"github.com/spf13/viper"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

const (
	ExchangeOkx   = "okx"
	ExchangePaper = "paper"
)

type Config struct {
	Log          LogConfig                 `mapstructure:"Log" yaml:"Log"`
	Exchange     ExchangeConfig            `mapstructure:"Exchange" yaml:"Exchange"`
	Notification NotificationConfig        `mapstructure:"Notification" yaml:"Notification"`
	Server       ServerConfig              `mapstructure:"Server" yaml:"Server"`
	Instances    map[string]InstanceConfig `mapstructure:"Instances" yaml:"Instances"`
}

type LogConfig struct {
	Level string `yaml:"Level"`
}

// ExchangeConfig 定义了交易所的连接信息
type ExchangeConfig struct {
	Name           string        `yaml:"Name"` // okx 或 paper
	APIKey         string        `yaml:"APIKey"`
	SecretKey      string        `yaml:"SecretKey"`
	Passphrase     string        `yaml:"Passphrase"` // Okx 独有
	RESTURL        string        `yaml:"RESTURL"`
	Demo           bool          `yaml:"Demo"` // Okx 模拟盘
	RequestTimeout time.Duration `yaml:"RequestTimeout"`
}

type NotificationConfig struct {
	SlackWebhookURL string `yaml:"SlackWebhookURL"`
	Username        string `yaml:"Username"`
}

type ServerConfig struct {
	Addr string `yaml:"Addr"` // 为空则不启动 HTTP 服务
}

// InstanceConfig 每个交易对一个独立实例
type InstanceConfig struct {
	ExchangeCurrency string         `yaml:"ExchangeCurrency"`
	TargetCurrency   string         `yaml:"TargetCurrency"`
	PricePrecision   int32          `yaml:"PricePrecision"` // 报价取整的小数位，0 表示整数
	Strategy         StrategyConfig `yaml:"Strategy"`
	Paper            PaperConfig    `yaml:"Paper"`
}

func (c InstanceConfig) Pair() model.Pair {
	return model.Pair{ExchangeCurrency: c.ExchangeCurrency, TargetCurrency: c.TargetCurrency}
}

// StrategyConfig 交易策略参数，运行期间不可变
type StrategyConfig struct {
	MinutesOfPublicHistoryForBuy   int `yaml:"MinutesOfPublicHistoryForBuy"`
	MinutesOfPublicHistoryForSell  int `yaml:"MinutesOfPublicHistoryForSell"`
	MinutesOfAccountHistoryForBuy  int `yaml:"MinutesOfAccountHistoryForBuy"`
	MinutesOfAccountHistoryForSell int `yaml:"MinutesOfAccountHistoryForSell"`

	MinimumReservePercentAfterInitTarget   float64 `yaml:"MinimumReservePercentAfterInitTarget"`
	MinimumReservePercentAfterInitExchange float64 `yaml:"MinimumReservePercentAfterInitExchange"`

	OrderCapPercentOnInit    float64 `yaml:"OrderCapPercentOnInit"`
	OrderCapPercentAfterInit float64 `yaml:"OrderCapPercentAfterInit"`

	AutoExecute                   bool    `yaml:"AutoExecute"`
	MarketChangeSensitivityRatio  float64 `yaml:"MarketChangeSensitivityRatio"`
	PriceCorrectionFrequencyHours float64 `yaml:"PriceCorrectionFrequencyHours"`
	StopLine                      float64 `yaml:"StopLine"`
	TradingValueBleedRatio        float64 `yaml:"TradingValueBleedRatio"`

	// false 时卖出报价沿用买入手续费率 (与原有行为一致)
	SellQuoteUsesSellingFee bool `yaml:"SellQuoteUsesSellingFee"`
}

// PaperConfig 模拟盘初始资金与费率
type PaperConfig struct {
	ExchangeBalance   float64 `yaml:"ExchangeBalance"`
	TargetBalance     float64 `yaml:"TargetBalance"`
	BuyingFeePercent  float64 `yaml:"BuyingFeePercent"`
	SellingFeePercent float64 `yaml:"SellingFeePercent"`
}

// DefaultStrategy 默认策略参数
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		MinutesOfPublicHistoryForBuy:           3,
		MinutesOfPublicHistoryForSell:          3,
		MinutesOfAccountHistoryForBuy:          5,
		MinutesOfAccountHistoryForSell:         5,
		MinimumReservePercentAfterInitTarget:   0.2,
		MinimumReservePercentAfterInitExchange: 0.2,
		OrderCapPercentOnInit:                  0.25,
		OrderCapPercentAfterInit:               0.3,
		MarketChangeSensitivityRatio:           0.005,
		PriceCorrectionFrequencyHours:          6,
		TradingValueBleedRatio:                 0.1,
	}
}

// WithDefaults 必须为正的参数在非正数时回落到默认值。
// 允许为 0 的参数 (储备比例、敏感度、价值损耗比例) 不在这里处理，未配置时由 LoadConfig 提供默认值
func (s StrategyConfig) WithDefaults() StrategyConfig {
	d := DefaultStrategy()
	if s.MinutesOfPublicHistoryForBuy <= 0 {
		s.MinutesOfPublicHistoryForBuy = d.MinutesOfPublicHistoryForBuy
	}
	if s.MinutesOfPublicHistoryForSell <= 0 {
		s.MinutesOfPublicHistoryForSell = d.MinutesOfPublicHistoryForSell
	}
	if s.MinutesOfAccountHistoryForBuy <= 0 {
		s.MinutesOfAccountHistoryForBuy = d.MinutesOfAccountHistoryForBuy
	}
	if s.MinutesOfAccountHistoryForSell <= 0 {
		s.MinutesOfAccountHistoryForSell = d.MinutesOfAccountHistoryForSell
	}
	if s.OrderCapPercentOnInit <= 0 {
		s.OrderCapPercentOnInit = d.OrderCapPercentOnInit
	}
	if s.OrderCapPercentAfterInit <= 0 {
		s.OrderCapPercentAfterInit = d.OrderCapPercentAfterInit
	}
	if s.PriceCorrectionFrequencyHours <= 0 {
		s.PriceCorrectionFrequencyHours = d.PriceCorrectionFrequencyHours
	}
	return s
}

// zeroableStrategyDefaults 允许显式配置为 0 的策略参数及其默认值
func zeroableStrategyDefaults() map[string]float64 {
	d := DefaultStrategy()
	return map[string]float64{
		"MinimumReservePercentAfterInitTarget":   d.MinimumReservePercentAfterInitTarget,
		"MinimumReservePercentAfterInitExchange": d.MinimumReservePercentAfterInitExchange,
		"MarketChangeSensitivityRatio":           d.MarketChangeSensitivityRatio,
		"TradingValueBleedRatio":                 d.TradingValueBleedRatio,
	}
}

func minutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

func (s StrategyConfig) PublicWindowForBuy() time.Duration   { return minutes(s.MinutesOfPublicHistoryForBuy) }
func (s StrategyConfig) PublicWindowForSell() time.Duration  { return minutes(s.MinutesOfPublicHistoryForSell) }
func (s StrategyConfig) AccountWindowForBuy() time.Duration  { return minutes(s.MinutesOfAccountHistoryForBuy) }
func (s StrategyConfig) AccountWindowForSell() time.Duration { return minutes(s.MinutesOfAccountHistoryForSell) }

// PublicLookback 公共成交历史需要拉取的最长窗口
func (s StrategyConfig) PublicLookback() time.Duration {
	return max(s.PublicWindowForBuy(), s.PublicWindowForSell())
}

// PriceCorrectionFrequency 挂单被视为过期的时长
func (s StrategyConfig) PriceCorrectionFrequency() time.Duration {
	return time.Duration(s.PriceCorrectionFrequencyHours * float64(time.Hour))
}

// LoadConfig 读取并解析配置文件，环境变量 TRADER_* 可覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("TRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Exchange.Name", ExchangePaper)
	v.SetDefault("Exchange.RESTURL", "https://www.okx.com")
	v.SetDefault("Exchange.RequestTimeout", 15*time.Second)
	v.SetDefault("Exchange.APIKey", "")
	v.SetDefault("Exchange.SecretKey", "")
	v.SetDefault("Exchange.Passphrase", "")
	v.SetDefault("Notification.SlackWebhookURL", "")
	v.SetDefault("Notification.Username", "Trading Bot")
	v.SetDefault("Server.Addr", "")

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file not found in %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// 只为未出现的键设置默认值，显式的 0 保持不变
	for name := range v.GetStringMap("Instances") {
		for key, value := range zeroableStrategyDefaults() {
			v.SetDefault("Instances."+name+".Strategy."+key, value)
		}
	}

	// 将配置绑定到结构体
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 填充各实例未配置的策略参数
func (c *Config) ApplyDefaults() {
	for name, inst := range c.Instances {
		inst.ExchangeCurrency = strings.ToUpper(inst.ExchangeCurrency)
		inst.TargetCurrency = strings.ToUpper(inst.TargetCurrency)
		inst.Strategy = inst.Strategy.WithDefaults()
		c.Instances[name] = inst
	}
	if c.Exchange.RequestTimeout <= 0 {
		c.Exchange.RequestTimeout = 15 * time.Second
	}
}

// Validate 启动前的配置校验，失败即终止，不会进入任何交易循环
func (c *Config) Validate() error {
	var errs []error
	if c.Exchange.Name != ExchangeOkx && c.Exchange.Name != ExchangePaper {
		errs = append(errs, fmt.Errorf("unsupported exchange %q", c.Exchange.Name))
	}
	if c.Exchange.Name == ExchangeOkx {
		if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" || c.Exchange.Passphrase == "" {
			errs = append(errs, errors.New("okx requires APIKey, SecretKey and Passphrase"))
		}
	}
	if len(c.Instances) == 0 {
		errs = append(errs, errors.New("no instances configured"))
	}
	for name, inst := range c.Instances {
		if inst.ExchangeCurrency == "" || inst.TargetCurrency == "" {
			errs = append(errs, fmt.Errorf("instance %s: currencies are required", name))
		} else if inst.ExchangeCurrency == inst.TargetCurrency {
			errs = append(errs, fmt.Errorf("instance %s: exchange and target currency must differ", name))
		}
		if err := inst.Strategy.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", name, err))
		}
		if inst.PricePrecision < 0 || inst.PricePrecision > 8 {
			errs = append(errs, fmt.Errorf("instance %s: PricePrecision must be within [0,8]", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (s StrategyConfig) Validate() error {
	var errs []error
	if s.OrderCapPercentOnInit <= 0 || s.OrderCapPercentOnInit > 1 {
		errs = append(errs, errors.New("OrderCapPercentOnInit must be within (0,1]"))
	}
	if s.OrderCapPercentAfterInit <= 0 || s.OrderCapPercentAfterInit > 1 {
		errs = append(errs, errors.New("OrderCapPercentAfterInit must be within (0,1]"))
	}
	if s.MinimumReservePercentAfterInitTarget < 0 || s.MinimumReservePercentAfterInitTarget > 1 {
		errs = append(errs, errors.New("MinimumReservePercentAfterInitTarget must be within [0,1]"))
	}
	if s.MinimumReservePercentAfterInitExchange < 0 || s.MinimumReservePercentAfterInitExchange > 1 {
		errs = append(errs, errors.New("MinimumReservePercentAfterInitExchange must be within [0,1]"))
	}
	if s.MarketChangeSensitivityRatio < 0 {
		errs = append(errs, errors.New("MarketChangeSensitivityRatio must not be negative"))
	}
	if s.TradingValueBleedRatio < 0 {
		errs = append(errs, errors.New("TradingValueBleedRatio must not be negative"))
	}
	if s.StopLine < 0 {
		errs = append(errs, errors.New("StopLine must not be negative"))
	}
	return errors.Join(errs...)
}

// Redacted 返回隐藏密钥后的副本，用于打印
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "******"
	}
	c.Exchange.APIKey = mask(c.Exchange.APIKey)
	c.Exchange.SecretKey = mask(c.Exchange.SecretKey)
	c.Exchange.Passphrase = mask(c.Exchange.Passphrase)
	c.Notification.SlackWebhookURL = mask(c.Notification.SlackWebhookURL)
	return c
}
