package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"

	"go.uber.org/zap"
)

var (
	ErrMissingCredentials  = errors.New("missing exchange credentials")
	ErrOrderRejected       = errors.New("order rejected by exchange")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// MarketData 公共行情接口
type MarketData interface {
	// 交易对限制，启动时获取一次并缓存
	GetCurrencyLimits(ctx context.Context) ([]model.CurrencyLimit, error)

	// 订单簿：买盘按价格降序，卖盘按价格升序
	GetPublicOrderbook(ctx context.Context, pair model.Pair) (model.Orderbook, error)

	// since 之后的公共成交
	GetHistoricalTrades(ctx context.Context, pair model.Pair, since time.Time) ([]model.TradeRecord, error)
}

// Account 账户与交易接口
type Account interface {
	GetAccountFees(ctx context.Context, pair model.Pair) (model.TradingFees, error)
	GetAccountBalance(ctx context.Context) (model.BalanceSet, error)
	GetAccountTrades(ctx context.Context, pair model.Pair) ([]model.TradeRecord, error)
	GetOpenOrders(ctx context.Context, pair model.Pair) ([]model.OpenOrder, error)

	// 限价下单。交易所拒绝时返回 ErrOrderRejected
	ExecuteOrder(ctx context.Context, side model.Side, pair model.Pair, amount, price float64) (*model.OrderResult, error)

	// 撤单。订单已不存在时返回 false 和 nil
	CancelOrder(ctx context.Context, pair model.Pair, orderID string) (bool, error)
}

// ExchangeClient 决策引擎所需的全部交易所能力
type ExchangeClient interface {
	MarketData
	Account
	Name() string
}

// NewExchangeClient 按配置为单个实例创建交易所客户端：okx 为实盘 (或模拟盘)，paper 使用 okx 公共行情模拟账户
func NewExchangeClient(cfg service.ExchangeConfig, inst service.InstanceConfig, logger *zap.Logger) (ExchangeClient, error) {
	switch cfg.Name {
	case service.ExchangeOkx:
		c, err := NewOkxClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case service.ExchangePaper:
		return NewPaperExchange(NewOkxPublicClient(cfg, logger), inst.Pair(), inst.Paper, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown exchange %q", service.ErrInvalidConfig, cfg.Name)
	}
}
