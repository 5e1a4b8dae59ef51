package engine

import (
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/strategy"
)

// EngineState 只由决策循环读写，在周期之间更新
type EngineState struct {
	Initialized bool

	CurrencyLimits []model.CurrencyLimit
	Limits         strategy.Limits

	Fees          model.TradingFees
	FeesFetchedAt time.Time

	Session strategy.Session

	LastBuyCancellation  time.Time
	LastSellCancellation time.Time

	// 交易会话起点
	StartBalanceInExchangeCurrency float64
	StartBalanceInTargetCurrency   float64
	StartValueInExchangeCurrency   float64
	StartValueInTargetCurrency     float64
	StartedAt                      time.Time
}

// CycleOutcome 一个决策周期的完整记录，用于日志、指标与实时推送
type CycleOutcome struct {
	ID        string
	Instance  string
	Pair      model.Pair
	StartedAt time.Time

	State     strategy.MarketState
	Trend     strategy.Trend
	BuyQuote  strategy.Quote
	SellQuote strategy.Quote

	BuyDecision  strategy.Decision
	SellDecision strategy.Decision

	Cancellations []strategy.Cancellation
	Orders        []model.OrderResult

	SessionStartValue float64 // 计价币种
	CurrentValue      float64
}

// QuoteView 最近一次计算的报价，供 /quotes 查询
type QuoteView struct {
	Instance  string
	Pair      string
	State     strategy.MarketState
	Buy       strategy.Quote
	Sell      strategy.Quote
	BuyLabel  string
	SellLabel string
	UpdatedAt time.Time
}

func (o CycleOutcome) quoteView() QuoteView {
	return QuoteView{
		Instance:  o.Instance,
		Pair:      o.Pair.String(),
		State:     o.State,
		Buy:       o.BuyQuote,
		Sell:      o.SellQuote,
		BuyLabel:  o.BuyDecision.Label(),
		SellLabel: o.SellDecision.Label(),
		UpdatedAt: o.StartedAt,
	}
}
