package strategy

import (
	"crypto-trading-bot/internal/service"
)

// NewSession 启动时计算初始批次的买卖上限与批次数。
// 买入上限以计价币种表示，卖出上限以交易币种表示；价格缺失时回落到账户总额
func NewSession(stats MarketStats, p Portfolio, cfg service.StrategyConfig, limits Limits) Session {
	lastP, lastS := stats.Purchase.Last, stats.Sale.Last
	exTotal, tgtTotal := p.Exchange.Total(), p.Target.Total()
	capOnInit := cfg.OrderCapPercentOnInit

	var buyCap, sellCap float64
	if lastP > 0 {
		buyCap = (tgtTotal + exTotal*lastP) * capOnInit
	}
	if lastS > 0 {
		sellCap = (exTotal + tgtTotal/lastS) * capOnInit
	}

	// 交易币种限制约束买入上限
	if limits.ExchangeMax > 0 && limits.ExchangeMax*lastP < buyCap {
		buyCap = limits.ExchangeMax * lastP
	}
	if limits.ExchangeMin > 0 && limits.ExchangeMin*lastP >= buyCap {
		buyCap = limits.ExchangeMin * lastP
	}

	// 计价币种限制约束卖出上限
	if lastS > 0 {
		if limits.TargetMax > 0 && limits.TargetMax < sellCap {
			sellCap = limits.TargetMax / lastS
		}
		if limits.TargetMin > 0 && limits.TargetMin >= sellCap*lastS {
			sellCap = limits.TargetMin / lastS
		}
	}

	if buyCap <= 0 && lastP > 0 {
		buyCap = tgtTotal / lastP
	}
	if sellCap <= 0 {
		sellCap = exTotal
	}

	var batches int
	if capOnInit > 0 {
		batches = int(1 / capOnInit)
	}
	return Session{
		InitialBatchCycles:                  batches,
		InitialBuyingCapInTargetCurrency:    buyCap,
		InitialSellingCapInExchangeCurrency: sellCap,
	}
}

// SessionValues 以最近公共卖出价估算的组合价值 (交易币种, 计价币种)
func SessionValues(p Portfolio, lastSale float64) (inExchange, inTarget float64) {
	return p.EstimatedExchangeValue(lastSale), p.EstimatedTargetValue(lastSale)
}
