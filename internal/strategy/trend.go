package strategy

import (
	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/pkg/ta"
)

// 市场状态常量
type MarketState string

const (
	// 趋势模式 (Up or Down)
	StateStrongUpTrend   MarketState = "STRONG_UP_TREND"   // 牛市且可持续
	StateUpTrend         MarketState = "UP_TREND"          // 牛市但不可持续
	StateStrongDownTrend MarketState = "STRONG_DOWN_TREND" // 熊市且可持续

	// 震荡模式
	StateRanging MarketState = "RANGING"

	// 初始状态 (没有任何成交数据)
	StateInitial MarketState = "INITIALIZING"
)

// Trend 趋势分类结果
type Trend struct {
	IsBullMarket              bool
	IsBullMarketContinuable   bool
	IsBearMarketContinuable   bool
	AverageTradingChangeRatio float64
	State                     MarketState
}

// BullContinuing 牛市且可持续
func (t Trend) BullContinuing() bool {
	return t.IsBullMarket && t.IsBullMarketContinuable
}

// BearContinuing 非牛市且下跌可持续
func (t Trend) BearContinuing() bool {
	return !t.IsBullMarket && t.IsBearMarketContinuable
}

// AverageTradingChangeRatio 买卖两侧四个偏离比例的平均值，加权均价为 0 的项按 0 计
func AverageTradingChangeRatio(purchase, sale ta.TradeStats) float64 {
	pBest, pWorst := purchase.UpLevels()
	sBest, sWorst := sale.UpLevels()
	return ta.Mean(pBest, pWorst, sBest, sWorst)
}

// ClassifyTrend 根据公共买卖成交统计与订单簿深度判断趋势
func ClassifyTrend(purchase, sale ta.TradeStats, book model.Orderbook) Trend {
	t := Trend{AverageTradingChangeRatio: AverageTradingChangeRatio(purchase, sale)}
	ratio := t.AverageTradingChangeRatio

	// --- A. 牛市判断 ---
	t.IsBullMarket = purchase.TotalAmount > sale.TotalAmount &&
		purchase.WeightedAverage > sale.WeightedAverage &&
		purchase.WorstThird > sale.BestThird &&
		purchase.WorstThird > sale.WorstThird &&
		(purchase.Last > purchase.WeightedAverage || sale.Last > sale.WeightedAverage)

	// --- B. 牛市延续：买盘深度压过卖盘，且最近成交价未跌破参考价 ---
	t.IsBullMarketContinuable = t.IsBullMarket &&
		bidDepthAtOrAbove(book, sale.WorstThird*(1-ratio)) > askDepthAtOrBelow(book, purchase.WorstThird*(1+ratio)) &&
		(purchase.Last == 0 || purchase.Last >= purchase.WorstThird) &&
		(sale.Last == 0 || sale.Last >= sale.BestThird)

	// --- C. 熊市延续：镜像条件 ---
	t.IsBearMarketContinuable = !t.IsBullMarket &&
		bidDepthAtOrAbove(book, sale.BestThird*(1-ratio)) < askDepthAtOrBelow(book, purchase.BestThird*(1+ratio)) &&
		(purchase.Last == 0 || purchase.Last <= purchase.BestThird) &&
		(sale.Last == 0 || sale.Last <= sale.WorstThird)

	t.State = stateOf(t, purchase.Count+sale.Count)
	return t
}

func stateOf(t Trend, trades int) MarketState {
	switch {
	case trades == 0:
		return StateInitial
	case t.BullContinuing():
		return StateStrongUpTrend
	case t.IsBullMarket:
		return StateUpTrend
	case t.BearContinuing():
		return StateStrongDownTrend
	default:
		return StateRanging
	}
}

// bidDepthAtOrAbove 价格不低于 threshold 的买盘总额
func bidDepthAtOrAbove(book model.Orderbook, threshold float64) float64 {
	return ta.Notional(ta.Filter(book.Bids, func(p float64) bool { return p >= threshold }))
}

// askDepthAtOrBelow 价格不高于 threshold 的卖盘总额
func askDepthAtOrBelow(book model.Orderbook, threshold float64) float64 {
	return ta.Notional(ta.Filter(book.Asks, func(p float64) bool { return p <= threshold }))
}
