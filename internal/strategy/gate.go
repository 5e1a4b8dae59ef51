package strategy

import (
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

// GateInputs 决策门的全部输入。决策门是纯函数，不访问交易所
type GateInputs struct {
	Buy  Quote
	Sell Quote

	Trend      Trend
	Portfolio  Portfolio
	OpenOrders []model.OpenOrder

	LastPurchase float64 // 最近公共买入成交价
	LastSale     float64 // 最近公共卖出成交价

	Strategy service.StrategyConfig
	Now      time.Time
}

// PortfolioValues 假设订单成交后的组合价值，以及按最近公共成交价估算的当前价值
type PortfolioValues struct {
	FinalBuy     float64
	OriginalBuy  float64
	FinalSell    float64
	OriginalSell float64
}

// ComputePortfolioValues 计算买卖两侧的组合价值，保留两位小数
func ComputePortfolioValues(in GateInputs) PortfolioValues {
	ex, tgt := in.Portfolio.Exchange, in.Portfolio.Target
	buyP, sellP := in.Buy.Price, in.Sell.Price

	var openBuyAmount, openSellNotional, finalSellOrders float64
	for _, o := range in.OpenOrders {
		if o.Side == model.SideBuy {
			openBuyAmount += o.Amount
			finalSellOrders += o.Amount * sellP
		} else {
			openSellNotional += o.Amount * o.Price
			finalSellOrders += o.Amount * o.Price
		}
	}

	return PortfolioValues{
		FinalBuy: service.Round((ex.Available+in.Buy.Amount)*buyP+
			openBuyAmount*in.LastSale+openSellNotional+tgt.Available, 2),
		OriginalBuy:  service.Round(in.Portfolio.EstimatedTargetValue(in.LastSale), 2),
		FinalSell:    service.Round(ex.Available*sellP+tgt.Available+finalSellOrders, 2),
		OriginalSell: service.Round(in.Portfolio.EstimatedTargetValue(in.LastPurchase), 2),
	}
}

// DecideBuy 买入方向决策
func DecideBuy(in GateInputs) Decision {
	v := ComputePortfolioValues(in)
	q := in.Buy
	d := Decision{
		Side:                   model.SideBuy,
		Price:                  q.Price,
		Amount:                 q.Amount,
		FinalPortfolioValue:    v.FinalBuy,
		OriginalPortfolioValue: v.OriginalBuy,
	}
	sens := in.Strategy.MarketChangeSensitivityRatio

	// ----------------------------------------------------------------------
	// 1. 【数据与资金检查】
	// ----------------------------------------------------------------------
	if in.LastPurchase <= 0 || in.LastSale <= 0 || q.Price <= 0 || (v.FinalBuy <= 0 && v.FinalSell <= 0) {
		return d.skip(ReasonInsufficientData)
	}
	if !q.Available || !q.ReserveMatched {
		return d.skip(fundReason(q))
	}
	if d.Depreciated() {
		return d.skip(ReasonDepreciation)
	}

	// ----------------------------------------------------------------------
	// 2. 【持有判断】趋势可持续，或最高价买单已高出市场敏感度以上
	// ----------------------------------------------------------------------
	next, ok := highestPriced(in.OpenOrders, model.SideBuy)
	if in.Trend.BullContinuing() || in.Trend.BearContinuing() ||
		ok && next.Price > in.LastPurchase*(1+sens) {
		d.Action = ActionHold
		d.Reason = ReasonBetterHold
		d.Cancellations = selectOrders(in.OpenOrders, model.SideBuy, ReasonBetterHold, func(o model.OpenOrder) bool {
			return o.Price >= q.Price && aged(o, in)
		})
		return d
	}

	// ----------------------------------------------------------------------
	// 3. 【止损线与交叉检查】
	// ----------------------------------------------------------------------
	if v.FinalBuy < in.Strategy.StopLine {
		return d.skip(ReasonStopLine)
	}
	if q.Price > in.Sell.Price {
		return d.skip(ReasonBuyingHigherThanSell)
	}
	if in.Trend.BearContinuing() {
		return d.skip(ReasonAgainstTrend)
	}

	d.Action = ActionExecute
	d.Reason = ReasonFavorable
	// 成交后撤销会立即与新买单交叉的卖单，以及远低于新价格的旧买单
	d.Cancellations = append(
		selectOrders(in.OpenOrders, model.SideSell, "Crossed By New Buy", func(o model.OpenOrder) bool {
			return o.Price <= q.Price && aged(o, in)
		}),
		selectOrders(in.OpenOrders, model.SideBuy, "Outpriced By New Buy", func(o model.OpenOrder) bool {
			return o.Price < q.Price*(1-sens) && aged(o, in)
		})...,
	)
	return d
}

// DecideSell 卖出方向决策，与买入对称
func DecideSell(in GateInputs) Decision {
	v := ComputePortfolioValues(in)
	q := in.Sell
	d := Decision{
		Side:                   model.SideSell,
		Price:                  q.Price,
		Amount:                 q.Amount,
		FinalPortfolioValue:    v.FinalSell,
		OriginalPortfolioValue: v.OriginalSell,
	}
	sens := in.Strategy.MarketChangeSensitivityRatio

	if in.LastPurchase <= 0 || in.LastSale <= 0 || q.Price <= 0 || (v.FinalBuy <= 0 && v.FinalSell <= 0) {
		return d.skip(ReasonInsufficientData)
	}
	if !q.Available || !q.ReserveMatched {
		return d.skip(fundReason(q))
	}
	if d.Depreciated() {
		return d.skip(ReasonDepreciation)
	}

	next, ok := lowestPriced(in.OpenOrders, model.SideSell)
	if in.Trend.BullContinuing() || in.Trend.BearContinuing() ||
		ok && next.Price < in.LastSale*(1-sens) {
		d.Action = ActionHold
		d.Reason = ReasonBetterHold
		d.Cancellations = selectOrders(in.OpenOrders, model.SideSell, ReasonBetterHold, func(o model.OpenOrder) bool {
			return o.Price <= q.Price && aged(o, in)
		})
		return d
	}

	if v.FinalSell < in.Strategy.StopLine {
		return d.skip(ReasonStopLine)
	}
	if q.Price < in.Buy.Price {
		return d.skip(ReasonSellingLowerThanBuy)
	}
	if in.Trend.BullContinuing() {
		return d.skip(ReasonAgainstTrend)
	}

	d.Action = ActionExecute
	d.Reason = ReasonFavorable
	d.Cancellations = append(
		selectOrders(in.OpenOrders, model.SideBuy, "Crossed By New Sell", func(o model.OpenOrder) bool {
			return o.Price >= q.Price && aged(o, in)
		}),
		selectOrders(in.OpenOrders, model.SideSell, "Outpriced By New Sell", func(o model.OpenOrder) bool {
			return o.Price > q.Price*(1+sens) && aged(o, in)
		})...,
	)
	return d
}

func (d Decision) skip(reason string) Decision {
	d.Action = ActionSkip
	d.Reason = reason
	d.Cancellations = nil
	return d
}

// fundReason 数量等于储备上限 (包括上限为 0) 时归因于储备，否则归因于资金
func fundReason(q Quote) string {
	if !q.ReserveMatched || q.Amount == q.MaxByReserve {
		return ReasonLimitedReserve
	}
	return ReasonLowFund
}

// aged 挂单已超过价格修正周期
func aged(o model.OpenOrder, in GateInputs) bool {
	return o.Age(in.Now) >= in.Strategy.PriceCorrectionFrequency()
}

func selectOrders(orders []model.OpenOrder, side model.Side, reason string, keep func(model.OpenOrder) bool) []Cancellation {
	var out []Cancellation
	for _, o := range orders {
		if o.Side == side && keep(o) {
			out = append(out, Cancellation{Order: o, Reason: reason})
		}
	}
	return out
}

func highestPriced(orders []model.OpenOrder, side model.Side) (model.OpenOrder, bool) {
	var best model.OpenOrder
	found := false
	for _, o := range orders {
		if o.Side != side || o.Price <= 0 {
			continue
		}
		if !found || o.Price > best.Price {
			best, found = o, true
		}
	}
	return best, found
}

func lowestPriced(orders []model.OpenOrder, side model.Side) (model.OpenOrder, bool) {
	var best model.OpenOrder
	found := false
	for _, o := range orders {
		if o.Side != side || o.Price <= 0 {
			continue
		}
		if !found || o.Price < best.Price {
			best, found = o, true
		}
	}
	return best, found
}
