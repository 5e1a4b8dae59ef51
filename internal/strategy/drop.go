package strategy

import (
	"math"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
	"crypto-trading-bot/pkg/ta"
)

const (
	ReasonTrendHold = "Trend Hold"
	ReasonIdleOrder = "Idle Order"

	trendHoldDepth = 10 // 趋势持有判断只看前 10 档
)

// TrendHoldCancellations 趋势可持续时，撤销已被前 10 档价格覆盖的挂单
func TrendHoldCancellations(trend Trend, book model.Orderbook, orders []model.OpenOrder) []Cancellation {
	if !trend.BullContinuing() && !trend.BearContinuing() {
		return nil
	}
	bids, asks := book.TopBids(trendHoldDepth), book.TopAsks(trendHoldDepth)

	var out []Cancellation
	for _, o := range orders {
		switch o.Side {
		case model.SideBuy:
			if anyLevel(bids, func(p float64) bool { return p >= o.Price }) {
				out = append(out, Cancellation{Order: o, Reason: ReasonTrendHold})
			}
		case model.SideSell:
			if anyLevel(asks, func(p float64) bool { return p <= o.Price }) {
				out = append(out, Cancellation{Order: o, Reason: ReasonTrendHold})
			}
		}
	}
	return out
}

func anyLevel(levels []model.PriceLevel, match func(price float64) bool) bool {
	for _, l := range levels {
		if match(l.Price) {
			return true
		}
	}
	return false
}

// DropInputs 闲置挂单规则的输入
type DropInputs struct {
	Stats      MarketStats
	Trend      Trend
	Book       model.Orderbook
	OpenOrders []model.OpenOrder
	Values     PortfolioValues
	Strategy   service.StrategyConfig
	Session    Session
	Now        time.Time
}

// IdleOrderDrops 当前窗口内没有账户成交、深度不支持、且价格远离所有参考价的最远挂单会被撤销，
// 前提是撤销后组合价值仍高于止损线
func IdleOrderDrops(in DropInputs) []Cancellation {
	var out []Cancellation
	if c, ok := idleBuyDrop(in); ok {
		out = append(out, c)
	}
	if c, ok := idleSellDrop(in); ok {
		out = append(out, c)
	}
	return out
}

func idleBuyDrop(in DropInputs) (Cancellation, bool) {
	order, ok := lowestPriced(in.OpenOrders, model.SideBuy)
	if !ok || !idleBookReady(in.Book) || in.Stats.AccountPurchase.Last > 0 {
		return Cancellation{}, false
	}
	lastSale := in.Stats.Sale.Last
	if in.Book.BuyTotal > in.Book.SellTotal*lastSale {
		return Cancellation{}, false
	}
	window := max(in.Strategy.AccountWindowForBuy(), in.Strategy.PublicWindowForBuy())
	if !idleLongEnough(in, in.Session.LastBuyExecution, window, order) {
		return Cancellation{}, false
	}

	p := in.Stats.Purchase
	if !divergesFromAll(order.Price, in.Strategy.MarketChangeSensitivityRatio, p.WeightedAverage, p.BestThird, p.WorstThird, p.Last) {
		return Cancellation{}, false
	}
	// 价格不低于挂单的买盘深度加权均价
	demand := ta.VolumeWeightedPrice(ta.Filter(in.Book.Bids, func(price float64) bool { return price >= order.Price }))
	if demand <= 0 || !divergesFromAll(order.Price, in.Strategy.MarketChangeSensitivityRatio, demand) {
		return Cancellation{}, false
	}

	after := in.Values.OriginalBuy - order.Price*order.Amount + lastSale*order.Amount
	if after <= in.Strategy.StopLine {
		return Cancellation{}, false
	}
	return Cancellation{Order: order, Reason: ReasonIdleOrder}, true
}

func idleSellDrop(in DropInputs) (Cancellation, bool) {
	order, ok := highestPriced(in.OpenOrders, model.SideSell)
	if !ok || !idleBookReady(in.Book) || in.Stats.AccountSale.Last > 0 {
		return Cancellation{}, false
	}
	lastPurchase := in.Stats.Purchase.Last
	if in.Book.BuyTotal < in.Book.SellTotal*lastPurchase*(1-in.Trend.AverageTradingChangeRatio) {
		return Cancellation{}, false
	}
	window := max(in.Strategy.AccountWindowForSell(), in.Strategy.PublicWindowForSell())
	if !idleLongEnough(in, in.Session.LastSellExecution, window, order) {
		return Cancellation{}, false
	}

	s := in.Stats.Sale
	if !divergesFromAll(order.Price, in.Strategy.MarketChangeSensitivityRatio, s.WeightedAverage, s.BestThird, s.WorstThird, s.Last) {
		return Cancellation{}, false
	}
	// 价格不高于挂单的卖盘深度加权均价
	supply := ta.VolumeWeightedPrice(ta.Filter(in.Book.Asks, func(price float64) bool { return price <= order.Price }))
	if supply <= 0 || !divergesFromAll(order.Price, in.Strategy.MarketChangeSensitivityRatio, supply) {
		return Cancellation{}, false
	}

	after := in.Values.OriginalSell - order.Price*order.Amount + lastPurchase*order.Amount
	if after <= in.Strategy.StopLine {
		return Cancellation{}, false
	}
	return Cancellation{Order: order, Reason: ReasonIdleOrder}, true
}

func idleBookReady(book model.Orderbook) bool {
	return book.BuyTotal > 0 && book.SellTotal > 0
}

// idleLongEnough 距上次执行已超过按波动放大的窗口，且挂单已超过价格修正周期
func idleLongEnough(in DropInputs, lastExecution time.Time, window time.Duration, order model.OpenOrder) bool {
	scale := math.Max(1+in.Trend.AverageTradingChangeRatio, 1+in.Strategy.MarketChangeSensitivityRatio)
	wait := time.Duration(float64(window) * scale)
	if !lastExecution.Add(wait).Before(in.Now) {
		return false
	}
	return order.Age(in.Now) >= in.Strategy.PriceCorrectionFrequency()
}

// divergesFromAll 价格相对每个参考价的偏离都超过 sensitivity；任一参考价无效则不成立
func divergesFromAll(price, sensitivity float64, refs ...float64) bool {
	for _, ref := range refs {
		d, ok := ta.Divergence(price, ref)
		if !ok || d <= sensitivity {
			return false
		}
	}
	return true
}
