package strategy

import (
	"math"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
	"crypto-trading-bot/pkg/ta"
)

// Prices 报价计算的中间结果与最终报价
type Prices struct {
	// 与公共价格核对后的账户参考价
	ReasonablePurchasePrice         float64
	ReasonableSellPrice             float64
	ReasonableWeightedPurchasePrice float64
	ReasonableWeightedSellPrice     float64

	// 订单簿隐含价格
	OrderbookSellPrice     float64
	OrderbookPurchasePrice float64

	ProposedSellingPrice  float64
	ProposedPurchasePrice float64

	SellingPriceInPrinciple  float64
	PurchasePriceInPrinciple float64
}

// PriceInputs 报价所需的全部输入
type PriceInputs struct {
	Stats          MarketStats
	Trend          Trend
	Book           model.Orderbook
	Portfolio      Portfolio
	Fees           model.TradingFees
	Sensitivity    float64
	PricePrecision int32

	SellQuoteUsesSellingFee bool
}

// ProposePrices 计算买卖参考价以及扣费后的可执行报价
func ProposePrices(in PriceInputs) Prices {
	var p Prices
	stats := in.Stats

	// 1. 账户参考价：偏离公共价格超过敏感度时改用公共价格
	p.ReasonablePurchasePrice = reconcile(stats.AccountPurchase.Last, stats.Purchase.Last, in.Sensitivity)
	p.ReasonableSellPrice = reconcile(stats.AccountSale.Last, stats.Sale.Last, in.Sensitivity)
	p.ReasonableWeightedPurchasePrice = reconcile(stats.AccountPurchase.WeightedAverage, stats.Purchase.WeightedAverage, in.Sensitivity)
	p.ReasonableWeightedSellPrice = reconcile(stats.AccountSale.WeightedAverage, stats.Sale.WeightedAverage, in.Sensitivity)

	// 2. 订单簿隐含价格
	p.OrderbookSellPrice = orderbookSellPrice(in.Book, p.ReasonableSellPrice)
	p.OrderbookPurchasePrice = orderbookPurchasePrice(in.Book, p.ReasonablePurchasePrice)

	// 3-5. 混合、盈利扫描、趋势调整
	p.ProposedSellingPrice = proposeSellingPrice(in, p)
	p.ProposedPurchasePrice = proposePurchasePrice(in, p)

	// 6-7. 扣费后的报价
	p.SellingPriceInPrinciple = sellingPriceInPrinciple(in, p.ProposedSellingPrice)
	p.PurchasePriceInPrinciple = purchasePriceInPrinciple(in, p.ProposedPurchasePrice)
	return p
}

// reconcile 账户价格与公共价格相对较小一方的偏离超过 sensitivity 时使用公共价格
func reconcile(account, public, sensitivity float64) float64 {
	if account <= 0 {
		return public
	}
	if public <= 0 {
		return account
	}
	if d, ok := ta.Divergence(account, public); ok && d > sensitivity {
		return public
	}
	return account
}

// orderbookSellPrice 不高于参考价的卖盘加权价，没有则取最低卖价，订单簿为空时回落到参考价
func orderbookSellPrice(book model.Orderbook, reference float64) float64 {
	levels := ta.Filter(book.Asks, func(price float64) bool { return price <= reference })
	if vw := ta.VolumeWeightedPrice(levels); vw > 0 {
		return vw
	}
	if best, ok := book.BestAsk(); ok {
		return best.Price
	}
	return reference
}

// orderbookPurchasePrice 不低于参考价的买盘加权价，没有则取最高买价
func orderbookPurchasePrice(book model.Orderbook, reference float64) float64 {
	levels := ta.Filter(book.Bids, func(price float64) bool { return price >= reference })
	if vw := ta.VolumeWeightedPrice(levels); vw > 0 {
		return vw
	}
	if best, ok := book.BestBid(); ok {
		return best.Price
	}
	return reference
}

func proposeSellingPrice(in PriceInputs, p Prices) float64 {
	sale := in.Stats.Sale
	ob := p.OrderbookSellPrice

	var blend float64
	if in.Trend.IsBullMarket {
		blend = math.Max(p.ReasonableWeightedSellPrice, sale.WeightedAverage)
	} else {
		blend = ta.Mean(p.ReasonableWeightedSellPrice, sale.WeightedAverage)
	}
	tranche := sale.WorstThird
	if in.Trend.IsBullMarket {
		tranche = sale.BestThird
	}

	proposed := ta.Mean(
		ta.Mean(sale.WeightedAverage, sale.Last, sale.BestThird, ob),
		max(p.ReasonablePurchasePrice, p.ReasonableSellPrice, ob),
		blend,
		tranche,
		ob,
	)

	// 盈利扫描：从最低卖价向上，找到第一档扣费后能提高组合估值的价格
	current := in.Portfolio.EstimatedTargetValue(sale.Last)
	pctFee, amtFee := in.Fees.SellingFeeInPercentage, in.Fees.SellingFeeInAmount
	for _, ask := range in.Book.Asks {
		if ask.Price > proposed {
			break
		}
		net := ask.Price*(1-pctFee) - amtFee
		if in.Portfolio.EstimatedTargetValue(net) > current {
			return ask.Price
		}
	}

	ratio, sens := in.Trend.AverageTradingChangeRatio, in.Sensitivity
	var adj float64
	switch {
	case in.Trend.BullContinuing():
		adj = ratio + sens
	case in.Trend.IsBullMarket:
		adj = math.Abs(ratio - sens)
	case in.Trend.BearContinuing():
		adj = 0
	default:
		adj = math.Abs(ratio - sens)
	}
	return math.Max(proposed*(1+adj), 0)
}

func proposePurchasePrice(in PriceInputs, p Prices) float64 {
	purchase := in.Stats.Purchase
	ob := p.OrderbookPurchasePrice

	var blend float64
	if in.Trend.IsBullMarket {
		blend = math.Max(p.ReasonableWeightedPurchasePrice, purchase.WeightedAverage)
	} else {
		blend = ta.Mean(p.ReasonableWeightedPurchasePrice, purchase.WeightedAverage)
	}
	tranche := purchase.WorstThird
	if in.Trend.IsBullMarket {
		tranche = purchase.BestThird
	}

	proposed := ta.Mean(
		ta.Mean(purchase.WeightedAverage, purchase.Last, purchase.BestThird, ob),
		minPositive(p.ReasonablePurchasePrice, p.ReasonableSellPrice, ob),
		blend,
		tranche,
		ob,
	)

	// 盈利扫描：从最高买价向下
	current := in.Portfolio.EstimatedTargetValue(purchase.Last)
	pctFee, amtFee := in.Fees.BuyingFeeInPercentage, in.Fees.BuyingFeeInAmount
	for _, bid := range in.Book.Bids {
		if bid.Price < proposed {
			break
		}
		net := bid.Price*(1-pctFee) - amtFee
		if in.Portfolio.EstimatedTargetValue(net) > current {
			return bid.Price
		}
	}

	ratio, sens := in.Trend.AverageTradingChangeRatio, in.Sensitivity
	var adj float64
	switch {
	case in.Trend.BullContinuing():
		adj = math.Abs(ratio - sens)
	case in.Trend.IsBullMarket:
		adj = 0
	case in.Trend.BearContinuing():
		adj = -(ratio + sens)
	default:
		adj = -math.Abs(ratio - sens)
	}
	return math.Max(proposed*(1+adj), 0)
}

// sellingPriceInPrinciple 默认沿用买入手续费率
func sellingPriceInPrinciple(in PriceInputs, proposed float64) float64 {
	pctFee, amtFee := in.Fees.BuyingFeeInPercentage, in.Fees.BuyingFeeInAmount
	if in.SellQuoteUsesSellingFee {
		pctFee, amtFee = in.Fees.SellingFeeInPercentage, in.Fees.SellingFeeInAmount
	}
	var bullAdj float64
	if in.Trend.BullContinuing() {
		bullAdj = in.Sensitivity
	}

	price := proposed
	if denom := 1 - pctFee - bullAdj; denom > 0 {
		price = proposed/denom + amtFee
	}
	return service.CeilTo(math.Max(price, 0), in.PricePrecision)
}

func purchasePriceInPrinciple(in PriceInputs, proposed float64) float64 {
	var bearAdj float64
	if in.Trend.BearContinuing() {
		bearAdj = in.Sensitivity
	}
	price := proposed*(1-in.Fees.BuyingFeeInPercentage-bearAdj) - in.Fees.BuyingFeeInAmount
	return service.FloorTo(math.Max(price, 0), in.PricePrecision)
}

// minPositive 正数中的最小值，全部非正时返回 0
func minPositive(values ...float64) float64 {
	var out float64
	for _, v := range values {
		if v > 0 && (out == 0 || v < out) {
			out = v
		}
	}
	return out
}
