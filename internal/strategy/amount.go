package strategy

import (
	"math"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

// SizingInputs 数量计算所需的输入
type SizingInputs struct {
	PurchasePrice float64 // 买入报价 (PurchasePriceInPrinciple)
	SellingPrice  float64 // 卖出报价 (SellingPriceInPrinciple)
	LastPurchase  float64 // 最近公共买入成交价
	LastSale      float64 // 最近公共卖出成交价

	Trend     Trend
	Portfolio Portfolio
	Fees      model.TradingFees
	Strategy  service.StrategyConfig
	Limits    Limits
	Session   Session
}

// SizeAmounts 计算买卖数量。纯函数，相同输入得到相同输出
func SizeAmounts(in SizingInputs) (buy, sell Quote) {
	ex, tgt := in.Portfolio.Exchange, in.Portfolio.Target
	fees := in.Fees
	buyP, sellP := in.PurchasePrice, in.SellingPrice

	var buyAmt, sellAmt float64

	// 1. 上限选择：初始批次按组合价值的固定比例，之后按实时估值
	if in.Session.InitialBatchCycles > 0 {
		exBase := ex.Available
		if in.LastPurchase > 0 {
			exBase += tgt.InOrders / in.LastPurchase
		}
		tgtBase := tgt.Available + ex.InOrders*in.LastSale
		capOnInit := in.Strategy.OrderCapPercentOnInit

		buyAmt = capOnInit*ValueInExchangeCurrency(exBase, tgtBase, buyP)*(1-fees.BuyingFeeInPercentage) - fees.BuyingFeeInAmount
		var buyCap float64
		if in.LastPurchase > 0 {
			buyCap = in.Session.InitialBuyingCapInTargetCurrency / in.LastPurchase
		}
		buyAmt = math.Min(buyAmt, buyCap)

		sellAmt = capOnInit*ValueInExchangeCurrency(exBase, tgtBase, sellP)*(1-fees.SellingFeeInPercentage) - fees.SellingFeeInAmount
		sellAmt = math.Min(sellAmt, in.Session.InitialSellingCapInExchangeCurrency)
	} else {
		capAfter := in.Strategy.OrderCapPercentAfterInit
		if buyP > 0 {
			buyAmt = capAfter*in.Portfolio.EstimatedTargetValue(buyP)/buyP*(1-fees.BuyingFeeInPercentage) - fees.BuyingFeeInAmount
		}
		sellAmt = capAfter*in.Portfolio.EstimatedExchangeValue(sellP)*(1-fees.SellingFeeInPercentage) - fees.SellingFeeInAmount
	}

	// 2. 趋势缩放
	sens := in.Strategy.MarketChangeSensitivityRatio
	if in.Trend.BullContinuing() {
		buyAmt *= 1 - sens
		sellAmt *= 1 + sens
	}
	if in.Trend.BearContinuing() {
		buyAmt *= 1 + sens
		sellAmt *= 1 - sens
	}

	// 3. 交易所最小下单量
	exMin := in.Limits.ExchangeMin
	buyAmt = math.Max(buyAmt, exMin)
	sellAmt = math.Max(sellAmt, exMin)

	// 4. 可用余额约束
	if !(buyAmt > 0 && buyAmt*buyP <= tgt.Available) && tgt.Available > 0 && buyP > 0 {
		buyAmt = tgt.Available/buyP*(1-fees.BuyingFeeInPercentage) - fees.BuyingFeeInAmount
	}
	if !(sellAmt > 0 && sellAmt <= ex.Available) && ex.Available > 0 {
		sellAmt = ex.Available*(1-fees.SellingFeeInPercentage) - fees.SellingFeeInAmount
	}

	// 5. 储备比例约束
	maxBuy := MaxBuyableByReserve(in.Portfolio, fees, buyP, in.Strategy.MinimumReservePercentAfterInitTarget)
	if buyAmt > maxBuy {
		buyAmt = maxBuy
	}
	maxSell := MaxSellableByReserve(in.Portfolio, fees, sellP, in.Strategy.MinimumReservePercentAfterInitExchange)
	if sellAmt > maxSell {
		sellAmt = maxSell
	}

	// 6. 截断到 8 位小数
	buyAmt = service.Truncate(math.Max(buyAmt, 0), service.AmountPrecision)
	sellAmt = service.Truncate(math.Max(sellAmt, 0), service.AmountPrecision)

	buy = Quote{
		Side:           model.SideBuy,
		Price:          buyP,
		Amount:         buyAmt,
		ReserveMatched: buyAmt <= maxBuy,
		MaxByReserve:   maxBuy,
	}
	sell = Quote{
		Side:           model.SideSell,
		Price:          sellP,
		Amount:         sellAmt,
		ReserveMatched: sellAmt <= maxSell,
		MaxByReserve:   maxSell,
	}

	// 7. 最终可用性
	buy.Available = buyAmt > 0 &&
		buyAmt*buyP <= tgt.Available &&
		buyAmt >= exMin &&
		buyAmt*buyP >= in.Limits.TargetMin
	sell.Available = sellAmt > 0 &&
		sellAmt <= ex.Available &&
		sellAmt >= exMin &&
		sellAmt*sellP >= in.Limits.TargetMin
	return buy, sell
}

// MaxBuyableByReserve 储备比例允许的最大买入量：
// 按组合估值的闭式解，同时保证成交后计价币种的可用占比不低于 reserve
func MaxBuyableByReserve(p Portfolio, fees model.TradingFees, price, reserve float64) float64 {
	if price <= 0 || reserve >= 1 {
		return 0
	}
	m := p.EstimatedTargetValue(price)*(1-reserve)/price*(1-fees.BuyingFeeInPercentage) - fees.BuyingFeeInAmount
	m = math.Min(m, p.Target.Available/price)
	m = math.Min(m, (p.Target.Available-reserve*p.Target.Total())/(1-reserve)/price)
	return service.Truncate(math.Max(m, 0), service.AmountPrecision)
}

// MaxSellableByReserve 储备比例允许的最大卖出量
func MaxSellableByReserve(p Portfolio, fees model.TradingFees, price, reserve float64) float64 {
	if price <= 0 || reserve >= 1 {
		return 0
	}
	m := p.EstimatedExchangeValue(price)*(1-reserve)*(1-fees.SellingFeeInPercentage) - fees.SellingFeeInAmount
	m = math.Min(m, p.Exchange.Available)
	m = math.Min(m, (p.Exchange.Available-reserve*p.Exchange.Total())/(1-reserve))
	return service.Truncate(math.Max(m, 0), service.AmountPrecision)
}

// ValueInExchangeCurrency 组合折算为交易币种，截断到 8 位小数
func ValueInExchangeCurrency(exchange, target, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return service.Truncate(exchange+target/price, service.AmountPrecision)
}
