package model

import (
	"sort"
	"time"
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) String() string {
	return string(s)
}

// Opposite 返回反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Pair 交易对：ExchangeCurrency 为交易的币种 (如 BTC)，TargetCurrency 为计价币种 (如 USDT)
type Pair struct {
	ExchangeCurrency string
	TargetCurrency   string
}

func (p Pair) String() string {
	return p.ExchangeCurrency + "/" + p.TargetCurrency
}

// TradeRecord 一笔已成交记录 (公共成交或账户成交)，只读
type TradeRecord struct {
	Amount    float64
	Price     float64
	Side      Side
	Timestamp time.Time
}

// PriceLevel 订单簿中的一档
type PriceLevel struct {
	Price  float64
	Volume float64
}

// Orderbook 买盘按价格降序，卖盘按价格升序
type Orderbook struct {
	Bids      []PriceLevel
	Asks      []PriceLevel
	BuyTotal  float64 // 买盘总额 (计价币种)
	SellTotal float64 // 卖盘总量 (交易币种)
	Timestamp time.Time
}

// NewOrderbook 过滤无效档位、排序并计算总量
func NewOrderbook(bids, asks []PriceLevel, ts time.Time) Orderbook {
	ob := Orderbook{
		Bids:      validLevels(bids),
		Asks:      validLevels(asks),
		Timestamp: ts,
	}
	sort.SliceStable(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price > ob.Bids[j].Price })
	sort.SliceStable(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price < ob.Asks[j].Price })
	for _, l := range ob.Bids {
		ob.BuyTotal += l.Price * l.Volume
	}
	for _, l := range ob.Asks {
		ob.SellTotal += l.Volume
	}
	return ob
}

func validLevels(levels []PriceLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Price > 0 && l.Volume > 0 {
			out = append(out, l)
		}
	}
	return out
}

// BestBid 最高买价
func (ob Orderbook) BestBid() (PriceLevel, bool) {
	for _, l := range ob.Bids {
		if l.Price > 0 && l.Volume > 0 {
			return l, true
		}
	}
	return PriceLevel{}, false
}

// BestAsk 最低卖价
func (ob Orderbook) BestAsk() (PriceLevel, bool) {
	for _, l := range ob.Asks {
		if l.Price > 0 && l.Volume > 0 {
			return l, true
		}
	}
	return PriceLevel{}, false
}

// TopBids 前 n 档买盘
func (ob Orderbook) TopBids(n int) []PriceLevel {
	return ob.Bids[:min(n, len(ob.Bids))]
}

// TopAsks 前 n 档卖盘
func (ob Orderbook) TopAsks(n int) []PriceLevel {
	return ob.Asks[:min(n, len(ob.Asks))]
}

// BalanceItem 单个币种的余额
type BalanceItem struct {
	Currency  string
	Available float64
	InOrders  float64
}

func (b BalanceItem) Total() float64 {
	return b.Available + b.InOrders
}

// BalanceSet 按币种索引的账户余额
type BalanceSet map[string]BalanceItem

// Get 没有记录的币种返回零余额
func (bs BalanceSet) Get(currency string) BalanceItem {
	if b, ok := bs[currency]; ok {
		return b
	}
	return BalanceItem{Currency: currency}
}

// CurrencyLimit 交易所对交易对的限制，0 表示未设置
type CurrencyLimit struct {
	ExchangeCurrency string
	TargetCurrency   string
	MinAmount        float64
	MaxAmount        float64
	MinPrice         float64
	MaxPrice         float64
}

// FindPairLimit 查找与交易对完全匹配的限制
func FindPairLimit(limits []CurrencyLimit, pair Pair) (CurrencyLimit, bool) {
	for _, l := range limits {
		if l.ExchangeCurrency == pair.ExchangeCurrency && l.TargetCurrency == pair.TargetCurrency {
			return l, true
		}
	}
	return CurrencyLimit{}, false
}

// FindLimit 查找 ExchangeCurrency 匹配的限制
func FindLimit(limits []CurrencyLimit, exchangeCurrency string) (CurrencyLimit, bool) {
	for _, l := range limits {
		if l.ExchangeCurrency == exchangeCurrency {
			return l, true
		}
	}
	return CurrencyLimit{}, false
}

// TradingFees 账户手续费，百分比以小数表示 (0.001 = 0.1%)
type TradingFees struct {
	BuyingFeeInPercentage  float64
	BuyingFeeInAmount      float64
	SellingFeeInPercentage float64
	SellingFeeInAmount     float64
}

// PercentFor 对应方向的百分比手续费
func (f TradingFees) PercentFor(side Side) float64 {
	if side == SideBuy {
		return f.BuyingFeeInPercentage
	}
	return f.SellingFeeInPercentage
}

// AmountFor 对应方向的固定手续费
func (f TradingFees) AmountFor(side Side) float64 {
	if side == SideBuy {
		return f.BuyingFeeInAmount
	}
	return f.SellingFeeInAmount
}
