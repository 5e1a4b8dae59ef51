package model

import (
	"fmt"
	"time"
)

// OpenOrder 账户当前挂单，引擎每个周期只读取一次快照
type OpenOrder struct {
	ID        string
	Side      Side
	Price     float64
	Amount    float64
	Pending   float64 // 未成交数量
	Timestamp time.Time
}

// Age 挂单时长
func (o OpenOrder) Age(now time.Time) time.Duration {
	if o.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(o.Timestamp)
}

func (o OpenOrder) String() string {
	return fmt.Sprintf("%s %s %.8f @ %.8f", o.ID, o.Side, o.Amount, o.Price)
}

// OrderResult 下单成功后交易所返回的结果
type OrderResult struct {
	ID        string
	Side      Side
	Pair      Pair
	Price     float64
	Amount    float64
	Timestamp time.Time
}

func (r OrderResult) String() string {
	return fmt.Sprintf("ORDER [%s | %s] %s %.8f @ %.8f", r.ID, r.Pair, r.Side, r.Amount, r.Price)
}

// Snapshot 单个决策周期的市场与账户视图，周期内不可变
type Snapshot struct {
	Pair Pair

	PublicPurchases  []TradeRecord // 窗口内公共买入成交
	PublicSales      []TradeRecord // 窗口内公共卖出成交
	AccountPurchases []TradeRecord
	AccountSales     []TradeRecord

	Orderbook  Orderbook
	Balances   BalanceSet
	OpenOrders []OpenOrder
	Fees       TradingFees

	FetchedAt time.Time
}

func (s Snapshot) ExchangeBalance() BalanceItem {
	return s.Balances.Get(s.Pair.ExchangeCurrency)
}

func (s Snapshot) TargetBalance() BalanceItem {
	return s.Balances.Get(s.Pair.TargetCurrency)
}

// OrdersBySide 指定方向的挂单
func (s Snapshot) OrdersBySide(side Side) []OpenOrder {
	var out []OpenOrder
	for _, o := range s.OpenOrders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

// SplitBySide 按方向拆分并截取 since 之后的成交
func SplitBySide(records []TradeRecord, buySince, sellSince time.Time) (buys, sells []TradeRecord) {
	for _, r := range records {
		switch r.Side {
		case SideBuy:
			if !r.Timestamp.Before(buySince) {
				buys = append(buys, r)
			}
		case SideSell:
			if !r.Timestamp.Before(sellSince) {
				sells = append(sells, r)
			}
		}
	}
	return buys, sells
}
