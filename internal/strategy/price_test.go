package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/pkg/ta"
)

func TestReconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		account float64
		public  float64
		want    float64
	}{
		{"no account price", 0, 100, 100},
		{"no public price", 99, 0, 99},
		{"within sensitivity", 100.2, 100, 100.2},
		{"diverged", 110, 100, 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, reconcile(tt.account, tt.public, 0.005))
		})
	}
}

func TestOrderbookImpliedPrices(t *testing.T) {
	t.Parallel()

	ob := book(levels([2]float64{100, 2}, [2]float64{99, 5}), levels([2]float64{101, 3}, [2]float64{102, 1}))

	// 没有不高于参考价的卖盘时取最低卖价
	assert.Equal(t, 101.0, orderbookSellPrice(ob, 100))
	assert.InDelta(t, (101*3+102*1)/4.0, orderbookSellPrice(ob, 102), 1e-9)

	assert.InDelta(t, 695.0/7.0, orderbookPurchasePrice(ob, 99), 1e-9)
	assert.Equal(t, 100.0, orderbookPurchasePrice(ob, 101))

	empty := book(nil, nil)
	assert.Equal(t, 77.0, orderbookSellPrice(empty, 77))
	assert.Equal(t, 66.0, orderbookPurchasePrice(empty, 66))
}

func TestPriceInPrinciple_Fees(t *testing.T) {
	t.Parallel()

	fees := model.TradingFees{BuyingFeeInPercentage: 0.01, SellingFeeInPercentage: 0.02}
	in := PriceInputs{Fees: fees, Sensitivity: 0.005, PricePrecision: 2}

	assert.InDelta(t, 101.02, sellingPriceInPrinciple(in, 100), 1e-9)

	in.SellQuoteUsesSellingFee = true
	assert.InDelta(t, 102.05, sellingPriceInPrinciple(in, 100), 1e-9)

	assert.InDelta(t, 99.0, purchasePriceInPrinciple(in, 100), 1e-9)
}

func TestPriceInPrinciple_TrendAdjustment(t *testing.T) {
	t.Parallel()

	in := PriceInputs{Sensitivity: 0.01}

	in.Trend = Trend{IsBullMarket: true, IsBullMarketContinuable: true}
	// 100 / (1 - 0.01) = 101.0101... 向上取整
	assert.Equal(t, 102.0, sellingPriceInPrinciple(in, 100))
	assert.Equal(t, 100.0, purchasePriceInPrinciple(in, 100))

	in.Trend = Trend{IsBearMarketContinuable: true}
	assert.Equal(t, 100.0, sellingPriceInPrinciple(in, 100))
	assert.Equal(t, 99.0, purchasePriceInPrinciple(in, 100))
}

func TestProposePrices_Scenario(t *testing.T) {
	t.Parallel()

	snap := scenarioSnapshot(0, 1000)
	stats := NewMarketStats(snap)
	tr := ClassifyTrend(stats.Purchase, stats.Sale, snap.Orderbook)
	assert.False(t, tr.IsBullMarket)
	assert.False(t, tr.IsBullMarketContinuable)
	assert.False(t, tr.IsBearMarketContinuable)

	p := ProposePrices(PriceInputs{
		Stats:       stats,
		Trend:       tr,
		Book:        snap.Orderbook,
		Portfolio:   portfolio(0, 1000),
		Sensitivity: 0.005,
	})

	ob := 695.0 / 7.0
	assert.InDelta(t, ob, p.OrderbookPurchasePrice, 1e-9)
	assert.Equal(t, 101.0, p.OrderbookSellPrice)

	// 五个候选：(99+99+99+ob)/4, min(99,100,ob), 99, 99, ob；非牛市向下修正敏感度
	candidates := ((99+99+99+ob)/4 + 99 + 99 + 99 + ob) / 5
	assert.InDelta(t, candidates*(1-0.005), p.ProposedPurchasePrice, 1e-9)
	assert.Equal(t, 98.0, p.PurchasePriceInPrinciple)

	// (100+100+100+101)/4, max(99,100,101), 100, 100, 101
	sellCandidates := ((100+100+100+101)/4.0 + 101 + 100 + 100 + 101) / 5
	assert.InDelta(t, sellCandidates*(1+0.005), p.ProposedSellingPrice, 1e-9)
	assert.Equal(t, 101.0, p.SellingPriceInPrinciple)
}

func TestProposePrices_ProfitScanAdoptsAsk(t *testing.T) {
	t.Parallel()

	snap := scenarioSnapshot(1, 1000)
	// 账户卖出价 100.4 在敏感度以内，卖盘 100.1 低于报价且高于最近卖出价
	snap.AccountSales = records(model.SideSell, [2]float64{100.4, 1})
	snap.Orderbook = book(levels([2]float64{99, 1}), levels([2]float64{100.1, 1}, [2]float64{100.3, 1}))
	stats := NewMarketStats(snap)

	p := ProposePrices(PriceInputs{
		Stats:       stats,
		Trend:       ClassifyTrend(stats.Purchase, stats.Sale, snap.Orderbook),
		Book:        snap.Orderbook,
		Portfolio:   portfolio(1, 1000),
		Sensitivity: 0.005,
	})

	assert.Equal(t, 100.1, p.ProposedSellingPrice)
}

func TestMinPositive(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2.0, minPositive(0, 3, 2, -1))
	assert.Zero(t, minPositive(0, -1))
}

func TestProposePrices_TrendAdjustment(t *testing.T) {
	t.Parallel()

	// 所有参考价均为 100、订单簿为空：没有可盈利档位，报价只受趋势调整影响
	flat := ta.TradeStats{WeightedAverage: 100, BestThird: 100, WorstThird: 100, Last: 100, TotalAmount: 1, Count: 1}
	base := PriceInputs{
		Stats:       MarketStats{Purchase: flat, Sale: flat},
		Book:        book(nil, nil),
		Portfolio:   portfolio(1, 1000),
		Sensitivity: 0.005,
	}
	const ratio = 0.02

	tests := []struct {
		name    string
		trend   Trend
		sellAdj float64
		buyAdj  float64
	}{
		{"bull continuable", Trend{IsBullMarket: true, IsBullMarketContinuable: true}, ratio + 0.005, ratio - 0.005},
		{"bull not continuable", Trend{IsBullMarket: true}, ratio - 0.005, 0},
		{"bear continuable", Trend{IsBearMarketContinuable: true}, 0, -(ratio + 0.005)},
		{"bear not continuable", Trend{}, ratio - 0.005, -(ratio - 0.005)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := base
			in.Trend = tt.trend
			in.Trend.AverageTradingChangeRatio = ratio

			p := ProposePrices(in)
			assert.InDelta(t, 100*(1+tt.sellAdj), p.ProposedSellingPrice, 1e-9)
			assert.InDelta(t, 100*(1+tt.buyAdj), p.ProposedPurchasePrice, 1e-9)
		})
	}
}
