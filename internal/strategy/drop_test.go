package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/pkg/ta"
)

func TestTrendHoldCancellations(t *testing.T) {
	t.Parallel()

	ob := book(levels([2]float64{105, 1}), levels([2]float64{110, 1}))
	orders := []model.OpenOrder{
		openOrder("buy-covered", model.SideBuy, 104, time.Minute),
		openOrder("buy-above", model.SideBuy, 106, time.Minute),
		openOrder("sell-covered", model.SideSell, 111, time.Minute),
		openOrder("sell-below", model.SideSell, 109, time.Minute),
	}

	assert.Nil(t, TrendHoldCancellations(Trend{}, ob, orders))

	got := TrendHoldCancellations(Trend{IsBullMarket: true, IsBullMarketContinuable: true}, ob, orders)
	require.Len(t, got, 2)
	assert.Equal(t, "buy-covered", got[0].Order.ID)
	assert.Equal(t, "sell-covered", got[1].Order.ID)
	assert.Equal(t, ReasonTrendHold, got[0].Reason)
}

func dropInputs() DropInputs {
	stats := ta.TradeStats{WeightedAverage: 100, BestThird: 99, WorstThird: 101, Last: 100, TotalAmount: 5, Count: 5}
	return DropInputs{
		Stats:      MarketStats{Purchase: stats, Sale: stats},
		Book:       book(levels([2]float64{90, 1}, [2]float64{80, 1}), levels([2]float64{100, 50})),
		OpenOrders: []model.OpenOrder{openOrder("idle-buy", model.SideBuy, 85, 7*time.Hour)},
		Values:     PortfolioValues{OriginalBuy: 1000, OriginalSell: 1000},
		Strategy:   strategyConfig(),
		Now:        now,
	}
}

func TestIdleOrderDrops_Buy(t *testing.T) {
	t.Parallel()

	got := IdleOrderDrops(dropInputs())
	require.Len(t, got, 1)
	assert.Equal(t, "idle-buy", got[0].Order.ID)
	assert.Equal(t, ReasonIdleOrder, got[0].Reason)
}

func TestIdleOrderDrops_Guards(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(in *DropInputs)
	}{
		{"stop line", func(in *DropInputs) { in.Strategy.StopLine = 2000 }},
		{"young order", func(in *DropInputs) { in.OpenOrders[0].Timestamp = now.Add(-time.Hour) }},
		{"recent execution", func(in *DropInputs) { in.Session.LastBuyExecution = now.Add(-time.Minute) }},
		{"account activity", func(in *DropInputs) { in.Stats.AccountPurchase.Last = 100 }},
		{"near reference", func(in *DropInputs) { in.OpenOrders[0].Price = 99.9 }},
		{"deep bids", func(in *DropInputs) {
			in.Book = book(levels([2]float64{90, 1000}), levels([2]float64{100, 1}))
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := dropInputs()
			in.OpenOrders = append([]model.OpenOrder(nil), in.OpenOrders...)
			tt.mutate(&in)
			assert.Empty(t, IdleOrderDrops(in))
		})
	}
}

func TestIdleOrderDrops_Sell(t *testing.T) {
	t.Parallel()

	in := dropInputs()
	in.Book = book(levels([2]float64{100, 50}), levels([2]float64{110, 1}, [2]float64{120, 1}))
	in.OpenOrders = []model.OpenOrder{openOrder("idle-sell", model.SideSell, 115, 7*time.Hour)}

	got := IdleOrderDrops(in)
	require.Len(t, got, 1)
	assert.Equal(t, "idle-sell", got[0].Order.ID)
}
