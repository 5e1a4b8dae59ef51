package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-trading-bot/internal/model"
)

func gateInputs() GateInputs {
	return GateInputs{
		Buy:          Quote{Side: model.SideBuy, Price: 100, Amount: 1, Available: true, ReserveMatched: true, MaxByReserve: 5},
		Sell:         Quote{Side: model.SideSell, Price: 120, Amount: 1, Available: true, ReserveMatched: true, MaxByReserve: 5},
		Portfolio:    portfolio(10, 1000),
		LastPurchase: 99,
		LastSale:     100,
		Strategy:     strategyConfig(),
		Now:          now,
	}
}

func openOrder(id string, side model.Side, price float64, age time.Duration) model.OpenOrder {
	return model.OpenOrder{ID: id, Side: side, Price: price, Amount: 1, Timestamp: now.Add(-age)}
}

func TestDecide_Favorable(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	buy, sell := DecideBuy(in), DecideSell(in)

	assert.Equal(t, "EXECUTE_BUY", buy.Label())
	assert.Equal(t, ReasonFavorable, buy.Reason)
	assert.Equal(t, 2100.0, buy.FinalPortfolioValue)
	assert.Equal(t, 2000.0, buy.OriginalPortfolioValue)

	assert.Equal(t, "EXECUTE_SELL", sell.Label())
	assert.Equal(t, 2200.0, sell.FinalPortfolioValue)
	assert.Equal(t, 1990.0, sell.OriginalPortfolioValue)
}

func TestDecideBuy_Depreciation(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.Buy.Price = 90

	d := DecideBuy(in)
	require.True(t, d.Depreciated())
	assert.Equal(t, "SKIP_BUY", d.Label())
	assert.Equal(t, ReasonDepreciation, d.Reason)
}

func TestDecide_StopLine(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.Strategy.StopLine = 5000

	assert.Equal(t, ReasonStopLine, DecideBuy(in).Reason)
	assert.Equal(t, ReasonStopLine, DecideSell(in).Reason)
}

func TestDecideBuy_NeverExecutesBelowStopLine(t *testing.T) {
	t.Parallel()

	for _, stop := range []float64{0, 2099.99, 2100, 2100.01, 10000} {
		in := gateInputs()
		in.Strategy.StopLine = stop
		d := DecideBuy(in)
		if d.Action == ActionExecute {
			assert.GreaterOrEqual(t, d.FinalPortfolioValue, stop)
		}
	}
}

func TestDecide_CrossedQuotes(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.Buy.Price = 130

	assert.Equal(t, ReasonBuyingHigherThanSell, DecideBuy(in).Reason)
	assert.Equal(t, ReasonSellingLowerThanBuy, DecideSell(in).Reason)
}

func TestDecide_InsufficientData(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.LastPurchase = 0

	buy, sell := DecideBuy(in), DecideSell(in)
	assert.Equal(t, ActionSkip, buy.Action)
	assert.Equal(t, ReasonInsufficientData, buy.Reason)
	assert.Equal(t, ActionSkip, sell.Action)
	assert.Equal(t, ReasonInsufficientData, sell.Reason)
}

func TestDecide_ContinuableTrendHolds(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.Trend = Trend{IsBearMarketContinuable: true}

	assert.Equal(t, "HOLD_BUY", DecideBuy(in).Label())
	assert.Equal(t, "HOLD_SELL", DecideSell(in).Label())
}

func TestDecideBuy_HoldCancelsAgedOrders(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.OpenOrders = []model.OpenOrder{
		openOrder("old", model.SideBuy, 110, 7*time.Hour),
		openOrder("young", model.SideBuy, 105, time.Hour),
	}

	d := DecideBuy(in)
	assert.Equal(t, ActionHold, d.Action)
	assert.Equal(t, ReasonBetterHold, d.Reason)
	require.Len(t, d.Cancellations, 1)
	assert.Equal(t, "old", d.Cancellations[0].Order.ID)
}

func TestDecide_OpenOrderHoldDirection(t *testing.T) {
	t.Parallel()

	// 最近买入 99、最近卖出 100、敏感度 0.005
	tests := []struct {
		name string
		side model.Side
		open float64
		hold bool
	}{
		{"buy order above market", model.SideBuy, 99.6, true},
		{"buy order at market", model.SideBuy, 99, false},
		{"sell order below market", model.SideSell, 99.4, true},
		{"sell order at market", model.SideSell, 100, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := gateInputs()
			in.OpenOrders = []model.OpenOrder{openOrder("o", tt.side, tt.open, time.Minute)}

			d := DecideBuy(in)
			if tt.side == model.SideSell {
				d = DecideSell(in)
			}
			assert.Equal(t, tt.hold, d.Action == ActionHold, d.String())
		})
	}
}

func TestDecideBuy_ExecuteCancellations(t *testing.T) {
	t.Parallel()

	in := gateInputs()
	in.OpenOrders = []model.OpenOrder{
		openOrder("crossed-sell", model.SideSell, 95, 7*time.Hour),
		openOrder("young-sell", model.SideSell, 90, time.Hour),
		openOrder("stale-buy", model.SideBuy, 80, 7*time.Hour),
	}

	d := DecideBuy(in)
	require.Equal(t, ActionExecute, d.Action)

	ids := make([]string, 0, len(d.Cancellations))
	for _, c := range d.Cancellations {
		ids = append(ids, c.Order.ID)
	}
	assert.ElementsMatch(t, []string{"crossed-sell", "stale-buy"}, ids)
}

func TestDecision_SkipClearsCancellations(t *testing.T) {
	t.Parallel()

	d := Decision{Cancellations: []Cancellation{{}}}.skip(ReasonLowFund)
	assert.Empty(t, d.Cancellations)
	assert.Contains(t, d.String(), "SKIP_BUY")
}
