package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

// stubMarket 返回固定订单簿的行情源
type stubMarket struct {
	book model.Orderbook
	err  error
}

func (s *stubMarket) GetCurrencyLimits(context.Context) ([]model.CurrencyLimit, error) {
	return []model.CurrencyLimit{{ExchangeCurrency: "BTC", TargetCurrency: "USDT", MinAmount: 0.0001}}, nil
}

func (s *stubMarket) GetPublicOrderbook(context.Context, model.Pair) (model.Orderbook, error) {
	return s.book, s.err
}

func (s *stubMarket) GetHistoricalTrades(context.Context, model.Pair, time.Time) ([]model.TradeRecord, error) {
	return nil, nil
}

func newPaper(market *stubMarket) *PaperExchange {
	return NewPaperExchange(market, btcUsdt, service.PaperConfig{
		ExchangeBalance:   1,
		TargetBalance:     1000,
		BuyingFeePercent:  0.1,
		SellingFeePercent: 0.2,
	}, zap.NewNop())
}

func bookAt(bid, ask float64) model.Orderbook {
	return model.NewOrderbook(
		[]model.PriceLevel{{Price: bid, Volume: 1}},
		[]model.PriceLevel{{Price: ask, Volume: 1}},
		time.Now(),
	)
}

func TestPaperExchange_Fees(t *testing.T) {
	t.Parallel()

	fees, err := newPaper(&stubMarket{}).GetAccountFees(context.Background(), btcUsdt)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, fees.BuyingFeeInPercentage, 1e-12)
	assert.InDelta(t, 0.002, fees.SellingFeeInPercentage, 1e-12)
}

func TestPaperExchange_PlaceReservesFunds(t *testing.T) {
	t.Parallel()

	p := newPaper(&stubMarket{})
	ctx := context.Background()

	res, err := p.ExecuteOrder(ctx, model.SideBuy, btcUsdt, 2, 100)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)

	bal, _ := p.GetAccountBalance(ctx)
	assert.Equal(t, 800.0, bal.Get("USDT").Available)
	assert.Equal(t, 200.0, bal.Get("USDT").InOrders)

	orders, _ := p.GetOpenOrders(ctx, btcUsdt)
	require.Len(t, orders, 1)
	assert.Equal(t, res.ID, orders[0].ID)
}

func TestPaperExchange_InsufficientBalance(t *testing.T) {
	t.Parallel()

	p := newPaper(&stubMarket{})
	_, err := p.ExecuteOrder(context.Background(), model.SideSell, btcUsdt, 2, 100)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	_, err = p.ExecuteOrder(context.Background(), model.SideBuy, btcUsdt, 0, 100)
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperExchange_FillOnBook(t *testing.T) {
	t.Parallel()

	market := &stubMarket{book: bookAt(99, 101)}
	p := newPaper(market)
	ctx := context.Background()

	_, err := p.ExecuteOrder(ctx, model.SideBuy, btcUsdt, 1, 100)
	require.NoError(t, err)
	_, err = p.ExecuteOrder(ctx, model.SideSell, btcUsdt, 0.5, 110)
	require.NoError(t, err)

	// 卖一 101 高于买单价，不成交
	_, err = p.GetPublicOrderbook(ctx, btcUsdt)
	require.NoError(t, err)
	orders, _ := p.GetOpenOrders(ctx, btcUsdt)
	assert.Len(t, orders, 2)

	market.book = bookAt(99, 100)
	_, err = p.GetPublicOrderbook(ctx, btcUsdt)
	require.NoError(t, err)

	orders, _ = p.GetOpenOrders(ctx, btcUsdt)
	require.Len(t, orders, 1)
	assert.Equal(t, model.SideSell, orders[0].Side)

	bal, _ := p.GetAccountBalance(ctx)
	assert.InDelta(t, 900.0, bal.Get("USDT").Total(), 1e-9)
	assert.InDelta(t, 0.5+0.999, bal.Get("BTC").Available, 1e-9)
	assert.InDelta(t, 0.5, bal.Get("BTC").InOrders, 1e-9)

	trades, _ := p.GetAccountTrades(ctx, btcUsdt)
	require.Len(t, trades, 1)
	assert.Equal(t, model.SideBuy, trades[0].Side)
	assert.Equal(t, 100.0, trades[0].Price)

	market.book = bookAt(111, 112)
	_, err = p.GetPublicOrderbook(ctx, btcUsdt)
	require.NoError(t, err)
	bal, _ = p.GetAccountBalance(ctx)
	assert.InDelta(t, 900+55*0.998, bal.Get("USDT").Available, 1e-9)
	assert.InDelta(t, 0, bal.Get("BTC").InOrders, 1e-9)
}

func TestPaperExchange_FillRetention(t *testing.T) {
	t.Parallel()

	market := &stubMarket{book: bookAt(99, 100)}
	p := NewPaperExchange(market, btcUsdt, service.PaperConfig{ExchangeBalance: 10, TargetBalance: 1e6}, zap.NewNop())
	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }
	ctx := context.Background()

	fill := func() {
		t.Helper()
		_, err := p.ExecuteOrder(ctx, model.SideBuy, btcUsdt, 0.001, 100)
		require.NoError(t, err)
		_, err = p.GetPublicOrderbook(ctx, btcUsdt)
		require.NoError(t, err)
	}

	fill()
	clock = clock.Add(paperFillRetention + time.Minute)
	fill()

	// 超过保留期的成交被丢弃
	trades, _ := p.GetAccountTrades(ctx, btcUsdt)
	require.Len(t, trades, 1)
	assert.Equal(t, clock, trades[0].Timestamp)

	for range paperMaxFills + 5 {
		fill()
	}
	trades, _ = p.GetAccountTrades(ctx, btcUsdt)
	assert.Len(t, trades, paperMaxFills)
}

func TestPaperExchange_Cancel(t *testing.T) {
	t.Parallel()

	p := newPaper(&stubMarket{})
	ctx := context.Background()

	res, err := p.ExecuteOrder(ctx, model.SideSell, btcUsdt, 0.4, 120)
	require.NoError(t, err)

	ok, err := p.CancelOrder(ctx, btcUsdt, res.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	bal, _ := p.GetAccountBalance(ctx)
	assert.InDelta(t, 1.0, bal.Get("BTC").Available, 1e-12)
	assert.Zero(t, bal.Get("BTC").InOrders)

	ok, err = p.CancelOrder(ctx, btcUsdt, res.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewExchangeClient(t *testing.T) {
	t.Parallel()

	inst := service.InstanceConfig{ExchangeCurrency: "BTC", TargetCurrency: "USDT"}

	c, err := NewExchangeClient(service.ExchangeConfig{Name: service.ExchangePaper}, inst, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, service.ExchangePaper, c.Name())

	_, err = NewExchangeClient(service.ExchangeConfig{Name: service.ExchangeOkx}, inst, zap.NewNop())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewExchangeClient(service.ExchangeConfig{Name: "kraken"}, inst, zap.NewNop())
	assert.ErrorIs(t, err, service.ErrInvalidConfig)
}
