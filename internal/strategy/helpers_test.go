package strategy

import (
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func records(side model.Side, pairs ...[2]float64) []model.TradeRecord {
	out := make([]model.TradeRecord, 0, len(pairs))
	for i, p := range pairs {
		out = append(out, model.TradeRecord{
			Price:     p[0],
			Amount:    p[1],
			Side:      side,
			Timestamp: now.Add(-time.Minute + time.Duration(i)*time.Second),
		})
	}
	return out
}

func levels(pairs ...[2]float64) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.PriceLevel{Price: p[0], Volume: p[1]})
	}
	return out
}

func book(bids, asks []model.PriceLevel) model.Orderbook {
	return model.NewOrderbook(bids, asks, now)
}

func portfolio(exAvail, tgtAvail float64) Portfolio {
	return Portfolio{
		Exchange: model.BalanceItem{Currency: "BTC", Available: exAvail},
		Target:   model.BalanceItem{Currency: "USDT", Available: tgtAvail},
	}
}

func strategyConfig() service.StrategyConfig {
	return service.DefaultStrategy()
}

// scenarioSnapshot 两档买盘、两档卖盘，最近卖出 100、最近买入 99，零手续费
func scenarioSnapshot(exAvail, tgtAvail float64) model.Snapshot {
	return model.Snapshot{
		Pair:            model.Pair{ExchangeCurrency: "BTC", TargetCurrency: "USDT"},
		PublicPurchases: records(model.SideBuy, [2]float64{99, 1}),
		PublicSales:     records(model.SideSell, [2]float64{100, 1}),
		Orderbook:       book(levels([2]float64{100, 2}, [2]float64{99, 5}), levels([2]float64{101, 3}, [2]float64{102, 1})),
		Balances: model.BalanceSet{
			"BTC":  {Currency: "BTC", Available: exAvail},
			"USDT": {Currency: "USDT", Available: tgtAvail},
		},
		FetchedAt: now,
	}
}
