package executor

import (
	"encoding/json"
	"strings"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"
)

// okxResponse Okx V5 REST 通用响应结构
type okxResponse struct {
	Code string          `json:"code"` // "0" 表示成功
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"` // 延迟解析
}

// okxInstrument public/instruments
type okxInstrument struct {
	InstID   string `json:"instId"`
	BaseCcy  string `json:"baseCcy"`
	QuoteCcy string `json:"quoteCcy"`
	MinSz    string `json:"minSz"`
	MaxLmtSz string `json:"maxLmtSz"`
	TickSz   string `json:"tickSz"`
	State    string `json:"state"`
}

// okxBook market/books，每档为 [价格, 数量, 废弃字段, 订单数]
type okxBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	Ts   string     `json:"ts"`
}

// okxTrade market/trades
type okxTrade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"` // taker 方向：buy 计为公共买入
	Ts      string `json:"ts"`
}

// okxFee account/trade-fee，费率为负表示收取
type okxFee struct {
	Taker string `json:"taker"`
	Maker string `json:"maker"`
}

type okxBalance struct {
	Details []struct {
		Ccy       string `json:"ccy"`
		AvailBal  string `json:"availBal"`
		FrozenBal string `json:"frozenBal"`
	} `json:"details"`
}

// okxFill trade/fills
type okxFill struct {
	InstID string `json:"instId"`
	OrdID  string `json:"ordId"`
	FillPx string `json:"fillPx"`
	FillSz string `json:"fillSz"`
	Side   string `json:"side"`
	Ts     string `json:"ts"`
}

// okxOrder trade/orders-pending
type okxOrder struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	AccFillSz string `json:"accFillSz"`
	Side      string `json:"side"`
	CTime     string `json:"cTime"`
}

// okxOrderAck trade/order 与 trade/cancel-order 的逐条结果
type okxOrderAck struct {
	OrdID string `json:"ordId"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type okxPlaceOrder struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
}

type okxCancelOrder struct {
	InstID string `json:"instId"`
	OrdID  string `json:"ordId"`
}

// instID BTC/USDT -> BTC-USDT
func instID(pair model.Pair) string {
	return strings.ToUpper(pair.ExchangeCurrency) + "-" + strings.ToUpper(pair.TargetCurrency)
}

func toSide(s string) (model.Side, bool) {
	switch strings.ToLower(s) {
	case "buy":
		return model.SideBuy, true
	case "sell":
		return model.SideSell, true
	}
	return "", false
}

// msToTime 毫秒字符串时间戳
func msToTime(ms string) time.Time {
	v, err := service.StringToInt64(ms)
	if err != nil || v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}

func toLevels(rows [][]string) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, model.PriceLevel{
			Price:  service.StringToFloatOrZero(row[0]),
			Volume: service.StringToFloatOrZero(row[1]),
		})
	}
	return out
}

func (t okxTrade) record() (model.TradeRecord, bool) {
	side, ok := toSide(t.Side)
	if !ok {
		return model.TradeRecord{}, false
	}
	return model.TradeRecord{
		Amount:    service.StringToFloatOrZero(t.Sz),
		Price:     service.StringToFloatOrZero(t.Px),
		Side:      side,
		Timestamp: msToTime(t.Ts),
	}, true
}

func (f okxFill) record() (model.TradeRecord, bool) {
	side, ok := toSide(f.Side)
	if !ok {
		return model.TradeRecord{}, false
	}
	return model.TradeRecord{
		Amount:    service.StringToFloatOrZero(f.FillSz),
		Price:     service.StringToFloatOrZero(f.FillPx),
		Side:      side,
		Timestamp: msToTime(f.Ts),
	}, true
}

func (o okxOrder) openOrder() (model.OpenOrder, bool) {
	side, ok := toSide(o.Side)
	if !ok {
		return model.OpenOrder{}, false
	}
	size := service.StringToFloatOrZero(o.Sz)
	return model.OpenOrder{
		ID:        o.OrdID,
		Side:      side,
		Price:     service.StringToFloatOrZero(o.Px),
		Amount:    size,
		Pending:   size - service.StringToFloatOrZero(o.AccFillSz),
		Timestamp: msToTime(o.CTime),
	}, true
}
