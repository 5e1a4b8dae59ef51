package executor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"crypto-trading-bot/internal/metrics"
	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/internal/service"

	"go.uber.org/zap"
)

const (
	okxTimeLayout  = "2006-01-02T15:04:05.000Z"
	okxBookDepth   = "50"
	okxTradesLimit = "500"
)

// 撤单时订单已成交、已撤销或不存在
var okxOrderGoneCodes = map[string]bool{"51400": true, "51401": true, "51402": true}

// OkxAPIError Okx 返回的业务错误
type OkxAPIError struct {
	Path string
	Code string
	Msg  string
}

func (e *OkxAPIError) Error() string {
	return fmt.Sprintf("okx %s: code=%s msg=%s", e.Path, e.Code, e.Msg)
}

// OkxClient Okx V5 REST 客户端 (现货)
type OkxClient struct {
	baseURL    string
	apiKey     string
	secretKey  string
	passphrase string
	demo       bool

	hc     *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewOkxClient 创建带签名的客户端，缺少密钥时返回 ErrMissingCredentials
func NewOkxClient(cfg service.ExchangeConfig, logger *zap.Logger) (*OkxClient, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" || cfg.Passphrase == "" {
		return nil, ErrMissingCredentials
	}
	c := NewOkxPublicClient(cfg, logger)
	c.apiKey = cfg.APIKey
	c.secretKey = cfg.SecretKey
	c.passphrase = cfg.Passphrase
	return c, nil
}

// NewOkxPublicClient 只能访问公共行情的客户端，模拟盘使用
func NewOkxPublicClient(cfg service.ExchangeConfig, logger *zap.Logger) *OkxClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.RESTURL, "/")
	if base == "" {
		base = "https://www.okx.com"
	}
	return &OkxClient{
		baseURL: base,
		demo:    cfg.Demo,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("exchange", "okx")),
		now:     time.Now,
	}
}

func (c *OkxClient) Name() string { return service.ExchangeOkx }

// --- 公共行情 ---

func (c *OkxClient) GetCurrencyLimits(ctx context.Context) ([]model.CurrencyLimit, error) {
	var instruments []okxInstrument
	q := url.Values{"instType": {"SPOT"}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, false, &instruments); err != nil {
		return nil, err
	}
	limits := make([]model.CurrencyLimit, 0, len(instruments))
	for _, in := range instruments {
		if in.State != "" && in.State != "live" {
			continue
		}
		limits = append(limits, model.CurrencyLimit{
			ExchangeCurrency: in.BaseCcy,
			TargetCurrency:   in.QuoteCcy,
			MinAmount:        service.StringToFloatOrZero(in.MinSz),
			MaxAmount:        service.StringToFloatOrZero(in.MaxLmtSz),
			MinPrice:         service.StringToFloatOrZero(in.TickSz),
		})
	}
	return limits, nil
}

func (c *OkxClient) GetPublicOrderbook(ctx context.Context, pair model.Pair) (model.Orderbook, error) {
	var books []okxBook
	q := url.Values{"instId": {instID(pair)}, "sz": {okxBookDepth}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/books", q, nil, false, &books); err != nil {
		return model.Orderbook{}, err
	}
	if len(books) == 0 {
		return model.Orderbook{}, fmt.Errorf("okx books %s: empty response", instID(pair))
	}
	b := books[0]
	return model.NewOrderbook(toLevels(b.Bids), toLevels(b.Asks), msToTime(b.Ts)), nil
}

func (c *OkxClient) GetHistoricalTrades(ctx context.Context, pair model.Pair, since time.Time) ([]model.TradeRecord, error) {
	var trades []okxTrade
	q := url.Values{"instId": {instID(pair)}, "limit": {okxTradesLimit}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/trades", q, nil, false, &trades); err != nil {
		return nil, err
	}
	out := make([]model.TradeRecord, 0, len(trades))
	for _, t := range trades {
		r, ok := t.record()
		if !ok || r.Timestamp.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// --- 账户 ---

func (c *OkxClient) GetAccountFees(ctx context.Context, pair model.Pair) (model.TradingFees, error) {
	var fees []okxFee
	q := url.Values{"instType": {"SPOT"}, "instId": {instID(pair)}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/trade-fee", q, nil, true, &fees); err != nil {
		return model.TradingFees{}, err
	}
	if len(fees) == 0 {
		return model.TradingFees{}, fmt.Errorf("okx trade-fee %s: empty response", instID(pair))
	}
	// Okx 以负数表示收取的费率，限价单按 taker 费率保守估计
	taker := -service.StringToFloatOrZero(fees[0].Taker)
	return model.TradingFees{
		BuyingFeeInPercentage:  taker,
		SellingFeeInPercentage: taker,
	}, nil
}

func (c *OkxClient) GetAccountBalance(ctx context.Context) (model.BalanceSet, error) {
	var balances []okxBalance
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance", nil, nil, true, &balances); err != nil {
		return nil, err
	}
	set := model.BalanceSet{}
	for _, b := range balances {
		for _, d := range b.Details {
			set[d.Ccy] = model.BalanceItem{
				Currency:  d.Ccy,
				Available: service.StringToFloatOrZero(d.AvailBal),
				InOrders:  service.StringToFloatOrZero(d.FrozenBal),
			}
		}
	}
	return set, nil
}

func (c *OkxClient) GetAccountTrades(ctx context.Context, pair model.Pair) ([]model.TradeRecord, error) {
	var fills []okxFill
	q := url.Values{"instType": {"SPOT"}, "instId": {instID(pair)}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/trade/fills", q, nil, true, &fills); err != nil {
		return nil, err
	}
	out := make([]model.TradeRecord, 0, len(fills))
	for _, f := range fills {
		if r, ok := f.record(); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *OkxClient) GetOpenOrders(ctx context.Context, pair model.Pair) ([]model.OpenOrder, error) {
	var orders []okxOrder
	q := url.Values{"instType": {"SPOT"}, "instId": {instID(pair)}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/trade/orders-pending", q, nil, true, &orders); err != nil {
		return nil, err
	}
	out := make([]model.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if oo, ok := o.openOrder(); ok {
			out = append(out, oo)
		}
	}
	return out, nil
}

func (c *OkxClient) ExecuteOrder(ctx context.Context, side model.Side, pair model.Pair, amount, price float64) (*model.OrderResult, error) {
	body := okxPlaceOrder{
		InstID:  instID(pair),
		TdMode:  "cash",
		Side:    side.String(),
		OrdType: "limit",
		Px:      service.FormatDecimal(price, service.AmountPrecision),
		Sz:      service.FormatDecimal(amount, service.AmountPrecision),
	}
	var acks []okxOrderAck
	err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, true, &acks)
	if len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
		return nil, fmt.Errorf("%w: %s %s", ErrOrderRejected, acks[0].SCode, acks[0].SMsg)
	}
	if err != nil {
		var apiErr *OkxAPIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %w", ErrOrderRejected, err)
		}
		return nil, err
	}
	if len(acks) == 0 || acks[0].OrdID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrOrderRejected)
	}
	return &model.OrderResult{
		ID:        acks[0].OrdID,
		Side:      side,
		Pair:      pair,
		Price:     price,
		Amount:    amount,
		Timestamp: c.now(),
	}, nil
}

func (c *OkxClient) CancelOrder(ctx context.Context, pair model.Pair, orderID string) (bool, error) {
	var acks []okxOrderAck
	err := c.do(ctx, http.MethodPost, "/api/v5/trade/cancel-order", nil, okxCancelOrder{InstID: instID(pair), OrdID: orderID}, true, &acks)
	if len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
		if okxOrderGoneCodes[acks[0].SCode] {
			return false, nil
		}
		return false, fmt.Errorf("%w: cancel %s: %s %s", ErrOrderRejected, orderID, acks[0].SCode, acks[0].SMsg)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// --- 请求与签名 ---

// sign base64(HMAC-SHA256(secret, timestamp + method + requestPath + body))
func (c *OkxClient) sign(ts, method, requestPath string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(ts + method + requestPath))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// do 发送请求并解析通用响应。业务错误时 data 仍会解析到 out，调用方据此读取逐条错误码
func (c *OkxClient) do(ctx context.Context, method, apiPath string, query url.Values, body any, signed bool, out any) error {
	op := path.Base(apiPath)
	if signed && c.apiKey == "" {
		return ErrMissingCredentials
	}

	requestPath := apiPath
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("okx %s: encode body: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		ts := c.now().UTC().Format(okxTimeLayout)
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, payload))
		req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	}
	if c.demo {
		req.Header.Set("x-simulated-trading", "1")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		metrics.IncExchangeRequest(op, "error")
		return fmt.Errorf("okx %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncExchangeRequest(op, "error")
		return fmt.Errorf("okx %s: read body: %w", op, err)
	}

	var env okxResponse
	if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil {
		metrics.IncExchangeRequest(op, "error")
		if resp.StatusCode >= 300 {
			return fmt.Errorf("okx %s %d: %s", op, resp.StatusCode, string(raw))
		}
		return fmt.Errorf("okx %s: decode: %w", op, jsonErr)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			metrics.IncExchangeRequest(op, "error")
			return fmt.Errorf("okx %s: decode data: %w", op, err)
		}
	}
	if env.Code != "0" || resp.StatusCode >= 300 {
		metrics.IncExchangeRequest(op, "api_error")
		c.logger.Debug("Okx API error", zap.String("op", op), zap.String("code", env.Code), zap.String("msg", env.Msg))
		return &OkxAPIError{Path: apiPath, Code: env.Code, Msg: env.Msg}
	}
	metrics.IncExchangeRequest(op, "ok")
	return nil
}
