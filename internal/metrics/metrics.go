// Package metrics Prometheus 指标，在 init 中注册，由 HTTP 服务的 /metrics 暴露。
//
//   - trader_cycles_total{instance,result}           决策周期 (ok|fetch_error|error)
//   - trader_decisions_total{instance,side,action}   每个方向的决策结果
//   - trader_orders_total{instance,side,result}      下单结果 (placed|rejected)
//   - trader_cancellations_total{instance,result}    撤单结果 (cancelled|missing|failed)
//   - trader_quote_price{instance,side}              最近报价
//   - trader_quote_amount{instance,side}             最近数量
//   - trader_portfolio_value{instance}               当前组合估值 (计价币种)
//   - trader_exchange_requests_total{op,status}      交易所请求
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Decision cycles by result",
		},
		[]string{"instance", "result"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Per-side decisions by action",
		},
		[]string{"instance", "side", "action"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order placements by result",
		},
		[]string{"instance", "side", "result"},
	)

	Cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_cancellations_total",
			Help: "Order cancellations by result",
		},
		[]string{"instance", "result"},
	)

	QuotePrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_quote_price",
			Help: "Latest executable quote price",
		},
		[]string{"instance", "side"},
	)

	QuoteAmount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_quote_amount",
			Help: "Latest quote amount in exchange currency",
		},
		[]string{"instance", "side"},
	)

	PortfolioValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_portfolio_value",
			Help: "Estimated portfolio value in target currency",
		},
		[]string{"instance"},
	)

	ExchangeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exchange_requests_total",
			Help: "Exchange REST requests by operation and status",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(Cycles, Decisions, Orders, Cancellations)
	prometheus.MustRegister(QuotePrice, QuoteAmount, PortfolioValue)
	prometheus.MustRegister(ExchangeRequests)
}

// 结果标签
const (
	ResultOK         = "ok"
	ResultFetchError = "fetch_error"
	ResultError      = "error"
	ResultPlaced     = "placed"
	ResultRejected   = "rejected"
	ResultCancelled  = "cancelled"
	ResultMissing    = "missing"
	ResultFailed     = "failed"
)

func IncCycle(instance, result string) { Cycles.WithLabelValues(instance, result).Inc() }

func IncDecision(instance, side, action string) {
	Decisions.WithLabelValues(instance, side, action).Inc()
}

func IncOrder(instance, side, result string) { Orders.WithLabelValues(instance, side, result).Inc() }

func IncCancellation(instance, result string) { Cancellations.WithLabelValues(instance, result).Inc() }

// SetQuote 记录一个方向的最新报价
func SetQuote(instance, side string, price, amount float64) {
	QuotePrice.WithLabelValues(instance, side).Set(price)
	QuoteAmount.WithLabelValues(instance, side).Set(amount)
}

func SetPortfolioValue(instance string, v float64) { PortfolioValue.WithLabelValues(instance).Set(v) }

func IncExchangeRequest(op, status string) { ExchangeRequests.WithLabelValues(op, status).Inc() }
