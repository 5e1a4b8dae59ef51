package strategy

import (
	"fmt"
	"time"

	"crypto-trading-bot/internal/model"
	"crypto-trading-bot/pkg/ta"
)

// Action 每个方向每个周期的决策结果
type Action string

const (
	ActionExecute           Action = "EXECUTE"
	ActionHold              Action = "HOLD"
	ActionSkip              Action = "SKIP"
	ActionAwaitConfirmation Action = "AWAIT_CONFIRMATION" // 手动模式下等待人工确认
)

// 决策原因
const (
	ReasonInsufficientData     = "Insufficient Data"
	ReasonLimitedReserve       = "Limited Reserve"
	ReasonLowFund              = "Low Fund"
	ReasonDepreciation         = "Depreciation"
	ReasonBetterHold           = "Better Hold"
	ReasonStopLine             = "Unmatched Stop Line"
	ReasonBuyingHigherThanSell = "Buying Higher Than Selling"
	ReasonSellingLowerThanBuy  = "Selling Lower Than Buying"
	ReasonAgainstTrend         = "Against Continuable Trend"
	ReasonFavorable            = "Favorable"
	ReasonAwaitingConfirmation = "Awaiting Confirmation"
	ReasonConfirmationRejected = "Confirmation Rejected"
)

// Decision 单个方向的决策记录，由决策门纯函数产生
type Decision struct {
	Side   model.Side
	Action Action
	Reason string
	Price  float64
	Amount float64

	FinalPortfolioValue    float64 // 假设本单成交后的组合价值 (计价币种)
	OriginalPortfolioValue float64 // 按最近公共成交价估算的当前组合价值

	// HOLD 时立即撤单；EXECUTE 时在下单成功后撤单
	Cancellations []Cancellation
}

// Label 例如 EXECUTE_BUY / SKIP_SELL
func (d Decision) Label() string {
	side := "BUY"
	if d.Side == model.SideSell {
		side = "SELL"
	}
	return string(d.Action) + "_" + side
}

func (d Decision) String() string {
	return fmt.Sprintf("DECISION [%s] %s | %.8f @ %.8f | Value: %.2f -> %.2f | Cancel: %d",
		d.Label(), d.Reason, d.Amount, d.Price, d.OriginalPortfolioValue, d.FinalPortfolioValue, len(d.Cancellations))
}

// Depreciated 成交后组合价值低于当前估值
func (d Decision) Depreciated() bool {
	return d.FinalPortfolioValue < d.OriginalPortfolioValue
}

// Cancellation 需要撤销的挂单及原因
type Cancellation struct {
	Order  model.OpenOrder
	Reason string
}

// Quote 报价与数量，供决策门和遥测使用
type Quote struct {
	Side           model.Side
	Price          float64 // 扣除手续费与趋势调整后的可执行价格
	Amount         float64 // 截断到 8 位小数
	Available      bool
	ReserveMatched bool
	MaxByReserve   float64 // 储备比例允许的最大数量
}

// Limits 解析后的交易所最小/最大数量限制，0 表示未设置
type Limits struct {
	ExchangeMin float64 // 交易币种最小下单量
	ExchangeMax float64
	TargetMin   float64 // 计价币种最小下单额
	TargetMax   float64
}

// ResolveLimits 按交易对解析限制：交易币种限制优先取完全匹配的交易对，
// 计价币种限制取 ExchangeCurrency 等于计价币种的项
func ResolveLimits(limits []model.CurrencyLimit, pair model.Pair) Limits {
	var out Limits
	l, ok := model.FindPairLimit(limits, pair)
	if !ok {
		l, ok = model.FindLimit(limits, pair.ExchangeCurrency)
	}
	if ok {
		out.ExchangeMin = max(l.MinAmount, 0)
		out.ExchangeMax = max(l.MaxAmount, 0)
	}
	if l, ok := model.FindLimit(limits, pair.TargetCurrency); ok {
		out.TargetMin = max(l.MinAmount, 0)
		out.TargetMax = max(l.MaxAmount, 0)
	}
	return out
}

// Session 跨周期的少量状态：初始批次计数、初始上限、最近执行时间
type Session struct {
	InitialBatchCycles                  int
	InitialBuyingCapInTargetCurrency    float64
	InitialSellingCapInExchangeCurrency float64
	LastBuyExecution                    time.Time
	LastSellExecution                   time.Time
}

// MarketStats 公共与账户成交统计
type MarketStats struct {
	Purchase        ta.TradeStats
	Sale            ta.TradeStats
	AccountPurchase ta.TradeStats
	AccountSale     ta.TradeStats
}

// NewMarketStats 账户统计在没有成交量时回落到公共最近成交价
func NewMarketStats(snap model.Snapshot) MarketStats {
	purchase := ta.Summarize(snap.PublicPurchases, ta.FavorLow)
	sale := ta.Summarize(snap.PublicSales, ta.FavorHigh)
	return MarketStats{
		Purchase:        purchase,
		Sale:            sale,
		AccountPurchase: ta.Summarize(snap.AccountPurchases, ta.FavorLow).WithFallback(purchase.Last),
		AccountSale:     ta.Summarize(snap.AccountSales, ta.FavorHigh).WithFallback(sale.Last),
	}
}

// Portfolio 账户两个币种的余额
type Portfolio struct {
	Exchange model.BalanceItem
	Target   model.BalanceItem
}

// EstimatedTargetValue 以 price 估算的组合价值 (计价币种)
func (p Portfolio) EstimatedTargetValue(price float64) float64 {
	return p.Exchange.Total()*price + p.Target.Total()
}

// EstimatedExchangeValue 以 price 估算的组合价值 (交易币种)
func (p Portfolio) EstimatedExchangeValue(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return p.Exchange.Total() + p.Target.Total()/price
}
