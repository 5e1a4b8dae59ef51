package ta

import (
	"math"
	"sort"

	"crypto-trading-bot/internal/model"
)

// Favor 决定哪一端的三分之一成交被视为“最优”
type Favor int

const (
	FavorLow  Favor = iota // 买入：低价部分最优
	FavorHigh              // 卖出：高价部分最优
)

// TradeStats 一段成交历史的加权价格统计
type TradeStats struct {
	WeightedAverage float64 // Σ(amount·price) / Σ(amount)
	BestThird       float64 // 最优三分之一的加权均价
	WorstThird      float64 // 最差三分之一的加权均价
	Last            float64 // 最近一笔成交价，没有成交时为 0
	TotalAmount     float64
	Count           int
}

// Summarize 计算成交统计。成交量为 0 时各均价回落到最近成交价
func Summarize(records []model.TradeRecord, favor Favor) TradeStats {
	s := TradeStats{
		Count: len(records),
		Last:  LastPrice(records),
	}
	s.WeightedAverage, s.TotalAmount = weighted(records)
	if s.TotalAmount <= 0 {
		s.WeightedAverage = s.Last
	}

	sorted := make([]model.TradeRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	n := trancheSize(len(sorted))
	low, high := sorted[:n], sorted[len(sorted)-n:]
	best, worst := low, high
	if favor == FavorHigh {
		best, worst = high, low
	}
	s.BestThird = weightedOr(best, s.Last)
	s.WorstThird = weightedOr(worst, s.Last)
	return s
}

// WithFallback 没有成交量时用 price 代替各均价 (账户成交回落到公共最近价)
func (s TradeStats) WithFallback(price float64) TradeStats {
	if s.TotalAmount > 0 {
		return s
	}
	s.WeightedAverage = price
	s.BestThird = price
	s.WorstThird = price
	return s
}

// UpLevels 最优/最差三分之一相对加权均价的偏离比例
func (s TradeStats) UpLevels() (best, worst float64) {
	return Deviation(s.BestThird, s.WeightedAverage), Deviation(s.WorstThird, s.WeightedAverage)
}

// trancheSize 三分之一向上取整
func trancheSize(n int) int {
	return (n + 2) / 3
}

func weighted(records []model.TradeRecord) (avg, total float64) {
	var notional float64
	for _, r := range records {
		if r.Amount <= 0 || r.Price <= 0 {
			continue
		}
		notional += r.Amount * r.Price
		total += r.Amount
	}
	if total <= 0 {
		return 0, 0
	}
	return notional / total, total
}

func weightedOr(records []model.TradeRecord, fallback float64) float64 {
	avg, total := weighted(records)
	if total <= 0 {
		return fallback
	}
	return avg
}

// WeightedAverage 按成交量加权的均价，没有成交量时返回 0
func WeightedAverage(records []model.TradeRecord) float64 {
	avg, _ := weighted(records)
	return avg
}

// LastPrice 时间戳最新的成交价
func LastPrice(records []model.TradeRecord) float64 {
	var last model.TradeRecord
	found := false
	for _, r := range records {
		if !found || !r.Timestamp.Before(last.Timestamp) {
			last = r
			found = true
		}
	}
	return last.Price
}

// TotalAmount 成交量合计
func TotalAmount(records []model.TradeRecord) float64 {
	var total float64
	for _, r := range records {
		if r.Amount > 0 {
			total += r.Amount
		}
	}
	return total
}

// Deviation |x-ref|/ref，ref<=0 时为 0
func Deviation(x, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return math.Abs(x-ref) / ref
}

// Divergence 相对较小一方的偏离比例，任一方非正时返回 0 和 false
func Divergence(a, b float64) (float64, bool) {
	m := math.Min(a, b)
	if m <= 0 {
		return 0, false
	}
	return math.Abs(a-b) / m, true
}

// VolumeWeightedPrice 档位的成交量加权价格，忽略非正数量
func VolumeWeightedPrice(levels []model.PriceLevel) float64 {
	var notional, volume float64
	for _, l := range levels {
		if l.Volume <= 0 || l.Price <= 0 {
			continue
		}
		notional += l.Price * l.Volume
		volume += l.Volume
	}
	if volume <= 0 {
		return 0
	}
	return notional / volume
}

// Notional Σ(price·volume)
func Notional(levels []model.PriceLevel) float64 {
	var total float64
	for _, l := range levels {
		if l.Volume <= 0 || l.Price <= 0 {
			continue
		}
		total += l.Price * l.Volume
	}
	return total
}

// Filter 选出满足条件的档位
func Filter(levels []model.PriceLevel, keep func(price float64) bool) []model.PriceLevel {
	var out []model.PriceLevel
	for _, l := range levels {
		if keep(l.Price) {
			out = append(out, l)
		}
	}
	return out
}

// Mean 算术平均
func Mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
