package service

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// AmountPrecision 交易所数量精度 (小数位)
const AmountPrecision int32 = 8

func StringToFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func StringToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// StringToFloatOrZero 解析失败或空字符串时返回 0，用于交易所返回的可选数值字段
func StringToFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := StringToFloat(s)
	if err != nil {
		return 0
	}
	return v
}

func toDecimal(v float64) (decimal.Decimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(v), true
}

// Truncate 向零截断到指定小数位
func Truncate(v float64, places int32) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return d.Truncate(places).InexactFloat64()
}

// CeilTo 向上取整到指定小数位 (places=0 即整数)
func CeilTo(v float64, places int32) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return d.RoundCeil(places).InexactFloat64()
}

// FloorTo 向下取整到指定小数位
func FloorTo(v float64, places int32) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return d.RoundFloor(places).InexactFloat64()
}

// Round 四舍五入到指定小数位，用于组合估值
func Round(v float64, places int32) float64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return d.Round(places).InexactFloat64()
}

// FormatDecimal 以不带指数的十进制字符串输出，交易所下单参数使用
func FormatDecimal(v float64, places int32) string {
	d, ok := toDecimal(v)
	if !ok {
		return "0"
	}
	return d.Truncate(places).String()
}
