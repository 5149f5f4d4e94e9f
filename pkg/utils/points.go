package utils

import (
	"github.com/shopspring/decimal"
)

// PointsScale 积分保留两位小数
const PointsScale = 2

// RoundPoints 积分统一四舍五入到 0.01
func RoundPoints(d decimal.Decimal) decimal.Decimal {
	return d.Round(PointsScale)
}

// PointsValue 转为响应中的数值
func PointsValue(d decimal.Decimal) float64 {
	return d.Round(PointsScale).InexactFloat64()
}
