// Package pricing содержит правило расчёта стоимости отправления.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
)

// ErrNegativeValue возвращается, если одно из значений правила отрицательно.
var ErrNegativeValue = errors.New("pricing values must be non-negative")

// Default возвращает правило, которое действует, пока администратор не задал своё.
func Default() model.PricingRule {
	return model.PricingRule{
		BaseCost:  decimal.NewFromInt(10),
		CostPerKg: decimal.NewFromInt(5),
	}
}

// Validate проверяет, что базовая стоимость и тариф за килограмм неотрицательны.
func Validate(baseCost, costPerKg decimal.Decimal) error {
	if baseCost.IsNegative() || costPerKg.IsNegative() {
		return ErrNegativeValue
	}
	return nil
}

// ComputeCost считает стоимость по снимку правила, переданному вызывающей стороной:
// base + weight * perKg.
func ComputeCost(weight decimal.Decimal, rule model.PricingRule) decimal.Decimal {
	return rule.BaseCost.Add(weight.Mul(rule.CostPerKg))
}
