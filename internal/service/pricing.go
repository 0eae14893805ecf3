package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/pricing"
	"github.com/mmeshcher/cargodesk/internal/repository"
)

// GetPricingRule возвращает действующий тариф, создавая тариф по умолчанию при его отсутствии.
func (s *Service) GetPricingRule(ctx context.Context) (*model.PricingRule, error) {
	rule, err := s.repo.GetPricingRule(ctx)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, repository.ErrPricingRuleNotFound) {
		return nil, err
	}
	return s.repo.SavePricingRule(ctx, pricing.Default())
}

// SetPricingRule заменяет тариф. Уже созданные отправления не пересчитываются.
func (s *Service) SetPricingRule(ctx context.Context, baseCost, costPerKg decimal.Decimal) (*model.PricingRule, error) {
	if err := pricing.Validate(baseCost, costPerKg); err != nil {
		return nil, validationError("%s", err.Error())
	}
	return s.repo.SavePricingRule(ctx, model.PricingRule{
		BaseCost:  baseCost,
		CostPerKg: costPerKg,
	})
}
