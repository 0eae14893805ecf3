package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/report"
)

const recentTransactionsLimit = 10

// DashboardStats считает сводку по отправлениям при каждом запросе.
func (s *Service) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	total, err := s.repo.CountCargo(ctx)
	if err != nil {
		return nil, err
	}

	revenue, err := s.repo.SumPaidRevenue(ctx)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.RecentCargo(ctx, recentTransactionsLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []model.Cargo{}
	}

	return &model.DashboardStats{
		TotalCargo:         total,
		TotalRevenue:       revenue,
		RecentTransactions: recent,
	}, nil
}

// QueryActivityLog возвращает записи журнала от новых к старым.
func (s *Service) QueryActivityLog(ctx context.Context, q model.ActivityQuery, limit int) ([]model.ActivityLogEntry, error) {
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return nil, validationError("end date is before start date")
	}
	return s.audit.Query(ctx, q, limit)
}

// WeeklySummary строит сводку по журналу за календарные дни [from, to];
// без дат берётся текущая неделя с воскресенья по субботу.
func (s *Service) WeeklySummary(ctx context.Context, from, to *time.Time) (*model.WeeklySummary, error) {
	weekStart, weekEnd := report.CurrentWeek(s.now(), s.loc)
	if from == nil {
		from = &weekStart
	}
	if to == nil {
		to = &weekEnd
	}

	q := model.ActivityQuery{StartDate: from, EndDate: to}
	entries, err := s.QueryActivityLog(ctx, q, s.audit.MaxLimit())
	if err != nil {
		return nil, err
	}
	if len(entries) == s.audit.MaxLimit() {
		s.logger.Warn("weekly summary truncated by log query limit", zap.Int("limit", len(entries)))
	}

	summary := report.Weekly(entries)
	filter := s.audit.Filter(q)
	summary.From = filter.From
	summary.To = filter.To
	return &summary, nil
}
