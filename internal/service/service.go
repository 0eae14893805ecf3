// Package service реализует бизнес-логику учёта грузоперевозок.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/audit"
	"github.com/mmeshcher/cargodesk/internal/authz"
	"github.com/mmeshcher/cargodesk/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateAccount(ctx context.Context, account model.Account, passwordHash []byte) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, []byte, error)
	ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	CountActiveAdmins(ctx context.Context) (int, error)
	SetAccountActive(ctx context.Context, id int64, active, keepActiveAdmin bool) (*model.Account, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash []byte) (*model.Account, error)
	UpdateProfile(ctx context.Context, id int64, patch model.ProfilePatch) (*model.Account, error)

	CreateCargo(ctx context.Context, cargo model.Cargo) (*model.Cargo, error)
	GetCargoByTrackingNumber(ctx context.Context, trackingNumber string) (*model.Cargo, error)
	SetCargoStatus(ctx context.Context, trackingNumber string, status model.CargoStatus) (*model.Cargo, error)
	SetCargoPaymentStatus(ctx context.Context, trackingNumber string, status model.PaymentStatus) (*model.Cargo, error)
	CountCargo(ctx context.Context) (int64, error)
	SumPaidRevenue(ctx context.Context) (decimal.Decimal, error)
	RecentCargo(ctx context.Context, limit int) ([]model.Cargo, error)

	GetPricingRule(ctx context.Context) (*model.PricingRule, error)
	SavePricingRule(ctx context.Context, rule model.PricingRule) (*model.PricingRule, error)
}

// Service содержит бизнес-логику: учётные записи, отправления, тарифы и отчёты.
type Service struct {
	repo     Repository
	audit    *audit.Log
	policy   *authz.Policy
	tracking *TrackingGenerator
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// Option настраивает сервис.
type Option func(*Service)

// WithLocation задаёт часовой пояс для календарных дат (дата отправки, недельный отчёт).
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTrackingGenerator подменяет генератор трек-номеров.
func WithTrackingGenerator(g *TrackingGenerator) Option {
	return func(s *Service) {
		s.tracking = g
	}
}

// NewService создаёт сервис с указанным репозиторием, журналом действий и политикой доступа.
func NewService(repo Repository, auditLog *audit.Log, policy *authz.Policy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		audit:    auditLog,
		policy:   policy,
		tracking: NewTrackingGenerator(),
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) logActor(ctx context.Context, action model.Action, actor *model.Actor, details any) {
	if actor == nil {
		s.audit.Append(ctx, action, nil, "", details)
		return
	}
	id := actor.ID
	s.audit.Append(ctx, action, &id, actor.Username, details)
}
