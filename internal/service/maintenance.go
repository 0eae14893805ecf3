package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/repository"
)

const systemActor = "system"

// SeedPricingRule сохраняет тариф по умолчанию, если тариф ещё не задан.
func (s *Service) SeedPricingRule(ctx context.Context) (*model.PricingRule, error) {
	return s.GetPricingRule(ctx)
}

// SeedSuperAdmin создаёт запись суперадминистратора в хранилище, если её нет.
// Возвращает true, если запись была создана.
func (s *Service) SeedSuperAdmin(ctx context.Context, password string) (bool, error) {
	username := s.policy.SuperAdminUsername()
	if username == "" || len(password) < minPasswordLength {
		return false, validationError("super admin username and password are required")
	}

	if _, _, err := s.repo.GetAccountByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return false, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}

	created, err := s.repo.CreateAccount(ctx, model.Account{
		Username: username,
		Role:     model.RoleAdmin,
		IsActive: true,
	}, hash)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return false, nil
		}
		return false, err
	}

	s.audit.Append(ctx, model.ActionCreateUser, nil, systemActor, accountDetails{
		TargetID:       created.ID,
		TargetUsername: created.Username,
		Role:           created.Role,
		PerformedBy:    systemActor,
	})
	return true, nil
}

// PurgeRetiredAccounts удаляет сохранённые учётные записи с логинами из списка
// выведенных из оборота учётных данных. Возвращает удалённые логины.
func (s *Service) PurgeRetiredAccounts(ctx context.Context) ([]string, error) {
	var purged []string
	for _, username := range s.policy.RetiredUsernames() {
		if s.policy.IsSuperAdmin(username) {
			s.logger.Warn("retired username matches super admin, skipped", zap.String("username", username))
			continue
		}

		account, _, err := s.repo.GetAccountByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				continue
			}
			return purged, err
		}

		if err := s.repo.DeleteAccount(ctx, account.ID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				continue
			}
			return purged, err
		}

		s.audit.Append(ctx, model.ActionDeleteUser, nil, systemActor, accountDetails{
			TargetID:       account.ID,
			TargetUsername: account.Username,
			Role:           account.Role,
			PerformedBy:    systemActor,
		})
		purged = append(purged, account.Username)
	}
	return purged, nil
}
