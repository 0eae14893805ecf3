package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/repository"
	"github.com/mmeshcher/cargodesk/internal/validation"
)

type accountDetails struct {
	TargetID       int64      `json:"targetId,omitempty"`
	TargetUsername string     `json:"targetUsername"`
	Role           model.Role `json:"role,omitempty"`
	PerformedBy    string     `json:"performedBy,omitempty"`
}

type profileDetails struct {
	TargetID       int64              `json:"targetId"`
	TargetUsername string             `json:"targetUsername"`
	Changes        model.ProfilePatch `json:"changes"`
	PerformedBy    string             `json:"performedBy,omitempty"`
}

type loginDetails struct {
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}

// CreateAccount создаёт учётную запись оператора или администратора.
func (s *Service) CreateAccount(ctx context.Context, actor model.Actor, in model.NewAccount) (*model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, validationError("username and password are required")
	}
	if !validation.IsValidUsername(in.Username) {
		return nil, validationError("username %q contains unsupported characters", in.Username)
	}
	if in.Role == "" {
		in.Role = model.RoleOperator
	}
	if !in.Role.Valid() {
		return nil, validationError("unknown role %q", in.Role)
	}
	if s.policy.IsSuperAdmin(in.Username) {
		return nil, fmt.Errorf("%w: username %q is reserved", ErrConflict, in.Username)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validationError("password is too long")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateAccount(ctx, model.Account{
		Username: in.Username,
		Role:     in.Role,
		IsActive: true,
		Profile:  in.Profile,
	}, hash)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, fmt.Errorf("%w: username %q already exists", ErrConflict, in.Username)
		}
		return nil, err
	}

	s.logActor(ctx, model.ActionCreateUser, &actor, accountDetails{
		TargetID:       created.ID,
		TargetUsername: created.Username,
		Role:           created.Role,
		PerformedBy:    actor.Username,
	})

	return s.decorate(created), nil
}

// DeleteAccount удаляет учётную запись, если это разрешено правилами доступа.
func (s *Service) DeleteAccount(ctx context.Context, actor model.Actor, targetID int64) error {
	target, err := s.loadAccount(ctx, targetID)
	if err != nil {
		return err
	}

	if !s.policy.CanDelete(actor, *target) {
		if s.policy.IsSuperAdminAccount(*target) {
			return permissionError("the super admin account cannot be deleted")
		}
		return permissionError("only the super admin can delete administrators")
	}

	if err := s.repo.DeleteAccount(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return notFoundError("account %d", targetID)
		}
		return err
	}

	s.logActor(ctx, model.ActionDeleteUser, &actor, accountDetails{
		TargetID:       target.ID,
		TargetUsername: target.Username,
		Role:           target.Role,
		PerformedBy:    actor.Username,
	})

	return nil
}

// SetAccountActive включает или отключает учётную запись.
func (s *Service) SetAccountActive(ctx context.Context, actor model.Actor, targetID int64, active bool) (*model.Account, error) {
	target, err := s.loadAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if s.policy.IsSuperAdminAccount(*target) {
		return nil, permissionError("the super admin account cannot be activated or deactivated")
	}

	keepActiveAdmin := false
	if !active && target.Role == model.RoleAdmin {
		count, err := s.repo.CountActiveAdmins(ctx)
		if err != nil {
			return nil, err
		}
		if !s.policy.CanDeactivateAdmin(actor, *target, count) {
			return nil, permissionError("cannot deactivate the last active administrator")
		}
		keepActiveAdmin = !s.policy.IsSuperAdminActor(actor)
	}

	updated, err := s.repo.SetAccountActive(ctx, targetID, active, keepActiveAdmin)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLastActiveAdmin):
			return nil, permissionError("cannot deactivate the last active administrator")
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, notFoundError("account %d", targetID)
		}
		return nil, err
	}

	action := model.ActionDeactivateUser
	if active {
		action = model.ActionActivateUser
	}
	s.logActor(ctx, action, &actor, accountDetails{
		TargetID:       updated.ID,
		TargetUsername: updated.Username,
		Role:           updated.Role,
		PerformedBy:    actor.Username,
	})

	return s.decorate(updated), nil
}

// ResetPassword задаёт новый пароль учётной записи. Пароль в журнал не попадает.
func (s *Service) ResetPassword(ctx context.Context, actor model.Actor, targetID int64, newPassword string) (*model.Account, error) {
	if len(newPassword) < minPasswordLength {
		return nil, validationError("password must be at least %d characters", minPasswordLength)
	}

	target, err := s.loadAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanResetPassword(actor, *target) {
		if s.policy.IsSuperAdminAccount(*target) {
			return nil, permissionError("the super admin password cannot be reset")
		}
		return nil, permissionError("only administrators can reset passwords")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, validationError("password is too long")
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	updated, err := s.repo.UpdatePassword(ctx, targetID, hash)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFoundError("account %d", targetID)
		}
		return nil, err
	}

	s.logActor(ctx, model.ActionResetPassword, &actor, accountDetails{
		TargetID:       updated.ID,
		TargetUsername: updated.Username,
		PerformedBy:    actor.Username,
	})

	return s.decorate(updated), nil
}

// UpdateProfile применяет только переданные поля профиля.
func (s *Service) UpdateProfile(ctx context.Context, actor model.Actor, targetID int64, patch model.ProfilePatch) (*model.Account, error) {
	if patch.Email != nil && *patch.Email != "" && !validation.IsValidEmail(*patch.Email) {
		return nil, validationError("invalid email %q", *patch.Email)
	}

	target, err := s.loadAccount(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanEditProfile(actor, *target) {
		if s.policy.IsSuperAdminAccount(*target) {
			return nil, permissionError("the super admin profile cannot be changed")
		}
		return nil, permissionError("cannot edit another user's profile")
	}

	// Патч, который ничего не меняет, в хранилище не пишется.
	updated := target
	if patch.Apply(target.Profile) != target.Profile {
		updated, err = s.repo.UpdateProfile(ctx, targetID, patch)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, notFoundError("account %d", targetID)
			}
			return nil, err
		}
	}

	s.logActor(ctx, model.ActionUpdateProfile, &actor, profileDetails{
		TargetID:       updated.ID,
		TargetUsername: updated.Username,
		Changes:        patch,
		PerformedBy:    actor.Username,
	})

	return s.decorate(updated), nil
}

// ListAccounts возвращает учётные записи, при необходимости только с указанной ролью.
func (s *Service) ListAccounts(ctx context.Context, role *model.Role) ([]model.Account, error) {
	if role != nil && !role.Valid() {
		return nil, validationError("unknown role %q", *role)
	}

	accounts, err := s.repo.ListAccounts(ctx, role)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].SuperAdmin = s.policy.IsSuperAdmin(accounts[i].Username)
	}
	return accounts, nil
}

// GetAccount возвращает учётную запись по идентификатору.
// Для идентификатора суперадминистратора без записи в БД возвращается синтетическая запись.
func (s *Service) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return s.loadAccount(ctx, id)
}

// Authenticate проверяет логин и пароль и пишет в журнал LOGIN или LOGIN_FAILED.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.Account, error) {
	if username == "" || password == "" {
		s.audit.Append(ctx, model.ActionLoginFailed, nil, username, loginDetails{Username: username, Reason: "missing credentials"})
		return nil, validationError("username and password are required")
	}

	if s.policy.IsRetired(username, password) {
		s.audit.Append(ctx, model.ActionLoginFailed, nil, username, loginDetails{Username: username, Reason: "retired credentials"})
		return nil, ErrInvalidCredentials
	}

	if s.policy.MatchesSuperAdmin(username, password) {
		account := s.policy.SuperAdminAccount()
		s.audit.Append(ctx, model.ActionLogin, &account.ID, account.Username, loginDetails{Username: account.Username})
		return &account, nil
	}

	account, hash, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.audit.Append(ctx, model.ActionLoginFailed, nil, username, loginDetails{Username: username, Reason: "unknown username"})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !verifyPassword(hash, password) {
		s.audit.Append(ctx, model.ActionLoginFailed, nil, username, loginDetails{Username: username, Reason: "wrong password"})
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		s.audit.Append(ctx, model.ActionLoginFailed, nil, username, loginDetails{Username: username, Reason: "account deactivated"})
		return nil, ErrAccountDeactivated
	}

	s.audit.Append(ctx, model.ActionLogin, &account.ID, account.Username, loginDetails{Username: account.Username})
	return s.decorate(account), nil
}

func (s *Service) loadAccount(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if id == s.policy.SuperAdminAccount().ID {
				synthetic := s.policy.SuperAdminAccount()
				return &synthetic, nil
			}
			return nil, notFoundError("account %d", id)
		}
		return nil, err
	}
	return s.decorate(account), nil
}

func (s *Service) decorate(a *model.Account) *model.Account {
	a.SuperAdmin = s.policy.IsSuperAdmin(a.Username)
	return a
}
