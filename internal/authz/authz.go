// Package authz содержит правила доступа к операциям над учётными записями.
package authz

import (
	"crypto/subtle"

	"github.com/mmeshcher/cargodesk/internal/model"
)

// SuperAdminID: идентификатор, под которым работает суперадминистратор без записи в БД.
const SuperAdminID int64 = 0

// Principal описывает привилегированную учётную запись, заданную конфигурацией.
// Пустой Password отключает вход без записи в хранилище.
type Principal struct {
	Username string
	Password string
}

// Credential: пара логин/пароль.
type Credential struct {
	Username string
	Password string
}

// Policy принимает решения о доступе. Все методы чистые и не обращаются к хранилищу.
type Policy struct {
	superAdmin Principal
	retired    []Credential
}

// NewPolicy создаёт политику для указанного суперадминистратора и списка выведенных из оборота учётных данных.
func NewPolicy(superAdmin Principal, retired []Credential) *Policy {
	return &Policy{
		superAdmin: superAdmin,
		retired:    retired,
	}
}

// SuperAdminUsername возвращает логин суперадминистратора.
func (p *Policy) SuperAdminUsername() string {
	return p.superAdmin.Username
}

// IsSuperAdmin сообщает, принадлежит ли логин суперадминистратору.
func (p *Policy) IsSuperAdmin(username string) bool {
	return p.superAdmin.Username != "" && username == p.superAdmin.Username
}

// IsSuperAdminActor сообщает, обладает ли вызывающий привилегиями суперадминистратора.
func (p *Policy) IsSuperAdminActor(actor model.Actor) bool {
	return actor.ID == SuperAdminID || p.IsSuperAdmin(actor.Username)
}

// IsSuperAdminAccount сообщает, является ли целевая учётная запись суперадминистратором.
func (p *Policy) IsSuperAdminAccount(target model.Account) bool {
	return target.SuperAdmin || p.IsSuperAdmin(target.Username)
}

// MatchesSuperAdmin сравнивает учётные данные с данными суперадминистратора за постоянное время.
func (p *Policy) MatchesSuperAdmin(username, password string) bool {
	if p.superAdmin.Password == "" || !p.IsSuperAdmin(username) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(p.superAdmin.Password)) == 1
}

// IsRetired сообщает, что пара логин/пароль входит в список запрещённых.
func (p *Policy) IsRetired(username, password string) bool {
	for _, c := range p.retired {
		if c.Username == username && c.Password == password {
			return true
		}
	}
	return false
}

// RetiredUsernames возвращает логины из списка запрещённых учётных данных.
func (p *Policy) RetiredUsernames() []string {
	names := make([]string, 0, len(p.retired))
	for _, c := range p.retired {
		names = append(names, c.Username)
	}
	return names
}

// SuperAdminAccount возвращает синтетическую учётную запись суперадминистратора.
func (p *Policy) SuperAdminAccount() model.Account {
	return model.Account{
		ID:         SuperAdminID,
		Username:   p.superAdmin.Username,
		Role:       model.RoleAdmin,
		IsActive:   true,
		SuperAdmin: true,
	}
}

// CanDelete решает, может ли actor удалить target.
func (p *Policy) CanDelete(actor model.Actor, target model.Account) bool {
	if p.IsSuperAdminAccount(target) {
		return false
	}
	switch target.Role {
	case model.RoleOperator:
		return true
	case model.RoleAdmin:
		return p.IsSuperAdminActor(actor)
	default:
		return false
	}
}

// CanDeactivateAdmin решает, может ли actor отключить target при activeAdmins активных администраторах.
func (p *Policy) CanDeactivateAdmin(actor model.Actor, target model.Account, activeAdmins int) bool {
	if p.IsSuperAdminAccount(target) {
		return false
	}
	if target.Role == model.RoleAdmin && !p.IsSuperAdminActor(actor) {
		return activeAdmins > 1
	}
	return true
}

// CanResetPassword решает, может ли actor сменить пароль target.
func (p *Policy) CanResetPassword(actor model.Actor, target model.Account) bool {
	if p.IsSuperAdminAccount(target) {
		return false
	}
	return actor.Role == model.RoleAdmin || p.IsSuperAdminActor(actor)
}

// CanEditProfile решает, может ли actor изменить профиль target.
// Сотрудник правит свой профиль сам, чужие профили правит администратор.
func (p *Policy) CanEditProfile(actor model.Actor, target model.Account) bool {
	if p.IsSuperAdminAccount(target) {
		return false
	}
	if actor.ID == target.ID {
		return true
	}
	return actor.Role == model.RoleAdmin || p.IsSuperAdminActor(actor)
}
