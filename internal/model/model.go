// Package model содержит доменные сущности сервиса учёта грузоперевозок.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль учётной записи.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
)

// Valid сообщает, является ли значение известной ролью.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOperator
}

// Profile содержит анкетные данные сотрудника филиала.
type Profile struct {
	Country string `json:"country,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// ProfilePatch описывает частичное обновление профиля: nil-поля остаются без изменений.
type ProfilePatch struct {
	Country *string `json:"country,omitempty"`
	Branch  *string `json:"branch,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Contact *string `json:"contact,omitempty"`
}

// Apply возвращает профиль с применёнными изменениями.
func (p ProfilePatch) Apply(to Profile) Profile {
	if p.Country != nil {
		to.Country = *p.Country
	}
	if p.Branch != nil {
		to.Branch = *p.Branch
	}
	if p.Email != nil {
		to.Email = *p.Email
	}
	if p.Address != nil {
		to.Address = *p.Address
	}
	if p.Contact != nil {
		to.Contact = *p.Contact
	}
	return to
}

// Account представляет учётную запись оператора или администратора.
// Пароль в структуру не входит и наружу не отдаётся.
type Account struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Role       Role      `json:"role"`
	IsActive   bool      `json:"isActive"`
	Profile    Profile   `json:"profile"`
	SuperAdmin bool      `json:"isSuperAdmin"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// Actor описывает пользователя, от имени которого выполняется операция.
type Actor struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NewAccount содержит данные для создания учётной записи.
type NewAccount struct {
	Username string
	Password string
	Role     Role
	Profile  Profile
}

// CargoStatus описывает статус доставки груза.
type CargoStatus string

const (
	CargoStatusSent     CargoStatus = "SENT"
	CargoStatusReceived CargoStatus = "RECEIVED"
)

// PaymentStatus описывает статус оплаты груза.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// CargoAction описывает допустимый переход состояния груза.
type CargoAction string

const (
	CargoActionPay     CargoAction = "PAY"
	CargoActionReceive CargoAction = "RECEIVE"
)

// Cargo описывает отправление.
type Cargo struct {
	ID              int64           `json:"id"`
	TrackingNumber  string          `json:"trackingNumber"`
	SenderName      string          `json:"senderName"`
	SenderContact   string          `json:"senderContact,omitempty"`
	ReceiverName    string          `json:"receiverName"`
	ReceiverContact string          `json:"receiverContact,omitempty"`
	Destination     string          `json:"destination"`
	Weight          decimal.Decimal `json:"weight"`
	NumberOfItems   int             `json:"numberOfItems"`
	Description     string          `json:"description,omitempty"`
	Cost            decimal.Decimal `json:"cost"`
	Status          CargoStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	SendingDate     time.Time       `json:"sendingDate"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// NewCargo содержит данные, введённые оператором при приёме отправления.
type NewCargo struct {
	SenderName      string
	SenderContact   string
	ReceiverName    string
	ReceiverContact string
	Destination     string
	Weight          decimal.Decimal
	NumberOfItems   int
	Description     string
	SendingDate     *time.Time
	PaymentStatus   PaymentStatus
}

// PricingRule описывает единственное глобальное правило расчёта стоимости.
type PricingRule struct {
	BaseCost  decimal.Decimal `json:"baseCost"`
	CostPerKg decimal.Decimal `json:"costPerKg"`
}

// Action описывает тип записи журнала действий.
type Action string

const (
	ActionCreateCargo    Action = "CREATE_CARGO"
	ActionPayCargo       Action = "PAY_CARGO"
	ActionReceiveCargo   Action = "RECEIVE_CARGO"
	ActionLogin          Action = "LOGIN"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionCreateUser     Action = "CREATE_USER"
	ActionDeleteUser     Action = "DELETE_USER"
	ActionActivateUser   Action = "ACTIVATE_USER"
	ActionDeactivateUser Action = "DEACTIVATE_USER"
	ActionResetPassword  Action = "RESET_PASSWORD"
	ActionUpdateProfile  Action = "UPDATE_PROFILE"
)

// ActivityLogEntry описывает неизменяемую запись журнала действий.
type ActivityLogEntry struct {
	ID        int64     `json:"id"`
	Action    Action    `json:"action"`
	UserID    *int64    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityQuery задаёт фильтр журнала по календарным дням.
type ActivityQuery struct {
	Action    Action
	StartDate *time.Time
	EndDate   *time.Time
}

// ActivityFilter задаёт фильтр журнала по точным границам времени.
// Нулевые значения означают отсутствие границы.
type ActivityFilter struct {
	Action Action
	From   time.Time
	To     time.Time
}

// DashboardStats содержит сводку для главной страницы администратора.
type DashboardStats struct {
	TotalCargo         int64           `json:"totalCargo"`
	TotalRevenue       decimal.Decimal `json:"totalRevenue"`
	RecentTransactions []Cargo         `json:"recentTransactions"`
}

// OperatorStats содержит показатели одного оператора за период.
type OperatorStats struct {
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

// WeeklySummary содержит недельный отчёт, восстановленный по журналу действий.
type WeeklySummary struct {
	From               time.Time                `json:"from,omitzero"`
	To                 time.Time                `json:"to,omitzero"`
	TotalTransactions  int                      `json:"totalTransactions"`
	PaidTransactions   int                      `json:"paidTransactions"`
	UnpaidTransactions int                      `json:"unpaidTransactions"`
	TotalRevenue       decimal.Decimal          `json:"totalRevenue"`
	PerOperator        map[string]OperatorStats `json:"perOperator"`
}
