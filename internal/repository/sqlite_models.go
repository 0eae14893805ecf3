package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/mmeshcher/cargodesk/internal/model"
)

type userModel struct {
	ID           int64 `gorm:"primaryKey"`
	Username     string
	PasswordHash []byte
	Role         string
	IsActive     bool
	Country      string
	Branch       string
	Email        string
	Address      string
	Contact      string
	CreatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func (m userModel) toAccount() *model.Account {
	return &model.Account{
		ID:       m.ID,
		Username: m.Username,
		Role:     model.Role(m.Role),
		IsActive: m.IsActive,
		Profile: model.Profile{
			Country: m.Country,
			Branch:  m.Branch,
			Email:   m.Email,
			Address: m.Address,
			Contact: m.Contact,
		},
		CreatedAt: m.CreatedAt,
	}
}

type cargoModel struct {
	ID              int64 `gorm:"primaryKey"`
	TrackingNumber  string
	SenderName      string
	SenderContact   string
	ReceiverName    string
	ReceiverContact string
	Destination     string
	Weight          decimal.Decimal
	NumberOfItems   int
	Description     string
	Cost            decimal.Decimal
	Status          string
	PaymentStatus   string
	SendingDate     time.Time
	CreatedAt       time.Time
}

func (cargoModel) TableName() string { return "cargo" }

func (m cargoModel) toCargo() model.Cargo {
	return model.Cargo{
		ID:              m.ID,
		TrackingNumber:  m.TrackingNumber,
		SenderName:      m.SenderName,
		SenderContact:   m.SenderContact,
		ReceiverName:    m.ReceiverName,
		ReceiverContact: m.ReceiverContact,
		Destination:     m.Destination,
		Weight:          m.Weight,
		NumberOfItems:   m.NumberOfItems,
		Description:     m.Description,
		Cost:            m.Cost,
		Status:          model.CargoStatus(m.Status),
		PaymentStatus:   model.PaymentStatus(m.PaymentStatus),
		SendingDate:     m.SendingDate,
		CreatedAt:       m.CreatedAt,
	}
}

type pricingModel struct {
	ID        int `gorm:"primaryKey;autoIncrement:false"`
	BaseCost  decimal.Decimal
	CostPerKg decimal.Decimal
}

func (pricingModel) TableName() string { return "pricing_config" }

type activityModel struct {
	ID        int64 `gorm:"primaryKey"`
	Action    string
	UserID    *int64
	Username  *string
	Details   *datatypes.JSON
	Timestamp time.Time
}

func (activityModel) TableName() string { return "activity_log" }

func (m activityModel) toEntry() model.ActivityLogEntry {
	e := model.ActivityLogEntry{
		ID:        m.ID,
		Action:    model.Action(m.Action),
		UserID:    m.UserID,
		Timestamp: m.Timestamp,
	}
	if m.Username != nil {
		e.Username = *m.Username
	}
	if m.Details != nil {
		e.Details = string(*m.Details)
	}
	return e
}
