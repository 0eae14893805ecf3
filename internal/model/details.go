package model

import "github.com/shopspring/decimal"

// CargoDetails: снимок отправления, который пишется в журнал при операциях с грузом.
// По этим записям строится недельный отчёт, поэтому формат полей стабилен.
type CargoDetails struct {
	TrackingNumber   string           `json:"trackingNumber"`
	SenderName       string           `json:"senderName,omitempty"`
	SenderContact    string           `json:"senderContact,omitempty"`
	ReceiverName     string           `json:"receiverName,omitempty"`
	ReceiverContact  string           `json:"receiverContact,omitempty"`
	Destination      string           `json:"destination,omitempty"`
	Weight           *decimal.Decimal `json:"weight,omitempty"`
	NumberOfItems    int              `json:"numberOfItems,omitempty"`
	Description      string           `json:"description,omitempty"`
	Cost             *decimal.Decimal `json:"cost,omitempty"`
	Status           CargoStatus      `json:"status,omitempty"`
	PaymentStatus    PaymentStatus    `json:"paymentStatus,omitempty"`
	SendingDate      string           `json:"sendingDate,omitempty"`
	OperatorID       *int64           `json:"operatorId,omitempty"`
	OperatorUsername string           `json:"operatorUsername,omitempty"`

	Action                CargoAction   `json:"action,omitempty"`
	PreviousStatus        CargoStatus   `json:"previousStatus,omitempty"`
	NewStatus             CargoStatus   `json:"newStatus,omitempty"`
	PreviousPaymentStatus PaymentStatus `json:"previousPaymentStatus,omitempty"`
	NewPaymentStatus      PaymentStatus `json:"newPaymentStatus,omitempty"`
}

// NewCargoDetails заполняет снимок всеми полями отправления.
func NewCargoDetails(c Cargo) CargoDetails {
	weight := c.Weight
	cost := c.Cost
	return CargoDetails{
		TrackingNumber:  c.TrackingNumber,
		SenderName:      c.SenderName,
		SenderContact:   c.SenderContact,
		ReceiverName:    c.ReceiverName,
		ReceiverContact: c.ReceiverContact,
		Destination:     c.Destination,
		Weight:          &weight,
		NumberOfItems:   c.NumberOfItems,
		Description:     c.Description,
		Cost:            &cost,
		Status:          c.Status,
		PaymentStatus:   c.PaymentStatus,
		SendingDate:     c.SendingDate.Format("2006-01-02"),
	}
}
