package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/cargodesk/internal/audit"
	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/pricing"
	"github.com/mmeshcher/cargodesk/internal/repository"
	"github.com/mmeshcher/cargodesk/internal/validation"
)

const maxTrackingAttempts = 5

// CreateCargo принимает отправление: считает стоимость по текущему тарифу,
// присваивает трек-номер и пишет CREATE_CARGO в журнал.
func (s *Service) CreateCargo(ctx context.Context, actor *model.Actor, in model.NewCargo) (*model.Cargo, error) {
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.ReceiverName = strings.TrimSpace(in.ReceiverName)
	in.Destination = strings.TrimSpace(in.Destination)

	switch {
	case in.SenderName == "":
		return nil, validationError("sender name is required")
	case in.ReceiverName == "":
		return nil, validationError("receiver name is required")
	case in.Destination == "":
		return nil, validationError("destination is required")
	case in.Weight.IsNegative():
		return nil, validationError("weight must not be negative")
	case in.NumberOfItems < 0:
		return nil, validationError("number of items must be positive")
	}

	if in.NumberOfItems == 0 {
		in.NumberOfItems = 1
	}
	switch in.PaymentStatus {
	case "":
		in.PaymentStatus = model.PaymentStatusUnpaid
	case model.PaymentStatusPaid, model.PaymentStatusUnpaid:
	default:
		return nil, validationError("unknown payment status %q", in.PaymentStatus)
	}

	rule, err := s.GetPricingRule(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sendingDate := audit.StartOfDay(now, s.loc)
	if in.SendingDate != nil {
		sendingDate = audit.StartOfDay(*in.SendingDate, s.loc)
	}

	cargo := model.Cargo{
		SenderName:      in.SenderName,
		SenderContact:   strings.TrimSpace(in.SenderContact),
		ReceiverName:    in.ReceiverName,
		ReceiverContact: strings.TrimSpace(in.ReceiverContact),
		Destination:     in.Destination,
		Weight:          in.Weight,
		NumberOfItems:   in.NumberOfItems,
		Description:     strings.TrimSpace(in.Description),
		Cost:            pricing.ComputeCost(in.Weight, *rule),
		Status:          model.CargoStatusSent,
		PaymentStatus:   in.PaymentStatus,
		SendingDate:     sendingDate,
		CreatedAt:       now,
	}

	var created *model.Cargo
	for attempt := 1; ; attempt++ {
		cargo.TrackingNumber = s.tracking.Next()
		created, err = s.repo.CreateCargo(ctx, cargo)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrTrackingNumberTaken) || attempt >= maxTrackingAttempts {
			return nil, err
		}
		s.logger.Warn("tracking number collision, retrying",
			zap.String("trackingNumber", cargo.TrackingNumber),
			zap.Int("attempt", attempt),
		)
	}

	details := model.NewCargoDetails(*created)
	if actor != nil {
		id := actor.ID
		details.OperatorID = &id
		details.OperatorUsername = actor.Username
	}
	s.logActor(ctx, model.ActionCreateCargo, actor, details)

	return created, nil
}

// FindCargo возвращает отправление по трек-номеру.
func (s *Service) FindCargo(ctx context.Context, trackingNumber string) (*model.Cargo, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, validationError("tracking number is required")
	}
	if !validation.IsValidTrackingNumber(trackingNumber) {
		return nil, validationError("invalid tracking number %q", trackingNumber)
	}

	cargo, err := s.repo.GetCargoByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		if errors.Is(err, repository.ErrCargoNotFound) {
			return nil, notFoundError("cargo %q", trackingNumber)
		}
		return nil, err
	}
	return cargo, nil
}

// ApplyCargoAction выполняет переход PAY (UNPAID→PAID) или RECEIVE (SENT→RECEIVED).
// Повторный переход в то же состояние не считается ошибкой.
func (s *Service) ApplyCargoAction(ctx context.Context, actor *model.Actor, trackingNumber string, action model.CargoAction) (*model.Cargo, error) {
	if action != model.CargoActionPay && action != model.CargoActionReceive {
		return nil, validationError("invalid action %q", action)
	}

	before, err := s.FindCargo(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	var (
		after    *model.Cargo
		logEvent model.Action
	)
	switch action {
	case model.CargoActionPay:
		after, err = s.repo.SetCargoPaymentStatus(ctx, before.TrackingNumber, model.PaymentStatusPaid)
		logEvent = model.ActionPayCargo
	case model.CargoActionReceive:
		after, err = s.repo.SetCargoStatus(ctx, before.TrackingNumber, model.CargoStatusReceived)
		logEvent = model.ActionReceiveCargo
	}
	if err != nil {
		if errors.Is(err, repository.ErrCargoNotFound) {
			return nil, notFoundError("cargo %q", before.TrackingNumber)
		}
		return nil, err
	}

	details := model.NewCargoDetails(*after)
	details.Action = action
	details.PreviousStatus = before.Status
	details.NewStatus = after.Status
	details.PreviousPaymentStatus = before.PaymentStatus
	details.NewPaymentStatus = after.PaymentStatus
	if actor != nil {
		id := actor.ID
		details.OperatorID = &id
		details.OperatorUsername = actor.Username
	}
	s.logActor(ctx, logEvent, actor, details)

	return after, nil
}
