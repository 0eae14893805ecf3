package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/validation"
)

type createCargoRequest struct {
	SenderName      string              `json:"senderName"`
	SenderContact   string              `json:"senderContact"`
	ReceiverName    string              `json:"receiverName"`
	ReceiverContact string              `json:"receiverContact"`
	Destination     string              `json:"destination"`
	Weight          *decimal.Decimal    `json:"weight"`
	NumberOfItems   int                 `json:"numberOfItems"`
	Description     string              `json:"description"`
	SendingDate     string              `json:"sendingDate"`
	PaymentStatus   model.PaymentStatus `json:"paymentStatus"`
}

type cargoActionRequest struct {
	Action model.CargoAction `json:"action"`
}

// GetPricing возвращает действующий тариф.
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetPricingRule(r.Context())
	if err != nil {
		h.writeError(w, r, "get pricing", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateCargo принимает новое отправление.
func (h *Handler) CreateCargo(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createCargoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "create cargo", err)
		return
	}

	if req.Weight == nil {
		h.writeError(w, r, "create cargo", fmt.Errorf("%w: weight is required", errMalformedBody))
		return
	}

	sendingDate, err := validation.ParseDate(req.SendingDate, h.loc)
	if err != nil {
		h.writeError(w, r, "create cargo", fmt.Errorf("%w: invalid sending date %q", errMalformedBody, req.SendingDate))
		return
	}

	cargo, err := h.service.CreateCargo(r.Context(), &actor, model.NewCargo{
		SenderName:      req.SenderName,
		SenderContact:   req.SenderContact,
		ReceiverName:    req.ReceiverName,
		ReceiverContact: req.ReceiverContact,
		Destination:     req.Destination,
		Weight:          *req.Weight,
		NumberOfItems:   req.NumberOfItems,
		Description:     req.Description,
		SendingDate:     sendingDate,
		PaymentStatus:   model.PaymentStatus(strings.ToUpper(string(req.PaymentStatus))),
	})
	if err != nil {
		h.writeError(w, r, "create cargo", err)
		return
	}
	writeJSON(w, http.StatusCreated, cargo)
}

// GetCargo ищет отправление по трек-номеру.
func (h *Handler) GetCargo(w http.ResponseWriter, r *http.Request) {
	cargo, err := h.service.FindCargo(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		h.writeError(w, r, "get cargo", err)
		return
	}
	writeJSON(w, http.StatusOK, cargo)
}

// CargoAction применяет действие PAY или RECEIVE к отправлению.
func (h *Handler) CargoAction(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req cargoActionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "cargo action", err)
		return
	}

	action := model.CargoAction(strings.ToUpper(string(req.Action)))
	cargo, err := h.service.ApplyCargoAction(r.Context(), &actor, chi.URLParam(r, "trackingNumber"), action)
	if err != nil {
		h.writeError(w, r, "cargo action", err)
		return
	}
	writeJSON(w, http.StatusOK, cargo)
}
