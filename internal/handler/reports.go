package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
	"github.com/mmeshcher/cargodesk/internal/validation"
)

type pricingRequest struct {
	BaseCost  *decimal.Decimal `json:"baseCost"`
	CostPerKg *decimal.Decimal `json:"costPerKg"`
}

// SetPricing заменяет действующий тариф. Оба поля обязательны.
func (h *Handler) SetPricing(w http.ResponseWriter, r *http.Request) {
	var req pricingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "set pricing", err)
		return
	}
	if req.BaseCost == nil || req.CostPerKg == nil {
		h.writeError(w, r, "set pricing", fmt.Errorf("%w: baseCost and costPerKg are required", errMalformedBody))
		return
	}

	rule, err := h.service.SetPricingRule(r.Context(), *req.BaseCost, *req.CostPerKg)
	if err != nil {
		h.writeError(w, r, "set pricing", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// GetLogs возвращает журнал действий с фильтрами ?action=, ?startDate=, ?endDate= и ?limit=.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, to, err := h.dateRange(query.Get("startDate"), query.Get("endDate"))
	if err != nil {
		h.writeError(w, r, "get logs", err)
		return
	}

	limit := 0
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit < 0 {
			h.writeError(w, r, "get logs", fmt.Errorf("%w: invalid limit %q", errMalformedBody, value))
			return
		}
	}

	entries, err := h.service.QueryActivityLog(r.Context(), model.ActivityQuery{
		Action:    model.Action(strings.ToUpper(strings.TrimSpace(query.Get("action")))),
		StartDate: from,
		EndDate:   to,
	}, limit)
	if err != nil {
		h.writeError(w, r, "get logs", err)
		return
	}
	if entries == nil {
		entries = []model.ActivityLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// WeeklyReport возвращает сводку за период; без дат используется текущая неделя.
func (h *Handler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, to, err := h.dateRange(query.Get("startDate"), query.Get("endDate"))
	if err != nil {
		h.writeError(w, r, "weekly report", err)
		return
	}

	summary, err := h.service.WeeklySummary(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, "weekly report", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Stats возвращает сводку для главной страницы администратора.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.writeError(w, r, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) dateRange(start, end string) (*time.Time, *time.Time, error) {
	from, errFrom := validation.ParseDate(start, h.loc)
	to, errTo := validation.ParseDate(end, h.loc)
	if err := errors.Join(errFrom, errTo); err != nil {
		return nil, nil, fmt.Errorf("%w: dates must use the %s layout", errMalformedBody, validation.DateLayout)
	}
	return from, to, nil
}
