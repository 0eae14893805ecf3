// Package report строит отчёты по журналу действий.
package report

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/cargodesk/internal/model"
)

// UnknownOperator подставляется, если у записи журнала нет имени пользователя.
const UnknownOperator = "Unknown"

// Weekly восстанавливает недельную сводку по записям CREATE/PAY/RECEIVE_CARGO.
// Записи без стоимости, с нулевой стоимостью или с нечитаемыми деталями пропускаются.
func Weekly(entries []model.ActivityLogEntry) model.WeeklySummary {
	summary := model.WeeklySummary{
		TotalRevenue: decimal.Zero,
		PerOperator:  make(map[string]model.OperatorStats),
	}

	for _, e := range entries {
		if !isCargoAction(e.Action) || e.Details == "" {
			continue
		}

		var d model.CargoDetails
		if err := json.Unmarshal([]byte(e.Details), &d); err != nil {
			continue
		}
		if d.Cost == nil || d.Cost.IsZero() {
			continue
		}

		summary.TotalRevenue = summary.TotalRevenue.Add(*d.Cost)
		summary.TotalTransactions++
		if d.PaymentStatus == model.PaymentStatusPaid || d.NewPaymentStatus == model.PaymentStatusPaid {
			summary.PaidTransactions++
		}

		operator := e.Username
		if operator == "" {
			operator = UnknownOperator
		}
		stats, ok := summary.PerOperator[operator]
		if !ok {
			stats.Revenue = decimal.Zero
		}
		stats.Count++
		stats.Revenue = stats.Revenue.Add(*d.Cost)
		summary.PerOperator[operator] = stats
	}

	summary.UnpaidTransactions = summary.TotalTransactions - summary.PaidTransactions
	return summary
}

// CurrentWeek возвращает границы недели, содержащей now: с воскресенья 00:00 по субботу.
func CurrentWeek(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d-int(local.Weekday()), 0, 0, 0, 0, loc)
	end := time.Date(y, m, d-int(local.Weekday())+6, 0, 0, 0, 0, loc)
	return start, end
}

func isCargoAction(a model.Action) bool {
	switch a {
	case model.ActionCreateCargo, model.ActionPayCargo, model.ActionReceiveCargo:
		return true
	}
	return false
}
