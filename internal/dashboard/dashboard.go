// Package dashboard renders the home screen tiles and keeps them fresh
// over an event stream.
package dashboard

import "time"

type FormStats struct {
	FormsToday        int     `json:"forms_today"`
	PendingValidation int     `json:"pending_validation"`
	RefundsPending    int     `json:"refunds_pending"`
	VATToday          float64 `json:"vat_today"`
	HighRiskToday     int     `json:"high_risk_today"`
}

type MerchantStats struct {
	ActiveMerchants      int `json:"active_merchants"`
	PendingRegistrations int `json:"pending_registrations"`
}

type borderRow struct {
	IsActive         bool `json:"is_active"`
	AgentsCount      int  `json:"agents_count"`
	ValidationsToday int  `json:"validations_today"`
}

type borderList struct {
	Count   int         `json:"count"`
	Borders []borderRow `json:"borders"`
}

// BorderStats sums the per-border activity rows.
type BorderStats struct {
	Active           int
	Total            int
	Agents           int
	ValidationsToday int
}

func sumBorders(rows []borderRow) BorderStats {
	out := BorderStats{Total: len(rows)}
	for _, b := range rows {
		if b.IsActive {
			out.Active++
		}
		out.Agents += b.AgentsCount
		out.ValidationsToday += b.ValidationsToday
	}
	return out
}

// RiskyForm is a row of the "to control" table.
type RiskyForm struct {
	ID           string    `json:"id"`
	FormNumber   string    `json:"form_number"`
	MerchantName string    `json:"merchant_name"`
	RiskScore    int       `json:"risk_score"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type riskyPage struct {
	Count   int         `json:"count"`
	Results []RiskyForm `json:"results"`
}
