// Package report shows the activity summary computed by the backend and
// relays its CSV exports.
package report

import "time"

type FormStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	TotalEligible float64        `json:"total_eligible"`
	TotalVAT      float64        `json:"total_vat"`
	TotalRefund   float64        `json:"total_refund"`
	TotalFees     float64        `json:"total_fees"`
	AvgAmount     float64        `json:"avg_amount"`
	HighRiskCount int            `json:"high_risk_count"`
}

type RefundStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByMethod   map[string]int `json:"by_method"`
	TotalGross float64        `json:"total_gross"`
	TotalFees  float64        `json:"total_fees"`
	TotalNet   float64        `json:"total_net"`
}

type ValidationStats struct {
	Total                int            `json:"total"`
	ByDecision           map[string]int `json:"by_decision"`
	ValidationRate       float64        `json:"validation_rate"`
	PhysicalControlCount int            `json:"physical_control_count"`
	OfflineCount         int            `json:"offline_count"`
}

type MerchantStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	TotalOutlets  int            `json:"total_outlets"`
	ActiveOutlets int            `json:"active_outlets"`
}

type UserStats struct {
	Total         int            `json:"total"`
	ByRole        map[string]int `json:"by_role"`
	CustomsAgents int            `json:"customs_agents"`
	Merchants     int            `json:"merchants"`
}

type TopMerchant struct {
	ID          string  `json:"invoice__merchant__id"`
	Name        string  `json:"invoice__merchant__name"`
	FormsCount  int     `json:"forms_count"`
	TotalVAT    float64 `json:"total_vat"`
	TotalRefund float64 `json:"total_refund"`
}

type TopPointOfExit struct {
	ID               string `json:"point_of_exit__id"`
	Name             string `json:"point_of_exit__name"`
	Code             string `json:"point_of_exit__code"`
	ValidationsCount int    `json:"validations_count"`
	Validated        int    `json:"validated"`
	Refused          int    `json:"refused"`
}

type TopAgent struct {
	ID               string `json:"agent__id"`
	Email            string `json:"agent__email"`
	FirstName        string `json:"agent__first_name"`
	LastName         string `json:"agent__last_name"`
	ValidationsCount int    `json:"validations_count"`
	Validated        int    `json:"validated"`
	Refused          int    `json:"refused"`
}

func (a TopAgent) Name() string {
	if a.FirstName == "" && a.LastName == "" {
		return a.Email
	}
	return a.FirstName + " " + a.LastName
}

// Summary is the backend's activity report for a period.
type Summary struct {
	PeriodDays      int              `json:"period_days"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Forms           FormStats        `json:"forms"`
	Refunds         RefundStats      `json:"refunds"`
	Validations     ValidationStats  `json:"validations"`
	Merchants       MerchantStats    `json:"merchants"`
	Users           UserStats        `json:"users"`
	TopMerchants    []TopMerchant    `json:"top_merchants"`
	TopPointsOfExit []TopPointOfExit `json:"top_points_of_exit"`
	TopAgents       []TopAgent       `json:"top_agents"`
}
