// Package bordereau lists the tax-free forms and lets authorised staff
// correct a form's status.
package bordereau

import "time"

// Form statuses, in lifecycle order.
const (
	StatusCreated           = "CREATED"
	StatusIssued            = "ISSUED"
	StatusValidationPending = "VALIDATION_PENDING"
	StatusValidated         = "VALIDATED"
	StatusRefused           = "REFUSED"
	StatusRefunded          = "REFUNDED"
	StatusCancelled         = "CANCELLED"
	StatusExpired           = "EXPIRED"
)

var statuses = []string{
	StatusCreated,
	StatusIssued,
	StatusValidationPending,
	StatusValidated,
	StatusRefused,
	StatusRefunded,
	StatusCancelled,
	StatusExpired,
}

// highRiskScore is the score from which a form is flagged for control.
const highRiskScore = 70

type Form struct {
	ID                  string     `json:"id"`
	FormNumber          string     `json:"form_number"`
	Status              string     `json:"status"`
	MerchantName        string     `json:"merchant_name"`
	OutletName          string     `json:"outlet_name"`
	TravelerName        string     `json:"traveler_name"`
	TravelerNationality string     `json:"traveler_nationality"`
	EligibleAmount      float64    `json:"eligible_amount"`
	VATAmount           float64    `json:"vat_amount"`
	RefundAmount        float64    `json:"refund_amount"`
	Currency            string     `json:"currency"`
	RiskScore           int        `json:"risk_score"`
	PointOfExitName     string     `json:"point_of_exit_name"`
	CreatedAt           time.Time  `json:"created_at"`
	ExpiresAt           *time.Time `json:"expires_at"`
	ValidatedAt         *time.Time `json:"validated_at"`
}

func (f Form) HighRisk() bool { return f.RiskScore >= highRiskScore }

func (f Form) CurrencyCode() string {
	if f.Currency == "" {
		return "CDF"
	}
	return f.Currency
}

type formPage struct {
	Count   int    `json:"count"`
	Results []Form `json:"results"`
}

// Override is a past manual status correction.
type Override struct {
	ID             string    `json:"id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason"`
	CreatedBy      string    `json:"created_by_email"`
	CreatedAt      time.Time `json:"created_at"`
}

type Detail struct {
	Form
	Overrides []Override `json:"status_overrides"`
}
