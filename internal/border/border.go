// Package border manages the points of exit where travellers get their
// tax-free forms validated.
package border

import "time"

const (
	TypeAirport    = "AIRPORT"
	TypeLandBorder = "LAND_BORDER"
	TypePort       = "PORT"
	TypeRail       = "RAIL"
)

var typeLabels = map[string]string{
	TypeAirport:    "Aéroport",
	TypeLandBorder: "Frontière terrestre",
	TypePort:       "Port maritime/fluvial",
	TypeRail:       "Gare ferroviaire",
}

// TypeLabel names a point-of-exit type, falling back to the raw value.
func TypeLabel(t string) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return t
}

type PointOfExit struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	TypeDisplay      string    `json:"type_display"`
	Address          string    `json:"address"`
	City             string    `json:"city"`
	Province         string    `json:"province"`
	Country          string    `json:"country"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	ManagerName      string    `json:"manager_name"`
	OperatingHours   string    `json:"operating_hours"`
	Is24h            bool      `json:"is_24h"`
	DailyCapacity    int       `json:"daily_capacity"`
	IsActive         bool      `json:"is_active"`
	AgentsCount      int       `json:"agents_count"`
	ValidationsToday int       `json:"validations_today"`
	CreatedAt        time.Time `json:"created_at"`
}

func (p PointOfExit) Kind() string {
	if p.TypeDisplay != "" {
		return p.TypeDisplay
	}
	return TypeLabel(p.Type)
}

// Stats is one row of the per-border activity report.
type Stats struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	City             string `json:"city"`
	IsActive         bool   `json:"is_active"`
	AgentsCount      int    `json:"agents_count"`
	ValidationsToday int    `json:"validations_today"`
	TotalValidations int    `json:"total_validations"`
}

type statsList struct {
	Count   int     `json:"count"`
	Borders []Stats `json:"borders"`
}

// Detail is a point of exit with its activity row, when the report has one.
type Detail struct {
	PointOfExit
	Stats *Stats `json:"stats,omitempty"`
}
