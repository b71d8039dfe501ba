package report

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/core/common/validation"
)

const defaultDays = 30

// PeriodDTO selects the summary window.
type PeriodDTO struct {
	Days          int    `form:"days" validate:"oneof=7 30 90 365"`
	PointOfExitID string `form:"point_of_exit_id" validate:"omitempty,uuid"`
}

func ParsePeriod(q url.Values) PeriodDTO {
	p := PeriodDTO{Days: defaultDays, PointOfExitID: strings.TrimSpace(q.Get("point_of_exit_id"))}
	if d, err := strconv.Atoi(q.Get("days")); err == nil {
		p.Days = d
	}
	return p
}

func (p PeriodDTO) Validate() *internal.AppError { return validation.Struct(p) }

func (p PeriodDTO) Query() url.Values {
	q := url.Values{}
	q.Set("days", strconv.Itoa(p.Days))
	if p.PointOfExitID != "" {
		q.Set("point_of_exit_id", p.PointOfExitID)
	}
	return q
}

const (
	ExportForms       = "forms"
	ExportRefunds     = "refunds"
	ExportValidations = "validations"
)

// ExportDTO selects the file the backend generates.
type ExportDTO struct {
	Type      string `form:"type" validate:"required,oneof=forms refunds validations"`
	StartDate string `form:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

func ParseExport(q url.Values) ExportDTO {
	return ExportDTO{
		Type:      strings.TrimSpace(q.Get("type")),
		StartDate: strings.TrimSpace(q.Get("start_date")),
		EndDate:   strings.TrimSpace(q.Get("end_date")),
	}
}

// Validate also rejects a range ending before it starts.
func (e ExportDTO) Validate() *internal.AppError {
	if appErr := validation.Struct(e); appErr != nil {
		return appErr
	}
	if e.StartDate != "" && e.EndDate != "" && e.EndDate < e.StartDate {
		return internal.NewValidationFieldError("end_date", "La date de fin doit suivre la date de début", internal.ErrCodeValidationFailed)
	}
	return nil
}

func (e ExportDTO) Query() url.Values {
	q := url.Values{}
	q.Set("type", e.Type)
	if e.StartDate != "" {
		q.Set("start_date", e.StartDate)
	}
	if e.EndDate != "" {
		q.Set("end_date", e.EndDate)
	}
	return q
}
