package wizard

import (
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/google/uuid"
)

type Kind string

const (
	KindMerchantRegistration Kind = "merchant_registration"
	KindMerchantActivation   Kind = "merchant_activation"
	KindAgentActivation      Kind = "agent_activation"
	KindSystemUserActivation Kind = "system_user_activation"
	KindInvitationAcceptance Kind = "invitation_acceptance"
	KindPasswordReset        Kind = "password_reset"
	KindForgotPassword       Kind = "forgot_password"
)

type Phase string

const (
	PhaseEditing    Phase = "editing"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// DefaultSuccessDelay is how long the success screen stays before
// redirecting.
const DefaultSuccessDelay = 3 * time.Second

var (
	ErrStepIncomplete = errors.New("wizard: current step has empty required fields")
	ErrNotLastStep    = errors.New("wizard: submission is only possible from the last step")
	ErrInFlight       = errors.New("wizard: a submission is already in flight")
	ErrFinished       = errors.New("wizard: already completed")
)

type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"-"`
	Placeholder string `json:"placeholder,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
}

type Step struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Definition is the static shape of a wizard.
type Definition struct {
	Kind            Kind
	Title           string
	Steps           []Step
	PasswordField   string
	ConfirmField    string
	SuccessTitle    string
	SuccessMessage  string
	SuccessRedirect string
	SuccessDelay    time.Duration
}

// State is the per-user progress through a definition. Secret values are
// never kept across requests.
type State struct {
	ID       string            `json:"id"`
	Kind     Kind              `json:"kind"`
	Token    string            `json:"token,omitempty"`
	Step     int               `json:"step"`
	Values   map[string]string `json:"values"`
	Phase    Phase             `json:"phase"`
	Errors   map[string]string `json:"errors,omitempty"`
	Message  string            `json:"message,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func (d Definition) New(token string) *State {
	return &State{
		ID:     uuid.NewString(),
		Kind:   d.Kind,
		Token:  token,
		Step:   1,
		Values: map[string]string{},
		Phase:  PhaseEditing,
	}
}

func (d Definition) StepCount() int { return len(d.Steps) }

func (d Definition) CurrentStep(s *State) Step {
	return d.Steps[d.clamp(s.Step)-1]
}

func (d Definition) IsLastStep(s *State) bool {
	return d.clamp(s.Step) == len(d.Steps)
}

func (d Definition) HasPassword() bool { return d.PasswordField != "" }

func (d Definition) clamp(step int) int {
	if step < 1 {
		return 1
	}
	if step > len(d.Steps) {
		return len(d.Steps)
	}
	return step
}

func (d Definition) field(name string) (Field, bool) {
	for _, st := range d.Steps {
		for _, f := range st.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// Set stores the value of a known field, ignoring unknown names and
// read-only fields.
func (d Definition) Set(s *State, name, value string) {
	f, ok := d.field(name)
	if !ok || f.ReadOnly {
		return
	}
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	if !f.Secret {
		value = strings.TrimSpace(value)
	}
	s.Values[name] = value
	delete(s.Errors, name)
}

// Prefill writes identity values fetched from a token lookup, read-only
// fields included.
func (d Definition) Prefill(s *State, values map[string]string) {
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	for name, v := range values {
		if _, ok := d.field(name); ok && v != "" {
			s.Values[name] = v
		}
	}
}

// MissingFields lists the required fields of the current step left empty.
func (d Definition) MissingFields(s *State) []string {
	var missing []string
	for _, f := range d.CurrentStep(s).Fields {
		if f.Required && strings.TrimSpace(s.Values[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func (d Definition) CanAdvance(s *State) bool {
	return !d.IsLastStep(s) && len(d.MissingFields(s)) == 0
}

// Next moves forward one step. It performs no network call.
func (d Definition) Next(s *State) error {
	if d.IsLastStep(s) {
		return ErrNotLastStep
	}
	if missing := d.MissingFields(s); len(missing) > 0 {
		s.Errors = map[string]string{}
		for _, name := range missing {
			s.Errors[name] = "Ce champ est obligatoire"
		}
		return ErrStepIncomplete
	}
	s.Step = d.clamp(s.Step) + 1
	s.Errors = nil
	return nil
}

func (d Definition) Back(s *State) {
	if s.Step > 1 {
		s.Step = d.clamp(s.Step) - 1
	}
	s.Errors = nil
}

// Password returns the live strength/match indicator for the state.
func (d Definition) Password(s *State) PasswordCheck {
	if !d.HasPassword() {
		return PasswordCheck{CanSubmit: true}
	}
	return CheckPassword(s.Values[d.PasswordField], s.Values[d.ConfirmField])
}

// CanSubmit reports whether the final submit control is enabled.
func (d Definition) CanSubmit(s *State) bool {
	if s.Phase == PhaseSubmitting || s.Phase == PhaseSucceeded {
		return false
	}
	if !d.IsLastStep(s) {
		return false
	}
	for i := range d.Steps {
		for _, f := range d.Steps[i].Fields {
			if f.Required && strings.TrimSpace(s.Values[f.Name]) == "" {
				return false
			}
		}
	}
	return d.Password(s).CanSubmit
}

// BeginSubmit moves the state into flight. A state already in flight or
// completed is rejected so the submit control cannot fire twice.
func (d Definition) BeginSubmit(s *State) error {
	switch s.Phase {
	case PhaseSubmitting:
		return ErrInFlight
	case PhaseSucceeded:
		return ErrFinished
	}
	if !d.IsLastStep(s) {
		return ErrNotLastStep
	}
	if !d.CanSubmit(s) {
		return d.submitError(s)
	}
	s.Phase = PhaseSubmitting
	s.Errors = nil
	s.Message = ""
	return nil
}

func (d Definition) submitError(s *State) *internal.AppError {
	var fields []internal.ValidationError
	for i := range d.Steps {
		for _, f := range d.Steps[i].Fields {
			if f.Required && strings.TrimSpace(s.Values[f.Name]) == "" {
				fields = append(fields, internal.ValidationError{Field: f.Name, Message: "Ce champ est obligatoire", Code: string(internal.ErrCodeRequiredField)})
			}
		}
	}
	if d.HasPassword() {
		check := d.Password(s)
		if check.Score < MinPasswordStrength {
			fields = append(fields, internal.ValidationError{Field: d.PasswordField, Message: "Le mot de passe est trop faible", Code: string(internal.ErrCodeWeakPassword)})
		}
		if !check.Match {
			fields = append(fields, internal.ValidationError{Field: d.ConfirmField, Message: "Les mots de passe ne correspondent pas", Code: string(internal.ErrCodePasswordMismatch)})
		}
	}
	appErr := internal.NewValidationFieldErrors(fields...)
	s.Errors = appErr.FieldErrors()
	return appErr
}

// Succeed is terminal: the state redirects after the definition's delay.
func (d Definition) Succeed(s *State, redirect string) {
	s.Phase = PhaseSucceeded
	if redirect == "" {
		redirect = d.SuccessRedirect
	}
	s.Redirect = redirect
	s.Errors = nil
	s.Message = d.SuccessMessage
	d.Scrub(s)
}

// Fail surfaces the server's rejection. Field errors go back onto the
// matching inputs; the step jumps to the first step holding one of them.
func (d Definition) Fail(s *State, err error) {
	s.Phase = PhaseFailed
	s.Message = err.Error()
	s.Errors = nil
	if appErr, ok := internal.IsAppError(err); ok {
		s.Message = appErr.GetDetailedMessage()
		if fields := appErr.FieldErrors(); len(fields) > 0 {
			s.Errors = fields
			if step := d.stepOf(fields); step > 0 {
				s.Step = step
			}
		}
	}
	d.Scrub(s)
}

func (d Definition) stepOf(fields map[string]string) int {
	for i, st := range d.Steps {
		for _, f := range st.Fields {
			if _, ok := fields[f.Name]; ok {
				return i + 1
			}
		}
	}
	return 0
}

// Scrub clears secret values before the state is persisted.
func (d Definition) Scrub(s *State) {
	for _, st := range d.Steps {
		for _, f := range st.Fields {
			if f.Secret {
				delete(s.Values, f.Name)
			}
		}
	}
}

func (d Definition) Delay() time.Duration {
	if d.SuccessDelay <= 0 {
		return DefaultSuccessDelay
	}
	return d.SuccessDelay
}

// Payload collects non-empty values for the submission body.
func (d Definition) Payload(s *State) map[string]string {
	out := make(map[string]string, len(s.Values))
	for _, st := range d.Steps {
		for _, f := range st.Fields {
			if v := s.Values[f.Name]; v != "" && !f.ReadOnly {
				out[f.Name] = v
			}
		}
	}
	return out
}
