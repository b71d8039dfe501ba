package registration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	CheckToken(ctx context.Context, kind wizard.Kind, token string) wizard.TokenCheck
	Submit(ctx context.Context, s *session.Session, kind wizard.Kind, token string, payload map[string]string) (*Result, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI

	now      func() time.Time
	inflight sync.Map
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     service,
		now:         time.Now,
	}
}

func (h *Handler) SetClock(now func() time.Time) { h.now = now }

func wizardPath(id string) string { return "/wizard/" + id }

// Start opens a form of the given kind. Links carrying a token are checked
// against the backend first; reopening the same link resumes the form.
func (h *Handler) Start(kind wizard.Kind) http.HandlerFunc {
	def, known := wizard.ForKind(kind)
	return func(w http.ResponseWriter, r *http.Request) {
		s := h.Session(r)
		if !known || s == nil {
			h.WriteError(w, http.StatusNotFound, "unknown form")
			return
		}
		token := chi.URLParam(r, "token")

		check := h.Service.CheckToken(r.Context(), kind, token)
		switch check.Phase {
		case wizard.TokenLoading:
			page := h.page(def, view.Wizard{Title: def.Title, Phase: string(check.Phase), Loading: true})
			page.Refresh = 1
			h.Render(w, r, http.StatusAccepted, page)
			return
		case wizard.TokenInvalid:
			h.Render(w, r, http.StatusBadRequest, h.page(def, view.Wizard{
				Title:          def.Title,
				Phase:          string(check.Phase),
				Invalid:        true,
				InvalidMessage: check.Message,
			}))
			return
		}

		st := resume(s, kind, token)
		if st == nil {
			st = def.New(token)
		}
		def.Prefill(st, check.Info.Values())
		if err := h.Sessions.SaveWizard(r.Context(), s, def, st); err != nil {
			h.HandleError(w, r, internal.NewInternalError("Impossible d'enregistrer le formulaire.", err), "")
			return
		}

		v := h.wizardView(def, st)
		if check.Countdown != nil {
			v.Countdown = check.Countdown.Tick(h.now()).Display
		}
		h.Render(w, r, http.StatusOK, h.page(def, v))
	}
}

// resume finds an unfinished form of kind opened with the same token.
func resume(s *session.Session, kind wizard.Kind, token string) *wizard.State {
	for _, st := range s.Wizards {
		if st.Kind == kind && st.Token == token && st.Phase != wizard.PhaseSucceeded {
			return st
		}
	}
	return nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*session.Session, wizard.Definition, *wizard.State, bool) {
	s := h.Session(r)
	st, ok := s.Wizard(chi.URLParam(r, "id"))
	if !ok {
		h.Render(w, r, http.StatusNotFound, view.Page{
			Template: "notice",
			Title:    "Formulaire expiré",
			Data: view.Notice{
				Heading:   "Formulaire expiré",
				Message:   "Ce formulaire n'est plus disponible. Recommencez depuis le lien reçu.",
				Code:      string(internal.ErrCodeResourceNotFound),
				Link:      "/login",
				LinkLabel: "Retour à la connexion",
			},
		})
		return nil, wizard.Definition{}, nil, false
	}
	def, known := wizard.ForKind(st.Kind)
	if !known {
		h.WriteError(w, http.StatusNotFound, "unknown form")
		return nil, wizard.Definition{}, nil, false
	}
	// a submission no request of this process owns was cut short
	if _, busy := h.inflight.Load(st.ID); st.Phase == wizard.PhaseSubmitting && !busy {
		st.Phase = wizard.PhaseFailed
		st.Message = "L'envoi a été interrompu, veuillez réessayer."
	}
	return s, def, st, true
}

// Show renders the current step, or the terminal screen of a finished form.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	_, def, st, ok := h.load(w, r)
	if !ok {
		return
	}
	h.renderState(w, r, http.StatusOK, def, st)
}

// Advance stores the posted step. It moves to the next step, or submits
// the form from the last one.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	s, def, st, ok := h.load(w, r)
	if !ok {
		return
	}
	if st.Phase == wizard.PhaseSucceeded {
		h.renderState(w, r, http.StatusOK, def, st)
		return
	}
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, wizardPath(st.ID))
		return
	}
	for name, value := range values {
		def.Set(st, name, value)
	}
	if appErr := checkFormats(def, st); appErr != nil {
		h.stepFailed(w, r, s, def, st, appErr)
		return
	}

	if !def.IsLastStep(st) {
		if err := def.Next(st); err != nil {
			h.stepFailed(w, r, s, def, st, internal.NewValidationError("Veuillez remplir les champs obligatoires.", internal.ErrCodeRequiredField))
			return
		}
		if err := h.Sessions.SaveWizard(r.Context(), s, def, st); err != nil {
			h.HandleError(w, r, internal.NewInternalError("Impossible d'enregistrer le formulaire.", err), "")
			return
		}
		h.Redirect(w, r, wizardPath(st.ID))
		return
	}
	h.submit(w, r, s, def, st)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, s *session.Session, def wizard.Definition, st *wizard.State) {
	ctx := r.Context()
	if _, busy := h.inflight.LoadOrStore(st.ID, struct{}{}); busy {
		h.renderInFlight(w, r, def, st)
		return
	}
	defer h.inflight.Delete(st.ID)

	if err := def.BeginSubmit(st); err != nil {
		switch {
		case errors.Is(err, wizard.ErrInFlight):
			h.renderInFlight(w, r, def, st)
		case errors.Is(err, wizard.ErrFinished):
			h.renderState(w, r, http.StatusOK, def, st)
		default:
			h.stepFailed(w, r, s, def, st, err)
		}
		return
	}

	payload := def.Payload(st)
	if err := h.Sessions.SaveWizard(ctx, s, def, st); err != nil {
		h.HandleError(w, r, internal.NewInternalError("Impossible d'enregistrer le formulaire.", err), "")
		return
	}

	res, err := h.Service.Submit(ctx, s, def.Kind, st.Token, payload)
	if err != nil {
		def.Fail(st, err)
		if saveErr := h.Sessions.SaveWizard(context.WithoutCancel(ctx), s, def, st); saveErr != nil {
			h.Logger.Error("failed to store form failure", "wizard_id", st.ID, "error", saveErr)
		}
		if internal.IsType(err, internal.ErrorTypeMaintenance) || internal.IsType(err, internal.ErrorTypeSessionExpired) {
			h.HandleError(w, r, err, wizardPath(st.ID))
			return
		}
		status := http.StatusBadRequest
		if appErr, ok := internal.IsAppError(err); ok && appErr.StatusCode != 0 {
			status = appErr.StatusCode
		}
		h.renderState(w, r, status, def, st)
		return
	}

	redirect := ""
	if flows[def.Kind].autoLogin && !s.IsAuthenticated {
		redirect = "/login"
	}
	def.Succeed(st, redirect)
	if err := h.Sessions.SaveWizard(ctx, s, def, st); err != nil {
		h.Logger.Error("failed to store form success", "wizard_id", st.ID, "error", err)
	}
	h.Logger.Info("form completed", "kind", def.Kind, "wizard_id", st.ID, "detail", res.Detail)
	h.renderState(w, r, http.StatusOK, def, st)
}

func (h *Handler) renderInFlight(w http.ResponseWriter, r *http.Request, def wizard.Definition, st *wizard.State) {
	v := h.wizardView(def, st)
	v.Form.Enabled = false
	v.Form.Message = "Envoi en cours, veuillez patienter."
	h.Render(w, r, http.StatusConflict, h.page(def, v))
}

// stepFailed keeps the user on the step with the messages next to the
// inputs.
func (h *Handler) stepFailed(w http.ResponseWriter, r *http.Request, s *session.Session, def wizard.Definition, st *wizard.State, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		st.Message = appErr.Message
		if fields := appErr.FieldErrors(); len(fields) > 0 {
			st.Errors = fields
		}
	}
	if saveErr := h.Sessions.SaveWizard(r.Context(), s, def, st); saveErr != nil {
		h.HandleError(w, r, internal.NewInternalError("Impossible d'enregistrer le formulaire.", saveErr), "")
		return
	}
	h.renderState(w, r, http.StatusBadRequest, def, st)
}

// Back returns to the previous step without losing what was typed.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	s, def, st, ok := h.load(w, r)
	if !ok {
		return
	}
	if st.Phase != wizard.PhaseSubmitting && st.Phase != wizard.PhaseSucceeded {
		def.Back(st)
		if err := h.Sessions.SaveWizard(r.Context(), s, def, st); err != nil {
			h.HandleError(w, r, internal.NewInternalError("Impossible d'enregistrer le formulaire.", err), "")
			return
		}
	}
	h.Redirect(w, r, wizardPath(st.ID))
}

// PasswordCheck answers the live strength and match indicator.
func (h *Handler) PasswordCheck(w http.ResponseWriter, r *http.Request) {
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, "")
		return
	}
	dto := PasswordCheckDTO{Password: values["password"], Confirm: values["password_confirm"]}
	h.WriteJSON(w, http.StatusOK, view.Meter(wizard.CheckPassword(dto.Password, dto.Confirm)))
}

func (h *Handler) renderState(w http.ResponseWriter, r *http.Request, status int, def wizard.Definition, st *wizard.State) {
	page := h.page(def, h.wizardView(def, st))
	if st.Phase == wizard.PhaseSucceeded {
		page.Refresh = int(def.Delay() / time.Second)
		page.RedirectURL = st.Redirect
	}
	h.Render(w, r, status, page)
}

func (h *Handler) page(def wizard.Definition, v view.Wizard) view.Page {
	return view.Page{Template: "wizard", Title: def.Title, Data: v}
}

func (h *Handler) wizardView(def wizard.Definition, st *wizard.State) view.Wizard {
	v := view.Wizard{
		Title:     def.Title,
		Phase:     string(st.Phase),
		Step:      st.Step,
		StepCount: def.StepCount(),
		IsLast:    def.IsLastStep(st),
	}
	for _, step := range def.Steps {
		v.Steps = append(v.Steps, step.Title)
	}
	if st.Phase == wizard.PhaseSucceeded {
		v.Success = true
		v.SuccessTitle = def.SuccessTitle
		v.SuccessMessage = st.Message
		v.Redirect = st.Redirect
		return v
	}

	step := def.CurrentStep(st)
	form := view.Form{
		Title:   step.Title,
		Action:  wizardPath(st.ID),
		Submit:  "Suivant",
		Enabled: st.Phase != wizard.PhaseSubmitting,
		Message: st.Message,
	}
	if v.IsLast {
		form.Submit = "Envoyer"
	}
	for _, f := range step.Fields {
		ff := view.FormField{
			Name:        f.Name,
			Label:       f.Label,
			Type:        f.Type,
			Placeholder: f.Placeholder,
			Required:    f.Required,
			ReadOnly:    f.ReadOnly,
		}
		if !f.Secret {
			ff.Value = st.Values[f.Name]
		}
		form.Fields = append(form.Fields, ff)
	}
	form.ApplyErrors(st.Errors)

	if v.IsLast && def.HasPassword() {
		v.Password = view.Meter(def.Password(st))
		form.Tooltip = "Au moins 3 critères de robustesse et une confirmation identique."
	}
	if st.Step > 1 {
		v.BackURL = wizardPath(st.ID) + "/back"
	}
	v.Form = form
	return v
}
