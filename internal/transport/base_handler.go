package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/guard"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

const maxFormBytes = 1 << 20

// BaseHandler provides the rendering, redirect and error policy shared by
// every console handler.
type BaseHandler struct {
	Logger   *slog.Logger
	Views    *view.Renderer
	Sessions *session.Manager
	Policy   permission.Policy
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger, views *view.Renderer, sessions *session.Manager, policy permission.Policy) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg, Views: views, Sessions: sessions, Policy: policy}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Error("http error", "status", status, "message", message)
	h.WriteJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": message,
	})
}

func (h *BaseHandler) WriteAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	h.WriteJSON(w, status, body)
}

// WantsJSON reports whether the client asked for the JSON rendition.
func (h *BaseHandler) WantsJSON(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// Session returns the request's session, nil when the loader did not run.
func (h *BaseHandler) Session(r *http.Request) *session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}

func (h *BaseHandler) Resolver(r *http.Request) permission.Resolver {
	return h.Session(r).Resolver(h.Policy)
}

// Render writes page as HTML, or as JSON for clients asking for it. The
// chrome (user, sidebar and pending flashes) comes from the session.
func (h *BaseHandler) Render(w http.ResponseWriter, r *http.Request, status int, page view.Page) {
	if s := h.Session(r); s != nil {
		if s.IsAuthenticated {
			page.User = s.CurrentUser
			page.Nav = permission.Navigation(s.Resolver(h.Policy))
		}
		if h.Sessions != nil {
			page.Flashes = append(page.Flashes, h.Sessions.PopFlashes(r.Context(), s)...)
		}
	}
	if page.Refresh > 0 {
		refresh := strconv.Itoa(page.Refresh)
		if page.RedirectURL != "" {
			refresh += "; url=" + page.RedirectURL
		}
		w.Header().Set("Refresh", refresh)
	}

	if h.WantsJSON(r) || h.Views == nil {
		h.WriteJSON(w, status, page)
		return
	}

	var buf strings.Builder
	if err := h.Views.Render(&buf, page); err != nil {
		h.Logger.Error("failed to render view", "template", page.Template, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, buf.String()); err != nil {
		h.Logger.Debug("failed to write view", "error", err)
	}
}

// Redirect sends a 303. JSON clients also get the target in the body.
func (h *BaseHandler) Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if h.WantsJSON(r) {
		w.Header().Set("Location", target)
		h.WriteJSON(w, http.StatusSeeOther, map[string]string{"redirect": target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// RenderLoading answers while grants are still being fetched. The page
// reloads itself until the guard can decide.
func (h *BaseHandler) RenderLoading(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusAccepted, view.Page{
		Template: "notice",
		Title:    "Chargement",
		Data: view.Notice{
			Heading: "Chargement des permissions…",
			Message: "Vos droits d'accès sont en cours de vérification.",
			Code:    guard.PermissionsLoading.String(),
		},
		Refresh: 1,
	})
}

// RenderDenied draws the configured fallback view when it exists, else the
// default access-denied screen.
func (h *BaseHandler) RenderDenied(w http.ResponseWriter, r *http.Request, out guard.Outcome) {
	if out.Effect == guard.RenderFallback && h.Views != nil && h.Views.Has(out.Fallback) {
		h.Render(w, r, http.StatusForbidden, view.Page{Template: out.Fallback, Title: "Accès restreint"})
		return
	}
	h.Render(w, r, http.StatusForbidden, view.Page{
		Template: "notice",
		Title:    "Accès refusé",
		Data: view.Notice{
			Heading:   "Accès refusé",
			Message:   internal.ErrPermissionDenied.Message,
			Code:      out.State.String(),
			Link:      "/admin/dashboard",
			LinkLabel: "Retour au tableau de bord",
		},
	})
}

// Flash queues a message for the next rendered page.
func (h *BaseHandler) Flash(r *http.Request, kind session.FlashKind, message string) {
	s := h.Session(r)
	if s == nil || h.Sessions == nil || message == "" {
		return
	}
	if err := h.Sessions.AddFlash(r.Context(), s, kind, message); err != nil {
		h.Logger.Error("failed to store flash", "session_id", s.ID, "error", err)
	}
}

// Success flashes message and moves on to target.
func (h *BaseHandler) Success(w http.ResponseWriter, r *http.Request, message, target string) {
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, map[string]string{"message": message, "redirect": target})
		return
	}
	h.Flash(r, session.FlashSuccess, message)
	h.Redirect(w, r, target)
}

// HandleError applies the console's propagation policy. Session-ending
// errors move the user to login, maintenance moves them to the holding
// view, and everything else becomes a visible message on the current
// screen (back).
func (h *BaseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, back string) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		h.Logger.Debug("request abandoned", "path", r.URL.Path)
		return
	}

	appErr, ok := internal.IsAppError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = internal.NewTransientError("Le service met trop de temps à répondre. Veuillez réessayer.", err)
		} else {
			appErr = internal.NewInternalError("Une erreur inattendue est survenue.", err)
		}
	}
	log := logger.From(ctx)
	s := h.Session(r)

	switch appErr.Type {
	case internal.ErrorTypeSessionExpired:
		log.Info("session expired", "path", r.URL.Path)
		if s != nil && h.Sessions != nil {
			if err := h.Sessions.Expire(ctx, s); err != nil {
				log.Error("failed to expire session", "error", err)
			}
		}
		if h.WantsJSON(r) {
			h.WriteAppError(w, appErr)
			return
		}
		h.Flash(r, session.FlashWarning, appErr.Message)
		next := r.URL.RequestURI()
		if r.Method != http.MethodGet {
			next = back
		}
		h.Redirect(w, r, guard.LoginURL(guard.SafeNext(next)))
		return

	case internal.ErrorTypeMaintenance:
		log.Warn("backend in maintenance", "message", appErr.Message)
		if s != nil && h.Sessions != nil {
			if err := h.Sessions.SetMaintenanceMessage(ctx, s, appErr.Message); err != nil {
				log.Error("failed to store maintenance message", "error", err)
			}
		}
		if h.WantsJSON(r) {
			h.WriteAppError(w, appErr)
			return
		}
		h.Redirect(w, r, "/maintenance")
		return

	case internal.ErrorTypeAuthorization:
		log.Warn("backend refused an allowed action", "path", r.URL.Path)
		if s != nil && h.Sessions != nil && s.IsAuthenticated {
			if err := h.Sessions.InvalidatePermissions(ctx, s); err != nil {
				log.Error("failed to invalidate permissions", "error", err)
			}
		}

	case internal.ErrorTypeInternal:
		log.Error("request failed", "path", r.URL.Path, "error", err)

	default:
		log.Info("request rejected", "path", r.URL.Path, "type", appErr.Type, "code", appErr.Code)
	}

	if h.WantsJSON(r) {
		h.WriteAppError(w, appErr)
		return
	}
	if back != "" && s != nil {
		h.Flash(r, session.FlashError, appErr.GetDetailedMessage())
		h.Redirect(w, r, back)
		return
	}
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	h.Render(w, r, status, view.Page{
		Template: "notice",
		Title:    "Erreur",
		Data: view.Notice{
			Heading:   "Une erreur est survenue",
			Message:   appErr.GetDetailedMessage(),
			Code:      string(appErr.Code),
			Link:      "/admin/dashboard",
			LinkLabel: "Retour au tableau de bord",
		},
	})
}

// Values reads a submitted body, JSON object or form, into a flat map.
func (h *BaseHandler) Values(r *http.Request) (map[string]string, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var raw map[string]any
		dec := json.NewDecoder(io.LimitReader(r.Body, maxFormBytes))
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, internal.NewValidationError("Corps de requête invalide.", internal.ErrCodeValidationFailed).WithCause(err)
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			switch t := v.(type) {
			case nil:
			case string:
				out[k] = t
			case float64:
				out[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(t)
			default:
				out[k] = fmt.Sprint(t)
			}
		}
		return out, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, internal.NewValidationError("Formulaire invalide.", internal.ErrCodeValidationFailed).WithCause(err)
	}
	out := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out, nil
}
