// Package maintenance serves the holding view shown while the backend is
// in maintenance and tells the browser when it is back.
package maintenance

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/poller"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

const (
	streamPage     = "/maintenance/stream"
	defaultMessage = "La plateforme est en maintenance. Merci de réessayer dans quelques instants."
)

// Prober asks the backend whether it left maintenance.
type Prober interface {
	Probe(ctx context.Context) error
}

type Handler struct {
	*transport.BaseHandler
	Prober   Prober
	interval time.Duration
}

func NewHandler(base *transport.BaseHandler, prober Prober, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Handler{BaseHandler: base, Prober: prober, interval: interval}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	msg := defaultMessage
	if s := h.Session(r); s != nil && h.Sessions != nil {
		if stored, ok := h.Sessions.MaintenanceMessage(s); ok {
			msg = stored
		}
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(h.interval/time.Second)))
	h.Render(w, r, http.StatusServiceUnavailable, view.Page{
		Template: "maintenance",
		Title:    "Maintenance",
		Data: view.Notice{
			Heading:   "Maintenance en cours",
			Message:   msg,
			Code:      string(internal.ErrCodeMaintenanceMode),
			StreamURL: streamPage,
		},
	})
}

// Stream probes the backend every interval. Once it answers normally the
// stored message is cleared and a "resolved" event sends the browser on.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx)
	es, ok := h.BaseHandler.Stream(w, r)
	if !ok {
		return
	}

	err := poller.Run(ctx, h.interval, func(ctx context.Context) error {
		err := h.Prober.Probe(ctx)
		switch {
		case err == nil:
		case internal.IsType(err, internal.ErrorTypeMaintenance):
			return es.Send("waiting", map[string]string{"message": maintenanceMessage(err)})
		default:
			log.Debug("status probe failed", "error", err)
			return es.Send("waiting", map[string]string{})
		}

		target := "/login"
		if s := h.Session(r); s != nil {
			if s.IsAuthenticated {
				target = "/admin/dashboard"
			}
			if h.Sessions != nil {
				if err := h.Sessions.ClearMaintenance(ctx, s); err != nil {
					log.Error("failed to clear maintenance message", "error", err)
				}
			}
		}
		log.Info("backend left maintenance")
		if err := es.Send("resolved", map[string]string{"redirect": target}); err != nil {
			return err
		}
		return poller.ErrStop
	})
	if err != nil {
		log.Debug("maintenance stream ended", "error", err)
	}
}

func maintenanceMessage(err error) string {
	if appErr, ok := internal.IsAppError(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return defaultMessage
}
