package transport

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

// SendDownload relays a backend export to the browser as an attachment,
// copying the body through without buffering it.
func (h *BaseHandler) SendDownload(w http.ResponseWriter, r *http.Request, d *apiclient.Download) {
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Filename}))
	w.Header().Set("Cache-Control", "no-store")
	if d.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, d.Body)
	log := logger.From(r.Context())
	if err != nil {
		log.Warn("export interrupted", "filename", d.Filename, "bytes", n, "error", err)
		return
	}
	log.Info("export delivered", "filename", d.Filename, "bytes", n)
}
