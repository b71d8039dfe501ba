// Package apiclienttest runs a fake backend and a client pointed at it.
package apiclienttest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/prometheus/client_golang/prometheus"
)

type Backend struct {
	Mux    *http.ServeMux
	Server *httptest.Server
	Client *apiclient.Client
}

// New starts a backend. Routes are registered on Mux by the test.
func New(tokens apiclient.TokenStore) (*Backend, error) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	lg := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		Registerer: prometheus.NewRegistry(),
	}, tokens, lg)
	if err != nil {
		srv.Close()
		return nil, err
	}
	return &Backend{Mux: mux, Server: srv, Client: client}, nil
}

func (b *Backend) Close() { b.Server.Close() }

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ReadJSON decodes a request body into a generic map.
func ReadJSON(r *http.Request) map[string]any {
	out := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&out)
	return out
}
