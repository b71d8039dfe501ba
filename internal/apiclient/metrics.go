package apiclient

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	refresh  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Calls made to the tax-free backend API.",
		}, []string{"method", "group", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Backend API call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "group"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_token_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.refresh)
	}
	return m
}

func (m *metrics) observe(method, path string, status int, took time.Duration) {
	group := endpointGroup(path)
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.requests.WithLabelValues(method, group, class).Inc()
	m.duration.WithLabelValues(method, group).Observe(took.Seconds())
}

// endpointGroup keeps the first two path segments so labels stay bounded:
// "/api/customs/admin/agents/12/" becomes "/api/customs".
func endpointGroup(path string) string {
	parts := strings.SplitN(strings.Trim(path, "/"), "/", 3)
	if len(parts) >= 2 {
		return "/" + parts[0] + "/" + parts[1]
	}
	return "/" + parts[0]
}
