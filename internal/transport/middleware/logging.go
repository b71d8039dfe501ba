package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/go-chi/chi/middleware"
)

const maxLoggedBody = 16 << 10

// sensitiveFields are matched as substrings of header, JSON and form keys.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"cookie",
	"secret",
	"api_key",
	"session",
	"credential",
	"otp",
}

// sensitiveKeys are matched exactly; as substrings they would hide
// harmless keys.
var sensitiveKeys = map[string]bool{
	"code": true,
	"key":  true,
}

func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := middleware.GetReqID(r.Context())
			traceID := internal.TraceIDFromContext(r.Context())

			logRequest(logger, r, reqID, traceID)

			ww := &responseWriter{statusWriter: statusWriter{ResponseWriter: w}}

			next.ServeHTTP(ww, r)

			logResponse(logger, r, ww, time.Since(start), reqID, traceID)
		})
	}
}

// responseWriter captures JSON response bodies for the log. HTML pages,
// downloads and event streams are only counted.
type responseWriter struct {
	statusWriter
	body    bytes.Buffer
	size    int
	capture *bool
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.capture == nil {
		c := isJSON(rw.Header().Get("Content-Type"))
		rw.capture = &c
	}
	if *rw.capture && rw.body.Len() < maxLoggedBody {
		rw.body.Write(b)
	}
	rw.size += len(b)
	return rw.statusWriter.Write(b)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// logRequest logs the incoming HTTP request with sensitive data filtered
func logRequest(logger *slog.Logger, r *http.Request, reqID, traceID string) {
	var body string
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if r.Body != nil && (mt == "application/json" || mt == "application/x-www-form-urlencoded") {
		bodyBytes, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
		rest := r.Body
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(bodyBytes), rest), rest}
		if len(bodyBytes) > maxLoggedBody {
			body = "[TRUNCATED]"
		} else if mt == "application/x-www-form-urlencoded" {
			body = filterSensitiveForm(bodyBytes)
		} else {
			body = filterSensitiveBody(bodyBytes)
		}
	}

	logger.Info("incoming request",
		"request_id", reqID,
		"trace_id", traceID,
		"method", r.Method,
		"path", r.URL.Path,
		"query", filterSensitiveQuery(r.URL.Query()),
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
		"body", body,
	)
}

func logResponse(logger *slog.Logger, r *http.Request, rw *responseWriter, duration time.Duration, reqID, traceID string) {
	statusCode := rw.status()

	logLevel := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		logLevel = slog.LevelWarn
	} else if statusCode >= 500 {
		logLevel = slog.LevelError
	}

	logger.Log(r.Context(), logLevel, "response",
		"request_id", reqID,
		"trace_id", traceID,
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
		"body", filterSensitiveBody(rw.body.Bytes()),
	)
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if sensitiveKeys[lower] {
		return true
	}
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// filterSensitiveHeaders removes or masks sensitive headers
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
			continue
		}
		filtered[name] = strings.Join(values, ", ")
	}
	return filtered
}

func filterSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	out := url.Values{}
	for k, v := range q {
		if isSensitive(k) {
			out.Set(k, "[FILTERED]")
			continue
		}
		out[k] = v
	}
	return out.Encode()
}

func filterSensitiveForm(body []byte) string {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "[UNPARSEABLE FORM]"
	}
	return filterSensitiveQuery(values)
}

// filterSensitiveBody masks sensitive fields of a JSON body.
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var jsonData interface{}
	if err := json.Unmarshal(body, &jsonData); err != nil {
		bodyStr := strings.ToLower(string(body))
		for _, field := range sensitiveFields {
			if strings.Contains(bodyStr, field) {
				return "[FILTERED - Contains sensitive data]"
			}
		}
		return string(body)
	}

	filteredBytes, err := json.Marshal(filterSensitiveJSON(jsonData))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(filteredBytes)
}

// filterSensitiveJSON recursively filters sensitive fields from JSON data
func filterSensitiveJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		filtered := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				filtered[key] = "[FILTERED]"
			} else {
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []interface{}:
		filtered := make([]interface{}, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}
