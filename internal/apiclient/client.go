package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	refreshPath     = "/api/auth/refresh/"
	maxBodyBytes    = 8 << 20
	refreshLeadTime = 30 * time.Second
)

// TokenStore persists a refreshed token pair on the session it came from.
type TokenStore interface {
	UpdateTokens(ctx context.Context, s *session.Session, access, refresh string) error
}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	StatusPath     string
	HTTPClient     *http.Client
	Registerer     prometheus.Registerer
}

// Request describes one backend call. Anonymous calls never carry a bearer
// token and never trigger a refresh (login, OTP, token lookups).
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Anonymous bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return internal.NewInternalError("Réponse illisible du serveur.", err)
	}
	return nil
}

// Client is the single gateway to the backend REST API.
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	limiter    *rate.Limiter
	tokens     TokenStore
	statusPath string
	metrics    *metrics
	logger     *slog.Logger

	refreshes singleflight.Group
	tokenMu   sync.Mutex
	now       func() time.Time
}

func NewClient(cfg Config, tokens TokenStore, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	statusPath := cfg.StatusPath
	if statusPath == "" {
		statusPath = "/api/taxfree/status/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		http:       httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		tokens:     tokens,
		statusPath: statusPath,
		metrics:    newMetrics(cfg.Registerer),
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodDelete, Path: path, Body: body}, out)
}

func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Do sends req and returns the buffered response. Non-2xx answers come back
// as *internal.AppError wrapping an *APIError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	httpResp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if httpResp.StatusCode >= 400 {
		return nil, Classify(parseAPIError(httpResp.StatusCode, body))
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

// Probe calls the lightweight status endpoint. It returns nil when the
// backend answers normally, a maintenance error while it is in
// maintenance, and a transient error otherwise.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: c.statusPath, Anonymous: true})
	return err
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		if payload, err = json.Marshal(req.Body); err != nil {
			return nil, internal.NewInternalError("failed to encode request", err)
		}
	}

	s, hasSession := session.FromContext(ctx)
	authenticated := !req.Anonymous && hasSession
	var access string
	if authenticated {
		var err error
		if access, err = c.currentAccess(ctx, s); err != nil {
			return nil, err
		}
	}

	resp, err := c.roundTrip(ctx, req, payload, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !authenticated {
		return resp, nil
	}
	drain(resp)

	access, err = c.refresh(ctx, s)
	if err != nil {
		return nil, err
	}
	resp, err = c.roundTrip(ctx, req, payload, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, internal.NewSessionExpiredError(errors.New("access token rejected after refresh"))
	}
	return resp, nil
}

// currentAccess returns the session's access token, refreshing it first
// when it is about to expire.
func (c *Client) currentAccess(ctx context.Context, s *session.Session) (string, error) {
	c.tokenMu.Lock()
	access, refresh := s.Tokens()
	c.tokenMu.Unlock()

	if access == "" || refresh == "" {
		return "", internal.NewSessionExpiredError(errors.New("no token pair on session"))
	}
	if expiresSoon(access, c.now()) {
		return c.refresh(ctx, s)
	}
	return access, nil
}

// expiresSoon reads the exp claim without verifying the signature; only
// the backend can verify it.
func expiresSoon(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(now.Add(refreshLeadTime))
}

type refreshResult struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// refresh exchanges the refresh token once per session, shared by every
// concurrent caller that hit a 401.
func (c *Client) refresh(ctx context.Context, s *session.Session) (string, error) {
	v, err, _ := c.refreshes.Do(s.ID, func() (interface{}, error) {
		// Shared by every waiter, so the leader's cancellation must not
		// fail the others.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()

		c.tokenMu.Lock()
		_, refreshToken := s.Tokens()
		c.tokenMu.Unlock()
		if refreshToken == "" {
			return nil, internal.NewSessionExpiredError(errors.New("no refresh token"))
		}

		payload, _ := json.Marshal(map[string]string{"refresh": refreshToken})
		resp, err := c.roundTrip(ctx, Request{Method: http.MethodPost, Path: refreshPath, Anonymous: true}, payload, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

		if resp.StatusCode >= 400 {
			apiErr := parseAPIError(resp.StatusCode, body)
			if apiErr.isMaintenance() {
				return nil, Classify(apiErr)
			}
			c.metrics.refresh.WithLabelValues("rejected").Inc()
			return nil, internal.NewSessionExpiredError(apiErr)
		}
		var out refreshResult
		if err := json.Unmarshal(body, &out); err != nil || out.Access == "" {
			c.metrics.refresh.WithLabelValues("rejected").Inc()
			return nil, internal.NewSessionExpiredError(fmt.Errorf("refresh response without access token: %v", err))
		}

		c.tokenMu.Lock()
		err = c.tokens.UpdateTokens(ctx, s, out.Access, out.Refresh)
		c.tokenMu.Unlock()
		if errors.Is(err, session.ErrNotFound) {
			return nil, internal.NewSessionExpiredError(err)
		}
		if err != nil {
			return nil, internal.NewInternalError("failed to store refreshed tokens", err)
		}
		c.metrics.refresh.WithLabelValues("refreshed").Inc()
		c.logger.Info("access token refreshed", "session_id", s.ID)
		return out.Access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) refreshTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return 15 * time.Second
}

func (c *Client) roundTrip(ctx context.Context, req Request, payload []byte, access string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(ctx, err)
	}

	target := c.baseURL.JoinPath(req.Path)
	if strings.HasSuffix(req.Path, "/") && !strings.HasSuffix(target.Path, "/") {
		target.Path += "/"
	}
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, internal.NewInternalError("failed to build backend request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}
	if traceID := internal.TraceIDFromContext(ctx); traceID != "" {
		httpReq.Header.Set("X-Trace-ID", traceID)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	took := time.Since(start)
	if err != nil {
		c.metrics.observe(req.Method, req.Path, 0, took)
		return nil, c.transportError(ctx, err)
	}
	c.metrics.observe(req.Method, req.Path, resp.StatusCode, took)

	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "backend call",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", took.Milliseconds(),
		"trace_id", internal.TraceIDFromContext(ctx))
	return resp, nil
}

// transportError keeps context errors intact so callers can tell an
// abandoned request from a failing backend.
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.logger.Warn("backend unreachable", "error", err)
	return internal.NewTransientError("Impossible de joindre le serveur, veuillez réessayer.", err)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
}
