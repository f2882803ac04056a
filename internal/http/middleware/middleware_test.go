package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/straye-as/shortage-api/internal/auth"
	"github.com/straye-as/shortage-api/internal/config"
	"github.com/straye-as/shortage-api/internal/domain"
	"github.com/straye-as/shortage-api/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestLogging_RecordsRoutePatternAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(Logging(zap.New(core), m))
	r.Get("/orders/{id}", ok)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/42", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, rec.Header().Get(requestIDHeader), logs.All()[0].ContextMap()["request_id"])

	count, err := testutil.GatherAndCount(m.Registry(), "shortage_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	body := httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, body.Body.String(), `route="/orders/{id}"`)
}

func TestLogging_KeepsIncomingRequestID(t *testing.T) {
	h := Logging(zap.NewNop(), nil)(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrorTypeInternal, apiErr.Type)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestSecurityHeaders(t *testing.T) {
	cfg := &config.SecurityConfig{
		EnableHSTS:            true,
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		ContentTypeNosniff:    true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'self'",
	}
	h := SecurityHeaders(cfg)(http.HandlerFunc(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Empty(t, rec.Header().Get("X-XSS-Protection"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	cfg := &config.CORSConfig{
		AllowedOrigins: []string{"https://planner.straye.io"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization"},
	}
	h := CORS(cfg, "production", zap.NewNop())(http.HandlerFunc(ok))

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "GET")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, "https://planner.straye.io", preflight("https://planner.straye.io").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, preflight("https://evil.example").Header().Get("Access-Control-Allow-Origin"))

	deny := CORS(&config.CORSConfig{AllowedMethods: []string{"GET"}}, "production", zap.NewNop())(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://planner.straye.io")
	rec := httptest.NewRecorder()
	deny.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func newLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(&config.RateLimitConfig{
		Enabled:               true,
		RequestsPerMinute:     perMinute,
		RequestsPerMinuteAuth: perMinute,
		WhitelistIPs:          []string{"10.0.0.9"},
		WhitelistPaths:        []string{"/health", "/swagger/*"},
	}, zap.NewNop())
}

func hit(h http.Handler, path, ip string, user *auth.UserContext) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":5555"
	if user != nil {
		req = req.WithContext(auth.WithUserContext(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_ByIP(t *testing.T) {
	h := newLimiter(2).LimitByIP(http.HandlerFunc(ok))

	assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "192.0.2.1", nil))
	assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "192.0.2.1", nil))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "/api/v1/orders", "192.0.2.1", nil))
	assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "192.0.2.2", nil))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "/health", "192.0.2.1", nil))
		assert.Equal(t, http.StatusOK, hit(h, "/swagger/index.html", "192.0.2.1", nil))
		assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "10.0.0.9", nil))
	}
}

func TestRateLimiter_ByUser(t *testing.T) {
	h := newLimiter(1).LimitByUser(http.HandlerFunc(ok))
	alice := &auth.UserContext{Email: "alice@straye.io"}
	bob := &auth.UserContext{Email: "bob@straye.io"}

	assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "192.0.2.1", alice))
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "/api/v1/orders", "192.0.2.2", alice))
	assert.Equal(t, http.StatusOK, hit(h, "/api/v1/orders", "192.0.2.1", bob))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: false, RequestsPerMinute: 1, RequestsPerMinuteAuth: 1}, zap.NewNop())
	h := rl.LimitByIP(http.HandlerFunc(ok))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "/", "192.0.2.1", nil))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.3")
	assert.Equal(t, "198.51.100.3", clientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
	assert.False(t, strings.Contains(clientIP(req), ","))
}
