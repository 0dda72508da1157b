package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"blackout/internal/auth"
	"blackout/internal/log"
	"blackout/internal/metrics"
	"blackout/internal/middleware/ratelimit"
	"blackout/internal/services"
	"blackout/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestServer(t *testing.T, limit ratelimit.Config) *Server {
	t.Helper()
	store := memory.New()
	logger := log.New(log.Config{Output: io.Discard})
	m := metrics.New()

	tokens, err := auth.NewTokens(testSecret, time.Hour)
	require.NoError(t, err)

	finance := services.NewFinanceService(store, services.Options{Metrics: m, Logger: logger})
	s := NewServer(":0", Deps{
		Finance:   finance,
		Auth:      auth.NewService(store.Users(), tokens),
		Metrics:   m,
		Logger:    logger,
		RateLimit: limit,
		OpenAPI:   []byte("openapi: 3.0.3\n"),
	})
	t.Cleanup(func() {
		s.limiter.Stop()
		_ = finance.Close()
	})
	return s
}

type client struct {
	t     *testing.T
	h     http.Handler
	token string
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// signUp registers and logs in a user and returns a client carrying the token.
func signUp(t *testing.T, s *Server, email string) *client {
	t.Helper()
	c := &client{t: t, h: s.Handler}

	rec := c.do(http.MethodPost, "/api/auth/register", fmt.Sprintf(
		`{"name":"Ana","dateOfBirth":"1990-04-12","phoneNumber":"+55 11 99999-0000","email":%q,"password":"segredo123"}`, email))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, email, decode(t, rec)["email"])

	rec = c.do(http.MethodPost, "/api/auth/login", fmt.Sprintf(`{"email":%q,"password":"segredo123"}`, email))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	c.token = token
	return c
}

func record(value, category string) string {
	return fmt.Sprintf(`{"value":%s,"category":%q,"description":"lancamento","date":"2024-05-10"}`, value, category)
}

func TestBalanceScenario(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	c := signUp(t, s, "ana@example.com")

	rec := c.do(http.MethodPost, "/api/income/create", record("100", "Salário"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/expense/create", record("150", "Aluguel"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInsufficientBalance, decode(t, rec)["code"])

	rec = c.do(http.MethodPost, "/api/expense/create", record("60", "Mercado"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	expenseID := int64(decode(t, rec)["id"].(float64))

	rec = c.do(http.MethodGet, "/api/finance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":40.00`)

	rec = c.do(http.MethodDelete, fmt.Sprintf("/api/expense/%d", expenseID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, float64(expenseID), body["record"].(map[string]any)["id"])

	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/income/create", record("3500", "Salário")).Code)
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/expense/create", record("120.50", "Alimentação")).Code)

	rec = c.do(http.MethodGet, "/api/finance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalIncome":3600.00`)
	assert.Contains(t, rec.Body.String(), `"totalExpenses":120.50`)
	assert.Contains(t, rec.Body.String(), `"balance":3479.50`)
	assert.Contains(t, rec.Body.String(), `"saldoAtual":3479.50`)

	rec = c.do(http.MethodGet, "/api/income", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["incomes"], 2)

	rec = c.do(http.MethodGet, "/api/expense", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["expenses"], 1)
}

func TestUpdateCannotOverdraw(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	c := signUp(t, s, "bia@example.com")

	rec := c.do(http.MethodPost, "/api/income/create", record("100", "Salário"))
	require.Equal(t, http.StatusCreated, rec.Code)
	incomeID := int64(decode(t, rec)["id"].(float64))
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/expense/create", record("80", "Mercado")).Code)

	rec = c.do(http.MethodPut, fmt.Sprintf("/api/income/%d", incomeID), record("50", "Salário"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInsufficientBalance, decode(t, rec)["code"])

	rec = c.do(http.MethodDelete, fmt.Sprintf("/api/income/%d", incomeID), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodPut, fmt.Sprintf("/api/income/%d", incomeID), record("90", "Bonus"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Bonus", body["category"])
	assert.Equal(t, 90.0, body["value"])
}

func TestOwnersAreIsolated(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	ana := signUp(t, s, "ana@example.com")
	bia := signUp(t, s, "bia@example.com")

	rec := ana.do(http.MethodPost, "/api/income/create", record("100", "Salário"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := int64(decode(t, rec)["id"].(float64))

	assert.Equal(t, http.StatusNotFound, bia.do(http.MethodPut, fmt.Sprintf("/api/income/%d", id), record("1", "x")).Code)
	assert.Equal(t, http.StatusNotFound, bia.do(http.MethodDelete, fmt.Sprintf("/api/income/%d", id), "").Code)

	rec = bia.do(http.MethodGet, "/api/income", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["incomes"], 0)

	rec = bia.do(http.MethodGet, "/api/finance", "")
	assert.Contains(t, rec.Body.String(), `"balance":0.00`)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	c := signUp(t, s, "ana@example.com")
	anon := &client{t: t, h: s.Handler}

	tests := []struct {
		name   string
		c      *client
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"no token", anon, http.MethodGet, "/api/finance", "", http.StatusUnauthorized, ""},
		{"bad token", &client{t: t, h: s.Handler, token: "nope"}, http.MethodGet, "/api/income", "", http.StatusUnauthorized, ""},
		{"invalid id", c, http.MethodDelete, "/api/income/abc", "", http.StatusBadRequest, CodeValidation},
		{"zero id", c, http.MethodPut, "/api/expense/0", record("1", "x"), http.StatusBadRequest, CodeValidation},
		{"bad json", c, http.MethodPost, "/api/income/create", `{"value":`, http.StatusBadRequest, CodeValidation},
		{"empty body", c, http.MethodPost, "/api/income/create", "", http.StatusBadRequest, CodeValidation},
		{"negative value", c, http.MethodPost, "/api/income/create", record("-5", "x"), http.StatusBadRequest, CodeValidation},
		{"huge exponent", c, http.MethodPost, "/api/expense/create", `{"value":1e200000000,"category":"c","description":"d","date":"2024-01-01"}`, http.StatusBadRequest, CodeValidation},
		{"tiny exponent", c, http.MethodPost, "/api/income/create", `{"value":1e-200000000,"category":"c","description":"d","date":"2024-01-01"}`, http.StatusBadRequest, CodeValidation},
		{"missing category", c, http.MethodPost, "/api/income/create", `{"value":5,"description":"d","date":"2024-01-01"}`, http.StatusBadRequest, CodeValidation},
		{"bad date", c, http.MethodPost, "/api/income/create", `{"value":5,"category":"c","description":"d","date":"2024-13-01"}`, http.StatusBadRequest, CodeValidation},
		{"unknown record", c, http.MethodDelete, "/api/expense/999", "", http.StatusNotFound, CodeNotFound},
		{"wrong password", anon, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"errada"}`, http.StatusUnauthorized, CodeUnauthorized},
		{"duplicate email", anon, http.MethodPost, "/api/auth/register",
			`{"name":"Ana","dateOfBirth":"1990-04-12","phoneNumber":"1","email":"ANA@example.com","password":"segredo123"}`,
			http.StatusBadRequest, CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.c.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode(t, rec)["code"])
			}
		})
	}
}

func TestDataIsAcceptedForDate(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	c := signUp(t, s, "ana@example.com")

	rec := c.do(http.MethodPost, "/api/income/create",
		`{"value":"10.5","category":"Extra","description":"freela","data":"2024-02-29"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "2024-02-29", body["date"])
	assert.Equal(t, 10.5, body["value"])
}

func TestProbesAndDocs(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{})
	c := &client{t: t, h: s.Handler}

	for _, path := range []string{"/healthz", "/api/health"} {
		rec := c.do(http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["status"])
	}

	rec := c.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	rec = c.do(http.MethodGet, "/api/docs/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("openapi:")))

	rec = c.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blackout_http_requests_total")

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.Config{RequestsPerWindow: 2, Window: time.Minute})
	c := &client{t: t, h: s.Handler}

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/finance", "").Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/finance", "").Code)

	rec := c.do(http.MethodGet, "/api/finance", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decode(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/healthz", "").Code)
}
