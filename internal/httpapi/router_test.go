package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/co2market/auth-service/internal/account"
	"github.com/co2market/auth-service/pkg/core/health"
	"github.com/co2market/auth-service/pkg/event"
	"github.com/co2market/auth-service/pkg/outbox"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAccounts struct {
	registerReq   account.RegisterRequest
	loginReq      account.LoginRequest
	correlationID string
	err           error
}

func (f *fakeAccounts) Register(ctx context.Context, req account.RegisterRequest) (*account.Summary, error) {
	f.registerReq = req
	f.correlationID, _ = event.CorrelationIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &account.Summary{ID: "u-1", Username: req.Username, Role: req.Role, EventID: "evt-1"}, nil
}

func (f *fakeAccounts) Login(ctx context.Context, req account.LoginRequest) (*account.Summary, error) {
	f.loginReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &account.Summary{ID: "u-1", Username: req.Username, EventID: "evt-2"}, nil
}

type fakeOperator struct {
	limit       int
	redelivered string
	events      []*outbox.Event
	err         error
}

func (f *fakeOperator) Abandoned(_ context.Context, limit int) ([]*outbox.Event, error) {
	f.limit = limit
	return f.events, f.err
}

func (f *fakeOperator) Redeliver(_ context.Context, eventID string) error {
	f.redelivered = eventID
	return f.err
}

type fakeReadiness struct{ ready bool }

func (f fakeReadiness) IsReady() bool { return f.ready }

func (f fakeReadiness) Status() health.ReadinessStatus {
	return health.ReadinessStatus{
		Ready:      f.ready,
		Components: []health.ComponentStatus{{Name: "postgres", Ready: f.ready}},
	}
}

type testAPI struct {
	accounts *fakeAccounts
	operator *fakeOperator
	engine   *gin.Engine
}

func newTestAPI(t *testing.T, mutate ...func(*Config)) *testAPI {
	t.Helper()
	cfg := Config{AdminKey: "s3cret"}
	applyDefaults(&cfg)
	for _, m := range mutate {
		m(&cfg)
	}
	a := &testAPI{accounts: &fakeAccounts{}, operator: &fakeOperator{}}
	a.engine = newEngine(routerDeps{
		Config:    cfg,
		Log:       zap.NewNop(),
		Accounts:  a.accounts,
		Operator:  a.operator,
		Readiness: fakeReadiness{ready: true},
	})
	return a
}

func (a *testAPI) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) Problem {
	t.Helper()
	var p Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

const registerBody = `{
	"username": "buyer_1", "email": "buyer@example.com", "password": "Secret1!",
	"firstName": "Mai", "lastName": "Le", "role": "CC_BUYER",
	"organizationName": "Green Fleet", "taxId": "TX-9"
}`

func TestRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/register", registerBody, headerCorrelationID, "corr-1")

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "corr-1", w.Header().Get(headerCorrelationID))
		assert.Equal(t, "corr-1", api.accounts.correlationID)
		assert.Equal(t, account.RoleCCBuyer, api.accounts.registerReq.Role)
		assert.Equal(t, "Green Fleet", api.accounts.registerReq.OrganizationName)
		assert.Equal(t, "TX-9", api.accounts.registerReq.TaxID)

		var s account.Summary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
		assert.Equal(t, "evt-1", s.EventID)
	})

	t.Run("generates correlation id", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/register", registerBody)

		assert.NotEmpty(t, w.Header().Get(headerCorrelationID))
		assert.Equal(t, w.Header().Get(headerCorrelationID), api.accounts.correlationID)
	})

	t.Run("missing field", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/register", `{"username":"x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	})

	t.Run("unknown role", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/register", strings.Replace(registerBody, "CC_BUYER", "GUEST", 1))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("domain errors map to status", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			detail string
		}{
			{account.ErrUsernameTaken, http.StatusConflict, "Username is already taken"},
			{account.ErrEmailTaken, http.StatusConflict, "Email is already registered"},
			{fmt.Errorf("%w: weak password", account.ErrValidation), http.StatusBadRequest, "invalid request: weak password"},
			{errors.New("db down"), http.StatusInternalServerError, "internal error"},
		}
		for _, tc := range cases {
			t.Run(tc.detail, func(t *testing.T) {
				api := newTestAPI(t)
				api.accounts.err = tc.err

				w := api.do(http.MethodPost, "/api/v1/auth/register", registerBody)

				assert.Equal(t, tc.status, w.Code)
				p := decodeProblem(t, w)
				assert.Equal(t, tc.status, p.Status)
				assert.Equal(t, tc.detail, p.Detail)
				assert.Equal(t, "/api/v1/auth/register", p.Instance)
			})
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("passes client metadata", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/login", `{"usernameOrEmail":"buyer_1","password":"Secret1!"}`, "User-Agent", "curl/8")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "buyer_1", api.accounts.loginReq.Username)
		assert.Equal(t, "curl/8", api.accounts.loginReq.UserAgent)
		assert.NotEmpty(t, api.accounts.loginReq.IPAddress)
	})

	t.Run("accepts username field", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/auth/login", `{"username":"buyer_1","password":"Secret1!"}`)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "buyer_1", api.accounts.loginReq.Username)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		api := newTestAPI(t)
		api.accounts.err = account.ErrInvalidCredentials

		w := api.do(http.MethodPost, "/api/v1/auth/login", `{"username":"buyer_1","password":"nope"}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", w.Body.String())

	w = api.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", w.Body.String())

	w = api.do(http.MethodGet, "/health/ready?format=json", "")
	var status health.ReadinessStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Ready)
	assert.Len(t, status.Components, 1)
}

func TestHealth_NotReady(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	engine := newEngine(routerDeps{Config: cfg, Log: zap.NewNop(), Accounts: &fakeAccounts{}, Readiness: fakeReadiness{}})
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOutboxAdmin(t *testing.T) {
	t.Run("requires admin key", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		w = api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned", "", headerAdminKey, "wrong")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("not routed without admin key config", func(t *testing.T) {
		api := newTestAPI(t, func(c *Config) { c.AdminKey = "" })

		w := api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned", "", headerAdminKey, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("lists abandoned events", func(t *testing.T) {
		api := newTestAPI(t)
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		api.operator.events = []*outbox.Event{{
			EventID: "e-1", EventType: "USER_LOGIN", RoutingKey: "auth.user.loggedin",
			RetryCount: 5, ErrorMessage: "broker unavailable", Status: outbox.StatusAbandoned, AbandonedAt: &at,
		}}

		w := api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned?limit=10", "", headerAdminKey, "s3cret")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 10, api.operator.limit)
		var body struct {
			Events []abandonedEvent `json:"events"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Events, 1)
		assert.Equal(t, "e-1", body.Events[0].EventID)
		assert.Equal(t, 5, body.Events[0].RetryCount)
		assert.Equal(t, "broker unavailable", body.Events[0].ErrorMessage)
	})

	t.Run("default and invalid limit", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned", "", headerAdminKey, "s3cret")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultAbandonedLimit, api.operator.limit)

		w = api.do(http.MethodGet, "/api/v1/admin/outbox/abandoned?limit=0", "", headerAdminKey, "s3cret")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("redeliver", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/v1/admin/outbox/e-1/redeliver", "", headerAdminKey, "s3cret")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "e-1", api.operator.redelivered)
		assert.JSONEq(t, `{"eventId":"e-1","status":"PUBLISHED"}`, w.Body.String())
	})

	t.Run("redeliver errors", func(t *testing.T) {
		cases := map[error]int{
			outbox.ErrEventNotFound:    http.StatusNotFound,
			outbox.ErrAlreadyPublished: http.StatusConflict,
			outbox.ErrLeaseLost:        http.StatusConflict,
		}
		for err, status := range cases {
			api := newTestAPI(t)
			api.operator.err = err

			w := api.do(http.MethodPost, "/api/v1/admin/outbox/e-1/redeliver", "", headerAdminKey, "s3cret")

			assert.Equal(t, status, w.Code, err.Error())
		}
	})
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.RateLimit.RequestsPerSecond = 1
		c.RateLimit.Burst = 1
	})

	first := api.do(http.MethodPost, "/api/v1/auth/login", `{"username":"a","password":"b"}`)
	second := api.do(http.MethodPost, "/api/v1/auth/login", `{"username":"a","password":"b"}`)
	probe := api.do(http.MethodGet, "/health/live", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, probe.Code)
}

func TestRecovery(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	engine := newEngine(routerDeps{Config: cfg, Log: zap.NewNop(), Accounts: &fakeAccounts{}, Readiness: fakeReadiness{}})
	engine.GET("/boom", func(*gin.Context) { panic("boom") })
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Connection.ReadHeaderTimeout)
	assert.True(t, *cfg.RateLimit.Enabled)
}

func TestDocs(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.Docs = true })

	w := api.do(http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/auth/register")

	w = api.do(http.MethodGet, "/swagger", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SwaggerUIBundle")

	off := newTestAPI(t)
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodGet, "/openapi.yaml", "").Code)
}
