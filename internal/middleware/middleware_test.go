package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akolanti/CivicRAG/internal/api"
	"github.com/akolanti/CivicRAG/internal/config"
	"github.com/akolanti/CivicRAG/internal/domain/commonModels"
	"github.com/akolanti/CivicRAG/pkg/logger_i"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type captured struct {
	called    bool
	traceId   string
	principal commonModels.Principal
}

func captureHandler(c *captured) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.called = true
		c.traceId = logger_i.TraceId(r.Context())
		c.principal = commonModels.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func setup(t *testing.T, token string, bypass bool) {
	t.Helper()
	InitAuth(token, bypass)
	SetRateLimit(rate.Inf, 1)
	t.Cleanup(func() {
		InitAuth("", false)
		SetRateLimit(rate.Limit(config.RATE_LIMIT_PER_SECOND), config.BURST_RATE_LIMIT_PER_SECOND)
	})
}

func newRequest(auth string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/query", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func TestWrap_Authentication(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		bypass     bool
		header     string
		wantCalled bool
	}{
		{"valid token", "secret", false, "Bearer secret", true},
		{"wrong token", "secret", false, "Bearer nope", false},
		{"missing header", "secret", false, "", false},
		{"not bearer", "secret", false, "Basic secret", false},
		{"no token configured", "", false, "Bearer ", false},
		{"bypass", "", true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup(t, tt.token, tt.bypass)
			c := &captured{}
			rec := httptest.NewRecorder()

			Wrap(captureHandler(c))(rec, newRequest(tt.header))

			assert.Equal(t, tt.wantCalled, c.called)
			if !tt.wantCalled {
				require.Equal(t, http.StatusUnauthorized, rec.Code)
				var body api.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, http.StatusUnauthorized, body.Code)
				assert.False(t, body.Retry)
			}
		})
	}
}

func TestWrap_Trace(t *testing.T) {
	setup(t, "secret", false)

	t.Run("keeps the caller's trace id", func(t *testing.T) {
		c := &captured{}
		req := newRequest("Bearer secret")
		req.Header.Set(config.TRACE_ID_HEADER, "trace-123")
		rec := httptest.NewRecorder()

		Wrap(captureHandler(c))(rec, req)

		assert.Equal(t, "trace-123", c.traceId)
		assert.Equal(t, "trace-123", rec.Header().Get(config.TRACE_ID_HEADER))
	})

	t.Run("generates one when missing", func(t *testing.T) {
		c := &captured{}
		rec := httptest.NewRecorder()

		Wrap(captureHandler(c))(rec, newRequest("Bearer secret"))

		assert.NotEmpty(t, c.traceId)
		assert.Equal(t, c.traceId, rec.Header().Get(config.TRACE_ID_HEADER))
	})
}

func TestWrap_Principal(t *testing.T) {
	setup(t, "secret", false)
	c := &captured{}
	req := newRequest("Bearer secret")
	req.Header.Set(config.UserIdHeader, "clerk-7")
	req.Header.Set(config.UserRoleHeader, "sub_admin")
	req.Header.Set(config.JurisdictionIdsHeader, "J1, J2,,")

	Wrap(captureHandler(c))(httptest.NewRecorder(), req)

	assert.Equal(t, commonModels.Principal{
		UserId:          "clerk-7",
		Role:            commonModels.RoleSubAdmin,
		JurisdictionIds: []string{"J1", "J2"},
	}, c.principal)
}

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		wantRole commonModels.Role
	}{
		{"admin", "admin", commonModels.RoleAdmin},
		{"case and space", " Consumer ", commonModels.RoleConsumer},
		{"unknown role", "superuser", ""},
		{"missing role", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set(config.UserRoleHeader, tt.role)
			p := ParsePrincipal(h)
			assert.Equal(t, tt.wantRole, p.Role)
			assert.Empty(t, p.JurisdictionIds)
		})
	}
}

func TestWrap_RateLimit(t *testing.T) {
	setup(t, "secret", false)
	SetRateLimit(rate.Every(1<<62), 2)

	c := &captured{}
	handler := Wrap(captureHandler(c))
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler(rec, newRequest("Bearer secret"))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	req := newRequest("Bearer secret")
	req.RemoteAddr = "198.51.100.9:4000"
	rec := httptest.NewRecorder()
	handler(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIPRateLimiter_SameLimiterPerIP(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	assert.Same(t, limiter.GetLimiter("10.0.0.1"), limiter.GetLimiter("10.0.0.1"))
	assert.NotSame(t, limiter.GetLimiter("10.0.0.1"), limiter.GetLimiter("10.0.0.2"))
}
