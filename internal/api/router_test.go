package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hugh/medpocket/internal/api"
	"github.com/hugh/medpocket/internal/auth"
	"github.com/hugh/medpocket/internal/cards"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm/llmtest"
	"github.com/hugh/medpocket/internal/observability"
	"github.com/hugh/medpocket/internal/testutil"
	"github.com/hugh/medpocket/pkg/crypto"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestRouter(t *testing.T, tc *testutil.TestSetup, mutate func(*api.RouterConfig)) *api.Router {
	t.Helper()

	encryptor, err := crypto.NewEncryptor("")
	require.NoError(t, err)
	cardService := cards.NewService(tc.DB, nil, time.Minute, util.Discard())

	cfg := api.RouterConfig{
		DB:             tc.DB,
		Logger:         util.Discard(),
		JWTService:     tc.JWTService,
		AuthService:    auth.NewService(tc.DB, tc.JWTService),
		Cards:          cardService,
		Notes:          cards.NewNoteService(tc.DB, cardService, encryptor),
		LLM:            llmtest.NewScripted(llmtest.Reply{Text: "ok"}),
		Generation:     generation.DefaultConfig(),
		Prom:           observability.NewProm(prometheus.NewRegistry()),
		AllowedOrigins: []string{"http://localhost:8081"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	router := api.NewRouter(cfg)
	t.Cleanup(router.Close)
	return router
}

func TestRouter_Routes(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	router := newTestRouter(t, tc, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"ready", "GET", "/ready", "", http.StatusOK},
		{"metrics", "GET", "/metrics", "", http.StatusOK},
		{"public cards without auth", "GET", "/api/public-cards", "", http.StatusOK},
		{"cards need auth", "GET", "/api/medical-cards", "", http.StatusUnauthorized},
		{"cards", "GET", "/api/medical-cards", tc.Token, http.StatusOK},
		{"me", "GET", "/api/auth/me", tc.Token, http.StatusOK},
		{"me needs auth", "GET", "/api/auth/me", "", http.StatusUnauthorized},
		{"templates", "GET", "/api/templates", tc.Token, http.StatusOK},
		{"entries", "GET", "/api/entries", tc.Token, http.StatusOK},
		{"categories", "GET", "/api/categories", tc.Token, http.StatusOK},
		{"links", "GET", "/api/links", tc.Token, http.StatusOK},
		{"jobs without a queue", "POST", "/api/ai/generate/jobs", tc.Token, http.StatusServiceUnavailable},
		{"unknown route", "GET", "/api/nothing-here", tc.Token, http.StatusNotFound},
		{"wrong method", "DELETE", "/health", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, tt.method, tt.path, nil, tt.token))
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRouter_MetricsByRoute(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	router := newTestRouter(t, tc, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "GET", "/api/medical-cards", nil, tc.Token))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `route="/api/medical-cards`)
	assert.NotContains(t, rr.Body.String(), `route="unmatched"`)
}

func TestRouter_CORSAllowsTokenHeader(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	router := newTestRouter(t, tc, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/medical-cards", nil)
	req.Header.Set("Origin", "http://localhost:8081")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "X-Auth-Token")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:8081", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")), "x-auth-token"))
}

func TestRouter_AIRateLimitPerUser(t *testing.T) {
	tc := testutil.NewTestContext(t)
	defer tc.Cleanup()
	router := newTestRouter(t, tc, func(cfg *api.RouterConfig) {
		cfg.AIRateLimit = 2
		cfg.RateLimitSecs = 60
	})

	body := map[string]interface{}{"messages": []map[string]string{{"role": "user", "content": "hi"}}}
	chat := func(token string) int {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, testutil.AuthenticatedRequest(t, "POST", "/api/ai/chat", body, token))
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, chat(tc.Token))
	assert.Equal(t, http.StatusOK, chat(tc.Token))
	assert.Equal(t, http.StatusTooManyRequests, chat(tc.Token))

	_, otherToken := tc.SecondUser(t)
	assert.Equal(t, http.StatusOK, chat(otherToken))
}

func TestRouter_CloseStopsLimiters(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)

	router := api.NewRouter(api.RouterConfig{
		Logger:        util.Discard(),
		RateLimitReqs: 10,
		RateLimitSecs: 60,
		AIRateLimit:   5,
	})
	router.Close()
}
