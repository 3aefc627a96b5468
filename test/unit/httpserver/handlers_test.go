package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	lg_http "github.com/codeweberdotcom/limitguard/internal/infrastructure/httpserver"
	"github.com/codeweberdotcom/limitguard/test/mocks"
)

const adminToken = "test-admin-token"

func newTestServer(t *testing.T, deps lg_http.ServerDeps) *httptest.Server {
	t.Helper()
	if deps.LimiterService == nil {
		deps.LimiterService = &mocks.LimiterServiceMock{}
	}
	if deps.BlockService == nil {
		deps.BlockService = &mocks.BlockServiceMock{}
	}
	if deps.EventService == nil {
		deps.EventService = &mocks.EventServiceMock{}
	}
	if deps.ConfigService == nil {
		deps.ConfigService = &mocks.ConfigServiceMock{}
	}
	if deps.Store == nil {
		deps.Store = &mocks.StoreManagerMock{}
	}
	cfg := &lg_http.ServerConfig{
		Host: "127.0.0.1", Port: "0",
		ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second,
		AdminToken: adminToken, SelfProtectModule: "admin",
	}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	srv := lg_http.NewServer(cfg, logger, deps)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		b, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestCheckEndpoint_AllowedWithHeaders(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	limiter := &mocks.LimiterServiceMock{CheckLimitFn: func(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision {
		require.Equal(t, "alice", key)
		require.Equal(t, "login", module)
		require.True(t, reqCtx.Increment)
		return ratelimit.Decision{Allowed: true, Remaining: 7, ResetTime: reset}
	}}
	configs := &mocks.ConfigServiceMock{GetConfigFn: func(ctx context.Context, module string) ratelimit.Config {
		return ratelimit.Config{Module: module, MaxRequests: 10, Window: time.Minute, Mode: ratelimit.ModeEnforce}
	}}
	ts := newTestServer(t, lg_http.ServerDeps{LimiterService: limiter, ConfigService: configs})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/check", map[string]any{
		"key": "alice", "module": "login",
		"context": map[string]any{"user_id": "alice", "key_type": "user"},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))
	require.Equal(t, "7", resp.Header.Get("X-RateLimit-Remaining"))

	var decision ratelimit.Decision
	require.NoError(t, json.Unmarshal(body, &decision))
	require.True(t, decision.Allowed)
	require.Equal(t, 7, decision.Remaining)
}

func TestCheckEndpoint_DeniedCarriesBlockedUntil(t *testing.T) {
	until := time.Now().Add(5 * time.Minute).UTC()
	limiter := &mocks.LimiterServiceMock{CheckLimitFn: func(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision {
		return ratelimit.Decision{Allowed: false, Remaining: 0, ResetTime: until, BlockedUntil: &until}
	}}
	ts := newTestServer(t, lg_http.ServerDeps{LimiterService: limiter})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/check", map[string]any{
		"key": "203.0.113.5", "module": "checkout",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision ratelimit.Decision
	require.NoError(t, json.Unmarshal(body, &decision))
	require.False(t, decision.Allowed)
	require.NotNil(t, decision.BlockedUntil)

	// A denied response tells the caller when to come back.
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, retryAfter, 0)
	require.LessOrEqual(t, retryAfter, 301)
}

func TestCheckEndpoint_RejectsMissingKey(t *testing.T) {
	ts := newTestServer(t, lg_http.ServerDeps{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/check", map[string]any{"module": "login"}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint_ForcesDryRun(t *testing.T) {
	limiter := &mocks.LimiterServiceMock{CheckLimitFn: func(ctx context.Context, key, module string, reqCtx ratelimit.RequestContext) ratelimit.Decision {
		require.False(t, reqCtx.Increment, "status endpoint must never increment")
		return ratelimit.Decision{Allowed: true, Remaining: 3, ResetTime: time.Now().Add(time.Minute)}
	}}
	ts := newTestServer(t, lg_http.ServerDeps{LimiterService: limiter})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/limits/login/status?key=alice", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminEndpoints_RequireBearerToken(t *testing.T) {
	ts := newTestServer(t, lg_http.ServerDeps{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/admin/blocks", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/blocks", nil, "wrong-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/admin/blocks", nil, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateBlock_ConflictMapsTo409(t *testing.T) {
	blocks := &mocks.BlockServiceMock{CreateBlockFn: func(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error) {
		return nil, ratelimit.ErrBlockExists
	}}
	ts := newTestServer(t, lg_http.ServerDeps{BlockService: blocks})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/blocks", map[string]any{
		"module": "login", "target_type": "user", "target_value": "u1", "reason": "abuse",
	}, adminToken)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, string(body), "BLOCK_EXISTS")
}

func TestCreateBlock_Created(t *testing.T) {
	blocks := &mocks.BlockServiceMock{CreateBlockFn: func(ctx context.Context, req *ratelimit.CreateBlockRequest) (*ratelimit.ManualBlock, error) {
		require.Equal(t, "login", req.Module)
		return &ratelimit.ManualBlock{Module: req.Module, TargetType: req.TargetType, TargetValue: req.TargetValue, Reason: req.Reason, CreatedAt: time.Now()}, nil
	}}
	ts := newTestServer(t, lg_http.ServerDeps{BlockService: blocks})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/blocks", map[string]any{
		"module": "login", "target_type": "ip", "target_value": "203.0.113.1", "reason": "abuse",
	}, adminToken)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRevokeBlock_UsesQueryParams(t *testing.T) {
	blocks := &mocks.BlockServiceMock{RevokeBlockFn: func(ctx context.Context, module string, targetType ratelimit.TargetType, targetValue string, revokedBy string) error {
		require.Equal(t, "signup", module)
		require.Equal(t, ratelimit.TargetEmail, targetType)
		require.Equal(t, "bob@example.com", targetValue)
		require.Equal(t, "admin-1", revokedBy)
		return nil
	}}
	ts := newTestServer(t, lg_http.ServerDeps{BlockService: blocks})

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/v1/admin/blocks?module=signup&target_type=email&target_value=bob%40example.com&revoked_by=admin-1", nil, adminToken)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/admin/blocks?module=signup", nil, adminToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListEvents_PassesCursorAndReturnsNext(t *testing.T) {
	events := &mocks.EventServiceMock{ListFn: func(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
		require.Equal(t, "login", filter.Module)
		require.Equal(t, "opaque-cursor", filter.Cursor)
		require.True(t, filter.ExcludeTest)
		return []*ratelimit.Event{{Module: "login", EventType: ratelimit.EventBlock}}, "next-cursor", nil
	}}
	ts := newTestServer(t, lg_http.ServerDeps{EventService: events})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/admin/events?module=login&cursor=opaque-cursor&exclude_test=true", nil, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Items      []*ratelimit.Event `json:"items"`
		NextCursor string             `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "next-cursor", page.NextCursor)
}

func TestListEvents_MalformedCursorMapsTo400(t *testing.T) {
	events := &mocks.EventServiceMock{ListFn: func(ctx context.Context, filter *ratelimit.EventFilter) ([]*ratelimit.Event, string, error) {
		return nil, "", ratelimit.ErrValidation
	}}
	ts := newTestServer(t, lg_http.ServerDeps{EventService: events})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/admin/events?cursor=garbage", nil, adminToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateConfig_ConvertsMilliseconds(t *testing.T) {
	configs := &mocks.ConfigServiceMock{UpdateConfigFn: func(ctx context.Context, module string, req *ratelimit.UpdateConfigRequest) (*ratelimit.Config, error) {
		require.Equal(t, "login", module)
		require.NotNil(t, req.Window)
		require.Equal(t, 30*time.Second, *req.Window)
		return &ratelimit.Config{Module: module, MaxRequests: 10, Window: *req.Window, Mode: ratelimit.ModeEnforce, UpdatedAt: time.Now()}, nil
	}}
	ts := newTestServer(t, lg_http.ServerDeps{ConfigService: configs})

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/v1/admin/configs/login", map[string]any{"window_ms": 30000}, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg struct {
		WindowMs int64 `json:"window_ms"`
	}
	require.NoError(t, json.Unmarshal(body, &cfg))
	require.Equal(t, int64(30000), cfg.WindowMs)
}

func TestCacheReset_CallsStore(t *testing.T) {
	called := false
	store := &mocks.StoreManagerMock{ClearCacheFn: func(ctx context.Context, module, key string) error {
		called = true
		require.Equal(t, "login", module)
		require.Equal(t, "alice", key)
		return nil
	}}
	ts := newTestServer(t, lg_http.ServerDeps{Store: store})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/cache/reset", map[string]any{"module": "login", "key": "alice"}, adminToken)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.True(t, called)
}

func TestHealthEndpoint_ReportsDegradedStore(t *testing.T) {
	store := &mocks.StoreManagerMock{DegradedFn: func() bool { return true }}
	ts := newTestServer(t, lg_http.ServerDeps{Store: store})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(body), "degraded")
}
