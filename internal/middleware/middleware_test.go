package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/services"
	"github.com/javajoker/dealer-contracts/internal/testutil"
)

type stubDirectory struct {
	actors map[string]*services.Actor
}

func (d stubDirectory) ResolveActor(_ context.Context, credentials string) (*services.Actor, error) {
	if actor, ok := d.actors[strings.TrimPrefix(credentials, "Bearer ")]; ok {
		return actor, nil
	}
	return nil, errors.New("unknown token")
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"/v1/sign/abc123":                     "/v1/sign/:token",
		"/v1/sign/abc123/complete":            "/v1/sign/:token/complete",
		"/v1/contracts/42/signatures":         "/v1/contracts/42/signatures",
		"/v1/sign/":                           "/v1/sign/",
		"/v1/contracts/verify/sign/something": "/v1/contracts/verify/sign/:token",
	}
	for in, want := range tests {
		assert.Equal(t, want, redactPath(in), in)
	}
}

func TestPreferredLanguage(t *testing.T) {
	assert.Equal(t, "en", preferredLanguage("", "en"))
	assert.Equal(t, "zh_TW", preferredLanguage("zh-TW,zh;q=0.9,en;q=0.8", "en"))
	assert.Equal(t, "en", preferredLanguage("en-GB;q=0.9", "zh_TW"))
	assert.Equal(t, "zh_TW", preferredLanguage("fr-FR", "zh_TW"))
}

func TestAuditValuesRedactsCredentials(t *testing.T) {
	out := auditValues([]byte(`{"signature_data":"data:image/png;base64,AAAA","reason":"typo","checksum":"abc"}`))
	require.NotNil(t, out)
	assert.NotContains(t, string(out), "base64")
	assert.Contains(t, string(out), `"reason":"typo"`)
	assert.Contains(t, string(out), `"checksum":"[redacted]"`)

	assert.Nil(t, auditValues(nil))
	assert.Nil(t, auditValues([]byte("not json")))
}

func TestResourceExtraction(t *testing.T) {
	id := uuid.New()
	path := "/v1/contracts/" + id.String() + "/invitations"

	assert.Equal(t, "contracts", extractResourceType(path))
	assert.Equal(t, id.String(), extractResourceID(path))
	assert.Equal(t, "health", extractResourceType("/health"))
	assert.Empty(t, extractResourceID("/v1/contracts"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 65))
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
}

func TestAuthRequiredAndManagerRequired(t *testing.T) {
	tenant := uuid.New()
	dir := stubDirectory{actors: map[string]*services.Actor{
		"dealer-token": {UserID: uuid.New(), TenantID: tenant, Role: services.StaffRoleDealer},
		"viewer-token": {UserID: uuid.New(), TenantID: tenant, Role: services.StaffRoleViewer},
	}}

	r := gin.New()
	staff := r.Group("/v1", AuthRequired(dir))
	staff.GET("/contracts", func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, string(actor.Role)+"@"+c.GetString("tenant_id"))
	})
	staff.POST("/contracts", ManagerRequired(), func(c *gin.Context) { c.Status(http.StatusCreated) })

	do := func(method, auth string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/v1/contracts", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("GET", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("GET", "Basic dXNlcjpwYXNz").Code)
	assert.Equal(t, http.StatusUnauthorized, do("GET", "Bearer forged").Code)

	w := do("GET", "Bearer viewer-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer@"+tenant.String(), w.Body.String())

	assert.Equal(t, http.StatusForbidden, do("POST", "Bearer viewer-token").Code)
	assert.Equal(t, http.StatusCreated, do("POST", "Bearer dealer-token").Code)
}

func TestAuditLogMiddlewarePersistsRedactedRequest(t *testing.T) {
	db := testutil.NewDB(t)

	r := gin.New()
	r.Use(RequestID(), AuditLogMiddleware(db))
	r.POST("/v1/sign/:token/complete", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/sign/:token", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/sign/secret-token", nil)
	r.ServeHTTP(w, req)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/sign/secret-token/complete", strings.NewReader(`{"signature_data":"data:image/png;base64,AAAA"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var entry models.AuditLog
	require.Eventually(t, func() bool {
		return db.First(&entry).Error == nil
	}, 2*time.Second, 10*time.Millisecond)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "POST /v1/sign/:token/complete", entry.Action)
	assert.Equal(t, "sign", entry.ResourceType)
	assert.NotContains(t, string(entry.NewValues), "base64")
	assert.NotEmpty(t, entry.RequestID)
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	limiter := PerMinute(3)
	defer limiter.Close()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest("GET", "/", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "20", last.Header().Get("Retry-After"))

	// Another client has its own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := PerMinute(60)
	defer limiter.Close()

	now := time.Now()
	limiter.limiterFor("203.0.113.1", now.Add(-10*time.Minute))
	limiter.limiterFor("203.0.113.2", now)
	limiter.evictIdle(now)

	limiter.mtx.Lock()
	defer limiter.mtx.Unlock()
	assert.Len(t, limiter.visitors, 1)
	assert.Contains(t, limiter.visitors, "203.0.113.2")
}
