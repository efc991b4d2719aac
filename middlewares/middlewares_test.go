package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/testutil"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(), AuthMiddleware())
	r.GET("/who", append(mw, func(c *gin.Context) {
		ctx := c.Request.Context()
		username, _ := utils.GetUsernameFromContext(ctx)
		role, _ := utils.GetRoleFromContext(ctx)
		deviceId, _ := utils.GetDeviceIdFromContext(ctx)
		_, hasToken := utils.GetTokenFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{"username": username, "role": role, "device_id": deviceId, "token": hasToken})
	})...)
	return r
}

func get(r http.Handler, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	token, err := utils.JwtGenerate("asha", 7, "AGENT")
	require.NoError(t, err)

	w := get(newRouter(RequireAuth()), token, "x-device-id", "desk-3")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"username":"asha","role":"AGENT","device_id":"desk-3","token":true}`, w.Body.String())
	require.NotEmpty(t, w.Header().Get("x-correlation-id"))
}

func TestAuthMiddlewareRejects(t *testing.T) {
	r := newRouter(RequireAuth())

	require.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	require.Equal(t, http.StatusUnauthorized, get(r, "not-a-jwt").Code)

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r := newRouter(RequireRole("ADMIN", "MANAGER"))

	admin, err := utils.JwtGenerate("root", 1, "ADMIN")
	require.NoError(t, err)
	manager, err := utils.JwtGenerate("mgr", 2, "MANAGER")
	require.NoError(t, err)
	agent, err := utils.JwtGenerate("asha", 3, "AGENT")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, get(r, admin).Code)
	require.Equal(t, http.StatusOK, get(r, manager).Code)
	require.Equal(t, http.StatusForbidden, get(r, agent).Code)
	require.Equal(t, http.StatusUnauthorized, get(r, "").Code)
}

func TestCorrelationIdIsEchoed(t *testing.T) {
	w := get(newRouter(), "", "x-correlation-id", "cid-42")
	require.Equal(t, "cid-42", w.Header().Get("x-correlation-id"))
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := testutil.NewRedis(t)
	rl := NewRateLimiter(2, time.Minute)
	r := newRouter(rl.RateLimitMiddleware)

	require.Equal(t, http.StatusOK, get(r, "").Code)
	require.Equal(t, http.StatusOK, get(r, "").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "").Code)

	mr.FastForward(time.Minute + time.Second)
	require.Equal(t, http.StatusOK, get(r, "").Code)
}

func TestRateLimitMiddlewareWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	r := newRouter(rl.RateLimitMiddleware)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(r, "").Code)
	}
}

func TestAccessLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(), AccessLogger(logger))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/ok", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	require.Equal(t, logrus.InfoLevel, entries[0].Level)
	require.Equal(t, "/ok", entries[0].Data["path"])
	require.Equal(t, logrus.ErrorLevel, entries[1].Level)
	require.Equal(t, http.StatusInternalServerError, entries[1].Data["status"])
}
