package versionfeed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const manifest = `{"latest_version":"2.3.1","download_url":"https://dl.example.in/fingov-2.3.1.exe","mandatory":false,"release_notes":"fixes","sha256":"ab12","channel":"stable"}`

func newFeedRouter(t *testing.T, role string) (*gin.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	feed := New(&utils.LocalStore{Dir: dir})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if role != "" {
			ctx := utils.SetUsernameInContext(c.Request.Context(), "someone")
			c.Request = c.Request.WithContext(utils.SetRoleInContext(ctx, role))
		}
		c.Next()
	})
	r.POST("/version-admin/admin/update_version", UpdateVersionHandler(feed))
	r.GET("/version_info", VersionInfoHandler(feed))
	return r, dir
}

func do(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateAndReadVersionInfo(t *testing.T) {
	t.Setenv("VERSION_ADMIN_PASSWORD", "release-pw")
	r, dir := newFeedRouter(t, "")

	require.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/version_info", "").Code)

	w := do(r, http.MethodPost, "/version-admin/admin/update_version?password=release-pw", manifest)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/version_info", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, manifest, w.Body.String())

	_, err := os.Stat(filepath.Join(dir, ObjectName))
	require.NoError(t, err)
}

func TestUpdateVersionRejects(t *testing.T) {
	t.Setenv("VERSION_ADMIN_PASSWORD", "release-pw")
	r, _ := newFeedRouter(t, "AGENT")

	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/version-admin/admin/update_version?password=nope", manifest).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/version-admin/admin/update_version", manifest).Code)

	w := do(r, http.MethodPost, "/version-admin/admin/update_version?password=release-pw", `{"latest_version":"2.3.1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Missing field: download_url")

	require.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/version-admin/admin/update_version?password=release-pw", `[1,2]`).Code)
}

func TestAdminTokenSkipsPassword(t *testing.T) {
	t.Setenv("VERSION_ADMIN_PASSWORD", "")
	r, _ := newFeedRouter(t, "ADMIN")
	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/version-admin/admin/update_version", manifest).Code)
}

func TestEmptyPasswordNeverMatches(t *testing.T) {
	t.Setenv("VERSION_ADMIN_PASSWORD", "")
	r, _ := newFeedRouter(t, "")
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/version-admin/admin/update_version?password=", manifest).Code)
}

func TestFeedOverwritesManifest(t *testing.T) {
	feed := New(&utils.LocalStore{Dir: t.TempDir()})
	ctx := context.Background()
	require.NoError(t, feed.Update(ctx, []byte(manifest)))
	next := `{"latest_version":"2.4.0","download_url":"u","mandatory":true,"release_notes":"","sha256":"cd34"}`
	require.NoError(t, feed.Update(ctx, []byte(next)))

	got, err := feed.Get(ctx)
	require.NoError(t, err)
	require.JSONEq(t, next, string(got))
}
