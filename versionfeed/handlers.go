package versionfeed

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"os"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
)

// authorized accepts the VERSION_ADMIN_PASSWORD query parameter or an ADMIN
// bearer token. An unset password disables the password path.
func authorized(c *gin.Context) bool {
	if role, _ := utils.GetRoleFromContext(c.Request.Context()); role == "ADMIN" {
		return true
	}
	want := os.Getenv("VERSION_ADMIN_PASSWORD")
	got := c.Query("password")
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func UpdateVersionHandler(f *Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin password"})
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		err = f.Update(c.Request.Context(), body)
		var missing *MissingFieldError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Version info updated successfully"})
		case errors.As(err, &missing), errors.Is(err, ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "versionfeed", "UpdateVersionHandler", "store manifest", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store version info"})
		}
	}
}

func VersionInfoHandler(f *Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := f.Get(c.Request.Context())
		if err != nil {
			if errors.Is(err, ErrNotPublished) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			config.LogError(config.GetLogger(), "versionfeed", "VersionInfoHandler", "read manifest", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read version info"})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
	}
}
