package devicesync

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
)

func actorFromContext(c *gin.Context) (Actor, bool) {
	ctx := c.Request.Context()
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return Actor{}, false
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	return Actor{Username: username, UserId: userId, Role: role}, true
}

func PushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req PushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.DeviceID) == "" {
			req.DeviceID, _ = utils.GetDeviceIdFromContext(c.Request.Context())
		}

		result, err := Push(c.Request.Context(), config.GetDB(), actor, req)
		if err != nil {
			if errors.Is(err, ErrUnknownTable) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync push failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func PullHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := actorFromContext(c); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req PullRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.Since == "" {
			req.Since = c.Query("since")
		}

		since, err := ParseSince(req.Since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, Pull(c.Request.Context(), config.GetDB(), since))
	}
}
