package main

import (
	"errors"
	"net/http"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
)

type setTemplateRequest struct {
	Lang     string `json:"lang"`
	Template string `json:"template"`
}

type setGenericTemplateRequest struct {
	Key      string `json:"key"`
	Template string `json:"template"`
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.ListUsers(c.Request.Context())
		if err != nil {
			config.LogError(config.GetLogger(), "main", "listUsersHandler", "list users", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrUserFieldsRequired.Error()})
			return
		}
		if input.Email != "" && !utils.IsValidEmail(input.Email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
			return
		}
		user, err := models.CreateUser(ctx, input)
		switch {
		case err == nil:
			models.LogAdminAction(ctx, "create_user", user.Username, gin.H{"role": user.Role, "partner_code": user.PartnerCode})
			c.JSON(http.StatusOK, gin.H{"status": "ok", "id": user.ID, "username": user.Username, "role": user.Role})
		case errors.Is(err, models.ErrUserFieldsRequired),
			errors.Is(err, models.ErrInvalidRole),
			errors.Is(err, models.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "createUserHandler", "create user", input.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func getTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.GetOtpTemplate(c.Request.Context(), c.DefaultQuery("lang", "en")))
	}
}

func setTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var input setTemplateRequest
		if err := c.ShouldBindJSON(&input); err != nil || input.Lang == "" || input.Template == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lang & template required"})
			return
		}
		if err := models.SetOtpTemplate(ctx, input.Lang, input.Template); err != nil {
			config.LogError(config.GetLogger(), "main", "setTemplateHandler", "store otp template", input.Lang, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		models.LogAdminAction(ctx, "set_template", input.Lang, nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func getGenericTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tpl, err := models.GetGenericTemplate(c.Request.Context(), c.Query("key"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, tpl)
		case errors.Is(err, models.ErrTemplateKeyRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "getGenericTemplateHandler", "read template", c.Query("key"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func setGenericTemplateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var input setGenericTemplateRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrTemplateKeyRequired.Error()})
			return
		}
		actor, _ := utils.GetUsernameFromContext(ctx)
		tpl, err := models.SetGenericTemplate(ctx, input.Key, input.Template, actor)
		switch {
		case err == nil:
			models.LogAdminAction(ctx, "set_template_generic", tpl.Key, gin.H{"version": tpl.Version})
			c.JSON(http.StatusOK, gin.H{"status": "ok", "key": tpl.Key, "version": tpl.Version, "updated_at": tpl.UpdatedAt})
		case errors.Is(err, models.ErrTemplateKeyRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrTemplateBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "setGenericTemplateHandler", "store template", input.Key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}
