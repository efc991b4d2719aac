package main

import (
	"errors"
	"net/http"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/gin-gonic/gin"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	DeviceId string `json:"device_id"`
}

func registerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username & password required"})
			return
		}
		user, err := models.RegisterFirstUser(c.Request.Context(), input)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "username": user.Username})
		case errors.Is(err, models.ErrRegistrationDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "Registration disabled"})
		case errors.Is(err, models.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
		default:
			config.LogError(config.GetLogger(), "main", "registerHandler", "register first user", input.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input loginRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username & password required"})
			return
		}
		deviceId := input.DeviceId
		if deviceId == "" {
			deviceId, _ = utils.GetDeviceIdFromContext(c.Request.Context())
		}
		pair, err := models.Login(c.Request.Context(), input.Username, input.Password, deviceId)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, pair)
		case errors.Is(err, models.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		case errors.Is(err, models.ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "loginHandler", "login", input.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func refreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input refreshRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
			return
		}
		pair, err := models.RefreshAccessToken(c.Request.Context(), input.RefreshToken)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, pair)
		case errors.Is(err, models.ErrInvalidRefreshToken),
			errors.Is(err, models.ErrRefreshTokenExpired),
			errors.Is(err, models.ErrUserInactive):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "refreshHandler", "refresh access token", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input refreshRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
			return
		}
		err := models.Logout(c.Request.Context(), input.RefreshToken)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Logged out successfully"})
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		default:
			config.LogError(config.GetLogger(), "main", "logoutHandler", "revoke refresh token", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func sendOtpHandler(limiter *models.OtpRateLimiter, deliver models.OtpDeliverer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.OtpRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrOtpFieldsRequired.Error()})
			return
		}
		if input.DeviceId == "" {
			input.DeviceId, _ = utils.GetDeviceIdFromContext(c.Request.Context())
		}
		channel, err := models.RequestPasswordOtp(c.Request.Context(), input, limiter, deliver)
		switch {
		case err == nil && channel == models.OtpChannelEmail:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "OTP sent via email fallback.", "channel": channel})
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "OTP sent via WhatsApp if reachable.", "channel": channel})
		case errors.Is(err, models.ErrOtpFieldsRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrOtpRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrOtpDeliveryFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deliver OTP"})
		default:
			config.LogError(config.GetLogger(), "main", "sendOtpHandler", "request otp", input.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}

func verifyOtpHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.OtpVerify
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		err := models.VerifyPasswordOtp(c.Request.Context(), input)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Password reset successful"})
		case errors.Is(err, models.ErrOtpInvalid),
			errors.Is(err, models.ErrOtpExpired),
			errors.Is(err, models.ErrOtpTooManyAttempts),
			errors.Is(err, models.ErrOtpVerifyFieldsRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			config.LogError(config.GetLogger(), "main", "verifyOtpHandler", "verify otp", input.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		}
	}
}
