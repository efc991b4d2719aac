package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"gorm.io/gorm"
)

var (
	ErrOtpFieldsRequired       = errors.New("username & phone required")
	ErrOtpVerifyFieldsRequired = errors.New("username, phone, otp & new_password required")
	ErrOtpRateLimited          = errors.New("OTP rate limit exceeded")
	ErrOtpDeliveryFailed       = errors.New("failed to deliver OTP")
	ErrOtpInvalid              = errors.New("invalid OTP")
	ErrOtpExpired              = errors.New("OTP expired")
	ErrOtpTooManyAttempts      = errors.New("too many attempts, request a new OTP")
)

const (
	OtpChannelWhatsApp = "whatsapp"
	OtpChannelEmail    = "email"
)

type PasswordOtp struct {
	ID            int        `gorm:"primary_key" json:"id"`
	Username      string     `gorm:"size:100;not null;index:idx_otp_user_phone" json:"username"`
	Phone         string     `gorm:"size:30;not null;index:idx_otp_user_phone" json:"phone"`
	OtpHash       string     `gorm:"size:255;not null" json:"-"`
	DeviceId      string     `gorm:"size:100" json:"device_id"`
	Tries         int        `gorm:"not null;default:0" json:"tries"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	ExpiresAt     time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type OtpRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	DeviceId string `json:"device_id"`
}

type OtpVerify struct {
	Username    string `json:"username"`
	Phone       string `json:"phone"`
	Otp         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// OtpDeliverer sends the rendered OTP message.
type OtpDeliverer interface {
	SendWhatsApp(ctx context.Context, to string, message string) error
	SendEmail(ctx context.Context, to string, subject string, body string) error
}

func otpExpireMinutes() int {
	return config.IntFromEnv("OTP_EXPIRE_MINUTES", 10)
}

// RequestPasswordOtp stores a fresh hashed code for (username, phone) and
// delivers it over WhatsApp, falling back to the user's e-mail. It returns
// the channel that carried the message.
func RequestPasswordOtp(ctx context.Context, input OtpRequest, limiter *OtpRateLimiter, deliver OtpDeliverer) (string, error) {
	logger := config.GetLogger()
	username := strings.TrimSpace(input.Username)
	phone := strings.TrimSpace(input.Phone)
	if username == "" || phone == "" {
		return "", ErrOtpFieldsRequired
	}
	if !limiter.Allow(ctx, phone) {
		return "", ErrOtpRateLimited
	}

	code, err := utils.GenerateDigits(6)
	if err != nil {
		return "", err
	}
	hash, err := utils.HashPasswordString(code)
	if err != nil {
		return "", err
	}
	otp := PasswordOtp{
		Username:  username,
		Phone:     phone,
		OtpHash:   hash,
		DeviceId:  strings.TrimSpace(input.DeviceId),
		ExpiresAt: time.Now().UTC().Add(time.Duration(otpExpireMinutes()) * time.Minute),
	}
	if err := config.GetDB().WithContext(ctx).Create(&otp).Error; err != nil {
		return "", err
	}

	tpl := GetOtpTemplate(ctx, "en")
	message := RenderTemplate(tpl.Template, map[string]string{
		"username": username,
		"otp":      code,
		"minutes":  strconv.Itoa(otpExpireMinutes()),
	})

	waErr := deliver.SendWhatsApp(ctx, phone, message)
	if waErr == nil {
		return OtpChannelWhatsApp, nil
	}
	config.LogError(logger, "models", "RequestPasswordOtp", "whatsapp delivery", map[string]string{"username": username}, waErr)

	user, err := GetUserByUsername(ctx, username)
	if err != nil || user.Email == nil || *user.Email == "" {
		return "", ErrOtpDeliveryFailed
	}
	if err := deliver.SendEmail(ctx, *user.Email, "FINGOV OTP", message); err != nil {
		config.LogError(logger, "models", "RequestPasswordOtp", "email delivery", map[string]string{"username": username}, err)
		return "", ErrOtpDeliveryFailed
	}
	return OtpChannelEmail, nil
}

// VerifyPasswordOtp checks the latest code for (username, phone) and, on a
// match, replaces the password and clears every code for the pair.
func VerifyPasswordOtp(ctx context.Context, input OtpVerify) error {
	db := config.GetDB().WithContext(ctx)
	username := strings.TrimSpace(input.Username)
	phone := strings.TrimSpace(input.Phone)
	if username == "" || phone == "" || input.Otp == "" || input.NewPassword == "" {
		return ErrOtpVerifyFieldsRequired
	}

	var otp PasswordOtp
	err := db.Where("username = ? AND phone = ?", username, phone).Order("id DESC").Take(&otp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOtpInvalid
		}
		return err
	}

	now := time.Now().UTC()
	if now.After(otp.ExpiresAt) {
		return ErrOtpExpired
	}
	if otp.Tries >= config.IntFromEnv("OTP_MAX_TRIES", 5) {
		return ErrOtpTooManyAttempts
	}
	if err := utils.ComparePassword(otp.OtpHash, input.Otp); err != nil {
		if uerr := db.Model(&PasswordOtp{}).Where("id = ?", otp.ID).Updates(map[string]interface{}{
			"tries":           gorm.Expr("tries + 1"),
			"last_attempt_at": now,
		}).Error; uerr != nil {
			return uerr
		}
		return ErrOtpInvalid
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := resetPassword(tx, username, input.NewPassword); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return ErrOtpInvalid
			}
			return err
		}
		return tx.Where("username = ? AND phone = ?", username, phone).Delete(&PasswordOtp{}).Error
	})
}
