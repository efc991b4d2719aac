package models

import (
	"context"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
)

const waLogMessageLimit = 4000

type WaLog struct {
	ID          int         `gorm:"primary_key" json:"id"`
	ToNumber    string      `gorm:"size:30;not null;index" json:"to_number"`
	Message     string      `gorm:"type:text" json:"message"`
	TemplateKey string      `gorm:"size:100" json:"template_key"`
	SentBy      string      `gorm:"size:100" json:"sent_by"`
	SentByRole  string      `gorm:"size:20" json:"sent_by_role"`
	DeviceId    string      `gorm:"size:100" json:"device_id"`
	Result      WaLogResult `gorm:"size:10;not null" json:"result"`
	Error       string      `gorm:"size:500" json:"error,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// RecordWaLog persists one gateway attempt; insert failures are only logged.
func RecordWaLog(ctx context.Context, row WaLog) {
	row.Message = utils.Truncate(row.Message, waLogMessageLimit)
	row.Error = utils.Truncate(row.Error, 500)
	if row.SentBy == "" {
		row.SentBy, _ = utils.GetUsernameFromContext(ctx)
	}
	if row.SentByRole == "" {
		row.SentByRole, _ = utils.GetRoleFromContext(ctx)
	}
	if err := config.GetDB().WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "RecordWaLog", "insert wa_logs", row.ToNumber, err)
	}
}
