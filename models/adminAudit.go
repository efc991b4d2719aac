package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
)

type AdminAudit struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ActorUsername string    `gorm:"size:100;index" json:"actor_username"`
	Action        string    `gorm:"size:100;not null" json:"action"`
	Target        string    `gorm:"size:200" json:"target"`
	Details       string    `gorm:"type:text" json:"details"`
	IpAddress     string    `gorm:"size:64" json:"ip_address"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AdminAudit) TableName() string {
	return "admin_audit"
}

// LogAdminAction records an admin mutation. Failures are logged, never
// returned: the audited action has already happened.
func LogAdminAction(ctx context.Context, action string, target string, details interface{}) {
	actor, _ := utils.GetUsernameFromContext(ctx)
	ip, _ := utils.GetClientIPFromContext(ctx)
	if ip == "" {
		ip = "unknown"
	}
	var detailText string
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailText = string(b)
		}
	}
	row := AdminAudit{
		ActorUsername: actor,
		Action:        action,
		Target:        target,
		Details:       detailText,
		IpAddress:     ip,
	}
	if err := config.GetDB().WithContext(ctx).Create(&row).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "LogAdminAction", "insert admin_audit", row, err)
	}
}
