package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyncRow is a row of one of the tables devices push to and pull from.
type SyncRow interface {
	TableName() string
	RemoteID() int64
	// SyncFields is every column except id, keyed by column name.
	SyncFields() map[string]interface{}
}

// SyncColumns are the server-owned columns shared by every synced table.
type SyncColumns struct {
	CreatedAt   time.Time `gorm:"precision:6;not null;index" json:"created_at"`
	HandledBy   string    `gorm:"size:100" json:"handled_by"`
	DeviceId    string    `gorm:"size:100" json:"device_id"`
	RemoteToken string    `gorm:"size:36" json:"remote_token"`
}

func (c SyncColumns) put(m map[string]interface{}) map[string]interface{} {
	m["created_at"] = c.CreatedAt.UTC()
	m["handled_by"] = c.HandledBy
	m["device_id"] = c.DeviceId
	m["remote_token"] = c.RemoteToken
	return m
}

func nullDecimalValue(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

type ArmyLog struct {
	ID        int64  `gorm:"primary_key;autoIncrement" json:"id"`
	Action    string `gorm:"size:200;not null" json:"action"`
	Module    string `gorm:"size:100" json:"module"`
	Reference string `gorm:"size:200" json:"reference"`
	Details   string `gorm:"type:text" json:"details"`
	AgentCode string `gorm:"size:50;index" json:"agent_code"`
	SyncColumns
}

func (ArmyLog) TableName() string { return "d2na_army_logs" }

func (r ArmyLog) RemoteID() int64 { return r.ID }

func (r ArmyLog) SyncFields() map[string]interface{} {
	return r.SyncColumns.put(map[string]interface{}{
		"action":     r.Action,
		"module":     r.Module,
		"reference":  r.Reference,
		"details":    r.Details,
		"agent_code": r.AgentCode,
	})
}

type PanRecord struct {
	ID                int64               `gorm:"primary_key;autoIncrement" json:"id"`
	Name              string              `gorm:"size:200;not null" json:"name"`
	FatherName        string              `gorm:"size:200" json:"father_name"`
	Dob               string              `gorm:"size:20" json:"dob"`
	Mobile            string              `gorm:"size:30" json:"mobile"`
	Email             string              `gorm:"size:200" json:"email"`
	PanNumber         string              `gorm:"size:10;index" json:"pan_number"`
	ApplicationType   string              `gorm:"size:50" json:"application_type"`
	AcknowledgementNo string              `gorm:"size:50" json:"acknowledgement_no"`
	Status            string              `gorm:"size:50" json:"status"`
	Amount            decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"amount"`
	AgentCode         string              `gorm:"size:50;index" json:"agent_code"`
	Remarks           string              `gorm:"type:text" json:"remarks"`
	SyncColumns
}

func (PanRecord) TableName() string { return "pan_records" }

func (r PanRecord) RemoteID() int64 { return r.ID }

func (r PanRecord) SyncFields() map[string]interface{} {
	return r.SyncColumns.put(map[string]interface{}{
		"name":               r.Name,
		"father_name":        r.FatherName,
		"dob":                r.Dob,
		"mobile":             r.Mobile,
		"email":              r.Email,
		"pan_number":         r.PanNumber,
		"application_type":   r.ApplicationType,
		"acknowledgement_no": r.AcknowledgementNo,
		"status":             r.Status,
		"amount":             nullDecimalValue(r.Amount),
		"agent_code":         r.AgentCode,
		"remarks":            r.Remarks,
	})
}

type KotakRecord struct {
	ID            int64               `gorm:"primary_key;autoIncrement" json:"id"`
	Name          string              `gorm:"size:200;not null" json:"name"`
	Mobile        string              `gorm:"size:30" json:"mobile"`
	Email         string              `gorm:"size:200" json:"email"`
	AccountType   string              `gorm:"size:50" json:"account_type"`
	AccountNumber string              `gorm:"size:50" json:"account_number"`
	ApplicationNo string              `gorm:"size:50" json:"application_no"`
	Status        string              `gorm:"size:50" json:"status"`
	Amount        decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"amount"`
	AgentCode     string              `gorm:"size:50;index" json:"agent_code"`
	Remarks       string              `gorm:"type:text" json:"remarks"`
	SyncColumns
}

func (KotakRecord) TableName() string { return "kotak_records" }

func (r KotakRecord) RemoteID() int64 { return r.ID }

func (r KotakRecord) SyncFields() map[string]interface{} {
	return r.SyncColumns.put(map[string]interface{}{
		"name":           r.Name,
		"mobile":         r.Mobile,
		"email":          r.Email,
		"account_type":   r.AccountType,
		"account_number": r.AccountNumber,
		"application_no": r.ApplicationNo,
		"status":         r.Status,
		"amount":         nullDecimalValue(r.Amount),
		"agent_code":     r.AgentCode,
		"remarks":        r.Remarks,
	})
}
