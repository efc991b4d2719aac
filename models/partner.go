package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPartnerCodeRequired = errors.New("partner_code required")

// Partner is a ledger entry: descriptive columns plus running counters of
// the pan and kotak records that reference the partner code.
type Partner struct {
	ID                int64      `gorm:"primary_key;autoIncrement" json:"id"`
	PartnerCode       string     `gorm:"size:50;not null;uniqueIndex" json:"partner_code"`
	PartnerName       string     `gorm:"size:200" json:"partner_name"`
	LoginId           string     `gorm:"size:100" json:"login_id"`
	Mobile            string     `gorm:"size:30" json:"mobile"`
	Email             string     `gorm:"size:200" json:"email"`
	Address           string     `gorm:"size:500" json:"address"`
	PanCount          int64      `gorm:"not null;default:0" json:"pan_count"`
	KotakCount        int64      `gorm:"not null;default:0" json:"kotak_count"`
	TotalTransactions int64      `gorm:"not null;default:0" json:"total_transactions"`
	LastUpdate        *time.Time `gorm:"precision:6" json:"last_update"`
	SyncColumns
}

func (Partner) TableName() string { return "d2na_partners" }

func (p Partner) RemoteID() int64 { return p.ID }

func (p Partner) SyncFields() map[string]interface{} {
	var lastUpdate interface{}
	if p.LastUpdate != nil {
		lastUpdate = p.LastUpdate.UTC()
	}
	return p.SyncColumns.put(map[string]interface{}{
		"partner_code":       p.PartnerCode,
		"partner_name":       p.PartnerName,
		"login_id":           p.LoginId,
		"mobile":             p.Mobile,
		"email":              p.Email,
		"address":            p.Address,
		"pan_count":          p.PanCount,
		"kotak_count":        p.KotakCount,
		"total_transactions": p.TotalTransactions,
		"last_update":        lastUpdate,
	})
}

type PartnerInput struct {
	PartnerCode string `json:"partner_code"`
	PartnerName string `json:"partner_name"`
	LoginId     string `json:"login_id"`
	Mobile      string `json:"mobile"`
}

func (kind LedgerKind) counterColumn() (string, error) {
	switch kind {
	case LedgerKindPan:
		return "pan_count", nil
	case LedgerKindKotak:
		return "kotak_count", nil
	}
	return "", fmt.Errorf("unknown ledger kind %q", kind)
}

// IncrementPartnerLedger adds one to the kind counter and to
// total_transactions for partnerCode, creating the entry at 1 when it does
// not exist yet. It is a single INSERT .. ON CONFLICT statement so
// concurrent callers cannot lose an increment.
func IncrementPartnerLedger(tx *gorm.DB, partnerCode string, kind LedgerKind, now time.Time) error {
	partnerCode = strings.TrimSpace(partnerCode)
	if partnerCode == "" {
		return ErrPartnerCodeRequired
	}
	column, err := kind.counterColumn()
	if err != nil {
		return err
	}
	now = now.UTC().Truncate(time.Microsecond)

	row := Partner{
		PartnerCode:       partnerCode,
		TotalTransactions: 1,
		LastUpdate:        &now,
		SyncColumns: SyncColumns{
			CreatedAt:   now,
			RemoteToken: uuid.NewString(),
		},
	}
	if kind == LedgerKindPan {
		row.PanCount = 1
	} else {
		row.KotakCount = 1
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "partner_code"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:               gorm.Expr(fmt.Sprintf("COALESCE(d2na_partners.%s, 0) + 1", column)),
			"total_transactions": gorm.Expr("COALESCE(d2na_partners.total_transactions, 0) + 1"),
			"last_update":        now,
		}),
	}).Create(&row).Error
}

// SyncPartner stores a partner row pushed by a device. A pan or kotak record
// may already have created the entry for that code; the descriptive columns
// and device stamps are then filled in while the counters, created_at and
// remote_token are kept. p.ID is set to the stored entry either way.
func SyncPartner(tx *gorm.DB, p *Partner) error {
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "partner_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"partner_name", "login_id", "mobile", "email", "address", "handled_by", "device_id",
		}),
	}).Create(p).Error
	if err != nil {
		return err
	}
	var stored Partner
	if err := tx.Select("id").Where("partner_code = ?", p.PartnerCode).Take(&stored).Error; err != nil {
		return err
	}
	p.ID = stored.ID
	return nil
}

// UpsertPartner writes the descriptive columns of a ledger entry. Counters
// are left alone.
func UpsertPartner(ctx context.Context, input PartnerInput) (*Partner, error) {
	db := config.GetDB().WithContext(ctx)
	code := strings.TrimSpace(input.PartnerCode)
	if code == "" {
		return nil, ErrPartnerCodeRequired
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	row := Partner{
		PartnerCode: code,
		PartnerName: strings.TrimSpace(input.PartnerName),
		LoginId:     strings.TrimSpace(input.LoginId),
		Mobile:      strings.TrimSpace(input.Mobile),
		LastUpdate:  &now,
		SyncColumns: SyncColumns{
			CreatedAt:   now,
			HandledBy:   usernameOf(ctx),
			RemoteToken: uuid.NewString(),
		},
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partner_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"partner_name", "login_id", "mobile", "last_update"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	var stored Partner
	if err := db.Where("partner_code = ?", code).Take(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func ListPartners(ctx context.Context) ([]Partner, error) {
	var partners []Partner
	err := config.GetDB().WithContext(ctx).Order("partner_code").Find(&partners).Error
	return partners, err
}

type partnerCount struct {
	AgentCode string
	N         int64
}

// RebuildPartnerLedger recomputes every counter from pan_records and
// kotak_records in one transaction and returns the number of ledger entries
// written. last_update is not touched.
func RebuildPartnerLedger(ctx context.Context, db *gorm.DB) (int, error) {
	written := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counts := map[string]*Partner{}
		entry := func(code string) *Partner {
			p, ok := counts[code]
			if !ok {
				p = &Partner{PartnerCode: code}
				counts[code] = p
			}
			return p
		}

		for _, src := range []struct {
			model interface{}
			kind  LedgerKind
		}{{&PanRecord{}, LedgerKindPan}, {&KotakRecord{}, LedgerKindKotak}} {
			var rows []partnerCount
			if err := tx.Model(src.model).
				Select("agent_code, COUNT(*) AS n").
				Where("agent_code IS NOT NULL AND agent_code <> ''").
				Group("agent_code").
				Scan(&rows).Error; err != nil {
				return err
			}
			for _, r := range rows {
				p := entry(strings.TrimSpace(r.AgentCode))
				if src.kind == LedgerKindPan {
					p.PanCount += r.N
				} else {
					p.KotakCount += r.N
				}
			}
		}

		// entries nobody references any more drop to zero
		if err := tx.Model(&Partner{}).Where("1 = 1").Updates(map[string]interface{}{
			"pan_count":          0,
			"kotak_count":        0,
			"total_transactions": 0,
		}).Error; err != nil {
			return err
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		for code, p := range counts {
			if code == "" {
				continue
			}
			p.TotalTransactions = p.PanCount + p.KotakCount
			p.CreatedAt = now
			p.RemoteToken = uuid.NewString()
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "partner_code"}},
				DoUpdates: clause.AssignmentColumns([]string{"pan_count", "kotak_count", "total_transactions"}),
			}).Create(p).Error; err != nil {
				return err
			}
			written++
		}
		return nil
	})
	return written, err
}
