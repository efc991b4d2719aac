package devicesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("fingov/devicesync")

// ErrStore marks a failure that aborts the whole push; nothing is committed.
var ErrStore = errors.New("sync store failure")

// Push applies a device's batch to one table inside a single transaction.
//
// Every item is decoded and validated first; an invalid item is rejected
// without touching the store. A valid item is inserted under its own
// savepoint so a failed insert only discards that item. A partner row whose
// code is already in the ledger fills that entry instead. Pan and kotak rows
// carrying an agent code then bump the partner ledger under a second
// savepoint; a ledger failure is logged and the record stays applied.
func Push(ctx context.Context, db *gorm.DB, actor Actor, req PushRequest) (*PushResult, error) {
	logger := config.GetLogger()

	table, err := LookupTable(req.Table)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "devicesync.Push")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.table", table.Name),
		attribute.String("sync.device_id", req.DeviceID),
		attribute.Int("sync.items", len(req.Items)),
	)

	result := &PushResult{
		Applied: make(map[string]int64, len(req.Items)),
		Results: make([]ItemResult, 0, len(req.Items)),
	}
	fail := func(stage string, err error) (*PushResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		config.LogError(logger, "devicesync", "Push", stage, map[string]interface{}{
			"table":     table.Name,
			"device_id": req.DeviceID,
		}, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrStore, stage, err)
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fail("begin", tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	for i, item := range req.Items {
		localID := item.LocalID.String()
		if localID == "" {
			result.reject(localID, "local_id required")
			continue
		}

		rec, err := table.decode(item.Data)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"table":    table.Name,
				"local_id": localID,
			}).Warnf("sync push: item rejected: %v", err)
			result.reject(localID, err.Error())
			continue
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		row := rec.build(models.SyncColumns{
			CreatedAt:   resolveCreatedAt(rec.createdAt(), now),
			HandledBy:   actor.Username,
			DeviceId:    req.DeviceID,
			RemoteToken: uuid.NewString(),
		})

		itemSavepoint := fmt.Sprintf("item_%d", i)
		if err := tx.SavePoint(itemSavepoint).Error; err != nil {
			return fail("savepoint", err)
		}
		if err := table.store(tx, row); err != nil {
			if rbErr := tx.RollbackTo(itemSavepoint).Error; rbErr != nil {
				return fail("rollback item", rbErr)
			}
			config.LogError(logger, "devicesync", "Push", "insert", map[string]interface{}{
				"table":    table.Name,
				"local_id": localID,
			}, err)
			span.AddEvent("item rejected", trace.WithAttributes(attribute.String("sync.local_id", localID)))
			result.reject(localID, insertReason(err))
			continue
		}
		result.apply(localID, row.RemoteID())

		code := rec.agentCode()
		if table.Ledger == "" || code == "" {
			continue
		}
		ledgerSavepoint := fmt.Sprintf("ledger_%d", i)
		if err := tx.SavePoint(ledgerSavepoint).Error; err != nil {
			return fail("savepoint", err)
		}
		if err := models.IncrementPartnerLedger(tx, code, table.Ledger, now); err != nil {
			if rbErr := tx.RollbackTo(ledgerSavepoint).Error; rbErr != nil {
				return fail("rollback ledger", rbErr)
			}
			config.LogError(logger, "devicesync", "Push", "partner ledger", map[string]interface{}{
				"partner_code": code,
				"table":        table.Name,
				"remote_id":    row.RemoteID(),
			}, err)
			span.AddEvent("ledger update skipped", trace.WithAttributes(attribute.String("sync.partner_code", code)))
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fail("commit", err)
	}
	committed = true

	span.SetAttributes(
		attribute.Int("sync.applied", len(result.Applied)),
		attribute.Int("sync.rejected", result.RejectedCount()),
	)
	publishPushEvent(ctx, PushEvent{
		DeviceID:  req.DeviceID,
		Table:     table.Name,
		HandledBy: actor.Username,
		Applied:   len(result.Applied),
		Rejected:  result.RejectedCount(),
		At:        time.Now().UTC(),
	})
	return result, nil
}

func insertReason(err error) string {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "duplicate key"
	}
	return "insert failed"
}
