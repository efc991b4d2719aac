package devicesync

import (
	"context"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type fetchFunc func(db *gorm.DB, since time.Time) ([]models.SyncRow, error)

type pullSource struct {
	table Table
	fetch fetchFunc
}

// pullSources is the fixed set of tables a pull covers.
var pullSources = []pullSource{
	{ArmyLogs, fetchSince[models.ArmyLog]},
	{PanRecords, fetchSince[models.PanRecord]},
	{KotakRecords, fetchSince[models.KotakRecord]},
	{Partners, fetchSince[models.Partner]},
}

func fetchSince[T models.SyncRow](db *gorm.DB, since time.Time) ([]models.SyncRow, error) {
	var rows []T
	err := db.Where("created_at > ?", since).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.SyncRow, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out, nil
}

// Pull returns, per table, every row created strictly after since, oldest
// first. Tables are queried independently: a table that cannot be read maps
// to an empty list and the others are still returned.
func Pull(ctx context.Context, db *gorm.DB, since time.Time) PullResult {
	logger := config.GetLogger()

	ctx, span := tracer.Start(ctx, "devicesync.Pull")
	defer span.End()
	span.SetAttributes(attribute.String("sync.since", since.UTC().Format(time.RFC3339Nano)))

	since = since.UTC()
	result := make(PullResult, len(pullSources))
	for _, src := range pullSources {
		rows, err := src.fetch(db.WithContext(ctx), since)
		if err != nil {
			span.RecordError(err)
			config.LogError(logger, "devicesync", "Pull", "query "+src.table.Name, since, err)
			result[src.table.Name] = []PulledRow{}
			continue
		}
		pulled := make([]PulledRow, 0, len(rows))
		for _, r := range rows {
			pulled = append(pulled, PulledRow{RemoteID: r.RemoteID(), Data: r.SyncFields()})
		}
		result[src.table.Name] = pulled
	}
	return result
}
