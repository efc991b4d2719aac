package models_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/testutil"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func partner(t *testing.T, code string) models.Partner {
	t.Helper()
	var p models.Partner
	require.NoError(t, config.GetDB().Where("partner_code = ?", code).Take(&p).Error)
	return p
}

func TestIncrementPartnerLedger(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now()

	require.NoError(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKindPan, now))
	require.NoError(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKindPan, now))
	require.NoError(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKindKotak, now))

	p := partner(t, "AG01")
	require.EqualValues(t, 2, p.PanCount)
	require.EqualValues(t, 1, p.KotakCount)
	require.EqualValues(t, 3, p.TotalTransactions)
	require.NotNil(t, p.LastUpdate)

	require.ErrorIs(t, models.IncrementPartnerLedger(db, " ", models.LedgerKindPan, now), models.ErrPartnerCodeRequired)
	require.Error(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKind("loan"), now))
}

func TestUpsertPartnerKeepsCounters(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKindPan, time.Now()))

	p, err := models.UpsertPartner(ctx, models.PartnerInput{PartnerCode: "AG01", PartnerName: "Asha Traders", Mobile: "9876543210"})
	require.NoError(t, err)
	require.Equal(t, "Asha Traders", p.PartnerName)
	require.EqualValues(t, 1, p.PanCount)
	require.EqualValues(t, 1, p.TotalTransactions)

	fresh, err := models.UpsertPartner(ctx, models.PartnerInput{PartnerCode: "AG02", PartnerName: "New"})
	require.NoError(t, err)
	require.Zero(t, fresh.TotalTransactions)

	_, err = models.UpsertPartner(ctx, models.PartnerInput{})
	require.ErrorIs(t, err, models.ErrPartnerCodeRequired)

	list, err := models.ListPartners(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "AG01", list[0].PartnerCode)
}

func TestRebuildPartnerLedger(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, code := range []string{"AG01", "AG01", "AG02"} {
		require.NoError(t, db.Create(&models.PanRecord{Name: "x", AgentCode: code, SyncColumns: models.SyncColumns{CreatedAt: now}}).Error)
	}
	require.NoError(t, db.Create(&models.KotakRecord{Name: "y", AgentCode: "AG02", SyncColumns: models.SyncColumns{CreatedAt: now}}).Error)
	require.NoError(t, db.Create(&models.PanRecord{Name: "no agent", SyncColumns: models.SyncColumns{CreatedAt: now}}).Error)

	// drifted counters and a partner nobody references any more
	for i := 0; i < 5; i++ {
		require.NoError(t, models.IncrementPartnerLedger(db, "AG01", models.LedgerKindKotak, now))
	}
	require.NoError(t, models.IncrementPartnerLedger(db, "OLD", models.LedgerKindPan, now))

	written, err := models.RebuildPartnerLedger(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	ag01 := partner(t, "AG01")
	require.EqualValues(t, 2, ag01.PanCount)
	require.EqualValues(t, 0, ag01.KotakCount)
	require.EqualValues(t, 2, ag01.TotalTransactions)

	ag02 := partner(t, "AG02")
	require.EqualValues(t, 1, ag02.PanCount)
	require.EqualValues(t, 1, ag02.KotakCount)
	require.EqualValues(t, 2, ag02.TotalTransactions)

	old := partner(t, "OLD")
	require.Zero(t, old.TotalTransactions)
}

func TestExportPartnersExcel(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, models.IncrementPartnerLedger(db, "AG02", models.LedgerKindKotak, time.Now()))
	_, err := models.UpsertPartner(ctx, models.PartnerInput{PartnerCode: "AG01", PartnerName: "Asha Traders"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, models.ExportPartnersExcel(ctx, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Partners")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "PartnerCode", rows[0][0])
	require.Equal(t, "AG01", rows[1][0])
	require.Equal(t, "Asha Traders", rows[1][1])
	require.Equal(t, "AG02", rows[2][0])
	require.Equal(t, "1", rows[2][6])
	require.Equal(t, "1", rows[2][7])
}
