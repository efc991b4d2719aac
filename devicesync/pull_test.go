package devicesync

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/testutil"
	"github.com/stretchr/testify/require"
)

func remoteIDs(rows []PulledRow) []int64 {
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RemoteID)
	}
	return ids
}

func TestPullWatermarkBoundary(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	res, err := Push(ctx, db, testActor, PushRequest{
		Table: "pan-record",
		Items: []PushItem{item("x1", `{"name":"Asha","created_at":"2024-06-01T08:00:00.000001Z"}`)},
	})
	require.NoError(t, err)
	id := res.Applied["x1"]

	var rec models.PanRecord
	require.NoError(t, db.First(&rec, id).Error)

	before := Pull(ctx, db, rec.CreatedAt.Add(-time.Microsecond))
	require.Equal(t, []int64{id}, remoteIDs(before["pan_records"]))

	at := Pull(ctx, db, rec.CreatedAt)
	require.Empty(t, at["pan_records"])
	require.NotNil(t, at["pan_records"])
}

func TestPullReturnsRowsAfterWatermarkInOrder(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	res, err := Push(ctx, db, testActor, PushRequest{
		Table: "kotak-record",
		Items: []PushItem{
			item("late", `{"name":"C","created_at":"2024-01-03T00:00:00Z"}`),
			item("early", `{"name":"A","created_at":"2024-01-01T00:00:00Z"}`),
			item("tie-1", `{"name":"B1","created_at":"2024-01-02T00:00:00Z"}`),
			item("tie-2", `{"name":"B2","created_at":"2024-01-02T00:00:00Z"}`),
		},
	})
	require.NoError(t, err)

	since, err := ParseSince("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	out := Pull(ctx, db, since)

	require.Equal(t, []int64{res.Applied["tie-1"], res.Applied["tie-2"], res.Applied["late"]}, remoteIDs(out["kotak_records"]))
	for _, row := range out["kotak_records"] {
		require.NotContains(t, row.Data, "id")
		require.Contains(t, row.Data, "remote_token")
	}
}

func TestPullCoversEveryTable(t *testing.T) {
	db := testutil.NewDB(t)

	out := Pull(context.Background(), db, time.Unix(0, 0))
	require.Len(t, out, 4)
	for _, name := range []string{"d2na_army_logs", "pan_records", "kotak_records", "d2na_partners"} {
		rows, ok := out[name]
		require.True(t, ok, name)
		require.NotNil(t, rows, name)
		require.Empty(t, rows, name)
	}
}

func TestPullTableFailureIsIsolated(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	for table, data := range map[string]string{
		"army-log":     `{"action":"login"}`,
		"pan-record":   `{"name":"Asha","agent_code":"A1"}`,
		"kotak-record": `{"name":"Ravi"}`,
		"partner":      `{"partner_code":"P-7"}`,
	} {
		res, err := Push(ctx, db, testActor, PushRequest{Table: table, Items: []PushItem{item("1", data)}})
		require.NoError(t, err)
		require.Len(t, res.Applied, 1, table)
	}
	require.NoError(t, db.Migrator().DropTable(&models.PanRecord{}))

	out := Pull(ctx, db, time.Unix(0, 0))
	require.Empty(t, out["pan_records"])
	require.NotNil(t, out["pan_records"])
	require.Len(t, out["d2na_army_logs"], 1)
	require.Len(t, out["kotak_records"], 1)
	// P-7 pushed directly plus A1 created by the ledger
	require.Len(t, out["d2na_partners"], 2)
}

func TestParseSince(t *testing.T) {
	epoch, err := ParseSince("")
	require.NoError(t, err)
	require.True(t, epoch.Equal(time.Unix(0, 0)))

	for _, s := range []string{
		"2024-05-01T10:00:00Z",
		"2024-05-01T10:00:00.123456Z",
		"2024-05-01T15:30:00+05:30",
		"2024-05-01T10:00:00",
		"2024-05-01T10:00:00.5",
	} {
		ts, err := ParseSince(s)
		require.NoError(t, err, s)
		require.Equal(t, time.UTC, ts.Location(), s)
	}

	naive, err := ParseSince("2024-05-01T10:00:00")
	require.NoError(t, err)
	require.True(t, naive.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	_, err = ParseSince("last tuesday")
	require.ErrorIs(t, err, ErrInvalidSince)
}
