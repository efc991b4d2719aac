package devicesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testActor = Actor{Username: "asha.agent", UserId: 7, Role: "AGENT"}

func item(localID string, data string) PushItem {
	return PushItem{LocalID: LocalID(localID), Data: json.RawMessage(data)}
}

func partnerByCode(t *testing.T, db *gorm.DB, code string) models.Partner {
	t.Helper()
	var p models.Partner
	require.NoError(t, db.Where("partner_code = ?", code).Take(&p).Error)
	return p
}

func TestPushSameItemTwiceCreatesTwoRows(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	req := PushRequest{
		DeviceID: "dev-1",
		Table:    "pan-record",
		Items:    []PushItem{item("x1", `{"name":"Asha"}`)},
	}

	first, err := Push(ctx, db, testActor, req)
	require.NoError(t, err)
	second, err := Push(ctx, db, testActor, req)
	require.NoError(t, err)

	require.Len(t, first.Applied, 1)
	require.Len(t, second.Applied, 1)
	require.NotEqual(t, first.Applied["x1"], second.Applied["x1"])
	require.Greater(t, second.Applied["x1"], first.Applied["x1"])

	var count int64
	require.NoError(t, db.Model(&models.PanRecord{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	var rows []models.PanRecord
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.NotEqual(t, rows[0].RemoteToken, rows[1].RemoteToken)
	require.Equal(t, "dev-1", rows[0].DeviceId)
}

func TestPushStampsServerColumns(t *testing.T) {
	db := testutil.NewDB(t)

	res, err := Push(context.Background(), db, testActor, PushRequest{
		DeviceID: "dev-1",
		Table:    "army_log",
		Items: []PushItem{
			item("a", `{"action":"login","handled_by":"someone-else","created_at":"2024-03-05T10:11:12.123456"}`),
			item("b", `{"action":"logout","created_at":"yesterday"}`),
			item("c", `{"action":"open","created_at":"2024-03-05T10:11:12.5+05:30"}`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 3)

	var a, b, c models.ArmyLog
	require.NoError(t, db.First(&a, res.Applied["a"]).Error)
	require.NoError(t, db.First(&b, res.Applied["b"]).Error)
	require.NoError(t, db.First(&c, res.Applied["c"]).Error)

	require.Equal(t, "asha.agent", a.HandledBy)
	require.True(t, a.CreatedAt.Equal(time.Date(2024, 3, 5, 10, 11, 12, 123456000, time.UTC)))
	require.WithinDuration(t, time.Now(), b.CreatedAt, time.Minute)
	require.True(t, c.CreatedAt.Equal(time.Date(2024, 3, 5, 4, 41, 12, 500000000, time.UTC)))
}

func TestPushPartialBatch(t *testing.T) {
	db := testutil.NewDB(t)

	res, err := Push(context.Background(), db, testActor, PushRequest{
		DeviceID: "dev-1",
		Table:    "pan_records",
		Items: []PushItem{
			item("1", `{"name":"Asha","agent_code":"A1"}`),
			item("2", `{"name":"Ravi","colour":"blue"}`),
			item("3", `{"name":"Meera","agent_code":"A1"}`),
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Applied, 2)
	require.Contains(t, res.Applied, "1")
	require.Contains(t, res.Applied, "3")
	require.NotContains(t, res.Applied, "2")

	require.Len(t, res.Results, 3)
	require.Equal(t, StatusApplied, res.Results[0].Status)
	require.Equal(t, StatusRejected, res.Results[1].Status)
	require.Contains(t, res.Results[1].Reason, "colour")
	require.Zero(t, res.Results[1].RemoteID)
	require.Equal(t, StatusApplied, res.Results[2].Status)

	p := partnerByCode(t, db, "A1")
	require.EqualValues(t, 2, p.PanCount)
	require.EqualValues(t, 2, p.TotalTransactions)
}

func TestPushRejectsInvalidFields(t *testing.T) {
	db := testutil.NewDB(t)

	res, err := Push(context.Background(), db, testActor, PushRequest{
		Table: "pan-record",
		Items: []PushItem{
			item("missing-name", `{"agent_code":"A1"}`),
			item("bad-pan", `{"name":"Asha","pan_number":"12345"}`),
			item("negative", `{"name":"Asha","amount":-5}`),
			item("bad-email", `{"name":"Asha","email":"not-an-email"}`),
			item("not-object", `["name"]`),
			item("", `{"name":"Asha"}`),
			item("ok", `{"name":"Asha","pan_number":"abcde1234f","amount":"150.50"}`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	require.Contains(t, res.Applied, "ok")
	require.Equal(t, "name: required", res.Results[0].Reason)
	require.Equal(t, "pan_number: pan", res.Results[1].Reason)
	require.Equal(t, "amount: gte", res.Results[2].Reason)
	require.Equal(t, "email: email", res.Results[3].Reason)
	require.Equal(t, "data must be an object", res.Results[4].Reason)
	require.Equal(t, "local_id required", res.Results[5].Reason)

	var rec models.PanRecord
	require.NoError(t, db.First(&rec, res.Applied["ok"]).Error)
	require.Equal(t, "ABCDE1234F", rec.PanNumber)
	require.True(t, rec.Amount.Valid)
	require.Equal(t, "150.5", rec.Amount.Decimal.String())

	// rejected items never reach the ledger
	var partners int64
	require.NoError(t, db.Model(&models.Partner{}).Count(&partners).Error)
	require.Zero(t, partners)
}

func TestPushInsertFailureOnlyDropsThatItem(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Exec("CREATE UNIQUE INDEX idx_pan_ack ON pan_records(acknowledgement_no)").Error)
	require.NoError(t, db.Exec(`CREATE TRIGGER block_pan BEFORE INSERT ON pan_records
		WHEN NEW.name = 'blocked' BEGIN SELECT RAISE(ABORT, 'blocked'); END`).Error)

	res, err := Push(context.Background(), db, testActor, PushRequest{
		Table: "pan-record",
		Items: []PushItem{
			item("1", `{"name":"Asha","acknowledgement_no":"ACK-1","agent_code":"A1"}`),
			item("2", `{"name":"Ravi","acknowledgement_no":"ACK-1","agent_code":"A1"}`),
			item("3", `{"name":"blocked","agent_code":"A1"}`),
			item("4", `{"name":"Meera","agent_code":"A1"}`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)
	require.Contains(t, res.Applied, "1")
	require.Contains(t, res.Applied, "4")
	require.Equal(t, "duplicate key", res.Results[1].Reason)
	require.Equal(t, "insert failed", res.Results[2].Reason)

	var count int64
	require.NoError(t, db.Model(&models.PanRecord{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
	require.EqualValues(t, 2, partnerByCode(t, db, "A1").PanCount)
}

func TestPushPartnerFillsLedgerEntry(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	pan, err := Push(ctx, db, testActor, PushRequest{
		DeviceID: "dev-1",
		Table:    "pan_records",
		Items:    []PushItem{item("r1", `{"name":"Asha","agent_code":"A1"}`)},
	})
	require.NoError(t, err)
	require.Len(t, pan.Applied, 1)
	stub := partnerByCode(t, db, "A1")
	require.Empty(t, stub.PartnerName)

	manager := Actor{Username: "mgr", UserId: 2, Role: "MANAGER"}
	res, err := Push(ctx, db, manager, PushRequest{
		DeviceID: "dev-2",
		Table:    "partner",
		Items: []PushItem{
			item("p1", `{"partner_code":"A1","partner_name":"Agent One","login_id":"agent1","mobile":"9876543210"}`),
			item("p2", `{"partner_code":"B2","partner_name":"Agent Two"}`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)
	require.Equal(t, StatusApplied, res.Results[0].Status)
	require.Equal(t, stub.ID, res.Applied["p1"])

	p := partnerByCode(t, db, "A1")
	require.Equal(t, "Agent One", p.PartnerName)
	require.Equal(t, "agent1", p.LoginId)
	require.Equal(t, "9876543210", p.Mobile)
	require.Equal(t, "mgr", p.HandledBy)
	require.Equal(t, "dev-2", p.DeviceId)
	require.EqualValues(t, 1, p.PanCount)
	require.EqualValues(t, 1, p.TotalTransactions)
	require.True(t, p.CreatedAt.Equal(stub.CreatedAt))
	require.Equal(t, stub.RemoteToken, p.RemoteToken)
	require.Equal(t, res.Applied["p2"], partnerByCode(t, db, "B2").ID)

	// a re-push of the same item keeps resolving to the same entry
	again, err := Push(ctx, db, manager, PushRequest{
		DeviceID: "dev-2",
		Table:    "partner",
		Items:    []PushItem{item("p1", `{"partner_code":"A1","partner_name":"Agent One (Pune)"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, stub.ID, again.Applied["p1"])
	require.Equal(t, "Agent One (Pune)", partnerByCode(t, db, "A1").PartnerName)

	var partners int64
	require.NoError(t, db.Model(&models.Partner{}).Count(&partners).Error)
	require.EqualValues(t, 2, partners)
}

func TestPushLedgerFailureKeepsRecord(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.Partner{}))

	res, err := Push(context.Background(), db, testActor, PushRequest{
		Table: "kotak-record",
		Items: []PushItem{
			item("k1", `{"name":"Asha","agent_code":"A1","account_number":1234567890}`),
			item("k2", `{"name":"Ravi"}`),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Applied, 2)

	var rec models.KotakRecord
	require.NoError(t, db.First(&rec, res.Applied["k1"]).Error)
	require.Equal(t, "A1", rec.AgentCode)
	require.Equal(t, "1234567890", rec.AccountNumber)
}

func TestPushUpdatesKotakLedger(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	_, err := Push(ctx, db, testActor, PushRequest{Table: "pan-record", Items: []PushItem{item("1", `{"name":"A","agent_code":"A9"}`)}})
	require.NoError(t, err)
	_, err = Push(ctx, db, testActor, PushRequest{Table: "kotak-record", Items: []PushItem{
		item("1", `{"name":"B","agent_code":"A9"}`),
		item("2", `{"name":"C","agent_code":"A9"}`),
		item("3", `{"name":"D"}`),
	}})
	require.NoError(t, err)
	_, err = Push(ctx, db, testActor, PushRequest{Table: "army-log", Items: []PushItem{item("1", `{"action":"x","agent_code":"A9"}`)}})
	require.NoError(t, err)

	p := partnerByCode(t, db, "A9")
	require.EqualValues(t, 1, p.PanCount)
	require.EqualValues(t, 2, p.KotakCount)
	require.EqualValues(t, 3, p.TotalTransactions)
	require.NotNil(t, p.LastUpdate)
}

// sqlite runs one writer at a time; push_mysql_test.go overlaps them.
func TestPushConcurrentLedgerIncrements(t *testing.T) {
	db := testutil.NewDB(t)
	const n = 25

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := Push(context.Background(), db, testActor, PushRequest{
				DeviceID: fmt.Sprintf("dev-%d", i),
				Table:    "pan-record",
				Items:    []PushItem{item("x", fmt.Sprintf(`{"name":"client %d","agent_code":"A1"}`, i))},
			})
			if err == nil && len(res.Applied) != 1 {
				err = fmt.Errorf("push %d applied %d items", i, len(res.Applied))
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p := partnerByCode(t, db, "A1")
	require.EqualValues(t, n, p.PanCount)
	require.EqualValues(t, n, p.TotalTransactions)
	require.Zero(t, p.KotakCount)
}

func TestPushUnknownTable(t *testing.T) {
	db := testutil.NewDB(t)

	_, err := Push(context.Background(), db, testActor, PushRequest{
		Table: "invoices",
		Items: []PushItem{item("1", `{"name":"x"}`)},
	})
	require.True(t, errors.Is(err, ErrUnknownTable))
}

func TestPushFatalStoreFailure(t *testing.T) {
	db := testutil.NewDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = Push(context.Background(), db, testActor, PushRequest{
		Table: "pan-record",
		Items: []PushItem{item("1", `{"name":"x"}`)},
	})
	require.True(t, errors.Is(err, ErrStore))
}

type capturePublisher struct {
	events chan PushEvent
}

func (p *capturePublisher) Publish(_ context.Context, topic string, ev PushEvent) error {
	if topic != "sync-events" {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	p.events <- ev
	return nil
}

func TestPushPublishesEventAfterCommit(t *testing.T) {
	db := testutil.NewDB(t)
	t.Setenv("SYNC_EVENTS_TOPIC", "sync-events")
	pub := &capturePublisher{events: make(chan PushEvent, 1)}
	prev := SetEventPublisher(pub)
	t.Cleanup(func() { SetEventPublisher(prev) })

	_, err := Push(context.Background(), db, testActor, PushRequest{
		DeviceID: "dev-9",
		Table:    "pan-record",
		Items:    []PushItem{item("1", `{"name":"x"}`), item("2", `{}`)},
	})
	require.NoError(t, err)

	select {
	case ev := <-pub.events:
		require.Equal(t, "pan_records", ev.Table)
		require.Equal(t, "dev-9", ev.DeviceID)
		require.Equal(t, "asha.agent", ev.HandledBy)
		require.Equal(t, 1, ev.Applied)
		require.Equal(t, 1, ev.Rejected)
	case <-time.After(5 * time.Second):
		t.Fatal("no push event published")
	}
}

func TestLocalIDAcceptsNumbers(t *testing.T) {
	var req PushRequest
	require.NoError(t, json.Unmarshal([]byte(`{"table":"pan-record","items":[{"local_id":42,"data":{}},{"local_id":" x1 ","data":{}}]}`), &req))
	require.Equal(t, "42", req.Items[0].LocalID.String())
	require.Equal(t, "x1", req.Items[1].LocalID.String())

	require.Error(t, json.Unmarshal([]byte(`{"local_id":{"a":1}}`), &PushItem{}))
}
