package devicesync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"bitbucket.org/easyadvisor/fingov_backend/models"
	"bitbucket.org/easyadvisor/fingov_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrUnknownTable = errors.New("unknown table")

// text is a string column value. Desktop clients sometimes send numbers
// (mobile, account numbers) where the store keeps text.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(s))
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*t = text(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return errors.New("expected a scalar value")
		}
		*t = text(n.String())
	}
	return nil
}

func (t text) String() string { return string(t) }

// record is a decoded, validated item ready to become a row.
type record interface {
	build(cols models.SyncColumns) models.SyncRow
	createdAt() string
	agentCode() string
}

// serverOwned are accepted on the wire but never stored as sent.
type serverOwned struct {
	CreatedAt text `json:"created_at"`
	HandledBy text `json:"handled_by"`
}

func (s serverOwned) createdAt() string { return s.CreatedAt.String() }

type armyLogInput struct {
	Action    text `json:"action" validate:"required,max=200"`
	Module    text `json:"module" validate:"max=100"`
	Reference text `json:"reference" validate:"max=200"`
	Details   text `json:"details"`
	AgentCode text `json:"agent_code" validate:"max=50"`
	serverOwned
}

func (in *armyLogInput) agentCode() string { return in.AgentCode.String() }

func (in *armyLogInput) build(cols models.SyncColumns) models.SyncRow {
	return &models.ArmyLog{
		Action:      in.Action.String(),
		Module:      in.Module.String(),
		Reference:   in.Reference.String(),
		Details:     in.Details.String(),
		AgentCode:   in.AgentCode.String(),
		SyncColumns: cols,
	}
}

type panRecordInput struct {
	Name              text                `json:"name" validate:"required,max=200"`
	FatherName        text                `json:"father_name" validate:"max=200"`
	Dob               text                `json:"dob" validate:"max=20"`
	Mobile            text                `json:"mobile" validate:"omitempty,phone"`
	Email             text                `json:"email" validate:"omitempty,email"`
	PanNumber         text                `json:"pan_number" validate:"omitempty,pan"`
	ApplicationType   text                `json:"application_type" validate:"max=50"`
	AcknowledgementNo text                `json:"acknowledgement_no" validate:"max=50"`
	Status            text                `json:"status" validate:"max=50"`
	Amount            decimal.NullDecimal `json:"amount" validate:"omitempty,gte=0"`
	AgentCode         text                `json:"agent_code" validate:"max=50"`
	Remarks           text                `json:"remarks"`
	serverOwned
}

func (in *panRecordInput) agentCode() string { return in.AgentCode.String() }

func (in *panRecordInput) build(cols models.SyncColumns) models.SyncRow {
	return &models.PanRecord{
		Name:              in.Name.String(),
		FatherName:        in.FatherName.String(),
		Dob:               in.Dob.String(),
		Mobile:            in.Mobile.String(),
		Email:             in.Email.String(),
		PanNumber:         strings.ToUpper(in.PanNumber.String()),
		ApplicationType:   in.ApplicationType.String(),
		AcknowledgementNo: in.AcknowledgementNo.String(),
		Status:            in.Status.String(),
		Amount:            in.Amount,
		AgentCode:         in.AgentCode.String(),
		Remarks:           in.Remarks.String(),
		SyncColumns:       cols,
	}
}

type kotakRecordInput struct {
	Name          text                `json:"name" validate:"required,max=200"`
	Mobile        text                `json:"mobile" validate:"omitempty,phone"`
	Email         text                `json:"email" validate:"omitempty,email"`
	AccountType   text                `json:"account_type" validate:"max=50"`
	AccountNumber text                `json:"account_number" validate:"max=50"`
	ApplicationNo text                `json:"application_no" validate:"max=50"`
	Status        text                `json:"status" validate:"max=50"`
	Amount        decimal.NullDecimal `json:"amount" validate:"omitempty,gte=0"`
	AgentCode     text                `json:"agent_code" validate:"max=50"`
	Remarks       text                `json:"remarks"`
	serverOwned
}

func (in *kotakRecordInput) agentCode() string { return in.AgentCode.String() }

func (in *kotakRecordInput) build(cols models.SyncColumns) models.SyncRow {
	return &models.KotakRecord{
		Name:          in.Name.String(),
		Mobile:        in.Mobile.String(),
		Email:         in.Email.String(),
		AccountType:   in.AccountType.String(),
		AccountNumber: in.AccountNumber.String(),
		ApplicationNo: in.ApplicationNo.String(),
		Status:        in.Status.String(),
		Amount:        in.Amount,
		AgentCode:     in.AgentCode.String(),
		Remarks:       in.Remarks.String(),
		SyncColumns:   cols,
	}
}

type partnerInput struct {
	PartnerCode text `json:"partner_code" validate:"required,max=50"`
	PartnerName text `json:"partner_name" validate:"max=200"`
	LoginId     text `json:"login_id" validate:"max=100"`
	Mobile      text `json:"mobile" validate:"omitempty,phone"`
	Email       text `json:"email" validate:"omitempty,email"`
	Address     text `json:"address" validate:"max=500"`
	serverOwned
}

// partner rows never feed the ledger counters
func (in *partnerInput) agentCode() string { return "" }

func (in *partnerInput) build(cols models.SyncColumns) models.SyncRow {
	return &models.Partner{
		PartnerCode: in.PartnerCode.String(),
		PartnerName: in.PartnerName.String(),
		LoginId:     in.LoginId.String(),
		Mobile:      in.Mobile.String(),
		Email:       in.Email.String(),
		Address:     in.Address.String(),
		SyncColumns: cols,
	}
}

// Table describes one synced table.
type Table struct {
	Name   string
	Ledger models.LedgerKind
	newRec func() record
	// insert overrides the plain INSERT for the table
	insert func(tx *gorm.DB, row models.SyncRow) error
}

func (t Table) store(tx *gorm.DB, row models.SyncRow) error {
	if t.insert != nil {
		return t.insert(tx, row)
	}
	return tx.Create(row).Error
}

func insertPartner(tx *gorm.DB, row models.SyncRow) error {
	p, ok := row.(*models.Partner)
	if !ok {
		return fmt.Errorf("partner table got %T", row)
	}
	return models.SyncPartner(tx, p)
}

var (
	ArmyLogs     = Table{Name: models.ArmyLog{}.TableName(), newRec: func() record { return &armyLogInput{} }}
	PanRecords   = Table{Name: models.PanRecord{}.TableName(), Ledger: models.LedgerKindPan, newRec: func() record { return &panRecordInput{} }}
	KotakRecords = Table{Name: models.KotakRecord{}.TableName(), Ledger: models.LedgerKindKotak, newRec: func() record { return &kotakRecordInput{} }}
	Partners     = Table{Name: models.Partner{}.TableName(), newRec: func() record { return &partnerInput{} }, insert: insertPartner}
)

var tableAliases = map[string]Table{
	"army-log":       ArmyLogs,
	"army_log":       ArmyLogs,
	"d2na_army_logs": ArmyLogs,
	"pan-record":     PanRecords,
	"pan_record":     PanRecords,
	"pan_records":    PanRecords,
	"kotak-record":   KotakRecords,
	"kotak_record":   KotakRecords,
	"kotak_records":  KotakRecords,
	"partner":        Partners,
	"partners":       Partners,
	"d2na_partners":  Partners,
}

// LookupTable resolves any accepted wire name to its table.
func LookupTable(name string) (Table, error) {
	t, ok := tableAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Table{}, fmt.Errorf("%w %q", ErrUnknownTable, name)
	}
	return t, nil
}

// decode parses one item's data strictly (unknown columns are an error) and
// validates it.
func (t Table) decode(data json.RawMessage) (record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("data must be an object")
	}
	rec := t.newRec()
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, decodeError(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("data must be a single object")
	}
	if err := utils.ValidateStruct(rec); err != nil {
		return nil, validationError(err)
	}
	return rec, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Errorf("%s: invalid value", typeErr.Field)
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "json: unknown field ") {
		return fmt.Errorf("unknown field %s", strings.TrimPrefix(msg, "json: unknown field "))
	}
	return fmt.Errorf("invalid data: %s", strings.TrimPrefix(msg, "json: "))
}

func validationError(err error) error {
	fields := utils.ProcessValidationErrors(err)
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+": "+tag)
	}
	sort.Strings(parts)
	return errors.New(strings.Join(parts, ", "))
}
