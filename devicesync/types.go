package devicesync

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

// LocalID is the client's row identifier. Devices send it as a JSON string
// or number; it is always echoed back as a string.
type LocalID string

func (id *LocalID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = LocalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("local_id must be a string or a number")
	}
	*id = LocalID(n.String())
	return nil
}

func (id LocalID) String() string { return string(id) }

// Actor is the authenticated user a push is made on behalf of.
type Actor struct {
	Username string
	UserId   int
	Role     string
}

type PushItem struct {
	LocalID LocalID         `json:"local_id"`
	Data    json.RawMessage `json:"data"`
}

type PushRequest struct {
	DeviceID string     `json:"device_id"`
	Table    string     `json:"table" binding:"required"`
	Items    []PushItem `json:"items"`
}

type ItemResult struct {
	LocalID  string `json:"local_id"`
	Status   string `json:"status"`
	RemoteID int64  `json:"remote_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type PushResult struct {
	Applied map[string]int64 `json:"applied"`
	Results []ItemResult     `json:"results"`
}

func (r *PushResult) apply(localID string, remoteID int64) {
	r.Applied[localID] = remoteID
	r.Results = append(r.Results, ItemResult{LocalID: localID, Status: StatusApplied, RemoteID: remoteID})
}

func (r *PushResult) reject(localID string, reason string) {
	r.Results = append(r.Results, ItemResult{LocalID: localID, Status: StatusRejected, Reason: reason})
}

func (r *PushResult) RejectedCount() int {
	return len(r.Results) - len(r.Applied)
}

type PullRequest struct {
	Since string `json:"since"`
}

type PulledRow struct {
	RemoteID int64                  `json:"remote_id"`
	Data     map[string]interface{} `json:"data"`
}

// PullResult maps a physical table name to its rows created after the
// watermark.
type PullResult map[string][]PulledRow
