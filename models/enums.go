package models

import "strings"

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleManager UserRole = "MANAGER"
	UserRoleAgent   UserRole = "AGENT"
)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleManager, UserRoleAgent:
		return true
	}
	return false
}

// ParseUserRole upper-cases s; an empty string yields AGENT.
func ParseUserRole(s string) (UserRole, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return UserRoleAgent, true
	}
	r := UserRole(s)
	return r, r.IsValid()
}

type LedgerKind string

const (
	LedgerKindPan   LedgerKind = "pan"
	LedgerKindKotak LedgerKind = "kotak"
)

type WaLogResult string

const (
	WaLogResultOk     WaLogResult = "ok"
	WaLogResultFailed WaLogResult = "failed"
)
