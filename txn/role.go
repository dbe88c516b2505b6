package txn

import (
	"fmt"
	"strings"

	"indyforge.dev/forge/forgeerr"
)

// Role is a ledger permission tier. Author means "no role".
type Role int

const (
	Author Role = iota
	Endorser
	NetworkMonitor
	Steward
	Trustee
)

// Roles lists every role in display order.
var Roles = []Role{Author, Endorser, NetworkMonitor, Steward, Trustee}

// Code returns the ledger role code. Author has none.
func (r Role) Code() string {
	switch r {
	case Trustee:
		return "0"
	case Steward:
		return "2"
	case Endorser:
		return "101"
	case NetworkMonitor:
		return "201"
	default:
		return ""
	}
}

func (r Role) String() string {
	switch r {
	case Author:
		return "Author"
	case Endorser:
		return "Endorser"
	case NetworkMonitor:
		return "NetworkMonitor"
	case Steward:
		return "Steward"
	case Trustee:
		return "Trustee"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func (r Role) valid() bool { return r >= Author && r <= Trustee }

// RoleUpdate is the role field of a NYM operation: either clear the role or
// set it to Code.
type RoleUpdate struct {
	Reset bool
	Code  string
}

// Update maps the role onto the NYM encoding. Author resets.
func (r Role) Update() RoleUpdate {
	if r == Author {
		return RoleUpdate{Reset: true}
	}
	return RoleUpdate{Code: r.Code()}
}

// value is the JSON value written into the operation.
func (u RoleUpdate) value() any {
	if u.Reset {
		return nil
	}
	return u.Code
}

// ParseRole accepts a role name (case-insensitive, with or without
// separators) or a ledger role code.
func ParseRole(s string) (Role, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	switch norm {
	case "author", "none", "":
		return Author, nil
	case "endorser", "trustanchor", "101":
		return Endorser, nil
	case "networkmonitor", "201":
		return NetworkMonitor, nil
	case "steward", "2":
		return Steward, nil
	case "trustee", "0":
		return Trustee, nil
	}
	return Author, forgeerr.New(forgeerr.KindInput, forgeerr.InvalidRole, fmt.Sprintf("unknown role %q", s))
}
