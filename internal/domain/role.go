package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Every user holds exactly one.
type Role string

const (
	RoleStudent    Role = "Student"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleStudent, RoleAdmin, RoleSuperAdmin}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q: %w", s, ErrBadRequest)
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether the role can manage other accounts.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return true
	case RoleStudent:
		return false
	}
	return false
}

func (r Role) String() string { return string(r) }
