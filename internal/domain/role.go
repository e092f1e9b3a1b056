package domain

import (
	"fmt"
	"strings"
)

// Role is the closed set of user roles known to the approval workflow.
type Role int

const (
	RoleEmployee Role = iota
	RoleManager
	RoleCTO
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleEmployee: "employee",
	RoleManager:  "manager",
	RoleCTO:      "cto",
	RoleAdmin:    "admin",
}

// ParseRole maps the stored role name to a Role.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "employee", "":
		return RoleEmployee, nil
	case "manager":
		return RoleManager, nil
	case "cto":
		return RoleCTO, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleEmployee, fmt.Errorf("unknown role %q", name)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// CanApprove reports whether the role may act on the given approval level.
// Managers own level 1, the CTO owns level 2; nobody else approves.
func (r Role) CanApprove(level ApprovalLevel) bool {
	switch r {
	case RoleManager:
		return level == ApprovalLevelManager
	case RoleCTO:
		return level == ApprovalLevelCTO
	case RoleEmployee, RoleAdmin:
		return false
	}
	return false
}

// ApproverRoleFor returns the role that owns a level.
func ApproverRoleFor(level ApprovalLevel) (Role, bool) {
	switch level {
	case ApprovalLevelManager:
		return RoleManager, true
	case ApprovalLevelCTO:
		return RoleCTO, true
	}
	return RoleEmployee, false
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
