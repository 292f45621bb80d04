package models

import (
	"fmt"
	"strings"
)

// Role is the permission level of an identity
// The set of roles is closed: zero value is not a valid role
type Role uint8

const (
	RoleStudent Role = iota + 1
	RoleCoach
	RoleSiteCoordinator
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleStudent:         "student",
	RoleCoach:           "coach",
	RoleSiteCoordinator: "site_coordinator",
	RoleAdmin:           "admin",
}

// AllRoles in ascending permission order
func AllRoles() []Role {
	return []Role{RoleStudent, RoleCoach, RoleSiteCoordinator, RoleAdmin}
}

func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

// IsElevated reports whether self-registration into the role requires an invite code
func (r Role) IsElevated() bool {
	switch r {
	case RoleCoach, RoleSiteCoordinator:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func ParseRole(value string) (Role, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for role, name := range roleNames {
		if name == value {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", value)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("can't marshal invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// RoleSet is a set of roles required by an operation
type RoleSet uint8

func Roles(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		if r.IsValid() {
			s |= 1 << r
		}
	}
	return s
}

func (s RoleSet) Has(r Role) bool {
	return r.IsValid() && s&(1<<r) != 0
}

func (s RoleSet) String() string {
	names := make([]string, 0, len(roleNames))
	for _, r := range AllRoles() {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return "{" + strings.Join(names, ", ") + "}"
}
