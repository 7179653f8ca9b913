package rbac

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role represents a high-level permission grouping assigned to an account.
type Role string

// Known roles.
const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
)

var roleTitle = cases.Title(language.English)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleCustomer, RoleSupplier}
}

// ParseRole converts a raw value into a Role.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(raw))
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer, RoleSupplier:
		return true
	}
	return false
}

// Label returns a human readable role name.
func (r Role) Label() string {
	return roleTitle.String(string(r))
}

func (r Role) String() string {
	return string(r)
}
