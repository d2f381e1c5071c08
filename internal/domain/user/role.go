package user

import (
	"errors"
	"strings"
)

// Role identifies which side of the product a token belongs to. Account
// management itself is owned by the external auth service; the core only
// needs roles for gating operations.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleMechanic Role = "MECHANIC"
	RoleAdmin    Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleCustomer, RoleMechanic, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Convenience helpers.
func (role Role) IsCustomer() bool { return role == RoleCustomer }
func (role Role) IsMechanic() bool { return role == RoleMechanic }
func (role Role) IsAdmin() bool    { return role == RoleAdmin }
