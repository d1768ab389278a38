package domain

import "github.com/google/uuid"

// Role is the authenticated role carried by a connection's credential.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
)

// IsStaff reports whether the role may join tenant-wide rooms.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleAgent
}

// Identity is the validated identity behind one connection. The gateway
// only consumes it; token issuance lives elsewhere in the platform.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     Role
}
