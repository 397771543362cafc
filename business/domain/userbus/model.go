package userbus

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/business/types/role"
)

// User represents information about an individual user.
type User struct {
	ID           uuid.UUID
	Name         name.Name
	Email        mail.Address
	PasswordHash []byte
	Role         role.Role

	// MetabaseID links the user to its Metabase account. Nil when the
	// account could not be created yet.
	MetabaseID *int

	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser contains information needed to create a new user.
type NewUser struct {
	Name     name.Name
	Email    mail.Address
	Password string
	Role     role.Role
}

// UpdateUser contains information needed to update a user.
type UpdateUser struct {
	Name     *name.Name
	Email    *mail.Address
	Password *string
	Role     *role.Role
	Enabled  *bool
}
