package userbus

import (
	"net/mail"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/types/name"
)

// QueryFilter holds the available fields a query can be filtered on.
type QueryFilter struct {
	ID      *uuid.UUID
	Name    *name.Name
	Email   *mail.Address
	Enabled *bool
}
