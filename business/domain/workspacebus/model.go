package workspacebus

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/types/name"
)

// Workspace represents a tenant workspace backed by a Metabase collection
// and an isolated permission group.
type Workspace struct {
	ID          uuid.UUID
	Name        name.Name
	Description *string
	OwnerID     uuid.UUID

	// CollectionID is the Metabase collection backing this workspace. It is
	// the provisioning idempotency anchor: written exactly once, never
	// reused across workspaces.
	CollectionID *int

	// GroupID is the Metabase permission group owning write access to the
	// collection. Nil while provisioning is partially complete.
	GroupID *int

	// OwnerMetabaseID is the Metabase account of the owning user, resolved
	// by the store via the users table. Nil when the owner has no linked
	// Metabase account yet.
	OwnerMetabaseID *int

	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupName derives the deterministic Metabase group name for this
// workspace. Existence checks are by this name, never by fuzzy listing.
func (w Workspace) GroupName() string {
	return fmt.Sprintf("Workspace_%s_Members", w.ID)
}

// NewWorkspace contains information needed to create a new workspace.
type NewWorkspace struct {
	Name        name.Name
	Description *string
	OwnerID     uuid.UUID
}

// UpdateWorkspace contains information needed to update a workspace.
type UpdateWorkspace struct {
	Name        *name.Name
	Description *string
	Enabled     *bool
}
