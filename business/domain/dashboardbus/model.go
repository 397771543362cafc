package dashboardbus

import (
	"time"

	"github.com/google/uuid"
)

// Dashboard represents the locally cached projection of a Metabase dashboard
// living inside a workspace's collection. Metabase is the source of truth
// for existence and name; this record is a discovery cache that may lag.
type Dashboard struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID

	// MBDashboardID is the dashboard's id in Metabase's own id space,
	// unique across the whole system.
	MBDashboardID int

	Name             string
	EmbeddingEnabled bool
	CreatedAt        time.Time
}

// NewDashboard contains information needed to cache a discovered dashboard.
type NewDashboard struct {
	WorkspaceID   uuid.UUID
	MBDashboardID int
	Name          string
}
