package dashboarddb

import (
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
)

type dashboardDB struct {
	ID               uuid.UUID `db:"dashboard_id"`
	WorkspaceID      uuid.UUID `db:"workspace_id"`
	MBDashboardID    int       `db:"mb_dashboard_id"`
	Name             string    `db:"name"`
	EmbeddingEnabled bool      `db:"embedding_enabled"`
	CreatedAt        time.Time `db:"created_at"`
}

func toDBDashboard(bus dashboardbus.Dashboard) dashboardDB {
	return dashboardDB{
		ID:               bus.ID,
		WorkspaceID:      bus.WorkspaceID,
		MBDashboardID:    bus.MBDashboardID,
		Name:             bus.Name,
		EmbeddingEnabled: bus.EmbeddingEnabled,
		CreatedAt:        bus.CreatedAt.UTC(),
	}
}

func toBusDashboard(db dashboardDB) dashboardbus.Dashboard {
	return dashboardbus.Dashboard{
		ID:               db.ID,
		WorkspaceID:      db.WorkspaceID,
		MBDashboardID:    db.MBDashboardID,
		Name:             db.Name,
		EmbeddingEnabled: db.EmbeddingEnabled,
		CreatedAt:        db.CreatedAt.In(time.Local),
	}
}

func toBusDashboards(dbs []dashboardDB) []dashboardbus.Dashboard {
	bus := make([]dashboardbus.Dashboard, len(dbs))
	for i, db := range dbs {
		bus[i] = toBusDashboard(db)
	}

	return bus
}
