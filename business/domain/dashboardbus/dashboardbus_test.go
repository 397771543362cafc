package dashboardbus_test

import (
	"context"
	"io"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
)

type fakeStorer struct {
	dashboards map[uuid.UUID]dashboardbus.Dashboard

	// raceOnMBID simulates a concurrent caller inserting the row first.
	raceOnMBID int
}

func newFakeStorer() *fakeStorer {
	return &fakeStorer{
		dashboards: make(map[uuid.UUID]dashboardbus.Dashboard),
	}
}

func (s *fakeStorer) NewWithTx(tx sqldb.CommitRollbacker) (dashboardbus.Storer, error) {
	return s, nil
}

func (s *fakeStorer) Create(ctx context.Context, d dashboardbus.Dashboard) error {
	if s.raceOnMBID == d.MBDashboardID {
		// The concurrent winner's row.
		winner := dashboardbus.Dashboard{
			ID:               uuid.New(),
			WorkspaceID:      d.WorkspaceID,
			MBDashboardID:    d.MBDashboardID,
			Name:             d.Name,
			EmbeddingEnabled: true,
		}
		s.dashboards[winner.ID] = winner
		return dashboardbus.ErrAlreadyCached
	}

	for _, existing := range s.dashboards {
		if existing.MBDashboardID == d.MBDashboardID {
			return dashboardbus.ErrAlreadyCached
		}
	}

	s.dashboards[d.ID] = d
	return nil
}

func (s *fakeStorer) QueryByID(ctx context.Context, dashboardID uuid.UUID) (dashboardbus.Dashboard, error) {
	d, exists := s.dashboards[dashboardID]
	if !exists {
		return dashboardbus.Dashboard{}, dashboardbus.ErrNotFound
	}
	return d, nil
}

func (s *fakeStorer) QueryByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) ([]dashboardbus.Dashboard, error) {
	var ds []dashboardbus.Dashboard
	for _, d := range s.dashboards {
		if d.WorkspaceID == workspaceID {
			ds = append(ds, d)
		}
	}

	sort.Slice(ds, func(i, j int) bool { return ds[i].MBDashboardID < ds[j].MBDashboardID })

	return ds, nil
}

type fakeEngine struct {
	items       []metabase.Item
	enableCalls []int
}

func (e *fakeEngine) ListCollectionItems(ctx context.Context, collectionID int) ([]metabase.Item, error) {
	return e.items, nil
}

func (e *fakeEngine) EnableDashboardEmbedding(ctx context.Context, dashboardID int) error {
	e.enableCalls = append(e.enableCalls, dashboardID)
	return nil
}

// =============================================================================

func newTestCore(t *testing.T) (*dashboardbus.Core, *fakeStorer, *fakeEngine) {
	t.Helper()

	storer := newFakeStorer()
	engine := &fakeEngine{}

	core := dashboardbus.NewCore(logger.New(io.Discard, logger.LevelInfo, "TEST", nil), storer, engine)

	return core, storer, engine
}

func provisionedWorkspace() workspacebus.Workspace {
	collectionID := 42
	return workspacebus.Workspace{
		ID:           uuid.New(),
		Name:         name.MustParse("Acme Sales"),
		CollectionID: &collectionID,
		Enabled:      true,
	}
}

func mbIDs(ds []dashboardbus.Dashboard) []int {
	ids := make([]int, len(ds))
	for i, d := range ds {
		ids[i] = d.MBDashboardID
	}
	return ids
}

func Test_SyncDiscoversNewDashboards(t *testing.T) {
	core, _, engine := newTestCore(t)
	ctx := context.Background()
	ws := provisionedWorkspace()

	engine.items = []metabase.Item{
		{ID: 3, Model: metabase.ModelDashboard, Name: "Revenue"},
		{ID: 7, Model: metabase.ModelDashboard, Name: "Churn"},
		{ID: 9, Model: "card", Name: "A question, not a dashboard"},
	}

	ds, err := core.Sync(ctx, ws)
	require.NoError(t, err)

	require.Equal(t, []int{3, 7}, mbIDs(ds))
	require.ElementsMatch(t, []int{3, 7}, engine.enableCalls)

	for _, d := range ds {
		require.True(t, d.EmbeddingEnabled)
		require.Equal(t, ws.ID, d.WorkspaceID)
	}
}

func Test_SyncEnablesOnlyUnknown(t *testing.T) {
	core, _, engine := newTestCore(t)
	ctx := context.Background()
	ws := provisionedWorkspace()

	engine.items = []metabase.Item{{ID: 3, Model: metabase.ModelDashboard, Name: "Revenue"}}

	_, err := core.Sync(ctx, ws)
	require.NoError(t, err)

	// A new dashboard appears remotely. Only it gets the enable call.
	engine.items = append(engine.items, metabase.Item{ID: 9, Model: metabase.ModelDashboard, Name: "Retention"})

	ds, err := core.Sync(ctx, ws)
	require.NoError(t, err)

	require.Equal(t, []int{3, 9}, mbIDs(ds))
	require.Equal(t, []int{3, 9}, engine.enableCalls)
}

func Test_SyncRepeatIsNoop(t *testing.T) {
	core, _, engine := newTestCore(t)
	ctx := context.Background()
	ws := provisionedWorkspace()

	engine.items = []metabase.Item{
		{ID: 3, Model: metabase.ModelDashboard, Name: "Revenue"},
		{ID: 7, Model: metabase.ModelDashboard, Name: "Churn"},
	}

	_, err := core.Sync(ctx, ws)
	require.NoError(t, err)

	ds, err := core.Sync(ctx, ws)
	require.NoError(t, err)

	require.Equal(t, []int{3, 7}, mbIDs(ds))
	require.Len(t, engine.enableCalls, 2)
}

func Test_SyncConcurrentInsertLoser(t *testing.T) {
	core, storer, engine := newTestCore(t)
	ctx := context.Background()
	ws := provisionedWorkspace()

	engine.items = []metabase.Item{{ID: 3, Model: metabase.ModelDashboard, Name: "Revenue"}}
	storer.raceOnMBID = 3

	// Losing the insert race must still return the winner's row.
	ds, err := core.Sync(ctx, ws)
	require.NoError(t, err)
	require.Equal(t, []int{3}, mbIDs(ds))
}

func Test_SyncUnprovisionedWorkspace(t *testing.T) {
	core, _, _ := newTestCore(t)
	ctx := context.Background()

	ws := provisionedWorkspace()
	ws.CollectionID = nil

	_, err := core.Sync(ctx, ws)
	require.ErrorIs(t, err, dashboardbus.ErrNotProvisioned)
}
