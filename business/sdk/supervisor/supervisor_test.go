package supervisor_test

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/sdk/supervisor"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
)

// fakeEngine implements supervisor.Engine, workspacebus.Engine and
// dashboardbus.Engine so one value can back the whole boot sequence.
type fakeEngine struct {
	healthErr      error
	setupToken     string
	setupErr       error
	setupCalls     int
	embedEnabled   []bool
	secrets        []string
	databases      map[string]metabase.Database
	findDBCalls    []string
	addDatabaseErr error
	addedDatabases []metabase.NewDatabase
	items          map[int][]metabase.Item
	enabledDashes  []int
	members        map[int][]metabase.Member
	graph          map[string]map[string]string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		databases: map[string]metabase.Database{},
		items:     map[int][]metabase.Item{},
		members:   map[int][]metabase.Member{},
		graph:     map[string]map[string]string{},
	}
}

func (f *fakeEngine) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeEngine) SetupToken(ctx context.Context) (string, error) { return f.setupToken, nil }

func (f *fakeEngine) Setup(ctx context.Context, setupToken string, siteName string) error {
	f.setupCalls++
	return f.setupErr
}

func (f *fakeEngine) SetEmbeddingEnabled(ctx context.Context, enabled bool) error {
	f.embedEnabled = append(f.embedEnabled, enabled)
	return nil
}

func (f *fakeEngine) SetEmbeddingSecret(ctx context.Context, secret string) error {
	f.secrets = append(f.secrets, secret)
	return nil
}

func (f *fakeEngine) FindDatabase(ctx context.Context, name string) (metabase.Database, error) {
	f.findDBCalls = append(f.findDBCalls, name)
	db, ok := f.databases[name]
	if !ok {
		return metabase.Database{}, metabase.ErrNotFound
	}
	return db, nil
}

func (f *fakeEngine) AddDatabase(ctx context.Context, ndb metabase.NewDatabase) (metabase.Database, error) {
	if f.addDatabaseErr != nil {
		return metabase.Database{}, f.addDatabaseErr
	}
	f.addedDatabases = append(f.addedDatabases, ndb)
	db := metabase.Database{ID: len(f.databases) + 1, Name: ndb.Name}
	f.databases[ndb.Name] = db
	return db, nil
}

func (f *fakeEngine) CreateCollection(ctx context.Context, name string, description string) (int, error) {
	return 100, nil
}

func (f *fakeEngine) EnableCollectionEmbedding(ctx context.Context, collectionID int) error {
	return nil
}

func (f *fakeEngine) CreateGroup(ctx context.Context, name string) (int, error) { return 200, nil }

func (f *fakeEngine) GrantCollectionWrite(ctx context.Context, groupID int, collectionID int) error {
	if f.graph[strconv.Itoa(groupID)] == nil {
		f.graph[strconv.Itoa(groupID)] = map[string]string{}
	}
	f.graph[strconv.Itoa(groupID)][strconv.Itoa(collectionID)] = "write"
	return nil
}

func (f *fakeEngine) CollectionGraph(ctx context.Context) (map[string]map[string]string, error) {
	return f.graph, nil
}

func (f *fakeEngine) GroupMembers(ctx context.Context, groupID int) ([]metabase.Member, error) {
	return f.members[groupID], nil
}

func (f *fakeEngine) AddGroupMember(ctx context.Context, userID int, groupID int) error {
	f.members[groupID] = append(f.members[groupID], metabase.Member{UserID: userID})
	return nil
}

func (f *fakeEngine) GrantDatabaseAccess(ctx context.Context, groupID int, databaseID int, schema string) error {
	return nil
}

func (f *fakeEngine) ListCollectionItems(ctx context.Context, collectionID int) ([]metabase.Item, error) {
	return f.items[collectionID], nil
}

func (f *fakeEngine) EnableDashboardEmbedding(ctx context.Context, dashboardID int) error {
	f.enabledDashes = append(f.enabledDashes, dashboardID)
	return nil
}

// =============================================================================

type fakeWorkspaceStorer struct {
	workspaces map[uuid.UUID]workspacebus.Workspace
}

func (f *fakeWorkspaceStorer) NewWithTx(tx sqldb.CommitRollbacker) (workspacebus.Storer, error) {
	return f, nil
}

func (f *fakeWorkspaceStorer) Create(ctx context.Context, ws workspacebus.Workspace) error {
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeWorkspaceStorer) Update(ctx context.Context, ws workspacebus.Workspace) error {
	f.workspaces[ws.ID] = ws
	return nil
}

func (f *fakeWorkspaceStorer) SetCollectionID(ctx context.Context, workspaceID uuid.UUID, collectionID int) error {
	ws := f.workspaces[workspaceID]
	if ws.CollectionID != nil {
		return workspacebus.ErrCollectionAnchored
	}
	ws.CollectionID = &collectionID
	f.workspaces[workspaceID] = ws
	return nil
}

func (f *fakeWorkspaceStorer) SetGroupID(ctx context.Context, workspaceID uuid.UUID, groupID int) error {
	ws := f.workspaces[workspaceID]
	ws.GroupID = &groupID
	f.workspaces[workspaceID] = ws
	return nil
}

func (f *fakeWorkspaceStorer) QueryByID(ctx context.Context, workspaceID uuid.UUID) (workspacebus.Workspace, error) {
	ws, ok := f.workspaces[workspaceID]
	if !ok {
		return workspacebus.Workspace{}, workspacebus.ErrNotFound
	}
	return ws, nil
}

func (f *fakeWorkspaceStorer) QueryByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]workspacebus.Workspace, error) {
	var wss []workspacebus.Workspace
	for _, ws := range f.workspaces {
		if ws.OwnerID == ownerID {
			wss = append(wss, ws)
		}
	}
	return wss, nil
}

func (f *fakeWorkspaceStorer) QueryAll(ctx context.Context) ([]workspacebus.Workspace, error) {
	var wss []workspacebus.Workspace
	for _, ws := range f.workspaces {
		wss = append(wss, ws)
	}
	return wss, nil
}

// =============================================================================

type fakeDashboardStorer struct {
	dashboards map[uuid.UUID]dashboardbus.Dashboard
}

func (f *fakeDashboardStorer) NewWithTx(tx sqldb.CommitRollbacker) (dashboardbus.Storer, error) {
	return f, nil
}

func (f *fakeDashboardStorer) Create(ctx context.Context, d dashboardbus.Dashboard) error {
	for _, existing := range f.dashboards {
		if existing.MBDashboardID == d.MBDashboardID {
			return dashboardbus.ErrAlreadyCached
		}
	}
	f.dashboards[d.ID] = d
	return nil
}

func (f *fakeDashboardStorer) QueryByID(ctx context.Context, dashboardID uuid.UUID) (dashboardbus.Dashboard, error) {
	d, ok := f.dashboards[dashboardID]
	if !ok {
		return dashboardbus.Dashboard{}, dashboardbus.ErrNotFound
	}
	return d, nil
}

func (f *fakeDashboardStorer) QueryByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) ([]dashboardbus.Dashboard, error) {
	var ds []dashboardbus.Dashboard
	for _, d := range f.dashboards {
		if d.WorkspaceID == workspaceID {
			ds = append(ds, d)
		}
	}
	return ds, nil
}

// =============================================================================

func newSupervisor(engine *fakeEngine, wss *fakeWorkspaceStorer, dbName string, analyticsDB *metabase.NewDatabase) *supervisor.Supervisor {
	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	workspaceBus := workspacebus.NewCore(workspacebus.Config{
		Log:    log,
		Storer: wss,
		Engine: engine,
	})

	dashboardBus := dashboardbus.NewCore(log, &fakeDashboardStorer{dashboards: map[uuid.UUID]dashboardbus.Dashboard{}}, engine)

	return supervisor.New(supervisor.Config{
		Log:             log,
		Engine:          engine,
		WorkspaceBus:    workspaceBus,
		DashboardBus:    dashboardBus,
		SiteName:        "Vitrine",
		EmbeddingSecret: "embed-secret",
		AnalyticsDBName: dbName,
		AnalyticsDB:     analyticsDB,
	})
}

func emptyWorkspaceStorer() *fakeWorkspaceStorer {
	return &fakeWorkspaceStorer{workspaces: map[uuid.UUID]workspacebus.Workspace{}}
}

func Test_FreshInstanceBoot(t *testing.T) {
	engine := newFakeEngine()
	engine.setupToken = "fresh-token"

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "", nil)
	require.Equal(t, supervisor.StateUnreachable, sup.State())

	err := sup.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, supervisor.StateReady, sup.State())
	require.Empty(t, sup.Reason())
	require.Equal(t, 1, engine.setupCalls)
	require.Equal(t, []bool{true}, engine.embedEnabled)
	require.Equal(t, []string{"embed-secret"}, engine.secrets)
}

func Test_AlreadyInitializedInstance(t *testing.T) {
	engine := newFakeEngine()
	engine.setupToken = ""

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "", nil)

	err := sup.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, supervisor.StateReady, sup.State())
	require.Equal(t, 0, engine.setupCalls)
}

func Test_SetupRaceIsNotFatal(t *testing.T) {
	engine := newFakeEngine()
	engine.setupToken = "stale-token"
	engine.setupErr = metabase.ErrAlreadyProvisioned

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "", nil)

	err := sup.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, supervisor.StateReady, sup.State())
}

func Test_DegradedWhenUnreachable(t *testing.T) {
	engine := newFakeEngine()
	engine.healthErr = errors.New("connection refused")

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "", nil)

	err := sup.Run(context.Background())
	require.Error(t, err)

	require.Equal(t, supervisor.StateDegraded, sup.State())
	require.Contains(t, sup.Reason(), "unreachable")
}

func Test_AnalyticsDatabaseRegistered(t *testing.T) {
	engine := newFakeEngine()

	ndb := metabase.NewDatabase{Name: "analytics", Engine: "postgres"}

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "analytics", &ndb)

	require.NoError(t, sup.Run(context.Background()))
	require.Len(t, engine.addedDatabases, 1)
	require.Equal(t, "analytics", engine.addedDatabases[0].Name)

	// A second boot finds the database and does not re-register it.
	sup = newSupervisor(engine, emptyWorkspaceStorer(), "analytics", &ndb)
	require.NoError(t, sup.Run(context.Background()))
	require.Len(t, engine.addedDatabases, 1)
}

func Test_AnalyticsDatabaseVerifiedWithoutRegistration(t *testing.T) {
	engine := newFakeEngine()

	// No connection details configured: absence is a warning, the lookup
	// still happens and the boot reaches READY.
	sup := newSupervisor(engine, emptyWorkspaceStorer(), "analytics", nil)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, supervisor.StateReady, sup.State())
	require.Equal(t, []string{"analytics"}, engine.findDBCalls)
	require.Empty(t, engine.addedDatabases)
}

func Test_AnalyticsDatabaseFailureIsNotFatal(t *testing.T) {
	engine := newFakeEngine()
	engine.addDatabaseErr = errors.New("invalid credentials")

	ndb := metabase.NewDatabase{Name: "analytics", Engine: "postgres"}

	sup := newSupervisor(engine, emptyWorkspaceStorer(), "analytics", &ndb)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, supervisor.StateReady, sup.State())
	require.Empty(t, sup.Reason())
}

func Test_BootReconcilesWorkspaces(t *testing.T) {
	engine := newFakeEngine()
	engine.items[100] = []metabase.Item{
		{ID: 3, Model: metabase.ModelDashboard, Name: "Revenue"},
	}

	wss := emptyWorkspaceStorer()
	collectionID, ownerMBID := 100, 12
	ws := workspacebus.Workspace{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		CollectionID:    &collectionID,
		OwnerMetabaseID: &ownerMBID,
		Enabled:         true,
	}
	wss.workspaces[ws.ID] = ws

	sup := newSupervisor(engine, wss, "", nil)

	require.NoError(t, sup.Run(context.Background()))
	require.Equal(t, supervisor.StateReady, sup.State())

	// The group was created, the grant applied, the owner re-added and the
	// new dashboard enabled for embedding.
	got := wss.workspaces[ws.ID]
	require.NotNil(t, got.GroupID)
	require.Equal(t, "write", engine.graph["200"]["100"])
	require.Equal(t, []metabase.Member{{UserID: 12}}, engine.members[200])
	require.Equal(t, []int{3}, engine.enabledDashes)
}
