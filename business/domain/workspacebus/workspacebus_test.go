package workspacebus_test

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
)

// fakeStorer keeps workspaces in memory and honors the write-once semantics
// of the collection anchor.
type fakeStorer struct {
	workspaces map[uuid.UUID]workspacebus.Workspace

	// anchorRace simulates a concurrent caller winning the anchor write.
	anchorRace  bool
	raceWinnerID int
}

func newFakeStorer() *fakeStorer {
	return &fakeStorer{
		workspaces: make(map[uuid.UUID]workspacebus.Workspace),
	}
}

func (s *fakeStorer) NewWithTx(tx sqldb.CommitRollbacker) (workspacebus.Storer, error) {
	return s, nil
}

func (s *fakeStorer) Create(ctx context.Context, ws workspacebus.Workspace) error {
	s.workspaces[ws.ID] = ws
	return nil
}

func (s *fakeStorer) Update(ctx context.Context, ws workspacebus.Workspace) error {
	s.workspaces[ws.ID] = ws
	return nil
}

func (s *fakeStorer) SetCollectionID(ctx context.Context, workspaceID uuid.UUID, collectionID int) error {
	ws := s.workspaces[workspaceID]

	if s.anchorRace {
		ws.CollectionID = &s.raceWinnerID
		s.workspaces[workspaceID] = ws
		return workspacebus.ErrCollectionAnchored
	}

	if ws.CollectionID != nil {
		return workspacebus.ErrCollectionAnchored
	}

	ws.CollectionID = &collectionID
	s.workspaces[workspaceID] = ws
	return nil
}

func (s *fakeStorer) SetGroupID(ctx context.Context, workspaceID uuid.UUID, groupID int) error {
	ws := s.workspaces[workspaceID]
	ws.GroupID = &groupID
	s.workspaces[workspaceID] = ws
	return nil
}

func (s *fakeStorer) QueryByID(ctx context.Context, workspaceID uuid.UUID) (workspacebus.Workspace, error) {
	ws, exists := s.workspaces[workspaceID]
	if !exists {
		return workspacebus.Workspace{}, workspacebus.ErrNotFound
	}
	return ws, nil
}

func (s *fakeStorer) QueryByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]workspacebus.Workspace, error) {
	var wss []workspacebus.Workspace
	for _, ws := range s.workspaces {
		if ws.OwnerID == ownerID {
			wss = append(wss, ws)
		}
	}
	return wss, nil
}

func (s *fakeStorer) QueryAll(ctx context.Context) ([]workspacebus.Workspace, error) {
	var wss []workspacebus.Workspace
	for _, ws := range s.workspaces {
		wss = append(wss, ws)
	}
	return wss, nil
}

// fakeEngine records the Metabase calls made against it.
type fakeEngine struct {
	nextCollectionID int
	nextGroupID      int

	collectionsCreated []int
	groupsCreated      []string
	embeddingEnabled   []int
	grants             map[string]map[string]string
	members            map[int][]metabase.Member
	addedMembers       []int
	databases          []metabase.Database
	dbGrants           []int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		nextCollectionID: 100,
		nextGroupID:      200,
		grants:           make(map[string]map[string]string),
		members:          make(map[int][]metabase.Member),
	}
}

func (e *fakeEngine) CreateCollection(ctx context.Context, name string, description string) (int, error) {
	e.nextCollectionID++
	e.collectionsCreated = append(e.collectionsCreated, e.nextCollectionID)
	return e.nextCollectionID, nil
}

func (e *fakeEngine) EnableCollectionEmbedding(ctx context.Context, collectionID int) error {
	e.embeddingEnabled = append(e.embeddingEnabled, collectionID)
	return nil
}

func (e *fakeEngine) CreateGroup(ctx context.Context, name string) (int, error) {
	e.nextGroupID++
	e.groupsCreated = append(e.groupsCreated, name)
	return e.nextGroupID, nil
}

func (e *fakeEngine) GrantCollectionWrite(ctx context.Context, groupID int, collectionID int) error {
	groupKey := strconv.Itoa(groupID)
	if e.grants[groupKey] == nil {
		e.grants[groupKey] = make(map[string]string)
	}
	e.grants[groupKey][strconv.Itoa(collectionID)] = "write"
	return nil
}

func (e *fakeEngine) CollectionGraph(ctx context.Context) (map[string]map[string]string, error) {
	return e.grants, nil
}

func (e *fakeEngine) GroupMembers(ctx context.Context, groupID int) ([]metabase.Member, error) {
	return e.members[groupID], nil
}

func (e *fakeEngine) AddGroupMember(ctx context.Context, userID int, groupID int) error {
	e.members[groupID] = append(e.members[groupID], metabase.Member{UserID: userID})
	e.addedMembers = append(e.addedMembers, userID)
	return nil
}

func (e *fakeEngine) FindDatabase(ctx context.Context, dbName string) (metabase.Database, error) {
	for _, db := range e.databases {
		if db.Name == dbName {
			return db, nil
		}
	}
	return metabase.Database{}, fmt.Errorf("database %q: %w", dbName, metabase.ErrNotFound)
}

func (e *fakeEngine) GrantDatabaseAccess(ctx context.Context, groupID int, databaseID int, schema string) error {
	e.dbGrants = append(e.dbGrants, groupID)
	return nil
}

// =============================================================================

func newTestCore(t *testing.T) (*workspacebus.Core, *fakeStorer, *fakeEngine) {
	t.Helper()

	storer := newFakeStorer()
	engine := newFakeEngine()

	core := workspacebus.NewCore(workspacebus.Config{
		Log:             logger.New(io.Discard, logger.LevelInfo, "TEST", nil),
		Storer:          storer,
		Engine:          engine,
		AnalyticsDBName: "Analytics",
	})

	return core, storer, engine
}

func newWorkspace(ownerID uuid.UUID) workspacebus.NewWorkspace {
	return workspacebus.NewWorkspace{
		Name:    name.MustParse("Acme Sales"),
		OwnerID: ownerID,
	}
}

func Test_Provision(t *testing.T) {
	core, storer, engine := newTestCore(t)
	ctx := context.Background()

	ws, err := core.Provision(ctx, newWorkspace(uuid.New()))
	require.NoError(t, err)

	require.NotNil(t, ws.CollectionID)
	require.NotNil(t, ws.GroupID)

	require.Len(t, engine.collectionsCreated, 1)
	require.Len(t, engine.groupsCreated, 1)
	require.Equal(t, fmt.Sprintf("Workspace_%s_Members", ws.ID), engine.groupsCreated[0])
	require.Equal(t, []int{*ws.CollectionID}, engine.embeddingEnabled)

	require.Equal(t, "write", engine.grants[strconv.Itoa(*ws.GroupID)][strconv.Itoa(*ws.CollectionID)])

	stored := storer.workspaces[ws.ID]
	require.Equal(t, *ws.CollectionID, *stored.CollectionID)
	require.Equal(t, *ws.GroupID, *stored.GroupID)
}

func Test_ReconcileIdempotent(t *testing.T) {
	core, _, engine := newTestCore(t)
	ctx := context.Background()

	ws, err := core.Provision(ctx, newWorkspace(uuid.New()))
	require.NoError(t, err)

	// A second pass over a healthy workspace must not create anything new.
	_, err = core.Reconcile(ctx, ws)
	require.NoError(t, err)

	require.Len(t, engine.collectionsCreated, 1)
	require.Len(t, engine.groupsCreated, 1)
	require.Len(t, engine.embeddingEnabled, 1)
}

func Test_AnchorRace(t *testing.T) {
	core, storer, engine := newTestCore(t)
	ctx := context.Background()

	storer.anchorRace = true
	storer.raceWinnerID = 555

	ws, err := core.Provision(ctx, newWorkspace(uuid.New()))
	require.NoError(t, err)

	// The loser must adopt the winner's collection, not its own orphan.
	require.Equal(t, 555, *ws.CollectionID)
	require.Len(t, engine.collectionsCreated, 1)
}

func Test_ReconcileRepairsPartialState(t *testing.T) {
	core, storer, engine := newTestCore(t)
	ctx := context.Background()

	// A workspace that crashed after collection anchoring: no group yet.
	collectionID := 777
	ws := workspacebus.Workspace{
		ID:           uuid.New(),
		Name:         name.MustParse("Half Done"),
		OwnerID:      uuid.New(),
		CollectionID: &collectionID,
		Enabled:      true,
	}
	storer.workspaces[ws.ID] = ws

	got, err := core.Reconcile(ctx, ws)
	require.NoError(t, err)

	require.Equal(t, collectionID, *got.CollectionID)
	require.NotNil(t, got.GroupID)
	require.Empty(t, engine.collectionsCreated)
	require.Len(t, engine.groupsCreated, 1)
}

func Test_ReconcileRepairsMembershipDrift(t *testing.T) {
	core, storer, engine := newTestCore(t)
	ctx := context.Background()

	collectionID, groupID, ownerMBID := 10, 20, 30
	ws := workspacebus.Workspace{
		ID:              uuid.New(),
		Name:            name.MustParse("Drifted"),
		OwnerID:         uuid.New(),
		CollectionID:    &collectionID,
		GroupID:         &groupID,
		OwnerMetabaseID: &ownerMBID,
		Enabled:         true,
	}
	storer.workspaces[ws.ID] = ws

	// The grant exists but the owner was removed from the group by hand.
	require.NoError(t, engine.GrantCollectionWrite(ctx, groupID, collectionID))

	_, err := core.Reconcile(ctx, ws)
	require.NoError(t, err)

	require.Equal(t, []int{ownerMBID}, engine.addedMembers)

	// Membership is healthy now; the next pass must not re-add.
	_, err = core.Reconcile(ctx, ws)
	require.NoError(t, err)
	require.Len(t, engine.addedMembers, 1)
}

func Test_AnalyticsGrantOnFreshGroupOnly(t *testing.T) {
	core, _, engine := newTestCore(t)
	ctx := context.Background()

	engine.databases = []metabase.Database{{ID: 1, Name: "Analytics", Engine: "postgres"}}

	ws, err := core.Provision(ctx, newWorkspace(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, []int{*ws.GroupID}, engine.dbGrants)

	// Reconciling an already grouped workspace must not re-grant.
	_, err = core.Reconcile(ctx, ws)
	require.NoError(t, err)
	require.Len(t, engine.dbGrants, 1)
}
