// Package workspacebus provides business access to workspaces and owns the
// provisioning of their Metabase collection and permission group.
package workspacebus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/jpcouto/vitrine/foundation/otel"
)

var (
	ErrNotFound = errors.New("workspace not found")

	// ErrCollectionAnchored reports that another caller already persisted a
	// collection id for this workspace. Treated as success by Provision.
	ErrCollectionAnchored = errors.New("collection id already set")
)

// Storer defines the behavior required by the bus to persist workspaces.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)

	Create(ctx context.Context, ws Workspace) error
	Update(ctx context.Context, ws Workspace) error

	// SetCollectionID persists the provisioning anchor. It must write the id
	// only when no id is present and return ErrCollectionAnchored otherwise.
	SetCollectionID(ctx context.Context, workspaceID uuid.UUID, collectionID int) error
	SetGroupID(ctx context.Context, workspaceID uuid.UUID, groupID int) error

	QueryByID(ctx context.Context, workspaceID uuid.UUID) (Workspace, error)
	QueryByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]Workspace, error)
	QueryAll(ctx context.Context) ([]Workspace, error)
}

// Engine defines the Metabase calls the provisioner depends on.
type Engine interface {
	CreateCollection(ctx context.Context, name string, description string) (int, error)
	EnableCollectionEmbedding(ctx context.Context, collectionID int) error
	CreateGroup(ctx context.Context, name string) (int, error)
	GrantCollectionWrite(ctx context.Context, groupID int, collectionID int) error
	CollectionGraph(ctx context.Context) (map[string]map[string]string, error)
	GroupMembers(ctx context.Context, groupID int) ([]metabase.Member, error)
	AddGroupMember(ctx context.Context, userID int, groupID int) error
	FindDatabase(ctx context.Context, name string) (metabase.Database, error)
	GrantDatabaseAccess(ctx context.Context, groupID int, databaseID int, schema string) error
}

// Core manages the set of APIs for workspace access and provisioning.
type Core struct {
	log             *logger.Logger
	storer          Storer
	engine          Engine
	analyticsDBName string
}

// Config represents the information needed to construct a core.
type Config struct {
	Log             *logger.Logger
	Storer          Storer
	Engine          Engine
	AnalyticsDBName string
}

// NewCore constructs a core for workspace api access.
func NewCore(cfg Config) *Core {
	return &Core{
		log:             cfg.Log,
		storer:          cfg.Storer,
		engine:          cfg.Engine,
		analyticsDBName: cfg.AnalyticsDBName,
	}
}

// NewWithTx constructs a new Core value replacing the Storer value with a
// Storer value that is currently inside a transaction.
func (c *Core) NewWithTx(tx sqldb.CommitRollbacker) (*Core, error) {
	storer, err := c.storer.NewWithTx(tx)
	if err != nil {
		return nil, fmt.Errorf("newWithTx: %w", err)
	}

	return &Core{
		log:             c.log,
		storer:          storer,
		engine:          c.engine,
		analyticsDBName: c.analyticsDBName,
	}, nil
}

// Provision creates the workspace record and establishes its Metabase
// collection and permission group. It is safe to call again for an existing
// workspace; an already anchored workspace short-circuits to reconciliation.
func (c *Core) Provision(ctx context.Context, nw NewWorkspace) (Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.provision")
	defer span.End()

	now := time.Now()

	ws := Workspace{
		ID:          uuid.New(),
		Name:        nw.Name,
		Description: nw.Description,
		OwnerID:     nw.OwnerID,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.storer.Create(ctx, ws); err != nil {
		return Workspace{}, fmt.Errorf("create: %w", err)
	}

	// The row must be re-read so the owner's Metabase account is resolved.
	ws, err := c.storer.QueryByID(ctx, ws.ID)
	if err != nil {
		return Workspace{}, fmt.Errorf("query: %w", err)
	}

	return c.Reconcile(ctx, ws)
}

// Reconcile drives the workspace toward its fully provisioned state: the
// collection exists and is anchored, the group exists, the group holds write
// on exactly this collection, and the owner is a member. Every step is
// idempotent; a crash at any point is repaired by the next pass. The
// Supervisor invokes this for every workspace on boot.
func (c *Core) Reconcile(ctx context.Context, ws Workspace) (Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.reconcile")
	defer span.End()

	ws, err := c.ensureCollection(ctx, ws)
	if err != nil {
		return Workspace{}, fmt.Errorf("ensure collection: %w", err)
	}

	ws, freshGroup, err := c.ensureGroup(ctx, ws)
	if err != nil {
		return Workspace{}, fmt.Errorf("ensure group: %w", err)
	}

	if err := c.ensureGrant(ctx, ws); err != nil {
		return Workspace{}, fmt.Errorf("ensure grant: %w", err)
	}

	if err := c.ensureMembership(ctx, ws); err != nil {
		return Workspace{}, fmt.Errorf("ensure membership: %w", err)
	}

	// Query access to the analytics database is granted once when the group
	// is first created. Best effort: workspaces remain usable for embedding
	// even when the analytics database is not registered yet.
	if freshGroup {
		c.grantAnalyticsAccess(ctx, ws)
	}

	return ws, nil
}

// QueryByID finds the workspace by the specified ID.
func (c *Core) QueryByID(ctx context.Context, workspaceID uuid.UUID) (Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.queryByID")
	defer span.End()

	ws, err := c.storer.QueryByID(ctx, workspaceID)
	if err != nil {
		return Workspace{}, fmt.Errorf("query: workspaceID[%s]: %w", workspaceID, err)
	}

	return ws, nil
}

// QueryByOwnerID returns the workspaces owned by the specified user.
func (c *Core) QueryByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.queryByOwnerID")
	defer span.End()

	wss, err := c.storer.QueryByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query: ownerID[%s]: %w", ownerID, err)
	}

	return wss, nil
}

// QueryAll returns every active workspace. Used by the boot reconciliation.
func (c *Core) QueryAll(ctx context.Context) ([]Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.queryAll")
	defer span.End()

	wss, err := c.storer.QueryAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("queryAll: %w", err)
	}

	return wss, nil
}

// Update modifies data about a workspace.
func (c *Core) Update(ctx context.Context, ws Workspace, uw UpdateWorkspace) (Workspace, error) {
	ctx, span := otel.AddSpan(ctx, "business.workspacebus.update")
	defer span.End()

	if uw.Name != nil {
		ws.Name = *uw.Name
	}

	if uw.Description != nil {
		ws.Description = uw.Description
	}

	if uw.Enabled != nil {
		ws.Enabled = *uw.Enabled
	}

	ws.UpdatedAt = time.Now()

	if err := c.storer.Update(ctx, ws); err != nil {
		return Workspace{}, fmt.Errorf("update: %w", err)
	}

	return ws, nil
}

// =============================================================================

// ensureCollection creates and anchors the Metabase collection when the
// workspace has none. Losing the anchor race is success: the winner's id is
// read back and used.
func (c *Core) ensureCollection(ctx context.Context, ws Workspace) (Workspace, error) {
	if ws.CollectionID != nil {
		return ws, nil
	}

	collectionID, err := c.engine.CreateCollection(ctx, ws.Name.String(), description(ws))
	if err != nil {
		return Workspace{}, fmt.Errorf("create collection: %w", err)
	}

	if err := c.storer.SetCollectionID(ctx, ws.ID, collectionID); err != nil {
		if errors.Is(err, ErrCollectionAnchored) {
			c.log.Info(ctx, "workspace collection anchored by concurrent caller", "workspace_id", ws.ID)

			ws, err := c.storer.QueryByID(ctx, ws.ID)
			if err != nil {
				return Workspace{}, fmt.Errorf("query after anchor race: %w", err)
			}
			return ws, nil
		}
		return Workspace{}, fmt.Errorf("set collection id: %w", err)
	}

	ws.CollectionID = &collectionID

	if err := c.engine.EnableCollectionEmbedding(ctx, collectionID); err != nil {
		return Workspace{}, fmt.Errorf("enable collection embedding: %w", err)
	}

	return ws, nil
}

// ensureGroup creates the deterministically named permission group when the
// workspace has none recorded. The client reuses an existing group with the
// same name, so a crash after group creation but before persistence heals.
func (c *Core) ensureGroup(ctx context.Context, ws Workspace) (Workspace, bool, error) {
	if ws.GroupID != nil {
		return ws, false, nil
	}

	groupID, err := c.engine.CreateGroup(ctx, ws.GroupName())
	if err != nil {
		return Workspace{}, false, fmt.Errorf("create group: %w", err)
	}

	if err := c.storer.SetGroupID(ctx, ws.ID, groupID); err != nil {
		return Workspace{}, false, fmt.Errorf("set group id: %w", err)
	}

	ws.GroupID = &groupID

	return ws, true, nil
}

// ensureGrant verifies the group still holds write access on the workspace
// collection and reapplies the grant when it drifted.
func (c *Core) ensureGrant(ctx context.Context, ws Workspace) error {
	graph, err := c.engine.CollectionGraph(ctx)
	if err != nil {
		return fmt.Errorf("collection graph: %w", err)
	}

	groupKey := strconv.Itoa(*ws.GroupID)
	collectionKey := strconv.Itoa(*ws.CollectionID)

	if graph[groupKey][collectionKey] == "write" {
		return nil
	}

	c.log.Info(ctx, "workspace grant drifted, reapplying", "workspace_id", ws.ID, "group_id", *ws.GroupID, "collection_id", *ws.CollectionID)

	if err := c.engine.GrantCollectionWrite(ctx, *ws.GroupID, *ws.CollectionID); err != nil {
		return fmt.Errorf("grant collection write: %w", err)
	}

	return nil
}

// ensureMembership verifies the owner's Metabase account is still in the
// group and re-adds it when it drifted.
func (c *Core) ensureMembership(ctx context.Context, ws Workspace) error {
	if ws.OwnerMetabaseID == nil {
		return nil
	}

	members, err := c.engine.GroupMembers(ctx, *ws.GroupID)
	if err != nil {
		return fmt.Errorf("group members: %w", err)
	}

	for _, m := range members {
		if m.UserID == *ws.OwnerMetabaseID {
			return nil
		}
	}

	c.log.Info(ctx, "workspace owner missing from group, re-adding", "workspace_id", ws.ID, "group_id", *ws.GroupID)

	if err := c.engine.AddGroupMember(ctx, *ws.OwnerMetabaseID, *ws.GroupID); err != nil {
		return fmt.Errorf("add group member: %w", err)
	}

	return nil
}

func (c *Core) grantAnalyticsAccess(ctx context.Context, ws Workspace) {
	if c.analyticsDBName == "" {
		return
	}

	db, err := c.engine.FindDatabase(ctx, c.analyticsDBName)
	if err != nil {
		c.log.Warn(ctx, "analytics database not available for workspace group", "workspace_id", ws.ID, "err", err)
		return
	}

	if err := c.engine.GrantDatabaseAccess(ctx, *ws.GroupID, db.ID, "public"); err != nil {
		c.log.Warn(ctx, "granting analytics database access", "workspace_id", ws.ID, "err", err)
	}
}

func description(ws Workspace) string {
	if ws.Description != nil {
		return *ws.Description
	}
	return ""
}
