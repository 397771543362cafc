// Package dashboardbus reconciles dashboards users create directly inside
// the Metabase editor with the local cache and makes new content embeddable.
package dashboardbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/jpcouto/vitrine/foundation/otel"
)

var (
	ErrNotFound = errors.New("dashboard not found")

	// ErrAlreadyCached reports that a concurrent caller already inserted the
	// discovered dashboard. Treated as success by Sync.
	ErrAlreadyCached = errors.New("dashboard already cached")

	// ErrNotProvisioned reports a sync attempt against a workspace whose
	// collection does not exist yet.
	ErrNotProvisioned = errors.New("workspace has no collection")
)

// Storer defines the behavior required by the bus to persist dashboards.
type Storer interface {
	NewWithTx(tx sqldb.CommitRollbacker) (Storer, error)

	// Create inserts a cache row and must return ErrAlreadyCached when the
	// mb_dashboard_id unique constraint trips.
	Create(ctx context.Context, d Dashboard) error

	QueryByID(ctx context.Context, dashboardID uuid.UUID) (Dashboard, error)
	QueryByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) ([]Dashboard, error)
}

// Engine defines the Metabase calls discovery depends on.
type Engine interface {
	ListCollectionItems(ctx context.Context, collectionID int) ([]metabase.Item, error)
	EnableDashboardEmbedding(ctx context.Context, dashboardID int) error
}

// Core manages the set of APIs for dashboard discovery and access.
type Core struct {
	log    *logger.Logger
	storer Storer
	engine Engine
}

// NewCore constructs a core for dashboard api access.
func NewCore(log *logger.Logger, storer Storer, engine Engine) *Core {
	return &Core{
		log:    log,
		storer: storer,
		engine: engine,
	}
}

// NewWithTx constructs a new Core value replacing the Storer value with a
// Storer value that is currently inside a transaction.
func (c *Core) NewWithTx(tx sqldb.CommitRollbacker) (*Core, error) {
	storer, err := c.storer.NewWithTx(tx)
	if err != nil {
		return nil, fmt.Errorf("newWithTx: %w", err)
	}

	return NewCore(c.log, storer, c.engine), nil
}

// Sync diffs the dashboards inside the workspace collection against the
// local cache, enables embedding on anything new, caches it, and returns the
// full up-to-date list. Safe to call repeatedly and concurrently for the
// same workspace: the enable call runs before the insert, so a crash in
// between leaves Metabase embeddable and the retry idempotent, and a losing
// concurrent insert is treated as already discovered.
func (c *Core) Sync(ctx context.Context, ws workspacebus.Workspace) ([]Dashboard, error) {
	ctx, span := otel.AddSpan(ctx, "business.dashboardbus.sync")
	defer span.End()

	if ws.CollectionID == nil {
		return nil, fmt.Errorf("workspace[%s]: %w", ws.ID, ErrNotProvisioned)
	}

	items, err := c.engine.ListCollectionItems(ctx, *ws.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}

	cached, err := c.storer.QueryByWorkspaceID(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("query cached: %w", err)
	}

	known := make(map[int]struct{}, len(cached))
	for _, d := range cached {
		known[d.MBDashboardID] = struct{}{}
	}

	var discovered int
	for _, item := range items {
		if item.Model != metabase.ModelDashboard {
			continue
		}
		if _, exists := known[item.ID]; exists {
			continue
		}

		// Enable first, insert second. If we crash in between, the remote
		// flag is already set and the next pass re-detects the dashboard.
		if err := c.engine.EnableDashboardEmbedding(ctx, item.ID); err != nil {
			return nil, fmt.Errorf("enable embedding: dashboard[%d]: %w", item.ID, err)
		}

		d := Dashboard{
			ID:               uuid.New(),
			WorkspaceID:      ws.ID,
			MBDashboardID:    item.ID,
			Name:             item.Name,
			EmbeddingEnabled: true,
			CreatedAt:        time.Now(),
		}

		discovered++

		if err := c.storer.Create(ctx, d); err != nil {
			if errors.Is(err, ErrAlreadyCached) {
				c.log.Info(ctx, "dashboard discovered by concurrent caller", "mb_dashboard_id", item.ID)
				continue
			}
			return nil, fmt.Errorf("create: %w", err)
		}
	}

	if discovered > 0 {
		c.log.Info(ctx, "dashboards auto-published", "workspace_id", ws.ID, "count", discovered)

		cached, err = c.storer.QueryByWorkspaceID(ctx, ws.ID)
		if err != nil {
			return nil, fmt.Errorf("query cached: %w", err)
		}
	}

	return cached, nil
}

// QueryByID finds the dashboard by the specified ID.
func (c *Core) QueryByID(ctx context.Context, dashboardID uuid.UUID) (Dashboard, error) {
	ctx, span := otel.AddSpan(ctx, "business.dashboardbus.queryByID")
	defer span.End()

	d, err := c.storer.QueryByID(ctx, dashboardID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("query: dashboardID[%s]: %w", dashboardID, err)
	}

	return d, nil
}

// QueryByWorkspaceID returns the cached dashboards for a workspace without
// touching Metabase.
func (c *Core) QueryByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) ([]Dashboard, error) {
	ctx, span := otel.AddSpan(ctx, "business.dashboardbus.queryByWorkspaceID")
	defer span.End()

	ds, err := c.storer.QueryByWorkspaceID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query: workspaceID[%s]: %w", workspaceID, err)
	}

	return ds, nil
}
