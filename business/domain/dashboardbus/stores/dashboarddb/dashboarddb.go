// Package dashboarddb contains dashboard cache related CRUD functionality.
package dashboarddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/foundation/logger"
)

// Store manages the set of APIs for dashboard database access.
type Store struct {
	log *logger.Logger
	db  sqlx.ExtContext
}

// NewStore constructs the api for data access.
func NewStore(log *logger.Logger, db *sqlx.DB) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// NewWithTx constructs a new Store value replacing the sqlx DB
// value with a sqlx DB value that is currently inside a transaction.
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (dashboardbus.Storer, error) {
	ec, err := sqldb.GetExtContext(tx)
	if err != nil {
		return nil, err
	}

	store := Store{
		log: s.log,
		db:  ec,
	}

	return &store, nil
}

// Create inserts a discovered dashboard into the cache. The unique
// constraint on mb_dashboard_id is the concurrency guard: a losing
// concurrent writer gets ErrAlreadyCached.
func (s *Store) Create(ctx context.Context, d dashboardbus.Dashboard) error {
	const q = `
	INSERT INTO "public"."dashboards"
		(dashboard_id, workspace_id, mb_dashboard_id, name, embedding_enabled, created_at)
	VALUES
		(:dashboard_id, :workspace_id, :mb_dashboard_id, :name, :embedding_enabled, :created_at)`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBDashboard(d)); err != nil {
		var dupErr sqldb.ErrDBDuplicatedEntry
		if errors.As(err, &dupErr) {
			return fmt.Errorf("namedexeccontext: %w", dashboardbus.ErrAlreadyCached)
		}
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// QueryByID gets the specified dashboard from the database.
func (s *Store) QueryByID(ctx context.Context, dashboardID uuid.UUID) (dashboardbus.Dashboard, error) {
	data := struct {
		ID uuid.UUID `db:"dashboard_id"`
	}{
		ID: dashboardID,
	}

	const q = `
	SELECT
		dashboard_id, workspace_id, mb_dashboard_id, name, embedding_enabled, created_at
	FROM
		"public"."dashboards"
	WHERE
		dashboard_id = :dashboard_id`

	var dbDash dashboardDB
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &dbDash); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return dashboardbus.Dashboard{}, fmt.Errorf("db: %w", dashboardbus.ErrNotFound)
		}
		return dashboardbus.Dashboard{}, fmt.Errorf("db: %w", err)
	}

	return toBusDashboard(dbDash), nil
}

// QueryByWorkspaceID returns all cached dashboards for a workspace.
func (s *Store) QueryByWorkspaceID(ctx context.Context, workspaceID uuid.UUID) ([]dashboardbus.Dashboard, error) {
	data := struct {
		WorkspaceID uuid.UUID `db:"workspace_id"`
	}{
		WorkspaceID: workspaceID,
	}

	const q = `
	SELECT
		dashboard_id, workspace_id, mb_dashboard_id, name, embedding_enabled, created_at
	FROM
		"public"."dashboards"
	WHERE
		workspace_id = :workspace_id
	ORDER BY
		mb_dashboard_id`

	var dbDashs []dashboardDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, data, &dbDashs); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusDashboards(dbDashs), nil
}
