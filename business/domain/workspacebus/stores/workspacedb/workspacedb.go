// Package workspacedb contains workspace related CRUD functionality.
package workspacedb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/foundation/logger"
)

// Store manages the set of APIs for workspace database access.
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
func (s *Store) NewWithTx(tx sqldb.CommitRollbacker) (workspacebus.Storer, error) {
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

// Create inserts a new workspace into the database.
func (s *Store) Create(ctx context.Context, ws workspacebus.Workspace) error {
	const q = `
	INSERT INTO "public"."workspaces"
		(workspace_id, name, description, owner_id, mb_collection_id, mb_group_id, enabled, created_at, updated_at)
	VALUES
		(:workspace_id, :name, :description, :owner_id, :mb_collection_id, :mb_group_id, :enabled, :created_at, :updated_at)`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBWorkspace(ws)); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// Update replaces the mutable workspace fields in the database.
func (s *Store) Update(ctx context.Context, ws workspacebus.Workspace) error {
	const q = `
	UPDATE
		"public"."workspaces"
	SET
		name = :name,
		description = :description,
		enabled = :enabled,
		updated_at = :updated_at
	WHERE
		workspace_id = :workspace_id`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, toDBWorkspace(ws)); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// SetCollectionID writes the provisioning anchor exactly once. The guard on
// mb_collection_id IS NULL plus the unique constraint make the first writer
// win; everyone else gets ErrCollectionAnchored.
func (s *Store) SetCollectionID(ctx context.Context, workspaceID uuid.UUID, collectionID int) error {
	data := struct {
		ID           uuid.UUID `db:"workspace_id"`
		CollectionID int       `db:"mb_collection_id"`
	}{
		ID:           workspaceID,
		CollectionID: collectionID,
	}

	const q = `
	UPDATE
		"public"."workspaces"
	SET
		mb_collection_id = :mb_collection_id,
		updated_at = now()
	WHERE
		workspace_id = :workspace_id AND mb_collection_id IS NULL
	RETURNING workspace_id`

	var result struct {
		ID uuid.UUID `db:"workspace_id"`
	}

	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &result); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return workspacebus.ErrCollectionAnchored
		}

		var dupErr sqldb.ErrDBDuplicatedEntry
		if errors.As(err, &dupErr) {
			return workspacebus.ErrCollectionAnchored
		}

		return fmt.Errorf("namedquerystruct: %w", err)
	}

	return nil
}

// SetGroupID records the Metabase permission group for the workspace.
func (s *Store) SetGroupID(ctx context.Context, workspaceID uuid.UUID, groupID int) error {
	data := struct {
		ID      uuid.UUID `db:"workspace_id"`
		GroupID int       `db:"mb_group_id"`
	}{
		ID:      workspaceID,
		GroupID: groupID,
	}

	const q = `
	UPDATE
		"public"."workspaces"
	SET
		mb_group_id = :mb_group_id,
		updated_at = now()
	WHERE
		workspace_id = :workspace_id`

	if err := sqldb.NamedExecContext(ctx, s.log, s.db, q, data); err != nil {
		return fmt.Errorf("namedexeccontext: %w", err)
	}

	return nil
}

// QueryByID gets the specified workspace from the database with the owner's
// Metabase account resolved.
func (s *Store) QueryByID(ctx context.Context, workspaceID uuid.UUID) (workspacebus.Workspace, error) {
	data := struct {
		ID uuid.UUID `db:"workspace_id"`
	}{
		ID: workspaceID,
	}

	const q = `
	SELECT
		w.workspace_id, w.name, w.description, w.owner_id, w.mb_collection_id,
		w.mb_group_id, w.enabled, w.created_at, w.updated_at,
		u.mb_user_id AS owner_mb_user_id
	FROM
		"public"."workspaces" AS w
	JOIN
		"public"."users" AS u ON u.user_id = w.owner_id
	WHERE
		w.workspace_id = :workspace_id`

	var dbWs workspaceDB
	if err := sqldb.NamedQueryStruct(ctx, s.log, s.db, q, data, &dbWs); err != nil {
		if errors.Is(err, sqldb.ErrDBNotFound) {
			return workspacebus.Workspace{}, fmt.Errorf("db: %w", workspacebus.ErrNotFound)
		}
		return workspacebus.Workspace{}, fmt.Errorf("db: %w", err)
	}

	return toBusWorkspace(dbWs)
}

// QueryByOwnerID returns the active workspaces owned by the specified user.
func (s *Store) QueryByOwnerID(ctx context.Context, ownerID uuid.UUID) ([]workspacebus.Workspace, error) {
	data := struct {
		OwnerID uuid.UUID `db:"owner_id"`
	}{
		OwnerID: ownerID,
	}

	const q = `
	SELECT
		w.workspace_id, w.name, w.description, w.owner_id, w.mb_collection_id,
		w.mb_group_id, w.enabled, w.created_at, w.updated_at,
		u.mb_user_id AS owner_mb_user_id
	FROM
		"public"."workspaces" AS w
	JOIN
		"public"."users" AS u ON u.user_id = w.owner_id
	WHERE
		w.owner_id = :owner_id AND w.enabled = true
	ORDER BY
		w.created_at`

	var dbWss []workspaceDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, data, &dbWss); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusWorkspaces(dbWss)
}

// QueryAll returns every active workspace. Used by boot reconciliation.
func (s *Store) QueryAll(ctx context.Context) ([]workspacebus.Workspace, error) {
	const q = `
	SELECT
		w.workspace_id, w.name, w.description, w.owner_id, w.mb_collection_id,
		w.mb_group_id, w.enabled, w.created_at, w.updated_at,
		u.mb_user_id AS owner_mb_user_id
	FROM
		"public"."workspaces" AS w
	JOIN
		"public"."users" AS u ON u.user_id = w.owner_id
	WHERE
		w.enabled = true
	ORDER BY
		w.created_at`

	var dbWss []workspaceDB
	if err := sqldb.NamedQuerySlice(ctx, s.log, s.db, q, struct{}{}, &dbWss); err != nil {
		return nil, fmt.Errorf("namedqueryslice: %w", err)
	}

	return toBusWorkspaces(dbWss)
}
