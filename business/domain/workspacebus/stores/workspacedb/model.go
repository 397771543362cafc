package workspacedb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/types/name"
)

type workspaceDB struct {
	ID              uuid.UUID      `db:"workspace_id"`
	Name            string         `db:"name"`
	Description     sql.NullString `db:"description"`
	OwnerID         uuid.UUID      `db:"owner_id"`
	CollectionID    sql.NullInt64  `db:"mb_collection_id"`
	GroupID         sql.NullInt64  `db:"mb_group_id"`
	OwnerMetabaseID sql.NullInt64  `db:"owner_mb_user_id"`
	Enabled         bool           `db:"enabled"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toDBWorkspace(bus workspacebus.Workspace) workspaceDB {
	var description sql.NullString
	if bus.Description != nil {
		description = sql.NullString{String: *bus.Description, Valid: true}
	}

	return workspaceDB{
		ID:           bus.ID,
		Name:         bus.Name.String(),
		Description:  description,
		OwnerID:      bus.OwnerID,
		CollectionID: toNullInt64(bus.CollectionID),
		GroupID:      toNullInt64(bus.GroupID),
		Enabled:      bus.Enabled,
		CreatedAt:    bus.CreatedAt.UTC(),
		UpdatedAt:    bus.UpdatedAt.UTC(),
	}
}

func toBusWorkspace(db workspaceDB) (workspacebus.Workspace, error) {
	n, err := name.Parse(db.Name)
	if err != nil {
		return workspacebus.Workspace{}, fmt.Errorf("parse name: %w", err)
	}

	var description *string
	if db.Description.Valid {
		description = &db.Description.String
	}

	return workspacebus.Workspace{
		ID:              db.ID,
		Name:            n,
		Description:     description,
		OwnerID:         db.OwnerID,
		CollectionID:    fromNullInt64(db.CollectionID),
		GroupID:         fromNullInt64(db.GroupID),
		OwnerMetabaseID: fromNullInt64(db.OwnerMetabaseID),
		Enabled:         db.Enabled,
		CreatedAt:       db.CreatedAt.In(time.Local),
		UpdatedAt:       db.UpdatedAt.In(time.Local),
	}, nil
}

func toBusWorkspaces(dbs []workspaceDB) ([]workspacebus.Workspace, error) {
	bus := make([]workspacebus.Workspace, len(dbs))

	for i, db := range dbs {
		var err error
		bus[i], err = toBusWorkspace(db)
		if err != nil {
			return nil, err
		}
	}

	return bus, nil
}

func toNullInt64(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNullInt64(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
