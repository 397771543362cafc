package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Database represents a database registered in Metabase.
type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// NewDatabase contains the connection details to register a database.
type NewDatabase struct {
	Name     string
	Engine   string
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
}

// ListDatabases returns every database Metabase knows about.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "listDatabases", http.MethodGet, "/api/database", nil, &raw, true); err != nil {
		return nil, err
	}

	return decodeListOrEnvelope[Database](raw, "listDatabases")
}

// FindDatabase looks up a database by its display name. Returns ErrNotFound
// when no database carries that name.
func (c *Client) FindDatabase(ctx context.Context, name string) (Database, error) {
	databases, err := c.ListDatabases(ctx)
	if err != nil {
		return Database{}, err
	}

	for _, db := range databases {
		if db.Name == name {
			return db, nil
		}
	}

	return Database{}, fmt.Errorf("database %q: %w", name, ErrNotFound)
}

// AddDatabase registers a new database connection in Metabase.
func (c *Client) AddDatabase(ctx context.Context, ndb NewDatabase) (Database, error) {
	payload := struct {
		Name           string         `json:"name"`
		Engine         string         `json:"engine"`
		Details        map[string]any `json:"details"`
		AutoRunQueries bool           `json:"auto_run_queries"`
		IsFullSync     bool           `json:"is_full_sync"`
	}{
		Name:   ndb.Name,
		Engine: ndb.Engine,
		Details: map[string]any{
			"host":     ndb.Host,
			"port":     ndb.Port,
			"dbname":   ndb.DBName,
			"user":     ndb.User,
			"password": ndb.Password,
			"ssl":      false,
		},
		AutoRunQueries: true,
		IsFullSync:     true,
	}

	var db Database
	if err := c.do(ctx, "addDatabase", http.MethodPost, "/api/database", payload, &db, true); err != nil {
		return Database{}, err
	}

	return db, nil
}

// GrantDatabaseAccess gives a permission group query access to a database
// schema. The permission graph is read-modify-written whole, including its
// revision marker, the way the Metabase API requires.
func (c *Client) GrantDatabaseAccess(ctx context.Context, groupID int, databaseID int, schema string) error {
	var graph map[string]any
	if err := c.do(ctx, "permissionsGraph", http.MethodGet, "/api/permissions/graph", nil, &graph, true); err != nil {
		return err
	}

	groups, ok := graph["groups"].(map[string]any)
	if !ok {
		groups = make(map[string]any)
		graph["groups"] = groups
	}

	groupKey := strconv.Itoa(groupID)
	groupPerms, ok := groups[groupKey].(map[string]any)
	if !ok {
		groupPerms = make(map[string]any)
		groups[groupKey] = groupPerms
	}

	groupPerms[strconv.Itoa(databaseID)] = map[string]any{
		"schemas": map[string]any{schema: "all"},
		"native":  "write",
	}

	return c.do(ctx, "grantDatabaseAccess", http.MethodPut, "/api/permissions/graph", graph, nil, true)
}
