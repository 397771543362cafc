package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Item represents an entry inside a collection. Model distinguishes
// dashboards from cards and sub-collections.
type Item struct {
	ID    int    `json:"id"`
	Model string `json:"model"`
	Name  string `json:"name"`
}

// ModelDashboard is the item model Metabase reports for dashboards.
const ModelDashboard = "dashboard"

// CreateCollection creates a content collection and returns its id.
func (c *Client) CreateCollection(ctx context.Context, name string, description string) (int, error) {
	payload := struct {
		Name        string `json:"name"`
		Color       string `json:"color"`
		Description string `json:"description"`
		ParentID    *int   `json:"parent_id"`
	}{
		Name:        name,
		Color:       "#509EE3",
		Description: description,
	}

	var result struct {
		ID int `json:"id"`
	}

	if err := c.do(ctx, "createCollection", http.MethodPost, "/api/collection", payload, &result, true); err != nil {
		return 0, err
	}

	return result.ID, nil
}

// EnableCollectionEmbedding toggles the embedding flag on a collection.
func (c *Client) EnableCollectionEmbedding(ctx context.Context, collectionID int) error {
	payload := struct {
		EnableEmbedding bool `json:"enable_embedding"`
	}{
		EnableEmbedding: true,
	}

	path := fmt.Sprintf("/api/collection/%d", collectionID)

	return c.do(ctx, "enableCollectionEmbedding", http.MethodPut, path, payload, nil, true)
}

// ListCollectionItems fetches everything inside a collection. Depending on
// the Metabase version the response is either a bare array or wrapped in a
// data envelope, so both shapes are accepted.
func (c *Client) ListCollectionItems(ctx context.Context, collectionID int) ([]Item, error) {
	path := fmt.Sprintf("/api/collection/%d/items", collectionID)

	var raw json.RawMessage
	if err := c.do(ctx, "listCollectionItems", http.MethodGet, path, nil, &raw, true); err != nil {
		return nil, err
	}

	return decodeListOrEnvelope[Item](raw, "listCollectionItems")
}

// GrantCollectionWrite gives a permission group write access to a collection
// via the collection permission graph.
func (c *Client) GrantCollectionWrite(ctx context.Context, groupID int, collectionID int) error {
	payload := struct {
		Groups map[string]map[string]string `json:"groups"`
	}{
		Groups: map[string]map[string]string{
			strconv.Itoa(groupID): {
				strconv.Itoa(collectionID): "write",
			},
		},
	}

	return c.do(ctx, "grantCollectionWrite", http.MethodPut, "/api/collection/graph", payload, nil, true)
}

// CollectionGraph returns the collection permission graph keyed by group id
// then collection id. Used by reconciliation to verify grants still hold.
func (c *Client) CollectionGraph(ctx context.Context) (map[string]map[string]string, error) {
	var result struct {
		Groups map[string]map[string]string `json:"groups"`
	}

	if err := c.do(ctx, "collectionGraph", http.MethodGet, "/api/collection/graph", nil, &result, true); err != nil {
		return nil, err
	}

	return result.Groups, nil
}

// decodeListOrEnvelope handles Metabase endpoints that return either
// [...] or {"data": [...]}.
func decodeListOrEnvelope[T any](raw json.RawMessage, op string) ([]T, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] == '[' {
		var list []T
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		return list, nil
	}

	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return envelope.Data, nil
}
