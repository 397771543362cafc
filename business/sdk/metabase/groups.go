package metabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Group represents a Metabase permission group.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Member represents a user's membership inside a group.
type Member struct {
	MembershipID int `json:"membership_id"`
	UserID       int `json:"user_id"`
}

// CreateGroup creates a permission group with the given name. Group names
// are unique in Metabase; if the create is rejected because the name is
// taken, the existing group is looked up and reused so provisioning stays
// idempotent.
func (c *Client) CreateGroup(ctx context.Context, name string) (int, error) {
	payload := struct {
		Name string `json:"name"`
	}{
		Name: name,
	}

	var result struct {
		ID int `json:"id"`
	}

	err := c.do(ctx, "createGroup", http.MethodPost, "/api/permissions/group", payload, &result, true)
	if err == nil {
		return result.ID, nil
	}

	var mbErr *Error
	if !errors.As(err, &mbErr) {
		return 0, err
	}

	groups, lookupErr := c.ListGroups(ctx)
	if lookupErr != nil {
		return 0, err
	}

	for _, g := range groups {
		if g.Name == name {
			c.log.Info(ctx, "metabase: reusing existing group", "name", name, "group_id", g.ID)
			return g.ID, nil
		}
	}

	return 0, err
}

// ListGroups returns all permission groups.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, "listGroups", http.MethodGet, "/api/permissions/group", nil, &groups, true); err != nil {
		return nil, err
	}

	return groups, nil
}

// FindGroup returns the group with the given name, or ErrNotFound.
func (c *Client) FindGroup(ctx context.Context, name string) (Group, error) {
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return Group{}, err
	}

	for _, g := range groups {
		if g.Name == name {
			return g, nil
		}
	}

	return Group{}, fmt.Errorf("group %q: %w", name, ErrNotFound)
}

// GroupMembers returns the members of a permission group.
func (c *Client) GroupMembers(ctx context.Context, groupID int) ([]Member, error) {
	path := fmt.Sprintf("/api/permissions/group/%d", groupID)

	var result struct {
		Members []Member `json:"members"`
	}

	if err := c.do(ctx, "groupMembers", http.MethodGet, path, nil, &result, true); err != nil {
		return nil, err
	}

	return result.Members, nil
}

// AddGroupMember places a Metabase user inside a permission group. Adding a
// user that is already a member is reported by Metabase as a client error;
// that case is swallowed since the desired state already holds.
func (c *Client) AddGroupMember(ctx context.Context, userID int, groupID int) error {
	payload := struct {
		GroupID int `json:"group_id"`
		UserID  int `json:"user_id"`
	}{
		GroupID: groupID,
		UserID:  userID,
	}

	err := c.do(ctx, "addGroupMember", http.MethodPost, "/api/permissions/membership", payload, nil, true)
	if err == nil {
		return nil
	}

	var mbErr *Error
	if errors.As(err, &mbErr) && mbErr.Status == http.StatusBadRequest {
		return nil
	}

	return err
}
