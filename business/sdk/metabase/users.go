package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// User represents a Metabase user account.
type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

// NewUser contains the information to create a Metabase user.
type NewUser struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// CreateUser creates a regular (non superuser) Metabase account. These
// accounts only ever see the collections their workspace group grants.
func (c *Client) CreateUser(ctx context.Context, nu NewUser) (User, error) {
	payload := struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		IsSuperuser bool   `json:"is_superuser"`
	}{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Email:     nu.Email,
		Password:  nu.Password,
	}

	var usr User
	if err := c.do(ctx, "createUser", http.MethodPost, "/api/user", payload, &usr, true); err != nil {
		return User{}, err
	}

	return usr, nil
}

// FindUserByEmail scans the Metabase user list for the given email. Returns
// ErrNotFound when no account matches.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "findUserByEmail", http.MethodGet, "/api/user", nil, &raw, true); err != nil {
		return User{}, err
	}

	users, err := decodeListOrEnvelope[User](raw, "findUserByEmail")
	if err != nil {
		return User{}, err
	}

	for _, usr := range users {
		if usr.Email == email {
			return usr, nil
		}
	}

	return User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}
