package userapp

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/page"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/business/types/role"
)

type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	MetabaseID *int   `json:"metabaseId,omitempty"`
	Enabled    bool   `json:"enabled"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// Encode implements the web.Encoder interface.
func (app User) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppUser(bus userbus.User) User {
	return User{
		ID:         bus.ID.String(),
		Name:       bus.Name.String(),
		Email:      bus.Email.Address,
		Role:       bus.Role.String(),
		MetabaseID: bus.MetabaseID,
		Enabled:    bus.Enabled,
		CreatedAt:  bus.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  bus.UpdatedAt.Format(time.RFC3339),
	}
}

// UsersPage wraps a page of users with paging metadata.
type UsersPage struct {
	Items       []User `json:"items"`
	Total       int    `json:"total"`
	Page        int    `json:"page"`
	RowsPerPage int    `json:"rowsPerPage"`
}

// Encode implements the web.Encoder interface.
func (app UsersPage) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppUsersPage(bus []userbus.User, total int, pg page.Page) UsersPage {
	items := make([]User, len(bus))
	for i, usr := range bus {
		items[i] = toAppUser(usr)
	}

	return UsersPage{
		Items:       items,
		Total:       total,
		Page:        pg.Number(),
		RowsPerPage: pg.RowsPerPage(),
	}
}

type UpdateUser struct {
	Name     *string `json:"name" validate:"omitempty,min=3,max=100"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Enabled  *bool   `json:"enabled"`
}

// Decode implements the web.Decoder interface.
func (app *UpdateUser) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app UpdateUser) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

func toBusUpdateUser(app UpdateUser) (userbus.UpdateUser, error) {
	var uu userbus.UpdateUser

	if app.Name != nil {
		nme, err := name.Parse(*app.Name)
		if err != nil {
			return userbus.UpdateUser{}, fmt.Errorf("parse name: %w", err)
		}
		uu.Name = &nme
	}

	if app.Email != nil {
		addr, err := mail.ParseAddress(*app.Email)
		if err != nil {
			return userbus.UpdateUser{}, fmt.Errorf("parse email: %w", err)
		}
		uu.Email = addr
	}

	if app.Role != nil {
		rle, err := role.Parse(*app.Role)
		if err != nil {
			return userbus.UpdateUser{}, fmt.Errorf("parse role: %w", err)
		}
		uu.Role = &rle
	}

	uu.Password = app.Password
	uu.Enabled = app.Enabled

	return uu, nil
}
