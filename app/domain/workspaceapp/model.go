package workspaceapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/app/sdk/mid"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/types/name"
)

type Workspace struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	OwnerID      string  `json:"ownerId"`
	CollectionID *int    `json:"collectionId,omitempty"`
	GroupID      *int    `json:"groupId,omitempty"`
	Enabled      bool    `json:"enabled"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

// Encode implements the web.Encoder interface.
func (app Workspace) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppWorkspace(bus workspacebus.Workspace) Workspace {
	return Workspace{
		ID:           bus.ID.String(),
		Name:         bus.Name.String(),
		Description:  bus.Description,
		OwnerID:      bus.OwnerID.String(),
		CollectionID: bus.CollectionID,
		GroupID:      bus.GroupID,
		Enabled:      bus.Enabled,
		CreatedAt:    bus.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    bus.UpdatedAt.Format(time.RFC3339),
	}
}

type Workspaces []Workspace

// Encode implements the web.Encoder interface.
func (app Workspaces) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppWorkspaces(bus []workspacebus.Workspace) Workspaces {
	app := make(Workspaces, len(bus))
	for i, ws := range bus {
		app[i] = toAppWorkspace(ws)
	}

	return app
}

type NewWorkspace struct {
	Name        string  `json:"name" validate:"required,min=3,max=100"`
	Description *string `json:"description"`
}

// Decode implements the web.Decoder interface.
func (app *NewWorkspace) Decode(data []byte) error {
	return json.Unmarshal(data, app)
}

// Validate checks the data in the model is considered clean.
func (app NewWorkspace) Validate() error {
	if err := errs.Check(app); err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("validate: %w", err))
	}
	return nil
}

func toBusNewWorkspace(ctx context.Context, app NewWorkspace) (workspacebus.NewWorkspace, error) {
	nme, err := name.Parse(app.Name)
	if err != nil {
		return workspacebus.NewWorkspace{}, fmt.Errorf("parse name: %w", err)
	}

	nw := workspacebus.NewWorkspace{
		Name:        nme,
		Description: app.Description,
		OwnerID:     mid.GetSubjectID(ctx),
	}

	return nw, nil
}

type Embed struct {
	URL              string `json:"url"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

// Encode implements the web.Encoder interface.
func (app Embed) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppEmbed(signed metabase.SignedURL) Embed {
	return Embed{
		URL:              signed.URL,
		ExpiresInMinutes: signed.ExpiresInMinutes,
	}
}
