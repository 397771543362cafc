package dashboardapp

import (
	"encoding/json"
	"time"

	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
)

type Dashboard struct {
	ID               string `json:"id"`
	WorkspaceID      string `json:"workspaceId"`
	MetabaseID       int    `json:"metabaseId"`
	Name             string `json:"name"`
	EmbeddingEnabled bool   `json:"embeddingEnabled"`
	CreatedAt        string `json:"createdAt"`
}

// Encode implements the web.Encoder interface.
func (app Dashboard) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppDashboard(bus dashboardbus.Dashboard) Dashboard {
	return Dashboard{
		ID:               bus.ID.String(),
		WorkspaceID:      bus.WorkspaceID.String(),
		MetabaseID:       bus.MBDashboardID,
		Name:             bus.Name,
		EmbeddingEnabled: bus.EmbeddingEnabled,
		CreatedAt:        bus.CreatedAt.Format(time.RFC3339),
	}
}

type Dashboards []Dashboard

// Encode implements the web.Encoder interface.
func (app Dashboards) Encode() ([]byte, string, error) {
	data, err := json.Marshal(app)
	return data, "application/json", err
}

func toAppDashboards(bus []dashboardbus.Dashboard) Dashboards {
	app := make(Dashboards, len(bus))
	for i, dbd := range bus {
		app[i] = toAppDashboard(dbd)
	}

	return app
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
