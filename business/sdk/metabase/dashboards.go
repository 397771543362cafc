package metabase

import (
	"context"
	"fmt"
	"net/http"
)

// EnableDashboardEmbedding flips the embedding flag on a dashboard so the
// embed endpoint will honor signed tokens naming it. Idempotent PUT.
func (c *Client) EnableDashboardEmbedding(ctx context.Context, dashboardID int) error {
	payload := struct {
		EnableEmbedding bool `json:"enable_embedding"`
	}{
		EnableEmbedding: true,
	}

	path := fmt.Sprintf("/api/dashboard/%d", dashboardID)

	return c.do(ctx, "enableDashboardEmbedding", http.MethodPut, path, payload, nil, true)
}
