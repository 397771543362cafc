package supervisor_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/stretchr/testify/require"
)

// Test_WorkspaceLifecycle walks the full tenant flow: provision a workspace,
// discover the dashboards Metabase reports in its collection, and produce a
// signed embed URL for one of them.
func Test_WorkspaceLifecycle(t *testing.T) {
	log := logger.New(io.Discard, logger.LevelInfo, "TEST", nil)

	engine := newFakeEngine()
	engine.items[100] = []metabase.Item{
		{ID: 3, Model: metabase.ModelDashboard, Name: "Sales Overview"},
	}

	workspaceBus := workspacebus.NewCore(workspacebus.Config{
		Log:    log,
		Storer: emptyWorkspaceStorer(),
		Engine: engine,
	})

	dashboardBus := dashboardbus.NewCore(log, &fakeDashboardStorer{dashboards: map[uuid.UUID]dashboardbus.Dashboard{}}, engine)

	signer := metabase.NewSigner(metabase.SignerConfig{
		Secret:    "embed-secret",
		PublicURL: "https://bi.example.com",
	})

	ctx := context.Background()

	// Provision establishes the collection, the group and the grant.
	ws, err := workspaceBus.Provision(ctx, workspacebus.NewWorkspace{
		Name:    name.MustParse("Quarterly Analytics"),
		OwnerID: uuid.New(),
	})
	require.NoError(t, err)
	require.NotNil(t, ws.CollectionID)
	require.NotNil(t, ws.GroupID)
	require.Equal(t, "write", engine.graph["200"]["100"])

	// Discovery caches the dashboard and enables its embedding.
	dashboards, err := dashboardBus.Sync(ctx, ws)
	require.NoError(t, err)
	require.Len(t, dashboards, 1)
	require.Equal(t, 3, dashboards[0].MBDashboardID)
	require.Equal(t, "Sales Overview", dashboards[0].Name)
	require.True(t, dashboards[0].EmbeddingEnabled)
	require.Equal(t, []int{3}, engine.enabledDashes)

	// The cached dashboard signs into a time-boxed embed URL.
	signed, err := signer.SignDashboard(dashboards[0].MBDashboardID, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed.URL, "https://bi.example.com/embed/dashboard/"))
	require.Equal(t, 60, signed.ExpiresInMinutes)

	token := strings.TrimSuffix(strings.TrimPrefix(signed.URL, "https://bi.example.com/embed/dashboard/"), "#bordered=false&titled=false")
	require.Equal(t, 2, strings.Count(token, "."))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte("embed-secret"), nil
	})
	require.NoError(t, err)

	resource, ok := claims["resource"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(3), resource["dashboard"])
}
