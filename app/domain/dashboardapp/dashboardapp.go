// Package dashboardapp maintains the app layer api for the dashboard domain.
package dashboardapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/app/sdk/mid"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/web"
	"github.com/jpcouto/vitrine/business/types/role"
)

type app struct {
	dashboardBus *dashboardbus.Core
	workspaceBus *workspacebus.Core
	signer       *metabase.Signer
}

func newApp(dashboardBus *dashboardbus.Core, workspaceBus *workspacebus.Core, signer *metabase.Signer) *app {
	return &app{
		dashboardBus: dashboardBus,
		workspaceBus: workspaceBus,
		signer:       signer,
	}
}

// query refreshes the workspace's dashboard cache from Metabase and returns
// the full cached list. When Metabase is unreachable the stale cache is
// served instead of failing the request.
func (a *app) query(ctx context.Context, r *http.Request) web.Encoder {
	ws, err := mid.GetWorkspace(ctx)
	if err != nil {
		return errs.Newf(errs.Internal, "workspace missing in context: %s", err)
	}

	dbds, err := a.dashboardBus.Sync(ctx, ws)
	if err != nil {
		if errors.Is(err, metabase.ErrUnreachable) {
			dbds, err = a.dashboardBus.QueryByWorkspaceID(ctx, ws.ID)
			if err != nil {
				return errs.Newf(errs.Internal, "query: workspaceID[%s]: %s", ws.ID, err)
			}
			return toAppDashboards(dbds)
		}
		if errors.Is(err, dashboardbus.ErrNotProvisioned) {
			return errs.New(errs.FailedPrecondition, err)
		}
		return errs.Newf(errs.Internal, "sync: workspaceID[%s]: %s", ws.ID, err)
	}

	return toAppDashboards(dbds)
}

// embed returns a signed embed URL for a single dashboard after verifying
// the caller owns the workspace it belongs to.
func (a *app) embed(ctx context.Context, r *http.Request) web.Encoder {
	id := web.Param(r, "dashboard_id")

	dashboardID, err := uuid.Parse(id)
	if err != nil {
		return errs.Newf(errs.InvalidArgument, "invalid dashboard id: %s", id)
	}

	dbd, err := a.dashboardBus.QueryByID(ctx, dashboardID)
	if err != nil {
		if errors.Is(err, dashboardbus.ErrNotFound) {
			return errs.New(errs.NotFound, err)
		}
		return errs.Newf(errs.Internal, "querybyid: dashboardID[%s]: %s", dashboardID, err)
	}

	ws, err := a.workspaceBus.QueryByID(ctx, dbd.WorkspaceID)
	if err != nil {
		return errs.Newf(errs.Internal, "querybyid: workspaceID[%s]: %s", dbd.WorkspaceID, err)
	}

	claims := mid.GetClaims(ctx)
	if claims.Role != role.Admin.String() && ws.OwnerID != mid.GetSubjectID(ctx) {
		return errs.New(errs.PermissionDenied, auth.ErrForbidden)
	}

	signed, err := a.signer.SignDashboard(dbd.MBDashboardID, nil)
	if err != nil {
		if errors.Is(err, metabase.ErrNoSecret) {
			return errs.New(errs.FailedPrecondition, err)
		}
		return errs.Newf(errs.Internal, "sign dashboard: %s", err)
	}

	return toAppEmbed(signed)
}
