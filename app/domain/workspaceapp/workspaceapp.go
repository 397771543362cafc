// Package workspaceapp maintains the app layer api for the workspace domain.
package workspaceapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/app/sdk/mid"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/web"
)

type app struct {
	workspaceBus *workspacebus.Core
	signer       *metabase.Signer
}

func newApp(workspaceBus *workspacebus.Core, signer *metabase.Signer) *app {
	return &app{
		workspaceBus: workspaceBus,
		signer:       signer,
	}
}

func (a *app) create(ctx context.Context, r *http.Request) web.Encoder {
	var req NewWorkspace

	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	nw, err := toBusNewWorkspace(ctx, req)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	ws, err := a.workspaceBus.Provision(ctx, nw)
	if err != nil {
		if errors.Is(err, metabase.ErrUnreachable) {
			return errs.New(errs.Unavailable, err)
		}
		return errs.Newf(errs.Internal, "provision: ws[%+v]: %s", nw, err)
	}

	return toAppWorkspace(ws)
}

func (a *app) query(ctx context.Context, r *http.Request) web.Encoder {
	wss, err := a.workspaceBus.QueryByOwnerID(ctx, mid.GetSubjectID(ctx))
	if err != nil {
		return errs.Newf(errs.Internal, "query: %s", err)
	}

	return toAppWorkspaces(wss)
}

func (a *app) queryByID(ctx context.Context, r *http.Request) web.Encoder {
	ws, err := mid.GetWorkspace(ctx)
	if err != nil {
		return errs.Newf(errs.Internal, "workspace missing in context: %s", err)
	}

	return toAppWorkspace(ws)
}

// embed returns a signed embed URL scoped to the workspace's whole
// collection.
func (a *app) embed(ctx context.Context, r *http.Request) web.Encoder {
	ws, err := mid.GetWorkspace(ctx)
	if err != nil {
		return errs.Newf(errs.Internal, "workspace missing in context: %s", err)
	}

	if ws.CollectionID == nil {
		return errs.Newf(errs.FailedPrecondition, "workspace[%s] is not provisioned", ws.ID)
	}

	signed, err := a.signer.SignCollection(*ws.CollectionID)
	if err != nil {
		if errors.Is(err, metabase.ErrNoSecret) {
			return errs.New(errs.FailedPrecondition, err)
		}
		return errs.Newf(errs.Internal, "sign collection: %s", err)
	}

	return toAppEmbed(signed)
}
