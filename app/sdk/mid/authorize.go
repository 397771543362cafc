package mid

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/web"
	"github.com/jpcouto/vitrine/business/types/role"
)

// Authorize validates that the authenticated user has at least one of the
// allowed roles.
func Authorize(ath *auth.Auth, allowedRoles ...role.Role) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			if err := ath.Authorize(ctx, GetClaims(ctx), allowedRoles...); err != nil {
				return errs.New(errs.PermissionDenied, err)
			}

			return next(ctx, r)
		}

		return h
	}

	return m
}

// AuthorizeUser loads the user referenced by the claims subject into the
// context.
func AuthorizeUser(userBus *userbus.Core) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			userID := GetSubjectID(ctx)
			if userID == uuid.Nil {
				return errs.Newf(errs.Unauthenticated, "invalid subject in claims")
			}

			usr, err := userBus.QueryByID(ctx, userID)
			if err != nil {
				if errors.Is(err, userbus.ErrNotFound) {
					return errs.New(errs.Unauthenticated, err)
				}
				return errs.Newf(errs.Internal, "querybyid: userID[%s]: %s", userID, err)
			}

			ctx = setUser(ctx, usr)

			return next(ctx, r)
		}

		return h
	}

	return m
}

// AuthorizeWorkspace loads the workspace named in the route and verifies the
// authenticated user owns it. Admins may reach any workspace.
func AuthorizeWorkspace(workspaceBus *workspacebus.Core) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			id := web.Param(r, "workspace_id")

			workspaceID, err := uuid.Parse(id)
			if err != nil {
				return errs.Newf(errs.InvalidArgument, "invalid workspace id: %s", id)
			}

			ws, err := workspaceBus.QueryByID(ctx, workspaceID)
			if err != nil {
				if errors.Is(err, workspacebus.ErrNotFound) {
					return errs.New(errs.NotFound, err)
				}
				return errs.Newf(errs.Internal, "querybyid: workspaceID[%s]: %s", workspaceID, err)
			}

			claims := GetClaims(ctx)
			if claims.Role != role.Admin.String() && ws.OwnerID != GetSubjectID(ctx) {
				return errs.New(errs.PermissionDenied, auth.ErrForbidden)
			}

			ctx = setWorkspace(ctx, ws)

			return next(ctx, r)
		}

		return h
	}

	return m
}
