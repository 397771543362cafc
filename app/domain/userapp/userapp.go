// Package userapp maintains the app layer api for the user domain. These
// endpoints are for operators; self sign-up lives in authapp.
package userapp

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/web"
)

type app struct {
	userBus *userbus.Core
}

func newApp(userBus *userbus.Core) *app {
	return &app{
		userBus: userBus,
	}
}

func (a *app) query(ctx context.Context, r *http.Request) web.Encoder {
	qp, err := parseQueryParams(r)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	filter, err := parseFilter(qp)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	orderBy, err := parseOrder(qp)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	pg, err := parsePage(qp)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	usrs, err := a.userBus.Query(ctx, filter, orderBy, pg)
	if err != nil {
		return errs.Newf(errs.Internal, "query: %s", err)
	}

	total, err := a.userBus.Count(ctx, filter)
	if err != nil {
		return errs.Newf(errs.Internal, "count: %s", err)
	}

	return toAppUsersPage(usrs, total, pg)
}

func (a *app) queryByID(ctx context.Context, r *http.Request) web.Encoder {
	id := web.Param(r, "user_id")

	userID, err := uuid.Parse(id)
	if err != nil {
		return errs.Newf(errs.InvalidArgument, "invalid user id: %s", id)
	}

	usr, err := a.userBus.QueryByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userbus.ErrNotFound) {
			return errs.New(errs.NotFound, err)
		}
		return errs.Newf(errs.Internal, "querybyid: userID[%s]: %s", userID, err)
	}

	return toAppUser(usr)
}

func (a *app) update(ctx context.Context, r *http.Request) web.Encoder {
	var req UpdateUser

	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	id := web.Param(r, "user_id")

	userID, err := uuid.Parse(id)
	if err != nil {
		return errs.Newf(errs.InvalidArgument, "invalid user id: %s", id)
	}

	usr, err := a.userBus.QueryByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userbus.ErrNotFound) {
			return errs.New(errs.NotFound, err)
		}
		return errs.Newf(errs.Internal, "querybyid: userID[%s]: %s", userID, err)
	}

	uu, err := toBusUpdateUser(req)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	usr, err = a.userBus.Update(ctx, usr, uu)
	if err != nil {
		if errors.Is(err, userbus.ErrUniqueEmail) {
			return errs.New(errs.AlreadyExists, userbus.ErrUniqueEmail)
		}
		return errs.Newf(errs.Internal, "update: userID[%s]: %s", userID, err)
	}

	return toAppUser(usr)
}
