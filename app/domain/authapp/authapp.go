// Package authapp maintains the app layer api for the auth domain.
package authapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/web"
)

type app struct {
	auth    *auth.Auth
	userBus *userbus.Core
}

func newApp(ath *auth.Auth, userBus *userbus.Core) *app {
	return &app{
		auth:    ath,
		userBus: userBus,
	}
}

func (a *app) register(ctx context.Context, r *http.Request) web.Encoder {
	var req Register

	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	nu, err := toBusNewUser(req)
	if err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	usr, err := a.userBus.Create(ctx, nu)
	if err != nil {
		if errors.Is(err, userbus.ErrUniqueEmail) {
			return errs.New(errs.AlreadyExists, userbus.ErrUniqueEmail)
		}
		return errs.Newf(errs.Internal, "register: usr[%+v]: %s", usr, err)
	}

	return toAppUser(usr)
}

func (a *app) login(ctx context.Context, r *http.Request) web.Encoder {
	var req Login

	if err := web.Decode(r, &req); err != nil {
		return errs.New(errs.InvalidArgument, err)
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return errs.New(errs.InvalidArgument, fmt.Errorf("parsing email: %w", err))
	}

	usr, err := a.auth.Login(ctx, *addr, req.Password)
	if err != nil {
		return errs.New(errs.Unauthenticated, err)
	}

	tokenStr, err := a.auth.GenerateToken(usr.ID, usr.Role)
	if err != nil {
		return errs.New(errs.Internal, err)
	}

	return toAppToken(tokenStr)
}
