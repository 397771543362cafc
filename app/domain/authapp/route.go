package authapp

import (
	"net/http"

	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/sdk/web"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Auth    *auth.Auth
	UserBus *userbus.Core
}

// Routes adds specific routes for this group.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	api := newApp(cfg.Auth, cfg.UserBus)

	app.HandlerFunc(http.MethodPost, version, "/auth/register", api.register)
	app.HandlerFunc(http.MethodPost, version, "/auth/login", api.login)
}
