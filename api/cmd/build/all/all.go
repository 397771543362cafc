// Package all binds all the routes into the specified app.
package all

import (
	"github.com/jpcouto/vitrine/app/domain/authapp"
	"github.com/jpcouto/vitrine/app/domain/checkapp"
	"github.com/jpcouto/vitrine/app/domain/dashboardapp"
	"github.com/jpcouto/vitrine/app/domain/userapp"
	"github.com/jpcouto/vitrine/app/domain/workspaceapp"
	"github.com/jpcouto/vitrine/app/sdk/mux"
	"github.com/jpcouto/vitrine/business/sdk/web"
)

// Routes constructs the add value which provides the implementation of
// of RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

func (add) Add(app *web.App, cfg mux.Config) {
	checkapp.Routes(app, checkapp.Config{
		Build:      cfg.Build,
		Log:        cfg.Log,
		DB:         cfg.DB,
		Supervisor: cfg.Supervisor,
	})

	authapp.Routes(app, authapp.Config{
		Auth:    cfg.Auth,
		UserBus: cfg.BusConfig.UserBus,
	})

	userapp.Routes(app, userapp.Config{
		Auth:    cfg.Auth,
		UserBus: cfg.BusConfig.UserBus,
	})

	workspaceapp.Routes(app, workspaceapp.Config{
		Auth:         cfg.Auth,
		WorkspaceBus: cfg.BusConfig.WorkspaceBus,
		Signer:       cfg.Signer,
	})

	dashboardapp.Routes(app, dashboardapp.Config{
		Auth:         cfg.Auth,
		DashboardBus: cfg.BusConfig.DashboardBus,
		WorkspaceBus: cfg.BusConfig.WorkspaceBus,
		Signer:       cfg.Signer,
	})
}
