package checkapp

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/jpcouto/vitrine/business/sdk/supervisor"
	"github.com/jpcouto/vitrine/business/sdk/web"
	"github.com/jpcouto/vitrine/foundation/logger"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build      string
	Log        *logger.Logger
	DB         *sqlx.DB
	Supervisor *supervisor.Supervisor
}

// Routes adds specific routes for this group.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	api := newApp(cfg.Build, cfg.Log, cfg.DB, cfg.Supervisor)

	app.HandlerFuncNoMid(http.MethodGet, version, "/liveness", api.liveness)
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", api.readiness)
}
