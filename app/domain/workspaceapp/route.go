package workspaceapp

import (
	"net/http"

	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/app/sdk/mid"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/web"
	"github.com/jpcouto/vitrine/business/types/role"
)

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Auth         *auth.Auth
	WorkspaceBus *workspacebus.Core
	Signer       *metabase.Signer
}

// Routes adds specific routes for this group.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	authen := mid.Authenticate(cfg.Auth)
	ruleAny := mid.Authorize(cfg.Auth, role.Admin, role.User)
	ownWorkspace := mid.AuthorizeWorkspace(cfg.WorkspaceBus)

	api := newApp(cfg.WorkspaceBus, cfg.Signer)

	app.HandlerFunc(http.MethodPost, version, "/workspaces", api.create, authen, ruleAny)
	app.HandlerFunc(http.MethodGet, version, "/workspaces", api.query, authen, ruleAny)
	app.HandlerFunc(http.MethodGet, version, "/workspaces/{workspace_id}", api.queryByID, authen, ruleAny, ownWorkspace)
	app.HandlerFunc(http.MethodGet, version, "/workspaces/{workspace_id}/embed", api.embed, authen, ruleAny, ownWorkspace)
}
