// Package checkapp maintains the app layer api for the check domain.
package checkapp

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jpcouto/vitrine/app/sdk/errs"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/sdk/supervisor"
	"github.com/jpcouto/vitrine/business/sdk/web"
	"github.com/jpcouto/vitrine/foundation/logger"
)

type app struct {
	build string
	log   *logger.Logger
	db    *sqlx.DB
	sup   *supervisor.Supervisor
}

func newApp(build string, log *logger.Logger, db *sqlx.DB, sup *supervisor.Supervisor) *app {
	return &app{
		build: build,
		log:   log,
		db:    db,
		sup:   sup,
	}
}

// readiness checks if the database and the BI engine bootstrap are ready.
// A degraded supervisor takes the instance out of rotation.
func (a *app) readiness(ctx context.Context, r *http.Request) web.Encoder {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := sqldb.StatusCheck(ctx, a.db); err != nil {
		a.log.Info(ctx, "readiness failure", "ERROR", err)
		return errs.New(errs.Internal, err)
	}

	state := a.sup.State()

	if state != supervisor.StateReady {
		return errs.Newf(errs.Unavailable, "bootstrap state %s: %s", state, a.sup.Reason())
	}

	return Readiness{
		Status:    "OK",
		Bootstrap: string(state),
	}
}

// liveness returns simple status info if the service is alive. If the
// app is deployed to a Kubernetes cluster, it will also return pod, node, and
// namespace details via the Downward API. The Kubernetes environment variables
// need to be set within your Pod/Deployment manifest.
func (a *app) liveness(ctx context.Context, r *http.Request) web.Encoder {
	host, err := os.Hostname()
	if err != nil {
		host = "unavailable"
	}

	info := Info{
		Status:     "up",
		Build:      a.build,
		Host:       host,
		Name:       os.Getenv("KUBERNETES_NAME"),
		PodIP:      os.Getenv("KUBERNETES_POD_IP"),
		Node:       os.Getenv("KUBERNETES_NODE_NAME"),
		Namespace:  os.Getenv("KUBERNETES_NAMESPACE"),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		Bootstrap:  string(a.sup.State()),
	}

	return info
}
