// Package supervisor drives the Metabase instance from an unknown state into
// a serving one at boot: first-run setup, embedding settings, analytics
// database registration, then reconciliation of every known workspace.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/jpcouto/vitrine/foundation/otel"
)

// State reports how far the boot sequence has progressed.
type State string

// Set of supervisor states.
const (
	StateUnreachable State = "UNREACHABLE"
	StateSettingUp   State = "SETTING_UP"
	StateConfiguring State = "CONFIGURING"
	StateReconciling State = "RECONCILING"
	StateReady       State = "READY"
	StateDegraded    State = "DEGRADED"
)

// Engine defines the Metabase calls the supervisor makes directly. The
// workspace and dashboard reconciliation go through their business cores.
type Engine interface {
	Health(ctx context.Context) error
	SetupToken(ctx context.Context) (string, error)
	Setup(ctx context.Context, setupToken string, siteName string) error
	SetEmbeddingEnabled(ctx context.Context, enabled bool) error
	SetEmbeddingSecret(ctx context.Context, secret string) error
	FindDatabase(ctx context.Context, name string) (metabase.Database, error)
	AddDatabase(ctx context.Context, ndb metabase.NewDatabase) (metabase.Database, error)
}

// Config holds the dependencies and settings for the supervisor.
type Config struct {
	Log             *logger.Logger
	Engine          Engine
	WorkspaceBus    *workspacebus.Core
	DashboardBus    *dashboardbus.Core
	SiteName        string
	EmbeddingSecret string

	// AnalyticsDBName is the database whose presence is verified on every
	// boot. AnalyticsDB carries the connection details to register it when
	// missing; nil means verify only.
	AnalyticsDBName string
	AnalyticsDB     *metabase.NewDatabase
}

// Supervisor owns the boot state machine and exposes the current state to
// the readiness probe.
type Supervisor struct {
	log             *logger.Logger
	engine          Engine
	workspaceBus    *workspacebus.Core
	dashboardBus    *dashboardbus.Core
	siteName        string
	secret          string
	analyticsDBName string
	analyticsDB     *metabase.NewDatabase
	state           atomic.Value
	reason          atomic.Value
}

// New constructs a supervisor in the UNREACHABLE state.
func New(cfg Config) *Supervisor {
	s := Supervisor{
		log:             cfg.Log,
		engine:          cfg.Engine,
		workspaceBus:    cfg.WorkspaceBus,
		dashboardBus:    cfg.DashboardBus,
		siteName:        cfg.SiteName,
		secret:          cfg.EmbeddingSecret,
		analyticsDBName: cfg.AnalyticsDBName,
		analyticsDB:     cfg.AnalyticsDB,
	}

	s.state.Store(StateUnreachable)
	s.reason.Store("")

	return &s
}

// State returns the current boot state.
func (s *Supervisor) State() State {
	return s.state.Load().(State)
}

// Reason returns why the supervisor is degraded, empty otherwise.
func (s *Supervisor) Reason() string {
	return s.reason.Load().(string)
}

// Run executes the boot sequence. Only an unreachable or unconfigurable
// Metabase leaves the supervisor degraded; per-workspace reconciliation
// failures are logged and skipped so one broken tenant cannot take the
// service down.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, span := otel.AddSpan(ctx, "business.supervisor.run")
	defer span.End()

	if err := s.engine.Health(ctx); err != nil {
		s.degrade(fmt.Sprintf("metabase unreachable: %s", err))
		return fmt.Errorf("health: %w", err)
	}

	s.state.Store(StateSettingUp)

	if err := s.setup(ctx); err != nil {
		s.degrade(fmt.Sprintf("metabase setup: %s", err))
		return fmt.Errorf("setup: %w", err)
	}

	s.state.Store(StateConfiguring)

	if err := s.configure(ctx); err != nil {
		s.degrade(fmt.Sprintf("metabase configure: %s", err))
		return fmt.Errorf("configure: %w", err)
	}

	s.state.Store(StateReconciling)

	s.reconcile(ctx)

	s.state.Store(StateReady)
	s.reason.Store("")

	s.log.Info(ctx, "supervisor", "state", StateReady)

	return nil
}

// setup performs first-run initialization. An instance that is already
// provisioned answers the setup call with a rejection, which is the normal
// restart path and not an error.
func (s *Supervisor) setup(ctx context.Context) error {
	token, err := s.engine.SetupToken(ctx)
	if err != nil {
		return fmt.Errorf("setup token: %w", err)
	}

	if token == "" {
		s.log.Info(ctx, "supervisor", "status", "instance already initialized")
		return nil
	}

	if err := s.engine.Setup(ctx, token, s.siteName); err != nil {
		if errors.Is(err, metabase.ErrAlreadyProvisioned) {
			s.log.Info(ctx, "supervisor", "status", "instance already provisioned")
			return nil
		}
		return fmt.Errorf("setup: %w", err)
	}

	s.log.Info(ctx, "supervisor", "status", "instance initialized", "site", s.siteName)

	return nil
}

// configure applies the embedding settings and verifies the analytics
// database. Settings are absolute values so reapplying them on every boot is
// idempotent. The database step never fails the boot: embedding works
// without it, so problems are warnings.
func (s *Supervisor) configure(ctx context.Context) error {
	if err := s.engine.SetEmbeddingEnabled(ctx, true); err != nil {
		return fmt.Errorf("enable embedding: %w", err)
	}

	if err := s.engine.SetEmbeddingSecret(ctx, s.secret); err != nil {
		return fmt.Errorf("set embedding secret: %w", err)
	}

	s.verifyAnalyticsDB(ctx)

	return nil
}

// verifyAnalyticsDB looks up the expected analytics database by name and,
// when connection details are configured, registers it if missing.
func (s *Supervisor) verifyAnalyticsDB(ctx context.Context) {
	if s.analyticsDBName == "" {
		return
	}

	_, err := s.engine.FindDatabase(ctx, s.analyticsDBName)
	if err == nil {
		return
	}

	if !errors.Is(err, metabase.ErrNotFound) {
		s.log.Warn(ctx, "supervisor: analytics database lookup", "name", s.analyticsDBName, "err", err)
		return
	}

	if s.analyticsDB == nil {
		s.log.Warn(ctx, "supervisor: analytics database not registered", "name", s.analyticsDBName)
		return
	}

	if _, err := s.engine.AddDatabase(ctx, *s.analyticsDB); err != nil {
		s.log.Warn(ctx, "supervisor: registering analytics database", "name", s.analyticsDBName, "err", err)
		return
	}

	s.log.Info(ctx, "supervisor", "status", "analytics database registered", "name", s.analyticsDBName)
}

// reconcile walks every active workspace, repairs its Metabase resources and
// refreshes its dashboard cache. Failures are per-workspace.
func (s *Supervisor) reconcile(ctx context.Context) {
	wss, err := s.workspaceBus.QueryAll(ctx)
	if err != nil {
		s.log.Error(ctx, "supervisor: query workspaces", "err", err)
		return
	}

	for _, ws := range wss {
		ws, err := s.workspaceBus.Reconcile(ctx, ws)
		if err != nil {
			s.log.Error(ctx, "supervisor: reconcile workspace", "workspace_id", ws.ID, "err", err)
			continue
		}

		if _, err := s.dashboardBus.Sync(ctx, ws); err != nil {
			s.log.Error(ctx, "supervisor: sync dashboards", "workspace_id", ws.ID, "err", err)
		}
	}

	s.log.Info(ctx, "supervisor", "status", "workspaces reconciled", "count", len(wss))
}

func (s *Supervisor) degrade(reason string) {
	s.state.Store(StateDegraded)
	s.reason.Store(reason)
}
