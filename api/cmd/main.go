package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jpcouto/vitrine/api/cmd/build/all"
	"github.com/jpcouto/vitrine/app/sdk/auth"
	"github.com/jpcouto/vitrine/app/sdk/mux"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus"
	"github.com/jpcouto/vitrine/business/domain/dashboardbus/stores/dashboarddb"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/domain/userbus/stores/usercache"
	"github.com/jpcouto/vitrine/business/domain/userbus/stores/userdb"
	"github.com/jpcouto/vitrine/business/domain/workspacebus"
	"github.com/jpcouto/vitrine/business/domain/workspacebus/stores/workspacedb"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/sdk/supervisor"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/jpcouto/vitrine/foundation/otel"
	"github.com/kelseyhightower/envconfig"
)

var build = "develop"
var routes = "all" // go build -ldflags "-X main.routes=crud"

type Config struct {
	Version struct {
		Build string `json:"build"`
		Desc  string `json:"desc"`
	} `json:"version"`

	Web struct {
		ReadTimeout        time.Duration `envconfig:"WEB_READ_TIMEOUT" default:"5s"`
		WriteTimeout       time.Duration `envconfig:"WEB_WRITE_TIMEOUT" default:"10s"`
		IdleTimeout        time.Duration `envconfig:"WEB_IDLE_TIMEOUT" default:"120s"`
		ShutdownTimeout    time.Duration `envconfig:"WEB_SHUTDOWN_TIMEOUT" default:"20s"`
		APIHost            string        `envconfig:"WEB_API_HOST" default:"0.0.0.0:3000"`
		DebugHost          string        `envconfig:"WEB_DEBUG_HOST" default:"0.0.0.0:3010"`
		CORSAllowedOrigins []string      `envconfig:"WEB_CORS_ALLOWED_ORIGINS" default:"*"`
	}
	DB struct {
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:"postgres"`
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Name         string `envconfig:"DB_NAME" default:"vitrine"`
		MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"0"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"0"`
		DisableTLS   bool   `envconfig:"DB_DISABLE_TLS" default:"true"`
	}
	Auth struct {
		Secret   string        `envconfig:"AUTH_SECRET" required:"true"`
		Issuer   string        `envconfig:"AUTH_ISSUER" default:"vitrine"`
		TokenTTL time.Duration `envconfig:"AUTH_TOKEN_TTL" default:"24h"`
	}
	Metabase struct {
		URL             string        `envconfig:"MB_URL" default:"http://localhost:3001"`
		PublicURL       string        `envconfig:"MB_PUBLIC_URL" default:"http://localhost:3001"`
		AdminEmail      string        `envconfig:"MB_ADMIN_EMAIL" required:"true"`
		AdminPassword   string        `envconfig:"MB_ADMIN_PASSWORD" required:"true"`
		SiteName        string        `envconfig:"MB_SITE_NAME" default:"Vitrine Analytics"`
		EmbeddingSecret string        `envconfig:"MB_EMBEDDING_SECRET" required:"true"`
		EmbedTTL        time.Duration `envconfig:"MB_EMBED_TTL" default:"60m"`
		RetryAttempts   uint          `envconfig:"MB_RETRY_ATTEMPTS" default:"3"`
		AnalyticsDBName string        `envconfig:"MB_ANALYTICS_DB_NAME" default:"Analytics"`
	}
	AnalyticsDB struct {
		Register bool   `envconfig:"ANALYTICS_DB_REGISTER" default:"false"`
		Host     string `envconfig:"ANALYTICS_DB_HOST" default:"localhost"`
		Port     int    `envconfig:"ANALYTICS_DB_PORT" default:"5432"`
		Name     string `envconfig:"ANALYTICS_DB_NAME" default:"analytics"`
		User     string `envconfig:"ANALYTICS_DB_USER" default:"postgres"`
		Password string `envconfig:"ANALYTICS_DB_PASSWORD" default:"postgres"`
	}
	Tempo struct {
		Host        string  `envconfig:"TEMPO_HOST" default:"tempo:4317"`
		ServiceName string  `envconfig:"TEMPO_SERVICE_NAME" default:"VITRINE"`
		Probability float64 `envconfig:"TEMPO_PROBABILITY" default:"0.05"`
		Enabled     bool    `envconfig:"TEMPO_ENABLED" default:"true"`
	}
}

func main() {
	var log *logger.Logger

	events := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			log.Info(ctx, "******* SEND ALERT *******")
		},
	}

	log = logger.NewWithEvents(os.Stdout, logger.LevelInfo, "VITRINE", otel.GetTraceID, events)

	// -------------------------------------------------------------------------

	ctx := context.Background()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {

	// -------------------------------------------------------------------------
	// GOMAXPROCS

	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0))

	// -------------------------------------------------------------------------
	// Configuration

	var cfg Config

	cfg.Version.Build = build
	cfg.Version.Desc = "VITRINE"

	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	log.Info(ctx, "startup", "version", cfg.Version)
	log.Info(ctx, "startup", "config", sanitizeConfig(cfg))

	// -------------------------------------------------------------------------
	// App Starting

	log.Info(ctx, "starting service", "version", cfg.Version.Build)
	defer log.Info(ctx, "shutdown complete")

	log.BuildInfo(ctx)

	expvar.NewString("build").Set(cfg.Version.Build)

	// -------------------------------------------------------------------------
	// Database Support

	log.Info(ctx, "startup", "status", "initializing database support", "hostport", cfg.DB.Host)

	db, err := sqldb.Open(sqldb.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}

	defer db.Close()

	// -------------------------------------------------------------------------
	// Start Tracing Support

	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTracing(log, otel.Config{
		ServiceName: cfg.Tempo.ServiceName,
		Host:        cfg.Tempo.Host,
		ExcludedRoutes: map[string]struct{}{
			"/v1/liveness":  {},
			"/v1/readiness": {},
		},
		Probability: cfg.Tempo.Probability,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}

	defer teardown(context.Background())

	tracer := traceProvider.Tracer(cfg.Tempo.ServiceName)

	// -------------------------------------------------------------------------
	// BI Engine Support

	log.Info(ctx, "startup", "status", "initializing metabase client", "url", cfg.Metabase.URL)

	engine := metabase.New(metabase.Config{
		Log:           log,
		BaseURL:       cfg.Metabase.URL,
		AdminEmail:    cfg.Metabase.AdminEmail,
		AdminPassword: cfg.Metabase.AdminPassword,
		RetryAttempts: cfg.Metabase.RetryAttempts,
	})

	signer := metabase.NewSigner(metabase.SignerConfig{
		Secret:    cfg.Metabase.EmbeddingSecret,
		PublicURL: cfg.Metabase.PublicURL,
		TTL:       cfg.Metabase.EmbedTTL,
	})

	// -------------------------------------------------------------------------
	// Business Domain Support

	userBus := userbus.NewCore(log, usercache.NewStore(log, userdb.NewStore(log, db), time.Minute*5), engine)

	workspaceBus := workspacebus.NewCore(workspacebus.Config{
		Log:             log,
		Storer:          workspacedb.NewStore(log, db),
		Engine:          engine,
		AnalyticsDBName: cfg.Metabase.AnalyticsDBName,
	})

	dashboardBus := dashboardbus.NewCore(log, dashboarddb.NewStore(log, db), engine)

	// -------------------------------------------------------------------------
	// Auth Support

	log.Info(ctx, "startup", "status", "initializing authentication support")

	authClient := auth.New(auth.Config{
		Log:      log,
		UserBus:  userBus,
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	})

	// -------------------------------------------------------------------------
	// Boot Supervisor

	log.Info(ctx, "startup", "status", "initializing boot supervisor")

	var analyticsDB *metabase.NewDatabase
	if cfg.AnalyticsDB.Register {
		analyticsDB = &metabase.NewDatabase{
			Name:     cfg.Metabase.AnalyticsDBName,
			Engine:   "postgres",
			Host:     cfg.AnalyticsDB.Host,
			Port:     cfg.AnalyticsDB.Port,
			DBName:   cfg.AnalyticsDB.Name,
			User:     cfg.AnalyticsDB.User,
			Password: cfg.AnalyticsDB.Password,
		}
	}

	sup := supervisor.New(supervisor.Config{
		Log:             log,
		Engine:          engine,
		WorkspaceBus:    workspaceBus,
		DashboardBus:    dashboardBus,
		SiteName:        cfg.Metabase.SiteName,
		EmbeddingSecret: cfg.Metabase.EmbeddingSecret,
		AnalyticsDBName: cfg.Metabase.AnalyticsDBName,
		AnalyticsDB:     analyticsDB,
	})

	// The API serves while the bootstrap runs. Readiness reports degraded
	// until the supervisor reaches READY.
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error(ctx, "startup", "status", "bootstrap degraded", "err", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start API Service

	log.Info(ctx, "startup", "status", "initializing V1 API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	cfgMux := mux.Config{
		Build:  cfg.Version.Build,
		Log:    log,
		Auth:   authClient,
		DB:     db,
		Tracer: tracer,
		BusConfig: mux.BusConfig{
			UserBus:      userBus,
			WorkspaceBus: workspaceBus,
			DashboardBus: dashboardBus,
		},
		Signer:     signer,
		Supervisor: sup,
	}

	webAPI := mux.WebAPI(cfgMux,
		buildRoutes(),
		mux.WithCORS(cfg.Web.CORSAllowedOrigins),
	)

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      webAPI,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(log, logger.LevelError),
	}

	serverErrors := make(chan error, 1)

	go func() {
		log.Info(ctx, "startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// -------------------------------------------------------------------------
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

func buildRoutes() mux.RouteAdder {

	// The idea here is that we can build different versions of the binary
	// with different sets of exposed web APIs. By default we build a single
	// instance with all the web APIs.
	return all.Routes()
}

func sanitizeConfig(cfg Config) string {
	cfg.DB.Password = "[MASKED]"
	cfg.Auth.Secret = "[MASKED]"
	cfg.Metabase.AdminPassword = "[MASKED]"
	cfg.Metabase.EmbeddingSecret = "[MASKED]"
	cfg.AnalyticsDB.Password = "[MASKED]"

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("%+v", cfg)
	}
	return string(data)
}
