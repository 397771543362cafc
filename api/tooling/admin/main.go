// Command admin provides operator commands: seeding users, probing the BI
// engine and inspecting the bootstrap state of a Metabase instance.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jpcouto/vitrine/business/domain/userbus"
	"github.com/jpcouto/vitrine/business/domain/userbus/stores/usercache"
	"github.com/jpcouto/vitrine/business/domain/userbus/stores/userdb"
	"github.com/jpcouto/vitrine/business/sdk/metabase"
	"github.com/jpcouto/vitrine/business/sdk/sqldb"
	"github.com/jpcouto/vitrine/business/types/name"
	"github.com/jpcouto/vitrine/business/types/role"
	"github.com/jpcouto/vitrine/foundation/logger"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DB struct {
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:"postgres"`
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Name         string `envconfig:"DB_NAME" default:"vitrine"`
		MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"0"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"0"`
		DisableTLS   bool   `envconfig:"DB_DISABLE_TLS" default:"true"`
	}
	Metabase struct {
		URL           string `envconfig:"MB_URL" default:"http://localhost:3001"`
		AdminEmail    string `envconfig:"MB_ADMIN_EMAIL" default:""`
		AdminPassword string `envconfig:"MB_ADMIN_PASSWORD" default:""`
	}
}

func main() {
	log := logger.New(os.Stdout, logger.LevelInfo, "ADMIN-TOOL", nil)
	ctx := context.Background()

	if err := run(ctx, log); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		fmt.Println("Commands: create-user, mb-health, mb-databases")
		return nil
	}

	engine := metabase.New(metabase.Config{
		Log:           log,
		BaseURL:       cfg.Metabase.URL,
		AdminEmail:    cfg.Metabase.AdminEmail,
		AdminPassword: cfg.Metabase.AdminPassword,
	})

	switch os.Args[1] {
	case "create-user":
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		userBus := userbus.NewCore(log, usercache.NewStore(log, userdb.NewStore(log, db), time.Minute), engine)

		return runCreateUser(ctx, userBus, os.Args[2:])

	case "mb-health":
		return runHealth(ctx, engine)

	case "mb-databases":
		return runDatabases(ctx, engine)

	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

func openDB(cfg Config) (*sqlx.DB, error) {
	return sqldb.Open(sqldb.Config{
		User:         cfg.DB.User,
		Password:     cfg.DB.Password,
		Host:         cfg.DB.Host,
		Name:         cfg.DB.Name,
		MaxIdleConns: cfg.DB.MaxIdleConns,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		DisableTLS:   cfg.DB.DisableTLS,
	})
}

func runCreateUser(ctx context.Context, ub *userbus.Core, args []string) error {
	cmd := flag.NewFlagSet("create-user", flag.ExitOnError)
	emailStr := cmd.String("email", "", "User email (Required)")
	passStr := cmd.String("password", "", "User password (Required)")
	nameStr := cmd.String("name", "", "User full name (Required)")
	roleStr := cmd.String("role", "USER", "User role (ADMIN, USER)")
	cmd.Parse(args)

	if *emailStr == "" || *passStr == "" || *nameStr == "" {
		cmd.PrintDefaults()
		return fmt.Errorf("missing required fields")
	}

	n, err := name.Parse(*nameStr)
	if err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	r, err := role.Parse(*roleStr)
	if err != nil {
		return fmt.Errorf("invalid role: %w", err)
	}

	addr, err := mail.ParseAddress(*emailStr)
	if err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}

	newUser := userbus.NewUser{
		Name:     n,
		Email:    *addr,
		Password: *passStr,
		Role:     r,
	}

	usr, err := ub.Create(ctx, newUser)
	if err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}

	fmt.Printf("\nSUCCESS: User created!\nID: %s\nEmail: %s\nRole: %s\n", usr.ID, usr.Email.Address, usr.Role)
	return nil
}

func runHealth(ctx context.Context, engine *metabase.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := engine.Health(ctx); err != nil {
		return fmt.Errorf("metabase health: %w", err)
	}

	fmt.Println("metabase: OK")
	return nil
}

func runDatabases(ctx context.Context, engine *metabase.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbs, err := engine.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}

	for _, db := range dbs {
		fmt.Printf("%d\t%s\t%s\n", db.ID, db.Name, db.Engine)
	}

	return nil
}

//go run api/tooling/admin/main.go create-user -email "admin@vitrine.dev" -password "Admin123!" -name "Admin User" -role "ADMIN"
