// Package app initializes and runs the AuthVault process. It wires the
// configured storage backend, derives the master key from the on-disk
// key material, builds the engine and admin services, and hands control
// to the interactive CLI until the process is signalled to stop.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authvault/internal/admin"
	"github.com/dmitrijs2005/authvault/internal/audit"
	"github.com/dmitrijs2005/authvault/internal/cli"
	"github.com/dmitrijs2005/authvault/internal/config"
	"github.com/dmitrijs2005/authvault/internal/cryptox"
	"github.com/dmitrijs2005/authvault/internal/engine"
	"github.com/dmitrijs2005/authvault/internal/factor"
	"github.com/dmitrijs2005/authvault/internal/filex"
	"github.com/dmitrijs2005/authvault/internal/logging"
	"github.com/dmitrijs2005/authvault/internal/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	cli    *cli.App
	db     *sql.DB
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, err
	}

	var db *sql.DB
	if c.StorageBackend == config.BackendPostgres {
		var err error
		db, err = sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("db ping error: %w", err)
		}
	}

	backend, err := store.NewBackend(c, db)
	if err != nil {
		return nil, err
	}
	if pg, ok := backend.(*store.PostgresBackend); ok {
		if err := pg.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("db migration error: %w", err)
		}
	}

	keyMaterial, err := store.LoadOrCreateKeyMaterial(c.DataDir)
	if err != nil {
		return nil, err
	}
	salt, err := store.LoadOrCreateSalt(c.DataDir)
	if err != nil {
		return nil, err
	}
	masterKey := cryptox.DeriveMasterKey(keyMaterial, salt)

	st, err := store.Open(ctx, backend, masterKey, logger)
	if err != nil {
		return nil, fmt.Errorf("store open error: %w", err)
	}

	var provider factor.Provider
	if c.FactorEndpoint != "" {
		provider = factor.NewRemoteProvider(c, logger)
	} else {
		provider = factor.NewTOTPProvider("AuthVault")
	}

	recorder := audit.NewRecorder(logger)
	eng := engine.New(st, provider, recorder, logger, c)

	creds, err := admin.LoadOrCreateCredentials(c.DataDir, []byte(c.AdminInitialPassword))
	if err != nil {
		return nil, err
	}
	adminService := admin.NewService(st, creds, recorder, logger)

	return &App{
		config: c,
		logger: logger,
		cli:    cli.NewApp(eng, adminService),
		db:     db,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.cli.Run(ctx)

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}
}
