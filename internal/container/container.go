package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FACorreiaa/gearguard/app/cache"
	database "github.com/FACorreiaa/gearguard/app/db"
	"github.com/FACorreiaa/gearguard/app/tracer"
	"github.com/FACorreiaa/gearguard/config"
	"github.com/FACorreiaa/gearguard/internal/api/accounts"
	"github.com/FACorreiaa/gearguard/internal/api/password"
)

const serviceName = "gearguard"

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *slog.Logger
	Telemetry *tracer.Telemetry
	Passwords *password.PasswordServiceImpl

	// Set by OpenDatabase
	Pool     *pgxpool.Pool
	Accounts *accounts.AccountsServiceImpl

	closers []func() error
}

// NewContainer wires telemetry, the validation cache and the password
// service. Nothing here touches Postgres, so password-only commands run
// without a database.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	telemetry, err := tracer.InitTracingAndMetrics(serviceName)
	if err != nil {
		logger.Error("Failed to initialize telemetry", slog.Any("error", err))
		return nil, err
	}
	c := &Container{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
	}

	store, closeStore, err := cache.NewStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize validation cache", slog.Any("error", err))
		return nil, err
	}
	c.closers = append(c.closers, closeStore)

	var breach *password.BreachChecker
	if cfg.Breach.Enabled {
		breach = password.NewBreachChecker(cfg.Breach, logger)
	}

	passwords, err := password.NewPasswordService(password.PolicyFromConfig(cfg.Password), store, cfg.Password.CacheTTL, breach, logger)
	if err != nil {
		logger.Error("Failed to initialize password service", slog.Any("error", err))
		_ = c.Close(ctx)
		return nil, err
	}
	c.Passwords = passwords

	logger.Debug("Container initialized",
		slog.String("cache_backend", cfg.Password.CacheBackend),
		slog.Bool("breach_check", breach != nil))
	return c, nil
}

// OpenDatabase migrates the schema, opens the pool and builds the accounts
// service on top of it.
func (c *Container) OpenDatabase(ctx context.Context) error {
	dbConfig, err := database.NewDatabaseConfig(c.Config, c.Logger)
	if err != nil {
		c.Logger.Error("Failed to generate database config", slog.Any("error", err))
		return err
	}

	if err := database.RunMigrations(dbConfig.ConnectionURL, c.Logger); err != nil {
		c.Logger.Error("Failed to run database migrations", slog.Any("error", err))
		return err
	}

	pool, err := database.Init(ctx, dbConfig.ConnectionURL, c.Logger)
	if err != nil {
		c.Logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return err
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	if !database.WaitForDB(ctx, pool, c.Logger) {
		return errors.New("database not ready")
	}
	c.Pool = pool

	repo := accounts.NewPostgresAccountsRepo(pool, c.Logger)
	c.Accounts = accounts.NewAccountsService(repo, c.Passwords, c.Config.Password.BcryptCost, c.Logger)
	return nil
}

// Close releases everything the container opened, most recent first, and
// flushes telemetry.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	if err := c.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}
