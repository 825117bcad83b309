package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/posworks/posgrid-backend/api"
	"github.com/posworks/posgrid-backend/api/routes"
	"github.com/posworks/posgrid-backend/internal/auth"
	"github.com/posworks/posgrid-backend/internal/cron"
	"github.com/posworks/posgrid-backend/internal/passwordreset"
	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/db"
	"github.com/posworks/posgrid-backend/pkg/logger"
	"github.com/posworks/posgrid-backend/pkg/mailer"
	"github.com/posworks/posgrid-backend/pkg/migrate"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildSessionRegistry(cfg, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to create session registry", err)
		os.Exit(1)
	}

	if cfg.Session.Backend != "redis" {
		sweepJob, err := cron.NewSessionSweepJob(cron.SessionSweepJobParams{
			Logger:  logg,
			Sweeper: registry,
		})
		if err != nil {
			logg.Error(ctx, "failed to create session sweep job", err)
			os.Exit(1)
		}
		go runSessionSweep(ctx, logg, sweepJob, cfg.Session.SweepInterval)
	}

	mailClient, err := mailer.NewClient(cfg.Mail, logg)
	if err != nil {
		logg.Error(ctx, "failed to create mail client", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(dbClient.DB())
	identityCache := users.NewIdentityCache(cfg.IdentityCache.TTL, cfg.IdentityCache.MaxEntries)
	identityService := users.NewIdentityService(userRepo, identityCache)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	engine := authz.NewEngine(authz.DefaultMatrix())

	authService, err := auth.NewService(auth.ServiceParams{
		Repo:     userRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Registry: registry,
		JWT:      cfg.JWT,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		Repo:     userRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Engine:   engine,
		Password: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create register service", err)
		os.Exit(1)
	}

	usersService, err := users.NewService(users.ServiceParams{
		Repo:     userRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Cache:    identityCache,
		Sessions: registry,
		Engine:   engine,
	})
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	resetService, err := passwordreset.NewService(passwordreset.ServiceParams{
		Repo:     passwordreset.NewRepository(dbClient.DB()),
		UserRepo: userRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Cache:    identityCache,
		Registry: registry,
		Mail:     mailClient,
		Logger:   logg,
		Reset:    cfg.PasswordReset,
		Password: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create password reset service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		Identity:        identityService,
		Sessions:        registry,
		SessionReader:   registry,
		Engine:          engine,
		AuthService:     authService,
		RegisterService: registerService,
		UsersService:    usersService,
		ResetService:    resetService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	if err := api.Serve(ctx, addr, router, logg); err != nil {
		logg.Error(logCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func runSessionSweep(ctx context.Context, logg *logger.Logger, job cron.Job, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				logg.Error(ctx, "session sweep failed", err)
			}
		}
	}
}

func buildSessionRegistry(cfg *config.Config, redisClient *redis.Client) (*session.Registry, error) {
	ttl := cfg.Session.TTL()
	if cfg.Session.Backend == "redis" {
		store, err := session.NewRedisStore(redisClient, ttl)
		if err != nil {
			return nil, err
		}
		return session.NewRegistry(store, ttl)
	}
	return session.NewRegistry(session.NewMemoryStore(), ttl)
}
