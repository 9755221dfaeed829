package main

import (
	"context"

	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/backflowhq/service-authgate/config"
	"github.com/backflowhq/service-authgate/service"
	"github.com/backflowhq/service-authgate/service/gate"
	"github.com/backflowhq/service-authgate/service/handlers"
	"github.com/backflowhq/service-authgate/service/ratelimit"
	"github.com/backflowhq/service-authgate/service/repository"
	"github.com/backflowhq/service-authgate/utils"
)

func main() {

	ctx := context.Background()
	log := util.Log(ctx)

	cfg, err := config.Load(ctx)
	if err != nil {
		log.WithError(err).Fatal("could not process configs")
		return
	}

	db, err := connectDatabase(ctx, &cfg)
	if err != nil {
		log.WithError(err).Fatal("could not connect to database")
	}

	if cfg.DoMigration {
		if err = repository.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("could not migrate successfully")
		}
		log.Info("migration completed")
		return
	}

	credentialStore := repository.NewPrincipalRepository(db, repository.LockoutPolicy{
		Threshold: cfg.LockoutThreshold,
		Duration:  cfg.LockoutDuration,
	})
	eventStore := repository.NewLoginEventRepository(db)

	var sessionStore repository.SessionStore = repository.NewSessionRepository(db)
	if cfg.CacheURI != "" {
		cacheOpts, parseErr := redis.ParseURL(cfg.CacheURI)
		if parseErr != nil {
			log.WithError(parseErr).Fatal("could not parse cache uri")
		}
		cacheCli := redis.NewClient(cacheOpts)
		if pingErr := cacheCli.Ping(ctx).Err(); pingErr != nil {
			log.WithError(pingErr).Fatal("could not reach session cache")
		}
		sessionStore = repository.NewCachedSessionStore(sessionStore, cacheCli)
		log.Info("session cache enabled")
	}

	hasher := utils.NewBCryptWithCost(cfg.BCryptCost)

	authGate := gate.New(gate.Config{
		Credentials: credentialStore,
		Sessions:    sessionStore,
		Events:      eventStore,
		Hasher:      hasher,
		SessionTTL:  cfg.SessionTTL,
	})

	limiter := ratelimit.New(map[ratelimit.Operation]ratelimit.Policy{
		ratelimit.OpLogin: {
			Threshold: cfg.LoginRateLimitAttempts,
			Window:    cfg.LoginRateLimitWindow,
			Cooldown:  cfg.LoginRateLimitCooldown,
		},
		ratelimit.OpAdmin: {
			Threshold: cfg.AdminRateLimitAttempts,
			Window:    cfg.AdminRateLimitWindow,
			Cooldown:  cfg.AdminRateLimitCooldown,
		},
	})
	defer limiter.Stop()

	janitor := repository.NewSessionJanitor(sessionStore, cfg.SessionCleanupInterval)
	go janitor.Run(ctx)
	defer janitor.Stop()

	srv, err := handlers.NewAuthServer(&cfg, authGate, limiter, credentialStore, sessionStore, eventStore, hasher)
	if err != nil {
		log.WithError(err).Fatal("could not initialise auth server")
	}

	if err = service.RunServer(ctx, &cfg, srv.SetupRouterV1()); err != nil {
		log.WithError(err).Error("could not run service")
	}
}

func connectDatabase(ctx context.Context, cfg *config.AuthGateConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseMaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
		sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}
