package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"deliveryBack/internal/auth"
	"deliveryBack/internal/config"
	"deliveryBack/internal/rider"
	"deliveryBack/internal/rider/memstore"
	"deliveryBack/internal/rider/pricing"
	"deliveryBack/internal/rider/push"
	"deliveryBack/internal/rider/repo"
	"deliveryBack/internal/rider/statement"
)

type application struct {
	logger *zap.SugaredLogger
	tokens *auth.Manager
	rider  *rider.Module
}

func initializeApp(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*application, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tokens, err := auth.NewManager(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, cleanup, err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeStore)

	deps := &rider.Deps{
		Store:  store,
		Logger: logger,
		Config: riderConfig(cfg),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Redis = rdb
		logger.Infof("Connected to redis at %s", cfg.Redis.Addr)
	} else {
		logger.Infof("Redis is not configured: rider geo index and cross-instance events are disabled")
	}

	if cfg.Firebase.CredentialsFile != "" {
		client, err := push.NewFirebaseClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Push = client
	}

	if cfg.Statement.Bucket != "" {
		uploader, err := statement.NewS3Uploader(statement.S3Config{
			Endpoint:  cfg.Statement.Endpoint,
			Region:    cfg.Statement.Region,
			Bucket:    cfg.Statement.Bucket,
			AccessKey: cfg.Statement.AccessKey,
			SecretKey: cfg.Statement.SecretKey,
			PublicURL: cfg.Statement.PublicURL,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Uploader = uploader
	}

	module, err := rider.New(deps)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rider module: %w", err)
	}

	return &application{
		logger: logger,
		tokens: tokens,
		rider:  module,
	}, cleanup, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (rider.Store, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Infof("Using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	dialect := repo.DialectMySQL
	if cfg.Database.Driver == config.DriverPostgres {
		dialect = repo.DialectPostgres
	}
	db, err := repo.Open(ctx, dialect, cfg.Database.URL, cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		return nil, nil, err
	}
	store, err := repo.New(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Infof("Database migrations applied (%s)", dialect)
	}
	logger.Infof("Successfully connected to database")
	return store, func() { _ = db.Close() }, nil
}

func riderConfig(cfg config.Config) rider.Config {
	rc := rider.DefaultConfig()
	rc.Pricing = pricing.Config{
		BaseFee:   cfg.Pricing.BaseFee,
		PerKMRate: cfg.Pricing.PerKMRate,
		MinCharge: cfg.Pricing.MinCharge,
	}
	rc.InactivityTimeout = cfg.Presence.InactivityTimeout
	rc.LocationInterval = cfg.Presence.LocationInterval
	rc.City = cfg.Presence.City
	rc.EventBuffer = cfg.Events.Buffer
	rc.EventChannel = cfg.Events.Channel
	rc.ReconcileInterval = cfg.Ledger.ReconcileInterval
	rc.Retry.Attempts = cfg.Ledger.RetryAttempts
	rc.Retry.BaseDelay = cfg.Ledger.RetryBaseDelay
	rc.Retry.MaxDelay = cfg.Ledger.RetryMaxDelay
	if cfg.Statement.Folder != "" {
		rc.StatementFolder = cfg.Statement.Folder
	}
	return rc
}
