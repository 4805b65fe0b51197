package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/auth"
	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/cdn"
	"github.com/Sternrassler/drinks-fyi/pkg/config"
	"github.com/Sternrassler/drinks-fyi/pkg/loader"
	"github.com/Sternrassler/drinks-fyi/pkg/logging"
	"github.com/Sternrassler/drinks-fyi/pkg/prime"
	"github.com/Sternrassler/drinks-fyi/pkg/ratelimit"
	"github.com/Sternrassler/drinks-fyi/pkg/search"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

// app is the wired object graph behind serve and prime.
type app struct {
	cfg    config.Config
	logger zerolog.Logger

	store  *store.Store
	redis  *redis.Client
	cache  *cache.Manager
	loader *loader.Loader
	primer *prime.Primer
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	st, err := store.Open(ctx, cfg.Database.Path, logging.NewLogger("store"))
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// pages still render from the database; /healthz reports the outage
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, serving uncached")
	} else {
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	cm := cache.NewManager(rdb, logging.NewLogger("cache"))

	ldr := loader.New(st, search.New(), cm, loader.Options{
		ImageBaseURL: cfg.Images.BaseURL,
		TTL:          cfg.Cache.TTL,
	}, logging.NewLogger("loader"))

	purger, err := newPurger(cfg.CDN, rdb, logging.NewLogger("cdn"))
	if err != nil {
		st.Close()
		rdb.Close()
		return nil, err
	}

	primer := prime.New(ldr, cm, purger, prime.Config{Workers: cfg.Cache.PrimeWorkers},
		logging.NewLogger("prime"))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		redis:  rdb,
		cache:  cm,
		loader: ldr,
		primer: primer,
	}, nil
}

func newPurger(cfg config.CDNConfig, rdb *redis.Client, logger zerolog.Logger) (cdn.Purger, error) {
	if !cfg.Enabled {
		logger.Info().Msg("CDN purging disabled")
		return cdn.Noop{Logger: logger}, nil
	}
	client, err := cdn.New(cdn.Config{
		APIURL:    cfg.APIURL,
		ServiceID: cfg.ServiceID,
		Token:     cfg.Token,
		SoftPurge: cfg.SoftPurge,
		Tracker:   ratelimit.NewTracker(rdb, logger),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("cdn client: %w", err)
	}
	return client, nil
}

func (a *app) newAuth() (*auth.Authenticator, error) {
	return auth.New(a.store, auth.Config{
		Secret:     []byte(a.cfg.Auth.JWTSecret),
		TTL:        a.cfg.Auth.SessionTTL,
		CookieName: a.cfg.Auth.CookieName,
		Secure:     a.cfg.Auth.SecureCookie,
	}, logging.NewLogger("auth"))
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.redis.Close())
}
