package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/api"
	"github.com/atmx/arena-escrow/internal/config"
	"github.com/atmx/arena-escrow/internal/escrow"
	"github.com/atmx/arena-escrow/internal/events"
	"github.com/atmx/arena-escrow/internal/keeper"
	"github.com/atmx/arena-escrow/internal/logging"
	"github.com/atmx/arena-escrow/internal/metrics"
	"github.com/atmx/arena-escrow/internal/slot"
	"github.com/atmx/arena-escrow/internal/store"
)

// app owns the process context and the cleanups of every opened resource,
// run in reverse order on exit.
type app struct {
	ctx     context.Context
	cleanup []func()
}

func (a *app) onClose(fn func()) {
	a.cleanup = append(a.cleanup, fn)
}

func (a *app) close() {
	for j := len(a.cleanup) - 1; j >= 0; j-- {
		a.cleanup[j]()
	}
}

func (a *app) provideLogger(i do.Injector) (*zap.Logger, error) {
	cfg := do.MustInvoke[config.Config](i)
	return logging.New(serviceName, cfg.Env)
}

func (a *app) provideStore(i do.Injector) (store.Store, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*zap.Logger](i)

	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(a.ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.onClose(pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(a.ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		st = pg
		logger.Info("connected to PostgreSQL")

	case config.DriverBolt:
		bs, err := store.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { bs.Close() })
		st = bs
		logger.Info("opened bolt store", zap.String("path", cfg.BoltPath))

	default:
		logger.Warn("using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.onClose(func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
		logger.Info("redis cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}
	return st, nil
}

func (a *app) provideSlots(i do.Injector) (slot.Source, error) {
	cfg := do.MustInvoke[config.Config](i)
	return slot.NewClock(quartz.NewReal(), cfg.Genesis, cfg.SlotDuration), nil
}

func (a *app) provideHub(i do.Injector) (*events.Hub, error) {
	return events.NewHub(do.MustInvoke[*zap.Logger](i)), nil
}

func (a *app) providePublisher(i do.Injector) (events.Publisher, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*zap.Logger](i)

	pubs := events.Multi{do.MustInvoke[*events.Hub](i)}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		a.onClose(func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", zap.Error(err))
			}
		})
		pubs = append(pubs, kp)
		logger.Info("kafka publishing enabled", zap.String("topic", cfg.KafkaTopic))
	}
	return pubs, nil
}

func (a *app) provideEngine(i do.Injector) (*escrow.Engine, error) {
	return escrow.New(
		do.MustInvoke[store.Store](i),
		do.MustInvoke[slot.Source](i),
		do.MustInvoke[events.Publisher](i),
		do.MustInvoke[*zap.Logger](i),
	), nil
}

func (a *app) provideKeeper(i do.Injector) (*keeper.Keeper, error) {
	cfg := do.MustInvoke[config.Config](i)
	return keeper.New(
		do.MustInvoke[*escrow.Engine](i),
		quartz.NewReal(),
		cfg.KeeperInterval,
		do.MustInvoke[*zap.Logger](i),
	), nil
}

func (a *app) provideHTTP(i do.Injector) (*http.Server, error) {
	cfg := do.MustInvoke[config.Config](i)
	logger := do.MustInvoke[*zap.Logger](i)
	eng := do.MustInvoke[*escrow.Engine](i)
	hub := do.MustInvoke[*events.Hub](i)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(api.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":%q,"slot":%d}`, serviceName, eng.Slot())
	})
	r.Handle("/metrics", metrics.Handler())

	h := api.NewHandler(eng, logger)
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket feed of lifecycle events. Long-lived, so outside the
		// request timeout.
		r.Get("/ws", hub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			h.Routes(r)
		})
	})

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}
