package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/catalog"
	"github.com/kiwari-pos/orderdesk/internal/config"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/handler"
	"github.com/kiwari-pos/orderdesk/internal/logging"
	"github.com/kiwari-pos/orderdesk/internal/metrics"
	"github.com/kiwari-pos/orderdesk/internal/notify"
	"github.com/kiwari-pos/orderdesk/internal/order"
	"github.com/kiwari-pos/orderdesk/internal/router"
	"github.com/kiwari-pos/orderdesk/internal/service"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/kiwari-pos/orderdesk/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Environment)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	client := apiclient.New(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout, log)

	// A cold catalog is not fatal; rows stay unbounded until the next refresh.
	cat := catalog.New(client, log, m)
	if products, err := cat.Load(ctx); err != nil {
		log.WithError(err).Warn("initial catalog load failed")
	} else {
		log.WithField("products", len(products)).Info("catalog loaded")
	}

	drafts, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	source, pub, closeNotify := openNotify(cfg, log)
	defer closeNotify()

	hub := ws.NewHub()
	go hub.Run(ctx)

	cat.OnExternalChange(func([]order.Product) {
		hub.BroadcastAll(ws.Event{Type: enum.EventProductsChanged})
	})
	go func() {
		err := source.Run(ctx, func(ctx context.Context, ev notify.Event) {
			m.NotifyEvent(ev.Type)
			cat.HandleEvent(ctx, ev.Type)
			if ev.Type != enum.EventProductsChanged {
				hub.BroadcastAll(ws.Event{Type: ev.Type, Payload: ev.Payload})
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("notification source stopped")
		}
	}()

	draftSvc := service.NewDraftService(drafts, client, cat, hub, pub, m, log)
	refSvc := service.NewReferenceService(client, log)

	r := router.New(cfg, router.Deps{
		Drafts:    handler.NewDraftHandler(draftSvc, log),
		Orders:    handler.NewOrderHandler(client, pub, log),
		Products:  handler.NewProductHandler(cat, log),
		Alerts:    handler.NewAlertHandler(cat, client, cfg.LowStockThreshold, cfg.UnpaidAlertDays, log),
		Reference: handler.NewReferenceHandler(refSvc, log),
		Hub:       hub,
		Metrics:   m,
		Log:       log,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"environment": cfg.Environment,
		"draft_store": cfg.DraftStore,
		"notify":      cfg.NotifySource,
	}).Info("starting server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// openStore returns the configured draft store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (service.DraftStore, func(), error) {
	switch cfg.DraftStore {
	case config.DraftStoreMemory:
		return store.NewMemory(), func() {}, nil
	case config.DraftStorePostgres:
		if err := store.Migrate(cfg.MigrationsURL, cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		log.Info("draft store: postgres")
		return store.NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown DRAFT_STORE %q", cfg.DraftStore)
	}
}

// openNotify returns the change notification source and the publisher used to
// tell peers about local changes. Only redis can publish.
func openNotify(cfg *config.Config, log logrus.FieldLogger) (notify.Source, notify.Publisher, func()) {
	switch cfg.NotifySource {
	case config.NotifyWS:
		src := notify.NewWebSocketSource(cfg.NotifyWSURL, cfg.APIToken, cfg.NotifyReconnect, log)
		return src, notify.Nop{}, func() {}
	case config.NotifyRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		src := notify.NewRedisSource(rdb, cfg.NotifyChannel, cfg.NotifyReconnect, log)
		return src, src, func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("close redis")
			}
		}
	case config.NotifyNone:
		return notify.Nop{}, notify.Nop{}, func() {}
	default:
		log.WithField("source", cfg.NotifySource).Warn("unknown NOTIFY_SOURCE, notifications disabled")
		return notify.Nop{}, notify.Nop{}, func() {}
	}
}
