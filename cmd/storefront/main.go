package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/saga"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		zlog.Fatal("Failed to register metrics", zap.Error(err))
	}

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout,
		api.WithObserver(m.ObserveBackend),
		api.WithLogger(zlog),
	)

	kv, closeKV, err := openSessionStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to open session store", zap.String("store", cfg.SessionStore), zap.Error(err))
	}
	defer closeKV()

	journal, err := saga.Open(cfg.SagaDBPath)
	if err != nil {
		zlog.Fatal("Failed to open checkout journal", zap.String("path", cfg.SagaDBPath), zap.Error(err))
	}
	defer journal.Close()
	zlog.Info("Checkout journal ready", zap.String("path", cfg.SagaDBPath))

	bus := events.NewBus()
	instanceID := uuid.NewString()

	var writer events.Writer
	if len(cfg.KafkaBrokers) > 0 {
		kw := events.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer kw.Close()
		writer = kw

		relay := events.NewRelay(
			events.NewKafkaReader(cfg.KafkaTopic, "storefront-"+instanceID, cfg.KafkaBrokers...),
			bus, instanceID, zlog,
		)
		defer relay.Close()
		go relay.Run(ctx)
		zlog.Info("Publishing checkout events to Kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	go events.NewOutboxPoller(journal, writer, zlog).WithOrigin(instanceID).Run(ctx)

	storefront := service.New(client, kv, journal, bus, zlog,
		service.WithMetrics(m),
		service.WithDefaultRegion(domain.Region(cfg.DefaultRegion)),
		service.WithManagerCache(cfg.ManagerCacheSize, cfg.ManagerIdleTimeout),
	)

	handler := h.NewHandler(storefront, bus, cfg.RequestTimeout, zlog).TrustUserHeader(cfg.TrustUserHeader)
	router := h.NewRouter(handler, promhttp.Handler(), cfg.MaxRequestBodySize, zlog)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("Storefront starting", zap.String("port", cfg.HTTPPort), zap.String("backend", cfg.APIBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	zlog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exited")
}

// openSessionStore connects the configured snapshot backend. The returned
// func releases it.
func openSessionStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (store.KV, func(), error) {
	switch cfg.SessionStore {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, err
		}
		zlog.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return store.NewRedisKV(redisClient, cfg.SessionTTL), func() { redisClient.Close() }, nil

	case "mongo":
		db, err := store.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		kv := store.NewMongoKV(db)
		if err := kv.CreateIndexes(ctx, cfg.SessionTTL); err != nil {
			zlog.Warn("Failed to create snapshot indexes", zap.Error(err))
		}
		zlog.Info("Connected to MongoDB", zap.String("uri", cfg.MongoURI))
		return kv, mongoCloser(db.Client(), zlog), nil

	default:
		zlog.Warn("Using in-memory session store; snapshots are lost on restart")
		return store.NewMemoryKV(), func() {}, nil
	}
}

type disconnecter interface {
	Disconnect(ctx context.Context) error
}

func mongoCloser(client disconnecter, zlog *zap.Logger) func() {
	return func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			zlog.Error("Failed to disconnect from MongoDB", zap.Error(err))
		}
	}
}
