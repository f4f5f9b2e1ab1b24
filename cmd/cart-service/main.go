package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/commerce-engine/internal/catalog"
	"github.com/fjod/commerce-engine/internal/config"
	"github.com/fjod/commerce-engine/internal/domain"
	"github.com/fjod/commerce-engine/internal/poller"
	s "github.com/fjod/commerce-engine/internal/service"
	"github.com/fjod/commerce-engine/internal/session"
	"github.com/fjod/commerce-engine/pkg/circuitbreaker"
	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/fjod/commerce-engine/pkg/tracing"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "cart-service"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OtelEnabled {
		shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
			ServiceName: serviceName,
			Environment: cfg.LogMode,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			log.Fatal("failed to init tracing", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	backend, closeBackend, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal("session backend unavailable", "backend", cfg.SessionBackend, "error", err)
	}
	defer closeBackend()

	repo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", "path", cfg.CatalogDBPath, "error", err)
	}
	defer repo.Close()
	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to migrate catalog", "error", err)
	}
	products := catalog.NewCachedLookup(
		catalog.NewBreakerLookup(repo, circuitbreaker.DefaultSettings("catalog"), log),
		cfg.CatalogCacheSize,
		cfg.CatalogCacheTTL,
	)

	store := session.NewStore[domain.Cart](backend)
	service := s.NewCartService(store, products, log, cfg.DefaultCurrency,
		s.WithMaxQuantity(cfg.MaxQuantityPerItem))

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(service, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout consumer started", "brokers", cfg.KafkaBrokers)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Port))
	if err != nil {
		log.Fatal("failed to listen", "port", cfg.Port, "error", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(grpcServer)

	go func() {
		log.Info("cart service health endpoint listening", "port", cfg.Port, "session_backend", cfg.SessionBackend)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("failed to serve", "error", err)
		}
	}()

	<-ctx.Done()

	log.Info("shutting down cart service")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	log.Info("cart service stopped")
}

// openBackend connects the configured session backend and returns a function
// that releases it.
func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (session.Backend, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendMongo:
		backend, err := session.OpenMongoBackend(ctx, cfg.MongoURI, cfg.MongoDBName, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("connected to MongoDB", "uri", cfg.MongoURI, "db", cfg.MongoDBName)
		return backend, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := backend.Close(disconnectCtx); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		}, nil

	case config.BackendMemory:
		log.Warn("using in-memory sessions; carts are lost on restart")
		return session.NewMemoryBackend(), func() {}, nil

	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
		return session.NewRedisBackend(redisClient, cfg.SessionTTL), func() { redisClient.Close() }, nil
	}
}
