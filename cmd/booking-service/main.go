package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "github.com/Dhoini/kleenpride-booking-service/internal/api/grpc"
	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest"
	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest/handlers"
	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest/middleware"
	"github.com/Dhoini/kleenpride-booking-service/internal/config"
	"github.com/Dhoini/kleenpride-booking-service/internal/db"
	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/Dhoini/kleenpride-booking-service/internal/kafka"
	"github.com/Dhoini/kleenpride-booking-service/internal/kafka/producer"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository/postgres"
	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := flag.String("env", ".env", "path to the .env file (ignored when APP_ENV=production)")
	healthcheck := flag.Bool("healthcheck", false, "query the local gRPC health service and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level))
	defer func() { _ = log.Sync() }()

	if *healthcheck {
		os.Exit(runHealthcheck(cfg, log))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalw("Invalid configuration", "error", err)
	}

	log.Infow("Booking service starting up", "env", cfg.App.Env, "sandbox", cfg.Gateway.Sandbox)
	if err := run(cfg, log); err != nil {
		log.Fatalw("Booking service stopped with error", "error", err)
	}
	log.Infow("Booking service stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.App.Timezone, err)
	}
	algorithm, err := gateway.ParseAlgorithm(cfg.Gateway.SignatureAlgorithm)
	if err != nil {
		return err
	}
	signer := gateway.NewSigner(cfg.Gateway.Passphrase, gateway.WithAlgorithm(algorithm))

	registry := prometheus.NewRegistry()

	stores, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	var client gateway.Client
	if cfg.Gateway.Sandbox {
		log.Warnw("Payment gateway sandbox is enabled, no real charges will be made")
		client = gateway.NewSandboxClient(cfg.Gateway.SandboxDelay, log)
	} else {
		client = gateway.NewHTTPClient(gateway.HTTPConfig{APIURL: cfg.Gateway.APIURL, Timeout: cfg.Gateway.Timeout}, log)
	}

	kafkaCfg := newKafkaConfig(cfg.Kafka)
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		if cfg.Kafka.EnsureTopics {
			if err := kafka.EnsureTopics(ctx, kafkaCfg.Brokers, kafka.RequiredTopics(kafkaCfg), log); err != nil {
				return err
			}
		}
		events, err := kafka.NewEventProducer(kafkaCfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := events.Close(); err != nil {
				log.Errorw("Error closing Kafka event producer", "error", err)
			}
		}()
		publisher = events
	}

	locks := service.NewKeyedMutex()
	if err := metrics.RegisterRuntimeMetrics(registry, locks.Len, log); err != nil {
		return err
	}
	reconciliation := service.NewReconciliationService(
		stores.store, stores.reviews, signer, locks, publisher,
		metrics.NewReconciliationMetrics(registry, log), log.Named("reconciliation"),
	)
	bookings := service.NewBookingService(
		service.BookingServiceConfig{Merchant: cfg.Gateway.Merchant(), Location: loc},
		stores.store, stores.methods, service.NewStaticPriceCatalog(cfg.Pricing),
		signer, client, reconciliation, locks, publisher,
		metrics.NewBookingMetrics(registry, log), log.Named("bookings"),
	)
	tokenization := service.NewTokenizationService(
		cfg.Gateway.Merchant(), cfg.Auth.ReauthWindow, stores.methods, signer, client,
		metrics.NewTokenizationMetrics(registry, log), log.Named("tokenization"),
	)

	router := rest.SetupRouter(rest.RouterDeps{
		Bookings:       bookings,
		Tokenization:   tokenization,
		Reconciliation: reconciliation,
		Reviews:        stores.reviews,
		Tokens:         middleware.NewHMACTokenValidator(cfg.Auth.JWTSecret),
		HealthChecks:   stores.checks,
		Registry:       registry,
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
	}, log.Named("http"))
	httpServer := rest.NewServer(router, cfg.App.Port, log)
	grpcServer := grpcapi.NewServer(cfg.GRPC.Port, log.Named("grpc"))

	var consumer *kafka.NotificationConsumer
	if cfg.Kafka.Enabled {
		syncProducer, err := sarama.NewSyncProducer(kafkaCfg.Brokers, kafka.NewSaramaConfig(kafkaCfg, log))
		if err != nil {
			return fmt.Errorf("create dead-letter producer: %w", err)
		}
		deadLetters := producer.NewDeadLetterProducer(syncProducer, kafkaCfg.DeadLetterTopic, log)
		defer func() {
			if err := deadLetters.Close(); err != nil {
				log.Errorw("Error closing dead-letter producer", "error", err)
			}
		}()

		consumer, err = kafka.NewNotificationConsumer(kafkaCfg, reconciliation, deadLetters, log.Named("kafka"))
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Infow("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		grpcServer.SetServing(false)
		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		grpcServer.Stop()
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

type storage struct {
	store   repository.Store
	methods repository.PaymentMethodRepository
	reviews repository.ReviewQueue
	checks  map[string]handlers.HealthCheckFunc
	closers []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStorage выбирает PostgreSQL или хранилище в памяти и при необходимости добавляет кеш Redis
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	s := &storage{checks: make(map[string]handlers.HealthCheckFunc)}

	if cfg.Database.DSN == "" {
		log.Warnw("Database DSN is empty, using in-memory storage")
		s.store = repository.NewInMemoryStore(log)
		s.methods = repository.NewInMemoryPaymentMethodRepository(log)
		s.reviews = repository.NewInMemoryReviewQueue()
	} else {
		pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, postgres.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		}, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		s.checks["postgres"] = pool.Ping

		dbClient, err := db.NewDBClient(ctx, cfg.Database.DSN, log)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := dbClient.Close(); err != nil {
				log.Errorw("Error closing review database connection", "error", err)
			}
		})
		reviews := db.NewReviewStore(dbClient)

		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, pool, log); err != nil {
				s.close()
				return nil, err
			}
			if err := reviews.EnsureSchema(ctx); err != nil {
				s.close()
				return nil, err
			}
		}

		s.store = postgres.NewStore(pool, log)
		s.methods = postgres.NewPaymentMethodRepository(pool, log)
		s.reviews = reviews
	}

	if cfg.Redis.Enabled {
		client, err := repository.NewRedisClient(ctx, repository.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			// Без кеша сервис работает, только медленнее
			log.Warnw("Redis is unavailable, continuing without booking cache", "error", err)
		} else {
			s.closers = append(s.closers, func() { _ = client.Close() })
			s.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
			s.store = repository.NewCachedStore(s.store, repository.NewBookingCache(client, cfg.Redis.TTL, log), log)
			log.Infow("Using Redis booking cache", "ttl", cfg.Redis.TTL)
		}
	}
	return s, nil
}

func newKafkaConfig(c config.KafkaConfig) *kafka.Config {
	kc := kafka.NewConfig(c.Brokers)
	if c.EventsTopic != "" {
		kc.EventsTopic = c.EventsTopic
	}
	if c.NotificationsTopic != "" {
		kc.NotificationsTopic = c.NotificationsTopic
	}
	if c.DeadLetterTopic != "" {
		kc.DeadLetterTopic = c.DeadLetterTopic
	}
	if c.GroupID != "" {
		kc.Consumer.Group = c.GroupID
	}
	return kc
}

// runHealthcheck опрашивает gRPC health локального процесса; код выхода для Docker HEALTHCHECK
func runHealthcheck(cfg *config.Config, log *logger.Logger) int {
	client, err := grpcapi.NewClient(&grpcapi.ClientOptions{
		Address: "localhost:" + cfg.GRPC.Port,
		Timeout: 3 * time.Second,
	}, log)
	if err != nil {
		log.Errorw("Healthcheck failed", "error", err)
		return 1
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	serving, err := client.Check(ctx, grpcapi.ServiceName)
	if err != nil || !serving {
		log.Errorw("Healthcheck failed", "serving", serving, "error", err)
		return 1
	}
	return 0
}
