package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lifeline/internal/death"
	jwttoken "lifeline/internal/jwt_token"
	"lifeline/internal/leader"
	"lifeline/internal/letters"
	"lifeline/internal/lifeevent"
	"lifeline/internal/platform/config"
	"lifeline/internal/platform/httpserver"
	"lifeline/internal/platform/kafka/consumer"
	"lifeline/internal/platform/kafka/producer"
	"lifeline/internal/platform/logger"
	"lifeline/internal/platform/metrics"
	"lifeline/internal/platform/postgres"
	platformredis "lifeline/internal/platform/redis"
	"lifeline/internal/reconcile"
	"lifeline/internal/registry"
	"lifeline/internal/trigger"
	httptransport "lifeline/internal/transport/http"
)

const (
	jwtIssuer   = "lifeline"
	jwtAudience = "lifeline-callbacks"

	leaderLeaseKey = "lifeline:reconcile:leader"
)

// main wires the intake pipeline end to end: Kafka feed in, Postgres state,
// reconciliation out. Business logic lives in the internal packages; this
// file only builds dependencies and manages their lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("pipeline exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	prod, err := producer.New(cfg.Kafka, log)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer prod.Close()

	if err := prod.EnsureTopics(ctx, cfg.Kafka.InboundTopic, cfg.Kafka.OutboundTopic); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Registry.CallTimeout}
	identities := registry.NewHTTPIdentityClient(cfg.Registry.IdentityBaseURL, httpClient)
	persons := registry.NewHTTPPersonClient(cfg.Registry.PersonBaseURL, httpClient)

	store := death.NewPostgresStore(db)
	deathService := death.NewService(persons, store, cfg.ChildAgeLimitYears, m, log)

	dispatcher := lifeevent.NewDispatcher(log)
	dispatcher.Register(lifeevent.CategoryDeath, deathService)

	// Categories without a dedicated pipeline still leave a durable record.
	recorder := lifeevent.NewRecorder(lifeevent.NewPostgresRecordStore(db), m, log)
	for _, category := range []lifeevent.Category{
		lifeevent.CategoryRelocationAbroad,
		lifeevent.CategoryParentChildRelation,
		lifeevent.CategoryGuardianship,
		lifeevent.CategoryAddressProtection,
	} {
		dispatcher.Register(category, recorder)
	}

	ingest := lifeevent.NewIngest(
		lifeevent.NewClassifier(log),
		lifeevent.NewResolver(identities, log),
		dispatcher,
		m,
		log,
	)

	cons, err := consumer.New(cfg.Kafka, ingest, log)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer cons.Close()

	publisher := trigger.NewKafkaPublisher(prod, cfg.Kafka.OutboundTopic, log)

	g, ctx := errgroup.WithContext(ctx)

	var elector leader.Elector
	if redisClient != nil {
		defer redisClient.Close()
		holder := leaseHolder()
		leaseElector := leader.NewLeaseElector(
			leader.NewRedisLeaseStore(redisClient.Client),
			leaderLeaseKey, holder, cfg.Redis.LeaseTTL, log,
		)
		g.Go(func() error { return leaseElector.Run(ctx) })
		elector = leaseElector
	} else {
		log.Info("redis not configured, assuming single replica leadership")
		elector = leader.StaticElector{Leader: true}
	}

	job := reconcile.NewJob(store, publisher, elector, persons, cfg.Reconcile, m, log)

	jwtService := jwttoken.NewService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)
	router := httptransport.NewRouter(
		letters.NewHandler(store, log),
		jwttoken.NewMiddlewareAdapter(jwtService),
		log,
	)
	srv := httpserver.New(cfg.HTTPAddr, router)

	g.Go(func() error { return cons.Run(ctx) })
	g.Go(func() error { return job.Run(ctx) })
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("pipeline started",
		"inbound_topic", cfg.Kafka.InboundTopic,
		"outbound_topic", cfg.Kafka.OutboundTopic,
		"group", cfg.Kafka.GroupID,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("pipeline stopped")
	return nil
}

// leaseHolder identifies this replica in the leadership lease. Hostname plus
// a random suffix keeps two pods on the same node distinguishable.
func leaseHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "lifeline"
	}
	return host + "-" + uuid.NewString()[:8]
}
