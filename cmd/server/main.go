package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/channel/kafka"
	broadcastconfig "brigade/internal/broadcast/config"
	"brigade/internal/broadcast/dispatcher"
	"brigade/internal/broadcast/handler"
	broadcastmetrics "brigade/internal/broadcast/metrics"
	"brigade/internal/broadcast/store/memory"
	"brigade/internal/broadcast/store/postgres"
	"brigade/internal/broadcast/taxonomy"
	jwttoken "brigade/internal/jwt_token"
	"brigade/internal/platform/config"
	"brigade/internal/platform/httpserver"
	"brigade/internal/platform/logger"
	"brigade/internal/platform/metrics"
	pgplatform "brigade/internal/platform/postgres"
	redisplatform "brigade/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/broadcast.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence backends picked at startup.
type stores struct {
	activity  dispatcher.ActivityStore
	reader    handler.ActivityReader
	configs   broadcastconfig.Repository
	directory dispatcher.Directory
	db        *sql.DB
}

func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		activity := memory.NewActivityStore()
		return &stores{
			activity: activity,
			reader:   activity,
			configs:  memory.NewConfigRepository(),
		}, nil
	}

	db, err := pgplatform.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	activity := postgres.NewActivityStore(db)
	return &stores{
		activity:  activity,
		reader:    activity,
		configs:   postgres.NewConfigRepository(db),
		directory: postgres.NewTeamDirectory(db),
		db:        db,
	}, nil
}

func openForwardSender(ctx context.Context, cfg config.Server, log *slog.Logger, m *broadcastmetrics.Metrics) (channel.ForwardSender, *kgo.Client, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, email and sms notifications are skipped")
		return channel.NopSender{}, nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka client: %w", err)
	}
	topic := cfg.Broadcast.ForwardTopic
	if err := kafka.EnsureTopic(ctx, client, topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		client.Close()
		return nil, nil, err
	}
	sender, err := kafka.NewSender(client,
		kafka.WithTopic(topic),
		kafka.WithBreaker(channel.NewCircuitBreaker(cfg.Kafka.BreakerThreshold, cfg.Kafka.BreakerCooldown)),
		kafka.WithLogger(log),
		kafka.WithMetrics(m),
	)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return sender, client, nil
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := broadcastmetrics.New(reg)
	httpMetrics := metrics.New(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	registry := taxonomy.Standard()
	cache, err := broadcastconfig.New(st.configs,
		broadcastconfig.WithTTL(cfg.Broadcast.ConfigTTL),
		broadcastconfig.WithLogger(log),
		broadcastconfig.WithMetrics(engineMetrics),
	)
	if err != nil {
		return err
	}

	serviceOpts := []broadcastconfig.ServiceOption{broadcastconfig.WithServiceLogger(log)}
	redisClient, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	if redisClient != nil {
		defer redisClient.Close()
		invalidator := broadcastconfig.NewRedisInvalidator(redisClient, cfg.Broadcast.InvalidationChannel, cache, log)
		serviceOpts = append(serviceOpts, broadcastconfig.WithPublisher(invalidator))
		go listen(listenCtx, invalidator, log)
	}
	configService, err := broadcastconfig.NewService(st.configs, cache, registry, serviceOpts...)
	if err != nil {
		return err
	}

	forward, kafkaClient, err := openForwardSender(ctx, cfg, log, engineMetrics)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
	}

	feed := channel.NewFeed(cfg.Broadcast.FeedCapacity)
	dispatchOpts := []dispatcher.Option{
		dispatcher.WithNotifier(feed),
		dispatcher.WithForwardSender(forward),
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(engineMetrics),
		dispatcher.WithStepTimeout(cfg.Broadcast.StepTimeout),
	}
	if st.directory != nil {
		dispatchOpts = append(dispatchOpts, dispatcher.WithDirectory(st.directory))
	}
	d, err := dispatcher.New(registry, st.activity, cache, dispatchOpts...)
	if err != nil {
		return err
	}

	queue := dispatcher.NewQueue(d,
		dispatcher.WithQueueSize(cfg.Broadcast.QueueSize),
		dispatcher.WithWorkers(cfg.Broadcast.Workers),
		dispatcher.WithQueueLogger(log),
		dispatcher.WithQueueMetrics(engineMetrics),
	)
	drained := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(drained)
	}()

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	h := handler.New(registry, queue, configService, st.reader, feed,
		jwttoken.NewJWTServiceAdapter(jwtService), log, httpMetrics)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	h.Register(r)

	srv := httpserver.New(cfg.Addr, r)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting brigade", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			queue.Close()
			<-drained
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	queue.Close()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("dispatch queue did not drain before shutdown deadline", "pending", queue.Len())
	}
	return nil
}

func listen(ctx context.Context, invalidator *broadcastconfig.RedisInvalidator, log *slog.Logger) {
	if err := invalidator.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("broadcast config invalidation listener stopped", "error", err)
	}
}
