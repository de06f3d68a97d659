package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/fitsession/internal/activity"
	"example.com/fitsession/internal/config"
	"example.com/fitsession/internal/consumer"
	"example.com/fitsession/internal/ingest"
	"example.com/fitsession/internal/persistence/postgres"
	"example.com/fitsession/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("fitsession consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var persister session.Persister
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		repo := postgres.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		persister = repo
	}

	zones := cfg.ZoneConfig()
	sess := session.New(session.Config{
		Zones:            zones,
		CoinUnit:         cfg.CoinUnit,
		SnapshotInterval: cfg.SnapshotInterval,
		AutosaveInterval: cfg.AutosaveInterval,
		RemovalTimeout:   cfg.RemovalTimeout,
	}, persister)

	monitor := activity.NewMonitor()
	coordinator := ingest.NewCoordinator(zones, sess, monitor,
		ingest.WithTimeouts(cfg.SnapshotInterval, cfg.RemovalTimeout, cfg.CadenceTimeout))
	go coordinator.RunReconciler(ctx)

	handler := consumer.NewTelemetryHandler(coordinator)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          cfg.TelemetryTopic,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	proc := consumer.NewProcessor(reader, handler)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("consumer stopped with error (topic=%s): %v", cfg.TelemetryTopic, err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	log.Println("fitsession consumer shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Persist the in-flight session inline so the save cannot be
	// killed by process exit.
	if err := sess.FlushSync(shutdownCtx); err != nil {
		log.Printf("final session flush failed: %v", err)
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown error: %v", err)
	}

	wg.Wait()
}
