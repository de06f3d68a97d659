package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fitsession/internal/activity"
	"example.com/fitsession/internal/api"
	"example.com/fitsession/internal/auth"
	"example.com/fitsession/internal/cache"
	"example.com/fitsession/internal/config"
	"example.com/fitsession/internal/ingest"
	"example.com/fitsession/internal/persistence/postgres"
	"example.com/fitsession/internal/session"
	"example.com/fitsession/internal/stream"
	httptransport "example.com/fitsession/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store api.SessionStore
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
		store = repo
		persister = repo
	} else {
		log.Printf("POSTGRES_URL not set; session history disabled")
	}

	redisClient := cache.Connect(cfg.RedisAddr, cfg.RedisPassword)
	if redisClient != nil {
		defer redisClient.Close()
	}
	snapshots := cache.NewSnapshotCache(redisClient)
	hub := stream.NewHub(ctx, redisClient, nil)

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
	go broadcastSnapshots(ctx, sess, hub, snapshots, cfg.SnapshotInterval)

	handler := api.NewHandler(coordinator, sess, monitor, store)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/v1/stream/ingest", stream.IngestHandler(coordinator, hub))
	mux.Handle("/v1/stream/dashboard", stream.DashboardHandler(hub))

	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	// WriteTimeout stays zero so websocket streams are not cut off.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:     cfg.HTTPAddress,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("fitsession api listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Persist the in-flight session inline so the save cannot be
	// killed by process exit.
	if err := sess.FlushSync(shutdownCtx); err != nil {
		log.Printf("final session flush failed: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// broadcastSnapshots pushes the live summary to dashboard clients and
// the snapshot cache once per tick while a session is running.
func broadcastSnapshots(ctx context.Context, sess *session.Session, hub *stream.Hub, snapshots *cache.SnapshotCache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sess.Active() {
				continue
			}
			summary := sess.Summary()
			payload, err := json.Marshal(summary)
			if err != nil {
				log.Printf("snapshot encode error: %v", err)
				continue
			}
			hub.Broadcast(payload)
			if err := snapshots.StoreLatest(ctx, summary); err != nil {
				log.Printf("snapshot cache error: %v", err)
			}
		}
	}
}
