package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"taskhub.org/internal/auth"
	"taskhub.org/internal/httpapi"
	"taskhub.org/internal/obs"
	"taskhub.org/internal/stream"
	"taskhub.org/internal/tasks"
)

var version = "0.3.1"

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("TASKHUB_COMMIT"))

	secret := os.Getenv("TASKHUB_AUTH_SECRET")
	if secret == "" {
		log.Fatal("TASKHUB_AUTH_SECRET is required")
	}
	accessTTL := durationEnv("TASKHUB_ACCESS_TOKEN_TTL", 15*time.Minute)
	refreshTTL := durationEnv("TASKHUB_REFRESH_TOKEN_TTL", 30*24*time.Hour)
	addr := os.Getenv("TASKHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	codec, err := auth.NewCodec(secret, accessTTL)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	// Credential store: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db    *sql.DB
		users auth.UserStore
	)
	if dsn := os.Getenv("TASKHUB_PG_DSN"); dsn != "" {
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		users = auth.NewPGUserStore(db)
	} else {
		log.Println("TASKHUB_PG_DSN not set, using in-memory user store")
		users = auth.NewMemoryUserStore()
	}

	// Refresh token store: Redis when configured, in-memory with a janitor
	// otherwise.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		rdb    *redis.Client
		tokens auth.RefreshTokenStore
	)
	if redisAddr := os.Getenv("TASKHUB_REDIS_ADDR"); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		store := auth.NewRedisTokenStore(rdb, refreshTTL)
		go store.WatchExpiries(ctx)
		tokens = store
	} else {
		log.Println("TASKHUB_REDIS_ADDR not set, using in-memory refresh token store")
		store := auth.NewMemoryTokenStore(refreshTTL)
		stop := store.StartJanitor(time.Minute)
		defer stop()
		tokens = store
	}

	sessions, err := auth.NewSessionService(users, tokens, codec)
	if err != nil {
		log.Fatalf("session service: %v", err)
	}
	federated, err := auth.NewFederatedService(users)
	if err != nil {
		log.Fatalf("federated service: %v", err)
	}

	events := stream.New()
	taskSvc, err := tasks.NewService(tasks.NewMemoryRepository(), events)
	if err != nil {
		log.Fatalf("task service: %v", err)
	}

	probe := httpapi.ReadyProbe{DB: db}
	if rdb != nil {
		probe.Redis = redisPinger{rdb: rdb}
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe:       probe,
		Version:          version,
		Sessions:         sessions,
		Federated:        federated,
		Tasks:            taskSvc,
		Events:           events,
		TrustProxyClaims: os.Getenv("TASKHUB_TRUST_PROXY_CLAIMS") == "1",
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting taskhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	cancel()
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("%s: invalid duration %q", name, raw)
	}
	return d
}
