package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"covoiturage/internal/auth"
	"covoiturage/internal/config"
	"covoiturage/internal/events"
	"covoiturage/internal/tracking"
	"covoiturage/internal/trips"
	"covoiturage/internal/users"
	"covoiturage/migrations"
	"covoiturage/pkg/db"
	"covoiturage/pkg/jwt"
	"covoiturage/pkg/kafka"
	rredis "covoiturage/pkg/redis"
	"covoiturage/pkg/sentry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 1. Config ──
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	flush := sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment)
	defer flush()

	// ── 2. PostgreSQL ──
	database, err := db.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := database.RunMigrations(ctx, migrations.FS); err != nil {
		log.Fatal("migrations failed:", err)
	}

	// ── 3. Token revocations ──
	var revocations jwt.Revocations
	if cfg.RedisAddr != "" {
		redisClient, err := rredis.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
		revocations = redisClient
	} else {
		log.Println("REDIS_ADDR not set, token revocations kept in memory")
		revocations = jwt.NewMemoryRevocations()
	}

	tokens, err := jwt.NewManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTRefresh, revocations)
	if err != nil {
		log.Fatal(err)
	}

	// ── 4. Kafka ──
	var publisher events.Publisher = events.Discard{}
	var kafkaClient *kafka.Client
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient = kafka.NewClient(cfg.KafkaBrokers)
		defer kafkaClient.Close()

		topics := append([]string{events.TopicUserRegistered}, events.TripTopics...)
		if err := kafkaClient.EnsureTopics(ctx, topics...); err != nil {
			log.Fatal(err)
		}
		publisher = kafkaClient
	} else {
		log.Println("KAFKA_BROKERS not set, domain events disabled")
	}

	// ── 5. Services ──
	userStore := users.NewPostgresStore(database.Pool)
	userSvc := users.NewService(userStore,
		users.WithPublisher(publisher),
		users.WithLocation(cfg.Location),
	)
	tripSvc := trips.NewService(trips.NewPostgresStore(database.Pool), userStore,
		trips.WithPublisher(publisher),
		trips.WithTransitions(cfg.TripEnforceTransitions),
	)
	authSvc := auth.NewService(userSvc, tokens)
	authMW := auth.NewMiddleware(tokens, userSvc)

	// ── 6. WebSocket hub ──
	wsHub := tracking.NewHub(tripSvc)
	if kafkaClient != nil {
		// Every instance needs every event, so each gets its own group.
		wsHub.Consume(ctx, kafkaClient, "covoiturage-tracking-"+uuid.NewString())
	}

	// ── 7. HTTP router ──
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(sentry.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"covoiturage"}`))
	})

	r.Mount("/auth", auth.NewHandler(authSvc, authMW).Routes())

	usersHandler := users.NewHandler(userSvc)
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)
		r.Get("/user", usersHandler.Me)
		r.Mount("/users", usersHandler.Routes())
		r.Mount("/trips", trips.NewHandler(tripSvc).Routes())
		r.Mount("/ws", wsHub.Routes())
	})

	// ── 8. Start server ──
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("covoiturage listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// ── 9. Graceful shutdown ──
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	cancel() // stop consumers
}
