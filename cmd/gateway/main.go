package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-assess/internal/api/http"
	"github.com/mind-engage/mindengage-assess/internal/attempt"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/events"
	"github.com/mind-engage/mindengage-assess/internal/exam"
	"github.com/mind-engage/mindengage-assess/internal/lock"
	"github.com/mind-engage/mindengage-assess/internal/metrics"
	"github.com/mind-engage/mindengage-assess/internal/prereq"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
	"github.com/mind-engage/mindengage-assess/internal/timer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	driver := db.Driver(cfg.DBDriver)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, driver.SQLName())

	if cfg.SeedDir != "" {
		seeds, err := exam.LoadDir(cfg.SeedDir)
		if err != nil {
			log.Fatalf("seed %s: %v", cfg.SeedDir, err)
		}
		for _, a := range seeds {
			saved, err := store.PutAssessment(openCtx, a)
			if err != nil {
				log.Fatalf("seed %s: %v", a.ID, err)
			}
			log.Printf("seeded assessment %s v%d", saved.ID, saved.Version)
		}
	}

	// --- Locking ---
	var locker attempt.Locker = attempt.NewLocalLocker()
	if cfg.LockDriver == "redis" {
		rc, err := lock.NewRedisClient(openCtx, lock.RedisConfig{Address: cfg.RedisAddr, Password: cfg.RedisPwd, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		locker = lock.NewRedisLocker(rc, cfg.LockTTL)
	}

	// --- Events ---
	auditRepo := syncx.NewEventRepo(dbh, cfg.SiteID)
	pubs := events.Fanout{events.NewAuditLog(auditRepo)}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, 0)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer amqpPub.Close()
		pubs = append(pubs, amqpPub)
	}

	// --- Prerequisites ---
	var checker prereq.Checker = prereq.AllowAll{}
	if cfg.PrereqBaseURL != "" {
		checker = prereq.NewClient(cfg.PrereqBaseURL, cfg.PrereqTimeout, cfg.PrereqMaxRetries)
	}

	// --- Engine + server timer ---
	ctl := timer.New(cfg.TimerCadence, nil)
	eng := attempt.NewEngine(store, attempt.Options{
		GracePeriod: cfg.GracePeriod,
		Locker:      locker,
		Prereq:      checker,
		Events:      pubs,
		Countdown:   ctl,
	})
	ctl.Attach(eng)
	if err := ctl.Start(ctx); err != nil {
		log.Fatalf("timer: %v", err)
	}

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.LoginOptions{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DevLogins:     cfg.Mode == config.ModeOffline,
		}))
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.Mount(pr, store, eng, auditRepo)
	})

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s (mode=%s, db=%s, lock=%s, timers=%d)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.LockDriver, ctl.Armed())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	// in-flight handlers and the running tick may still publish; the deferred
	// closes of the publisher, redis and db run only after both are done
	<-drained
	ctl.Stop()
	log.Printf("shutdown complete")
}
