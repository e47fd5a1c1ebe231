package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/courseforge-backend/internal/config"
	"github.com/yungbote/courseforge-backend/internal/draftstore"
	"github.com/yungbote/courseforge-backend/internal/generation"
	"github.com/yungbote/courseforge-backend/internal/handlers"
	"github.com/yungbote/courseforge-backend/internal/observability"
	"github.com/yungbote/courseforge-backend/internal/pkg/logger"
	"github.com/yungbote/courseforge-backend/internal/server"
	"github.com/yungbote/courseforge-backend/internal/services"
	"github.com/yungbote/courseforge-backend/internal/sse"
	"github.com/yungbote/courseforge-backend/internal/store"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "courseforge",
		Environment: cfg.Env,
	})

	// Postgres. The service degrades without it: outline sessions still work,
	// finalized courses just aren't recorded locally.
	var courseRepo store.CourseRepo
	pg, err := store.NewPostgresService(cfg.Postgres, log)
	if err != nil {
		log.Warn("Postgres init failed; course records disabled", "error", err)
	} else {
		if err := pg.AutoMigrateAll(); err != nil {
			log.Warn("Postgres auto migration failed", "error", err)
		}
		courseRepo = store.NewCourseRepo(pg.DB(), log)
	}

	// Redis draft store, same degraded mode.
	var drafts generation.DraftStore
	redisDrafts, err := draftstore.New(cfg.Redis, log)
	if err != nil {
		log.Warn("Redis init failed; draft persistence disabled", "error", err)
	} else {
		drafts = redisDrafts
		defer redisDrafts.Close()
	}

	// Generation backend client
	genClient, err := generation.NewClientFromConfig(cfg.Backend, cfg.Retry, log)
	if err != nil {
		log.Error("Could not init generation client", "error", err)
		os.Exit(1)
	}

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	// Services
	var courseRecorder generation.CourseRecorder
	if courseRepo != nil {
		courseRecorder = courseRepo
	}
	outlineService := services.NewOutlineService(genClient, sseHub, drafts, courseRecorder, cfg.Session, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	outlineHandler := handlers.NewOutlineHandler(outlineService, sseHub)
	var courseHandler *handlers.CourseHandler
	if courseRepo != nil {
		courseHandler = handlers.NewCourseHandler(courseRepo)
	}

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		HTTP:           cfg.HTTP,
		OutlineHandler: outlineHandler,
		CourseHandler:  courseHandler,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownTimeout := cfg.HTTP.ShutdownTimeout.Duration
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownOtel != nil {
			_ = shutdownOtel(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
