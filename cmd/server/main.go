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

	"roshamble/internal/auth"
	"roshamble/internal/config"
	"roshamble/internal/db"
	"roshamble/internal/handlers"
	"roshamble/internal/journal"
	"roshamble/internal/logger"
	"roshamble/internal/matchmaking"
	"roshamble/internal/middleware"
	"roshamble/internal/models"
	"roshamble/internal/services"

	"github.com/rs/cors"
)

func main() {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting matchmaking server", "environment", cfg.Environment)

	var mongodb *db.MongoDB
	if cfg.ArchiveEnabled() {
		mongodb, err = db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", "error", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mongodb.Close(ctx)
		}()
		logger.Info("connected to MongoDB", "database", cfg.MongoDB.Database)
	}

	sink, err := openJournal(cfg, mongodb)
	if err != nil {
		logger.Fatal("failed to open journal", "driver", cfg.Journal.Driver, "error", err)
	}

	svc := matchmaking.NewService(serviceOptions(cfg))

	// Replay before anything can enqueue or the engine can pair.
	if sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		events, err := sink.Load(ctx)
		cancel()
		if err != nil {
			logger.Fatal("failed to load journal", "error", fmt.Errorf("%w: %v", matchmaking.ErrInternal, err))
		}
		applied := svc.Restore(events)
		logger.Info("journal replayed", "events", len(events), "applied", applied)

		writer := journal.NewWriter(sink, cfg.Journal.BufferSize)
		writer.Start()
		defer func() {
			writer.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sink.Close(ctx)
		}()
		svc.Subscribe(writer.Record)
	}

	hub := handlers.NewHub()
	go hub.Run()
	defer hub.Stop()
	svc.Subscribe(hub.HandleEvent)

	svc.Subscribe(func(ev models.Event) {
		if ev.Type == models.EventReady && ev.Match != nil {
			logger.Info("match ready, handing off to game session",
				"match_id", ev.Match.ID,
				"mode", string(ev.Mode),
			)
		}
	})

	var history *handlers.HistoryHandler
	if mongodb != nil {
		archiver := services.NewMatchArchiver(mongodb)
		svc.Subscribe(archiver.HandleEvent)
		defer archiver.Wait()
		history = handlers.NewHistoryHandler(mongodb)
	}

	svc.Start()
	defer svc.Stop()

	maintenance, err := services.NewMaintenanceService(svc, cfg.MaintenanceInterval(), nil)
	if err != nil {
		logger.Fatal("failed to create maintenance scheduler", "error", err)
	}
	maintenance.Start()
	defer maintenance.Stop()

	jwtService := auth.NewJWTService(cfg.Auth.TokenSecret)
	limiter := middleware.NewRateLimiter(nil)
	defer limiter.Stop()

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth:        middleware.NewAuthMiddleware(jwtService, cfg.Auth.CookieName),
		Limiter:     limiter,
		Matchmaking: handlers.NewMatchmakingHandler(svc),
		WebSocket:   handlers.NewWebSocketHandler(hub, svc, cfg.Origins()),
		History:     history,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func serviceOptions(cfg *config.Config) matchmaking.Options {
	opts := matchmaking.DefaultOptions()
	opts.TickInterval = cfg.TickInterval()
	opts.Tolerance = matchmaking.Tolerance{
		Base:            *cfg.Engine.BaseTolerance,
		GrowthPerSecond: *cfg.Engine.GrowthPerSecond,
		Max:             cfg.Engine.MaxTolerance,
	}
	opts.ReadyTimeout = cfg.ReadyTimeout()
	opts.Retention = cfg.Retention()
	opts.NoShowCooldown = cfg.NoShowCooldown()
	opts.MaxQueueWait = cfg.MaxQueueWait()
	opts.RequeueOnExpiry = cfg.Tracker.RequeueOnExpiry
	opts.IncludeMatched = *cfg.Presence.IncludeMatched

	opts.PartySizes = make(map[models.GameMode]int)
	for name, size := range cfg.Engine.PartySizes {
		mode, ok := models.ParseGameMode(name)
		if !ok {
			logger.Warn("ignoring party size for unknown mode", "mode", name)
			continue
		}
		opts.PartySizes[mode] = size
	}
	return opts
}

// openJournal returns nil when journaling is disabled.
func openJournal(cfg *config.Config, mongodb *db.MongoDB) (journal.Sink, error) {
	switch cfg.Journal.Driver {
	case "memory":
		return journal.NewMemorySink(), nil
	case "mongo":
		if mongodb == nil {
			return nil, errors.New("mongo journal needs a MongoDB connection")
		}
		return journal.NewMongoSink(mongodb), nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sink, err := journal.NewRedisSink(ctx, cfg.Redis.URL, cfg.Redis.Stream, cfg.Redis.MaxLen)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, nil
	}
}
