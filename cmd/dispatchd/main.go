package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/karanvs/go-emergency-dispatch/internal/api"
	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/coordinator"
	"github.com/karanvs/go-emergency-dispatch/internal/dispatch"
	"github.com/karanvs/go-emergency-dispatch/internal/lifecycle"
	"github.com/karanvs/go-emergency-dispatch/internal/logging"
	"github.com/karanvs/go-emergency-dispatch/internal/matching"
	"github.com/karanvs/go-emergency-dispatch/internal/oracle"
	"github.com/karanvs/go-emergency-dispatch/internal/repository"
	"github.com/karanvs/go-emergency-dispatch/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)
	log := logging.Component("dispatchd")

	log.Info("server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := stream.NewHub()

	machine := lifecycle.NewMachine(db)
	matcher := matching.NewMatcher(db)
	oracleClient := oracle.NewClient(cfg.Oracle)

	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, db, machine, dispatch.DefaultSenders())
	dispatcher.Start(ctx)

	coord := coordinator.New(machine, matcher, dispatcher, oracleClient, hub, db, nil, cfg.Matching.RadiusKm)

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-User-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(20))

	handler := api.NewHandler(coord, db, stream.NewWSHandler(hub))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	cancel()
	dispatcher.Stop()
	hub.Close() // Close all observer streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}

	log.Info("shutdown complete")
}
