package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"voicelegal-backend/app"
	"voicelegal-backend/config"
	"voicelegal-backend/handlers"
	"voicelegal-backend/logging"
	"voicelegal-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	logger := logging.New("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	go service.RunSweeper(ctx, a.Cases, cfg.SweepInterval)

	caseHandler := handlers.NewCaseHandler(a.Cases)

	// Setup Gin router
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		snap := a.Registry.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":               "ok",
			"case_types":           snap.Len(),
			"case_types_loaded_at": snap.BuiltAt(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	caseHandler.RegisterRoutes(r.Group("/api"))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
}
