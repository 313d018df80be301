package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/medpocket/internal/database"
	"github.com/hugh/medpocket/internal/generation"
	"github.com/hugh/medpocket/internal/llm"
	"github.com/hugh/medpocket/internal/observability"
	"github.com/hugh/medpocket/internal/tasks"
	"github.com/hugh/medpocket/pkg/config"
	"github.com/hugh/medpocket/pkg/queue"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting medpocket worker",
		"concurrency", cfg.Generation.WorkerConcurrency,
		"purge_cron", cfg.Generation.PurgeCron,
	)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	chat, err := llm.New(cfg.LLM, prom, logger)
	if err != nil {
		logger.Error("failed to create LLM client", "error", err)
		os.Exit(1)
	}

	handler := tasks.NewHandler(db, chat, generation.ConfigFrom(cfg.Generation, cfg.LLM),
		cfg.Generation.Retention(), prom, logger)

	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, cfg.Generation.WorkerConcurrency)

	scheduler := queue.NewScheduler(&cfg.Redis)
	if err := util.ValidateCronExpr(cfg.Generation.PurgeCron); err != nil {
		logger.Error("invalid purge schedule", "cron", cfg.Generation.PurgeCron, "error", err)
		os.Exit(1)
	}
	next, _ := util.NextCronTime(cfg.Generation.PurgeCron, time.Now())
	entryID, err := scheduler.Register(cfg.Generation.PurgeCron, tasks.NewPurgeGenerationsTask())
	if err != nil {
		logger.Error("failed to register purge task", "error", err)
		os.Exit(1)
	}
	logger.Info("purge scheduled", "entry_id", entryID, "next_run", next)

	if err := scheduler.Start(); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	// Worker metrics on their own port; the API server exposes its own.
	metricsSrv := &http.Server{
		Addr:              ":9091",
		Handler:           prom.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	if err := srv.Start(mux); err != nil {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()
	_ = metricsSrv.Close()

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("worker stopped")
}
