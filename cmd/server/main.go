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

	"github.com/rowan/commitdeck/internal/api"
	apimw "github.com/rowan/commitdeck/internal/api/middleware"
	"github.com/rowan/commitdeck/internal/config"
	"github.com/rowan/commitdeck/internal/gateway"
	"github.com/rowan/commitdeck/internal/jobs"
	"github.com/rowan/commitdeck/internal/logger"
	"github.com/rowan/commitdeck/internal/repository"
	"github.com/rowan/commitdeck/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "commitdeck",
		LogFile:     cfg.Log.File,
	})
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	commitRepo := repository.NewCommitRepository(db)

	// Initialize the remote gateway. A missing token does not prevent
	// startup; fetch jobs then fail pre-flight with a clear message.
	var reconciler jobs.Reconciler
	ghClient, err := gateway.NewClient(&gateway.ClientConfig{
		Token:           cfg.GitHub.Token,
		PerPage:         cfg.GitHub.PerPage,
		RequestInterval: cfg.GitHub.RequestInterval,
	})
	if err != nil {
		if !errors.Is(err, gateway.ErrTokenRequired) {
			log.WithError(err).Fatal("Failed to initialize GitHub client")
		}
		log.Warn("GITHUB_TOKEN not set, commit fetch jobs will fail until configured")
	} else {
		summarizer := service.NewSummarizerService(&service.SummarizerConfig{
			Enabled: cfg.Summarizer.Enabled,
			Model:   cfg.Summarizer.Model,
			APIKey:  cfg.Summarizer.APIKey,
			BaseURL: cfg.Summarizer.BaseURL,
		}, log)

		reconciler = service.NewReconcileService(ghClient, commitRepo, summarizer, log, &service.ReconcileConfig{
			DetailCap:       cfg.Jobs.PerRepoDetailCap,
			PacingDelay:     cfg.Jobs.PacingDelay,
			AuthorBlacklist: cfg.GitHub.AuthorBlacklist,
		})
	}

	// Initialize the job queue and its single worker
	queue := jobs.NewQueue(&jobs.QueueConfig{
		Retention:     cfg.Jobs.Retention,
		SweepInterval: cfg.Jobs.SweepInterval,
		JobTimeout:    cfg.Jobs.JobTimeout,
	}, log)

	collector := jobs.NewExecCollector(cfg.Collector.Command, cfg.Collector.Args, log)
	orchestrator := jobs.NewOrchestrator(reconciler, collector, queue, jobs.OrchestratorConfig{
		DefaultRepos:     cfg.Jobs.DefaultRepos,
		DefaultAnnotate:  cfg.Jobs.DefaultAnnotate,
		DefaultSinceDays: cfg.Jobs.DefaultSinceDays,
		PacingDelay:      cfg.Jobs.PacingDelay,
	}, log)

	queue.RegisterWorker(orchestrator.Work)
	queue.StartSweeper()

	// Setup router and HTTP server
	router := api.SetupRouter(queue, commitRepo, cfg.Server.Mode, apimw.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Server exited")
}
