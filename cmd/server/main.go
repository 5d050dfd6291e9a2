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

	"social-brand-analyzer/pkg/api"
	"social-brand-analyzer/pkg/api/analysis"
	"social-brand-analyzer/pkg/database"
	"social-brand-analyzer/pkg/imaging"
	"social-brand-analyzer/pkg/scheduler"
	"social-brand-analyzer/pkg/utils"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	envFile string
	config  *utils.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "social-brand-analyzer",
	Short:   "Brand social media analytics",
	Long:    "Scrapes brand Instagram and Facebook accounts, classifies posts by vehicle model and reports engagement per model.",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.LoadEnvFile(envFile)

		// Load configuration
		config = utils.LoadConfig()

		// Initialize logging
		utils.InitLogger(config.Environment, config.LogLevel)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an env file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(cleanupCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the analysis workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Initialize database
		if err := database.Initialize(ctx, config.DatabaseURL); err != nil {
			return err
		}
		defer database.Close()

		if err := database.Migrate(database.DB); err != nil {
			return err
		}

		app, err := newApp(ctx, config, database.NewStore(database.DB), true)
		if err != nil {
			return err
		}
		defer app.Close()

		app.pool.Start()

		sched := scheduler.New(scheduler.DefaultJobTimeout)
		err = sched.AddJob("cleanup", config.CleanupSchedule, func(ctx context.Context) error {
			removed, err := app.svc.Cleanup(ctx, config.CleanupMaxAge)
			if err != nil {
				return err
			}
			log.Info().Int("removed", removed).Dur("max_age", config.CleanupMaxAge).Msg("removed old analyses")
			return nil
		})
		if err != nil {
			return err
		}
		sched.Start()

		proxy := imaging.NewProxy(imaging.ProxyOptions{Timeout: config.ImageFetchTimeout})
		handler := analysis.NewHandler(app.svc, proxy)

		// Initialize router
		router := api.InitRouter(config, handler, database.IsHealthy, app.pool)

		// Configure HTTP server
		server := &http.Server{
			Addr:           fmt.Sprintf(":%s", config.ServerPort),
			Handler:        router,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		}

		log.Info().Msgf("Starting Social Brand Analyzer on port %s", config.ServerPort)
		log.Info().Msgf("Environment: %s", config.Environment)
		log.Info().Msgf("Analysis workers: %d", config.MaxConcurrency)

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("failed to start server")
				return err
			}
		case <-ctx.Done():
		}

		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
		<-sched.Stop().Done()
		app.pool.Stop(shutdownCtx)
		return nil
	},
}
