package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/core/api"
	"github.com/solatis/formkeeper/internal/core/config"
	"github.com/solatis/formkeeper/internal/core/db"
	"github.com/solatis/formkeeper/internal/core/server"
	"github.com/solatis/formkeeper/internal/specdoc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC form session service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	def := config.Default()
	serveCmd.Flags().String("host", def.Server.Host, "gRPC server host")
	serveCmd.Flags().Int("port", def.Server.Port, "gRPC server port")
	serveCmd.Flags().Int("max-sessions", def.Server.MaxSessions, "maximum concurrently open sessions")
	serveCmd.Flags().Duration("debounce", def.Engine.DebounceWindow, "validation debounce window")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The catalog is optional; without it sessions open from inline documents only
	var catalog api.SpecSource
	if cfg.Database.URL != "" {
		database, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return fmt.Errorf("failed to check migrations: %w", err)
		}
		for _, s := range statuses {
			if !s.Applied {
				return fmt.Errorf("migration %s not applied - run 'formkeeper migrate up' first", s.ID)
			}
		}

		c, err := db.NewCatalog(database, logger)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		catalog = c
	}

	service, err := api.NewSessionService(specdoc.NewBinder(logger, nil, nil), catalog, cfg.Server.MaxSessions, logger, cfg.Engine.Options()...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer service.Shutdown()

	grpcServer, err := server.NewGRPCServer(cfg.Server, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting formkeeper", "version", Version, "addr", cfg.Server.Addr(), "catalog", catalog != nil)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	}
}
