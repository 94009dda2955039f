package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/server"
	"github.com/spigell/shl-recommender/internal/watcher"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	serveCmd.Flags().Bool("watch", false, "rebuild the index when catalog files change")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("watch.enabled", serveCmd.Flags().Lookup("watch"))
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	logger.Info("starting the shl-recommender", zap.String("version", version))

	engine, m, err := newEngine(ctx, config, logger)
	if err != nil {
		return err
	}

	// A failed warm-up is retried by the first request.
	if err := engine.EnsureIndex(ctx); err != nil {
		logger.Error("warming up the index", zap.Error(err))
	}

	if config.Watch.Enabled {
		w, err := watcher.New(config.Catalog.Files, func(ctx context.Context, path string) {
			if err := engine.Rebuild(ctx); err != nil {
				logger.Error("rebuilding index after catalog change", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger), watcher.WithDebounce(config.Watch.Debounce))
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("starting catalog watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.New(engine, m, config.Server, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return <-errCh
}
