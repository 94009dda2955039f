package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/logger"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persisted vector index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Load the index or build it when missing; --force always rebuilds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return buildIndex(force)
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)

	indexBuildCmd.Flags().BoolP("force", "f", false, "rebuild even if valid artifacts exist")
}

func buildIndex(force bool) error {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		return fmt.Errorf("getting a config: %w", err)
	}

	engine, _, err := newEngine(ctx, config, logger)
	if err != nil {
		return err
	}

	if force {
		err = engine.Rebuild(ctx)
	} else {
		err = engine.EnsureIndex(ctx)
	}
	if err != nil {
		return err
	}

	stats := engine.Stats()
	logger.Info("index ready",
		zap.String("source", stats.Source),
		zap.Int("documents", stats.Documents),
		zap.Int("dimension", stats.Dimension),
		zap.String("model", stats.Model),
	)
	fmt.Printf("%d documents indexed (%s, dimension %d)\n", stats.Documents, stats.Source, stats.Dimension)

	return nil
}
