package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/catalog"
	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/scraper"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Collect and enrich the assessment catalog",
}

var catalogScrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape catalog listing pages into a JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return scrapeCatalog(cmd)
	},
}

var catalogEnrichCmd = &cobra.Command{
	Use:   "enrich [files...]",
	Short: "Fill assessment durations from detail pages (default catalog.files)",
	RunE: func(_ *cobra.Command, args []string) error {
		return enrichCatalog(args)
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogScrapeCmd, catalogEnrichCmd)

	defaults := scraper.DefaultOptions()
	catalogScrapeCmd.Flags().StringP("out", "o", "shl_assessments_individual.json", "output file")
	catalogScrapeCmd.Flags().Int("type", defaults.Type, "catalog listing type (1 individual tests, 2 pre-packaged solutions)")
	catalogScrapeCmd.Flags().Int("start", defaults.Start, "first listing offset")
	catalogScrapeCmd.Flags().Int("stop", defaults.Stop, "listing offset to stop before")
	catalogScrapeCmd.Flags().Int("step", defaults.Step, "entries per listing page")
}

func newScraper() (*scraper.Client, *zap.Logger, error) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("getting a config: %w", err)
	}

	return scraper.New(config.Scraper, logger), logger, nil
}

func scrapeCatalog(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, logger, err := newScraper()
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := scraper.DefaultOptions()
	opts.Type, _ = cmd.Flags().GetInt("type")
	opts.Start, _ = cmd.Flags().GetInt("start")
	opts.Stop, _ = cmd.Flags().GetInt("stop")
	opts.Step, _ = cmd.Flags().GetInt("step")
	out, _ := cmd.Flags().GetString("out")

	records, err := client.ScrapeCatalog(ctx, opts)
	if err != nil {
		return fmt.Errorf("scrape catalog: %w", err)
	}

	if err := catalog.Validate(records); err != nil {
		return fmt.Errorf("scraped catalog is invalid: %w", err)
	}

	if err := catalog.Save(out, records); err != nil {
		return err
	}

	logger.Info("scraped catalog", zap.Int("assessments", len(records)), zap.String("file", out))
	return nil
}

func enrichCatalog(files []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, logger, err := newScraper()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(files) == 0 {
		files = viper.GetStringSlice("catalog.files")
	}

	for _, path := range files {
		records, err := catalog.Load(path)
		if err != nil {
			return err
		}

		updated, err := client.Enrich(ctx, records)
		if err != nil {
			return fmt.Errorf("enrich %s: %w", path, err)
		}

		if err := catalog.Save(path, records); err != nil {
			return err
		}

		logger.Info("updated catalog with durations",
			zap.String("file", path),
			zap.Int("updated", updated),
			zap.Int("assessments", len(records)),
		)
	}

	return nil
}
