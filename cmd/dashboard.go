package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/recommender"
)

const (
	PromptBack     = "back"
	PromptNewQuery = "New query"
	PromptExit     = "Exit"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive dashboard: describe a role and browse recommended assessments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return dashboard(cmd)
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().IntP("k", "k", 0, "number of results (default recommend.default-k)")
	addFilterFlags(dashboardCmd)
}

func dashboard(cmd *cobra.Command) error {
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

	if err := engine.EnsureIndex(ctx); err != nil {
		return err
	}

	k, _ := cmd.Flags().GetInt("k")
	filters := filtersFromFlags(cmd)

	for {
		queryPrompt := promptui.Prompt{
			Label: "Job description or hiring query",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("query must not be empty")
				}
				return nil
			},
		}

		query, err := queryPrompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		resp, err := engine.Recommend(ctx, recommender.Request{Query: query, K: k, Filters: filters})
		if err != nil {
			logger.Error("recommendation failed", zap.String("code", string(recommender.CodeOf(err))), zap.Error(err))
			continue
		}

		fmt.Printf("\nEnhanced query: %s\n", resp.Query)
		if resp.Degraded {
			fmt.Printf("Degraded results (%s): the raw query was used.\n", resp.DegradedReason)
		}
		fmt.Println()
		if err := printResults(os.Stdout, resp.Results); err != nil {
			return err
		}
		fmt.Println()

		next, err := browseResults(resp.Results)
		if err != nil {
			return err
		}
		if next == PromptExit {
			return nil
		}
	}
}

// browseResults lets the user open result details until a new query or exit is chosen.
func browseResults(results []recommender.Result) (string, error) {
	for {
		items := make([]string, 0, len(results)+2)
		for i, r := range results {
			items = append(items, fmt.Sprintf("%d. %s", i+1, r.Name))
		}
		items = append(items, PromptNewQuery, PromptExit)

		resultPrompt := promptui.Select{
			Label: "Choose an assessment and press ENTER",
			Items: items,
			Size:  min(len(items), 15),
		}

		idx, selected, err := resultPrompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return PromptExit, nil
		}
		if err != nil {
			return "", err
		}

		switch selected {
		case PromptNewQuery, PromptExit:
			return selected, nil
		default:
			printDetails(results[idx])
		}
	}
}

func printDetails(r recommender.Result) {
	fmt.Printf("\n%s\n%s\n", r.Name, strings.Repeat("-", len(r.Name)))
	fmt.Printf("URL:            %s\n", r.URL)
	fmt.Printf("Remote support: %s\n", r.RemoteSupport)
	fmt.Printf("Adaptive/IRT:   %s\n", r.AdaptiveSupport)
	fmt.Printf("Test types:     %s\n", strings.Join(r.TestTypes, ", "))
	fmt.Printf("Duration:       %s\n", formatDuration(r.Duration))
	fmt.Printf("Distance:       %.4f\n\n", r.Distance)
}
