package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/filtering"
	"github.com/spigell/shl-recommender/internal/logger"
	"github.com/spigell/shl-recommender/internal/recommender"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <query...>",
	Short: "Print recommended assessments for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return recommend(cmd, strings.Join(args, " "))
	},
}

func init() {
	rootCmd.AddCommand(recommendCmd)

	recommendCmd.Flags().IntP("k", "k", 0, "number of results (default recommend.default-k)")
	recommendCmd.Flags().StringP("output", "o", outputTable, "output format: table or json")
	recommendCmd.Flags().Bool("no-enhance", false, "embed the raw query without enhancement")
	recommendCmd.Flags().Bool("describe-filters", false, "print which filters apply to this request")
	addFilterFlags(recommendCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("remote-only", false, "keep only assessments with remote testing")
	cmd.Flags().Bool("adaptive-only", false, "keep only adaptive (IRT) assessments")
	cmd.Flags().Int("max-duration", 0, "drop assessments longer than this many minutes")
	cmd.Flags().StringSlice("test-type", nil, "keep assessments with any of these test types")
}

func filtersFromFlags(cmd *cobra.Command) *filtering.Config {
	remote, _ := cmd.Flags().GetBool("remote-only")
	adaptive, _ := cmd.Flags().GetBool("adaptive-only")
	maxDuration, _ := cmd.Flags().GetInt("max-duration")
	types, _ := cmd.Flags().GetStringSlice("test-type")

	cfg := &filtering.Config{RemoteOnly: remote, AdaptiveOnly: adaptive, MaxDuration: maxDuration, TestTypes: types}
	if cfg.IsZero() {
		return nil
	}
	return cfg
}

func recommend(cmd *cobra.Command, query string) error {
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

	if noEnhance, _ := cmd.Flags().GetBool("no-enhance"); noEnhance {
		config.Recommend.Enhance = false
	}

	engine, _, err := newEngine(ctx, config, logger)
	if err != nil {
		return err
	}

	filters := filtersFromFlags(cmd)
	if describe, _ := cmd.Flags().GetBool("describe-filters"); describe {
		steps := filtering.ForConfig(filters)
		if err := filtering.Validate(filters, steps); err != nil {
			return fmt.Errorf("invalid filters: %w", err)
		}
		if err := printFilters(os.Stderr, filtering.Describe(steps)); err != nil {
			return err
		}
	}

	k, _ := cmd.Flags().GetInt("k")
	resp, err := engine.Recommend(ctx, recommender.Request{Query: query, K: k, Filters: filters})
	if err != nil {
		return err
	}

	if resp.Degraded {
		logger.Warn("results are degraded, the raw query was used", zap.String("reason", resp.DegradedReason))
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case outputJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case outputTable:
		fmt.Fprintf(os.Stdout, "Enhanced query: %s\n\n", resp.Query)
		return printResults(os.Stdout, resp.Results)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

// printResults renders results as an aligned table.
func printResults(w io.Writer, results []recommender.Result) error {
	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No assessments found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tAssessment Name\tURL\tRemote Support\tAdaptive/IRT\tTest Types\tDuration")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Name, r.URL, r.RemoteSupport, r.AdaptiveSupport, strings.Join(r.TestTypes, ", "), formatDuration(r.Duration))
	}
	return tw.Flush()
}

func printFilters(w io.Writer, statuses []filtering.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Filter\tEnabled\tReason\tDetails")
	for _, status := range statuses {
		details := make([]string, 0, len(status.Details))
		for key, value := range status.Details {
			details = append(details, key+"="+value)
		}
		slices.Sort(details)
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", status.Name, status.Enabled, status.Reason, strings.Join(details, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func formatDuration(d any) string {
	if minutes, ok := d.(int); ok {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprint(d)
}
