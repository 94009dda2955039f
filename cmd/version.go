package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s\n", app, version)
		fmt.Printf("embedding model: %s\n", viper.GetString("gemini.embedding-model"))
		fmt.Printf("generation model: %s\n", viper.GetString("gemini.generation-model"))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
