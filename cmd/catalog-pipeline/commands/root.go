package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "catalog-pipeline",
	Short: "Product catalog builder - parallel image uploads and CSV generation",
	Long: `catalog-pipeline turns folders of product images into a hosted product
catalog: it uploads every eligible image to the CDN in parallel, derives
product names and cost prices from the folder names, and writes an
import-ready CSV. It can also render catalog PDFs into those image
folders first.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; variables already set in the environment win.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
