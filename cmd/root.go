// Package cmd defines and implements the CLI commands for the crawler.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpelletier/caselaw-crawler/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caselaw-crawler",
		Short: "A rate-limit-aware crawler for court case documents.",
		Long: `caselaw-crawler walks a court's document index year by year, downloads
each judgment, and extracts its text to disk. When the upstream starts
rate limiting, the crawler rotates its outbound Elastic IP and re-attempts
the affected batch so no document is silently lost.`,
	}

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		config.Init()
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newRotateCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
