package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"redirector"
)

var (
	logLevel string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "redirector",
	Short: "Redirects the platform domain of an environment to its primary domain",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = redirector.NewLogger(os.Stderr, logLevel)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	rootCmd.AddCommand(serveCmd, primaryCmd, refreshCmd, tokenCmd)
}

// loadConfig reads the config file named on the command line and applies
// the log level it carries unless --log-level was given.
func loadConfig(path string) (*redirector.Config, error) {
	conf, err := redirector.LoadConfigFromEnv(path)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logger = redirector.NewLogger(os.Stderr, conf.LogLevel)
	}
	return conf, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
