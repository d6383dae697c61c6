package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"redirector"
)

var (
	tokenTTL     time.Duration
	tokenSubject string
)

var tokenCmd = &cobra.Command{
	Use:   "token <config>",
	Short: "Mint a bearer token for the /_redirector endpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		if conf.AdminSecret == "" {
			return errors.New("admin_secret is not configured")
		}
		platform := redirector.PlatformFromEnv(os.Getenv)
		token, err := redirector.NewTokenIssuer(conf.AdminSecret, platform.Environment).Generate(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
}
