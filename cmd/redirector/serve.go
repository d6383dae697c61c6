package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"redirector"
)

var serveCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "Serve the site behind the primary domain redirect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = redirector.Run(ctx, conf, redirector.PlatformFromEnv(os.Getenv), logger)
		if errors.Cause(err) == http.ErrServerClosed {
			return nil
		}
		return err
	},
}
