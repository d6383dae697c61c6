package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"redirector"
)

var primaryCmd = &cobra.Command{
	Use:   "primary <config>",
	Short: "Print the primary domain, refreshing the domain file if it expired",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newService(args[0])
		if err != nil {
			return err
		}
		primary, err := s.Resolver.PrimaryDomain(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), primary)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <config>",
	Short: "Fetch the hostname list and overwrite the domain file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newService(args[0])
		if err != nil {
			return err
		}
		domains, err := s.Cache.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(domains)
	},
}

func newService(path string) (*redirector.Service, error) {
	conf, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return redirector.NewService(conf, redirector.PlatformFromEnv(os.Getenv), logger)
}
