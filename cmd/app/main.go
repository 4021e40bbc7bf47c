package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FinDS/internal/di"
	"FinDS/pkg/config"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "finds",
		Short:         "FinDS - financial data science service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file path (defaults apply when empty)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newFredMDCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads --config and applies FINDS_* environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job workers and Kafka ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			// Blocks until SIGINT or SIGTERM.
			return app.Run(context.Background())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finds %s\n", version)
		},
	}
}
