// Package cli implements the reqwrap command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/egdose/reqwrap"
	"github.com/egdose/reqwrap/reqlog"
)

// CLI carries state shared across commands.
type CLI struct {
	configPath string

	cfg    appConfig
	logger *slog.Logger
}

// NewRootCommand builds the reqwrap command tree.
func NewRootCommand() *cobra.Command {
	c := &CLI{}

	root := &cobra.Command{
		Use:           "reqwrap",
		Short:         "Reliable HTTP requests with retries, proxy rotation and caching",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(c.configPath)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = reqlog.New(reqlog.Options{
				Env:          cfg.Env,
				ConsoleLevel: cfg.Log.ConsoleLevel,
				FileLevel:    cfg.Log.FileLevel,
				File:         cfg.Log.File,
				ErrorFile:    cfg.Log.ErrorFile,
				App:          "reqwrap",
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = reqlog.Close(c.logger)
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a TOML config file")

	root.AddCommand(c.fetchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(versionCommand())

	return root
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// newClient builds a reqwrap client from the merged configuration.
func (c *CLI) newClient() (*reqwrap.Client, error) {
	client := reqwrap.New(
		reqwrap.WithConfig(c.cfg.Client),
		reqwrap.WithLogger(reqwrap.NewSlogLogger(c.logger)),
	)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), reqwrap.GetVersion())
		},
	}
}
