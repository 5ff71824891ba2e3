package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egdose/reqwrap"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the HTTP response cache",
	}

	cmd.AddCommand(c.cacheSizeCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheSizeCommand creates the "cache size" subcommand.
func (c *CLI) cacheSizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the number of cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.cacheClient()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), client.CacheSize(cmd.Context()))
			return nil
		},
	}
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached HTTP responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.cacheClient()
			if err != nil {
				return err
			}
			before := client.CacheSize(cmd.Context())
			if err := client.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached entries\n", before)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), c.cfg.Client.CacheDir)
			return nil
		},
	}
}

// cacheClient builds a client with the cache forced on, so cache commands
// work against the configured directory even when caching is disabled for
// requests.
func (c *CLI) cacheClient() (*reqwrap.Client, error) {
	cfg := c.cfg.Client
	cfg.CacheEnabled = true
	client := reqwrap.New(reqwrap.WithConfig(cfg))
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}
