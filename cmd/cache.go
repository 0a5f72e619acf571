package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/cybersafe/internal/infrastructure/cache"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached scan results",
	}
	cmd.AddCommand(newCacheClearCmd(root))
	return cmd
}

func newCacheClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached scan result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := root.app.Config.Cache

			store, err := cache.NewStore(ctx, cache.StoreConfig{
				Backend: cfg.Backend,
				Dir:     cfg.Dir,
				DSN:     cfg.DSN,
			})
			if err != nil {
				return err
			}
			results := cache.New(store, cache.WithLogger(root.app.Logger))
			defer results.Close()

			if err := results.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cache cleared (backend: %s)\n", colorSuccess("OK"), cfg.Backend)
			return nil
		},
	}
}
