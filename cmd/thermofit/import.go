package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"thermofit/internal/blob"
	"thermofit/internal/datasets"
)

func (a *app) importCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import dataset documents from the configured blob source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			source, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return fmt.Errorf("open blob source: %w", err)
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open dataset store: %w", err)
			}
			defer func() { _ = store.Close() }()

			rep, err := datasets.NewImporter(source, store, datasets.WithLogger(a.logger)).Import(ctx, prefix)
			if err != nil {
				return err
			}
			for _, key := range rep.Skipped {
				fmt.Fprintf(a.stdout, "skipped %s\n", key)
			}
			fmt.Fprintf(a.stdout, "imported %d datasets from %d documents\n", len(rep.IDs), len(rep.Keys))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only import keys starting with this prefix")
	return cmd
}
