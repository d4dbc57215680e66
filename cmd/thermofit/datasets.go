package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"thermofit/internal/activity"
)

func (a *app) datasetsCmd() *cobra.Command {
	var components []string
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the activity datasets measured within a set of components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if len(components) == 0 {
				components = a.cfg.Components
			}
			if len(components) == 0 {
				return fmt.Errorf("--components is required")
			}
			store, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("open dataset store: %w", err)
			}
			defer func() { _ = store.Close() }()

			found, err := activity.SelectDatasets(ctx, store, components)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOUTPUT\tCOMPONENTS\tPOINTS\tREFERENCE")
			for _, ds := range found {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%d\t%s\n", ds.ID, ds.Output, ds.SortedComponents(), ds.Values.Size(), ds.Reference)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&components, "components", nil, "active components, e.g. CU,MG,VA")
	return cmd
}
