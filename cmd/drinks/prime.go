package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/drinks-fyi/pkg/prime"
)

func newPrimeCmd(c *cli) *cobra.Command {
	var change prime.Change

	cmd := &cobra.Command{
		Use:   "prime",
		Short: "Warm the payload cache and purge the CDN",
		Long: `Warm the payload cache and purge the CDN.

Without flags every route is reloaded and the whole CDN service is purged.
With --slug and --tag only the affected routes and surrogate keys are
refreshed, the way a content webhook would.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			change.All = len(change.Slugs) == 0 && len(change.Tags) == 0
			report := a.primer.Prime(ctx, change)
			if err := writeReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Failed > 0 || len(report.Errors) > 0 {
				return fmt.Errorf("prime finished with %d failed routes and %d errors", report.Failed, len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&change.Slugs, "slug", nil, "drink slug to refresh (repeatable)")
	cmd.Flags().StringSliceVar(&change.Tags, "tag", nil, "tag to refresh (repeatable)")
	return cmd
}

func writeReport(w io.Writer, report *prime.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
