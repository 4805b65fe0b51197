package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/drinks-fyi/pkg/loader"
	"github.com/Sternrassler/drinks-fyi/pkg/search"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

func newReindexCmd(c *cli) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Build the search index and print its statistics",
		Long: `Build the search index from the database and print its statistics.

The running server rebuilds its own index on every content change; this
command checks what that index contains. --query runs a search against it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := store.Open(ctx, c.cfg.Database.Path, c.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ldr := loader.New(st, search.New(), nil, loader.Options{ImageBaseURL: c.cfg.Images.BaseURL}, zerolog.Nop())
			stats, err := ldr.Reindex(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents: %d\nterms: %d\n", stats.Documents, stats.Terms)

			if query != "" {
				for _, r := range ldr.Index().Search(query, loader.SearchLimit) {
					fmt.Fprintf(out, "%4d  %s (%s)\n", r.Score, r.Drink.Title, r.Drink.Slug)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "search the rebuilt index")
	return cmd
}
