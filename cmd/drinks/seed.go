package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

// seedFile is the YAML layout read by seed.
type seedFile struct {
	Drinks []seedDrink `yaml:"drinks"`
}

type seedDrink struct {
	Title       string   `yaml:"title"`
	Slug        string   `yaml:"slug"`
	Description string   `yaml:"description"`
	Ingredients []string `yaml:"ingredients"`
	Calories    int      `yaml:"calories"`
	Notes       string   `yaml:"notes"`
	Tags        []string `yaml:"tags"`
	Image       string   `yaml:"image"`
}

func (s seedDrink) drink() *drinks.Drink {
	return &drinks.Drink{
		Title:       s.Title,
		Slug:        s.Slug,
		Description: s.Description,
		Ingredients: s.Ingredients,
		Calories:    s.Calories,
		Notes:       s.Notes,
		Tags:        s.Tags,
		Image:       s.Image,
	}
}

func parseSeed(r io.Reader) ([]*drinks.Drink, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	out := make([]*drinks.Drink, len(f.Drinks))
	for i, d := range f.Drinks {
		out[i] = d.drink()
	}
	return out, nil
}

// seedStore is the subset of the store used by seed.
type seedStore interface {
	GetDrink(ctx context.Context, slug string) (*drinks.Drink, error)
	CreateDrink(ctx context.Context, d *drinks.Drink) error
	UpdateDrink(ctx context.Context, slug string, d *drinks.Drink) error
}

// upsertDrinks creates new drinks and overwrites existing ones by slug.
func upsertDrinks(ctx context.Context, st seedStore, ds []*drinks.Drink) (created, updated int, err error) {
	for _, d := range ds {
		d.Normalize()
		_, err := st.GetDrink(ctx, d.Slug)
		switch {
		case err == nil:
			if err := st.UpdateDrink(ctx, d.Slug, d); err != nil {
				return created, updated, fmt.Errorf("update %q: %w", d.Slug, err)
			}
			updated++
		case errors.Is(err, store.ErrNotFound):
			if err := st.CreateDrink(ctx, d); err != nil {
				return created, updated, fmt.Errorf("create %q: %w", d.Slug, err)
			}
			created++
		default:
			return created, updated, err
		}
	}
	return created, updated, nil
}

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load drinks from a YAML file",
		Long: `Load drinks from a YAML file into the database.

Drinks are matched by slug (derived from the title when omitted): existing
drinks are overwritten, new ones are created. Run "drinks prime" afterwards
to refresh caches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ds, err := parseSeed(f)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, c.cfg.Database.Path, c.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			created, updated, err := upsertDrinks(ctx, st, ds)
			if err != nil {
				return err
			}
			c.logger.Info().Int("created", created).Int("updated", updated).Msg("Seed complete")
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d drinks\n", created, updated)
			return nil
		},
	}
}
