package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
)

const drinkColumns = `id, slug, title, description, ingredients, calories, notes, image, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrink(row rowScanner) (*drinks.Drink, error) {
	var (
		d                    drinks.Drink
		ingredients          string
		createdAt, updatedAt string
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Title, &d.Description, &ingredients,
		&d.Calories, &d.Notes, &d.Image, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if ingredients != "" {
		d.Ingredients = strings.Split(ingredients, "\n")
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	d.Tags = []string{}
	return &d, nil
}

// ListDrinks returns every drink ordered by title.
func (s *Store) ListDrinks(ctx context.Context) ([]drinks.Drink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+drinkColumns+` FROM drinks ORDER BY title COLLATE NOCASE, slug`)
	if err != nil {
		return nil, fmt.Errorf("list drinks: %w", err)
	}
	return s.collect(ctx, rows)
}

// DrinksByTag returns the drinks carrying tag, ordered by title.
func (s *Store) DrinksByTag(ctx context.Context, tag string) ([]drinks.Drink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixed("d.", drinkColumns)+`
		FROM drinks d JOIN drink_tags t ON t.drink_id = d.id
		WHERE t.tag = ?
		ORDER BY d.title COLLATE NOCASE, d.slug`, drinks.NormalizeTag(tag))
	if err != nil {
		return nil, fmt.Errorf("drinks by tag: %w", err)
	}
	return s.collect(ctx, rows)
}

func (s *Store) collect(ctx context.Context, rows *sql.Rows) ([]drinks.Drink, error) {
	defer rows.Close()

	out := []drinks.Drink{}
	for rows.Next() {
		d, err := scanDrink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drink: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drinks: %w", err)
	}
	rows.Close()

	if err := s.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) attachTags(ctx context.Context, ds []drinks.Drink) error {
	if len(ds) == 0 {
		return nil
	}
	byID := make(map[int64]*drinks.Drink, len(ds))
	for i := range ds {
		byID[ds[i].ID] = &ds[i]
	}

	rows, err := s.db.QueryContext(ctx, `SELECT drink_id, tag FROM drink_tags ORDER BY tag`)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		if d, ok := byID[id]; ok {
			d.Tags = append(d.Tags, tag)
		}
	}
	return rows.Err()
}

// GetDrink returns the drink with slug or ErrNotFound.
func (s *Store) GetDrink(ctx context.Context, slug string) (*drinks.Drink, error) {
	d, err := scanDrink(s.db.QueryRowContext(ctx,
		`SELECT `+drinkColumns+` FROM drinks WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("drink %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get drink: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM drink_tags WHERE drink_id = ? ORDER BY tag`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		d.Tags = append(d.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return d, nil
}

// CreateDrink normalizes, validates and inserts d. On success d carries its
// ID and timestamps.
func (s *Store) CreateDrink(ctx context.Context, d *drinks.Drink) error {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO drinks (slug, title, description, ingredients, calories, notes, image, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Slug, d.Title, d.Description, strings.Join(d.Ingredients, "\n"),
			d.Calories, d.Notes, d.Image, formatTime(now), formatTime(now))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		d.ID = id
		return replaceTags(ctx, tx, id, d.Tags)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("slug %q: %w", d.Slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create drink: %w", err)
	}

	d.CreatedAt, d.UpdatedAt = now, now
	return nil
}

// UpdateDrink replaces the drink currently stored under slug with d. d.Slug
// may differ from slug to rename the drink.
func (s *Store) UpdateDrink(ctx context.Context, slug string, d *drinks.Drink) error {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			id        int64
			createdAt string
		)
		err := tx.QueryRowContext(ctx, `SELECT id, created_at FROM drinks WHERE slug = ?`, slug).Scan(&id, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("drink %q: %w", slug, ErrNotFound)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE drinks SET slug = ?, title = ?, description = ?, ingredients = ?, calories = ?,
			notes = ?, image = ?, updated_at = ? WHERE id = ?`,
			d.Slug, d.Title, d.Description, strings.Join(d.Ingredients, "\n"),
			d.Calories, d.Notes, d.Image, formatTime(now), id)
		if err != nil {
			return err
		}

		d.ID = id
		d.CreatedAt = parseTime(createdAt)
		return replaceTags(ctx, tx, id, d.Tags)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case isUniqueViolation(err):
		return fmt.Errorf("slug %q: %w", d.Slug, ErrConflict)
	case err != nil:
		return fmt.Errorf("update drink: %w", err)
	}

	d.UpdatedAt = now
	return nil
}

// DeleteDrink removes the drink and returns it as it was before deletion.
func (s *Store) DeleteDrink(ctx context.Context, slug string) (*drinks.Drink, error) {
	d, err := s.GetDrink(ctx, slug)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drinks WHERE id = ?`, d.ID); err != nil {
		return nil, fmt.Errorf("delete drink: %w", err)
	}
	return d, nil
}

// ListTags returns every tag with its drink count, ordered by tag.
func (s *Store) ListTags(ctx context.Context) ([]drinks.TagCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, COUNT(*) FROM drink_tags GROUP BY tag ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	out := []drinks.TagCount{}
	for rows.Next() {
		var tc drinks.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func replaceTags(ctx context.Context, tx *sql.Tx, id int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM drink_tags WHERE drink_id = ?`, id); err != nil {
		return err
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drink_tags (drink_id, tag) VALUES (?, ?)`, id, tag); err != nil {
			return err
		}
	}
	return nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = prefix + p
	}
	return strings.Join(parts, ", ")
}
