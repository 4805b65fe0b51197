package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func negroni() *drinks.Drink {
	return &drinks.Drink{
		Title:       "Negroni",
		Description: "Bitter and bold.",
		Ingredients: []string{"1 oz gin", "1 oz Campari", "1 oz sweet vermouth"},
		Calories:    200,
		Notes:       "Stir with ice.",
		Tags:        []string{"Gin", "stirred"},
		Image:       "negroni.jpg",
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.migrate(context.Background()))

	var version int
	require.NoError(t, s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestCreateAndGetDrink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := negroni()
	require.NoError(t, s.CreateDrink(ctx, d))
	assert.NotZero(t, d.ID)
	assert.Equal(t, "negroni", d.Slug)
	assert.False(t, d.CreatedAt.IsZero())

	got, err := s.GetDrink(ctx, "negroni")
	require.NoError(t, err)
	assert.Equal(t, "Negroni", got.Title)
	assert.Equal(t, d.Ingredients, got.Ingredients)
	assert.Equal(t, []string{"gin", "stirred"}, got.Tags)
	assert.Equal(t, 200, got.Calories)
	assert.WithinDuration(t, d.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreateDrink_Validation(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateDrink(context.Background(), &drinks.Drink{Title: "Empty"})
	require.ErrorIs(t, err, drinks.ErrInvalid)
}

func TestCreateDrink_DuplicateSlug(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDrink(ctx, negroni()))
	err := s.CreateDrink(ctx, negroni())
	require.ErrorIs(t, err, ErrConflict)
}

func TestGetDrink_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDrink(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDrink_Rename(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDrink(ctx, negroni()))

	upd := negroni()
	upd.Title = "Negroni Sbagliato"
	upd.Slug = ""
	upd.Tags = []string{"prosecco"}
	require.NoError(t, s.UpdateDrink(ctx, "negroni", upd))
	assert.Equal(t, "negroni-sbagliato", upd.Slug)

	_, err := s.GetDrink(ctx, "negroni")
	require.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetDrink(ctx, "negroni-sbagliato")
	require.NoError(t, err)
	assert.Equal(t, []string{"prosecco"}, got.Tags)
}

func TestUpdateDrink_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDrink(ctx, negroni()))
	require.NoError(t, s.CreateDrink(ctx, &drinks.Drink{Title: "Martini", Ingredients: []string{"gin"}}))

	err := s.UpdateDrink(ctx, "missing", negroni())
	assert.ErrorIs(t, err, ErrNotFound)

	clash := negroni()
	clash.Slug = "martini"
	err = s.UpdateDrink(ctx, "negroni", clash)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDeleteDrink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateDrink(ctx, negroni()))

	deleted, err := s.DeleteDrink(ctx, "negroni")
	require.NoError(t, err)
	assert.Equal(t, []string{"gin", "stirred"}, deleted.Tags)

	_, err = s.DeleteDrink(ctx, "negroni")
	assert.True(t, errors.Is(err, ErrNotFound))

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags, "tags must cascade with the drink")
}

func TestListDrinksAndTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateDrink(ctx, negroni()))
	require.NoError(t, s.CreateDrink(ctx, &drinks.Drink{
		Title: "Gimlet", Ingredients: []string{"gin", "lime"}, Tags: []string{"gin", "sour"},
	}))
	require.NoError(t, s.CreateDrink(ctx, &drinks.Drink{
		Title: "daiquiri", Ingredients: []string{"rum"}, Tags: []string{"sour"},
	}))

	all, err := s.ListDrinks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"daiquiri", "gimlet", "negroni"},
		[]string{all[0].Slug, all[1].Slug, all[2].Slug})
	assert.Equal(t, []string{"gin", "sour"}, all[1].Tags)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []drinks.TagCount{{Tag: "gin", Count: 2}, {Tag: "sour", Count: 2}, {Tag: "stirred", Count: 1}}, tags)

	sours, err := s.DrinksByTag(ctx, " SOUR ")
	require.NoError(t, err)
	require.Len(t, sours, 2)
	assert.Equal(t, "daiquiri", sours[0].Slug)
	assert.Equal(t, "gimlet", sours[1].Slug)
}

func TestListDrinks_Empty(t *testing.T) {
	s := openTestStore(t)

	all, err := s.ListDrinks(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "admin")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertUser(ctx, "admin", "hash-1"))
	require.NoError(t, s.UpsertUser(ctx, "admin", "hash-2"))

	u, err := s.GetUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", u.PasswordHash)
}
