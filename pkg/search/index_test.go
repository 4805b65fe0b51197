package search

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
)

func fixtures() []drinks.Drink {
	return []drinks.Drink{
		{
			Slug: "negroni", Title: "Negroni",
			Ingredients: []string{"1 oz gin", "1 oz Campari", "1 oz sweet vermouth"},
			Tags:        []string{"gin", "stirred"},
		},
		{
			Slug: "gimlet", Title: "Gimlet",
			Ingredients: []string{"2 oz gin", "3/4 oz lime juice"},
			Tags:        []string{"sour"},
			Description: "Tart and bright.",
		},
		{
			Slug: "pina-colada", Title: "Piña Colada",
			Ingredients: []string{"2 oz rum", "coconut cream", "pineapple juice"},
			Tags:        []string{"tiki"},
			Notes:       "Blend with ice.",
		},
		{
			Slug: "gin-fizz", Title: "Gin Fizz",
			Ingredients: []string{"2 oz gin", "lemon", "soda"},
			Tags:        []string{"sour", "fizzy"},
		},
	}
}

func slugs(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Drink.Slug
	}
	return out
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"pina", "colada", "3", "4", "oz"}, Tokenize("Piña Colada, 3/4 oz!"))
	assert.Empty(t, Tokenize("  -- "))
}

func TestSearch_RanksTitleAboveIngredient(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	got := idx.Search("gin", 0)
	require.Len(t, got, 3)
	// Gin Fizz has gin in title and ingredients; Negroni has gin as tag and ingredient.
	assert.Equal(t, []string{"gin-fizz", "negroni", "gimlet"}, slugs(got))
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSearch_TokensAreAnded(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	assert.Equal(t, []string{"gimlet"}, slugs(idx.Search("gin lime", 0)))
	assert.Empty(t, idx.Search("gin coconut", 0))
}

func TestSearch_LastTokenIsPrefix(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	assert.Equal(t, []string{"pina-colada"}, slugs(idx.Search("coco", 0)))
	assert.Equal(t, []string{"gin-fizz"}, slugs(idx.Search("fiz", 0)))
	// Only the last token is a prefix.
	assert.Empty(t, idx.Search("coco cream", 0))
}

func TestSearch_PrefixScoresSumAcrossTerms(t *testing.T) {
	idx := New()
	idx.Build([]drinks.Drink{
		{Slug: "gin-thing", Title: "Gin Thing", Ingredients: []string{"ginger beer"}},
		{Slug: "gin-only", Title: "Gin Only", Ingredients: []string{"soda"}},
	})

	got := idx.Search("gin", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "gin-thing", got[0].Drink.Slug)
	assert.Equal(t, WeightTitle+WeightIngredient, got[0].Score, "gin in the title plus ginger in an ingredient")
	assert.Equal(t, WeightTitle, got[1].Score)

	got = idx.Search("thing gin", 0)
	require.Len(t, got, 1)
	assert.Equal(t, WeightTitle+WeightTitle+WeightIngredient, got[0].Score)
}

func TestSearch_FoldsAccents(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	assert.Equal(t, []string{"pina-colada"}, slugs(idx.Search("PIÑA", 0)))
	assert.Equal(t, []string{"pina-colada"}, slugs(idx.Search("pina", 0)))
}

func TestSearch_EmptyQueryAndLimit(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	assert.Empty(t, idx.Search("   ", 0))
	assert.Len(t, idx.Search("oz", 2), 2)
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := New()
	assert.Empty(t, idx.Search("gin", 10))
	assert.Equal(t, 0, idx.Stats().Documents)
}

func TestBuild_ReplacesContents(t *testing.T) {
	idx := New()
	idx.Build(fixtures())
	require.NotEmpty(t, idx.Search("negroni", 0))

	idx.Build(fixtures()[1:])
	assert.Empty(t, idx.Search("negroni", 0))

	stats := idx.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.NotZero(t, stats.Terms)
	assert.False(t, stats.BuiltAt.IsZero())
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	in := fixtures()
	idx := New()
	idx.Build(in)

	in[0].Title = "Changed"
	got := idx.Search("negroni", 0)
	require.Len(t, got, 1)
	assert.Equal(t, "Negroni", got[0].Drink.Title)
}

func TestConcurrentSearchAndBuild(t *testing.T) {
	idx := New()
	idx.Build(fixtures())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				idx.Search("gin", 5)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				idx.Build(fixtures())
			}
		}()
	}
	wg.Wait()

	assert.Len(t, idx.Search("gin", 0), 3)
}
