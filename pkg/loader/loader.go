// Package loader produces the JSON payloads behind every public page and
// tags them with the surrogate keys used for cache and CDN invalidation.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/search"
	"github.com/Sternrassler/drinks-fyi/pkg/store"
)

// Route names.
const (
	RouteHome   = "home"
	RouteDrink  = "drink"
	RouteTags   = "tags"
	RouteTag    = "tag"
	RouteSearch = "search"
)

// Surrogate keys shared by list pages.
const (
	SurrogateHome = "drinks"
	SurrogateTags = "tags"
)

// SearchLimit caps the number of search hits in a payload.
const SearchLimit = 50

// Card and image sizes.
const (
	cardWidth, cardHeight = 400, 500
	heroWidth, heroHeight = 800, 1000
)

// ErrNotFound is returned when a route has nothing to show.
var ErrNotFound = store.ErrNotFound

var loadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "drinks_loader_duration_seconds",
	Help:    "Loader duration in seconds by route",
	Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
}, []string{"route"})

// DrinkSurrogate is the surrogate key of a drink page.
func DrinkSurrogate(slug string) string { return "drink:" + slug }

// TagSurrogate is the surrogate key of a tag page. Surrogate-Key headers
// are space-separated, so the tag is path-escaped into a single token.
func TagSurrogate(tag string) string { return "tag:" + url.PathEscape(tag) }

// HomeKey returns the cache key of the home gallery.
func HomeKey() cache.Key { return cache.Key{Route: RouteHome} }

// DrinkKey returns the cache key of a drink page.
func DrinkKey(slug string) cache.Key {
	return cache.Key{Route: RouteDrink, Params: map[string]string{"slug": slug}}
}

// TagsKey returns the cache key of the tag list.
func TagsKey() cache.Key { return cache.Key{Route: RouteTags} }

// TagKey returns the cache key of a tag page.
func TagKey(tag string) cache.Key {
	return cache.Key{Route: RouteTag, Params: map[string]string{"tag": tag}}
}

// SearchKey returns the key of a search query. It is never cached.
func SearchKey(q string) cache.Key {
	return cache.Key{Route: RouteSearch, Params: map[string]string{"q": q}}
}

// Source is the content store read by loaders.
type Source interface {
	ListDrinks(ctx context.Context) ([]drinks.Drink, error)
	GetDrink(ctx context.Context, slug string) (*drinks.Drink, error)
	ListTags(ctx context.Context) ([]drinks.TagCount, error)
	DrinksByTag(ctx context.Context, tag string) ([]drinks.Drink, error)
}

// Cache is the payload cache used by Cached.
type Cache interface {
	GetOrLoad(ctx context.Context, key cache.Key, load cache.LoadFunc) (*cache.Entry, bool, error)
}

// Card is a drink summary shown in galleries.
type Card struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ImageURL    string   `json:"image_url"`
}

// HomePayload backs the home gallery.
type HomePayload struct {
	Drinks []Card `json:"drinks"`
}

// DrinkPayload backs a drink page.
type DrinkPayload struct {
	Drink     drinks.Drink  `json:"drink"`
	NotesHTML template.HTML `json:"notes_html"`
	ImageURL  string        `json:"image_url"`
}

// TagsPayload backs the tag list.
type TagsPayload struct {
	Tags []drinks.TagCount `json:"tags"`
}

// TagPayload backs a tag page.
type TagPayload struct {
	Tag    string `json:"tag"`
	Drinks []Card `json:"drinks"`
}

// SearchHit is a scored card.
type SearchHit struct {
	Card
	Score int `json:"score"`
}

// SearchPayload backs the search page.
type SearchPayload struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// Options configures a Loader.
type Options struct {
	// ImageBaseURL prefixes relative drink image paths.
	ImageBaseURL string

	// TTL is the lifetime of cached payloads.
	TTL time.Duration
}

// Loader builds route payloads from the content store and search index.
type Loader struct {
	src    Source
	index  *search.Index
	cache  Cache
	opts   Options
	logger zerolog.Logger
}

// New creates a loader. A nil cache disables caching.
func New(src Source, index *search.Index, c Cache, opts Options, logger zerolog.Logger) *Loader {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Loader{
		src:    src,
		index:  index,
		cache:  c,
		opts:   opts,
		logger: logger,
	}
}

// Index returns the search index the loader queries.
func (l *Loader) Index() *search.Index {
	return l.index
}

func (l *Loader) card(d drinks.Drink) Card {
	return Card{
		Slug:        d.Slug,
		Title:       d.Title,
		Description: d.Description,
		Tags:        d.Tags,
		ImageURL:    drinks.ImageURL(l.opts.ImageBaseURL, d.Image, cardWidth, cardHeight),
	}
}

func (l *Loader) cards(ds []drinks.Drink) []Card {
	out := make([]Card, len(ds))
	for i, d := range ds {
		out[i] = l.card(d)
	}
	return out
}

// Home loads every drink as a card.
func (l *Loader) Home(ctx context.Context) (*HomePayload, []string, error) {
	ds, err := l.src.ListDrinks(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list drinks: %w", err)
	}
	return &HomePayload{Drinks: l.cards(ds)}, []string{SurrogateHome}, nil
}

// Drink loads one drink with rendered notes.
func (l *Loader) Drink(ctx context.Context, slug string) (*DrinkPayload, []string, error) {
	d, err := l.src.GetDrink(ctx, slug)
	if err != nil {
		return nil, nil, fmt.Errorf("get drink %q: %w", slug, err)
	}
	notes, err := drinks.RenderNotes(d.Notes)
	if err != nil {
		return nil, nil, fmt.Errorf("render notes for %q: %w", slug, err)
	}
	return &DrinkPayload{
		Drink:     *d,
		NotesHTML: notes,
		ImageURL:  drinks.ImageURL(l.opts.ImageBaseURL, d.Image, heroWidth, heroHeight),
	}, []string{DrinkSurrogate(d.Slug)}, nil
}

// Tags loads every tag with its drink count.
func (l *Loader) Tags(ctx context.Context) (*TagsPayload, []string, error) {
	tags, err := l.src.ListTags(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list tags: %w", err)
	}
	return &TagsPayload{Tags: tags}, []string{SurrogateTags}, nil
}

// Tag loads the drinks carrying tag. A tag without drinks is not found.
func (l *Loader) Tag(ctx context.Context, tag string) (*TagPayload, []string, error) {
	tag = drinks.NormalizeTag(tag)
	ds, err := l.src.DrinksByTag(ctx, tag)
	if err != nil {
		return nil, nil, fmt.Errorf("drinks by tag %q: %w", tag, err)
	}
	if len(ds) == 0 {
		return nil, nil, fmt.Errorf("tag %q: %w", tag, ErrNotFound)
	}
	return &TagPayload{Tag: tag, Drinks: l.cards(ds)}, []string{TagSurrogate(tag)}, nil
}

// Search queries the in-process index.
func (l *Loader) Search(_ context.Context, q string) (*SearchPayload, []string, error) {
	results := l.index.Search(q, SearchLimit)
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{Card: l.card(r.Drink), Score: r.Score}
	}
	return &SearchPayload{Query: q, Results: hits}, []string{SurrogateHome}, nil
}

// Load runs the loader for key and encodes its payload as a cache entry.
func (l *Loader) Load(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	start := time.Now()
	defer func() {
		loadDuration.WithLabelValues(key.Route).Observe(time.Since(start).Seconds())
	}()

	var (
		payload any
		sks     []string
		err     error
	)
	switch key.Route {
	case RouteHome:
		payload, sks, err = l.Home(ctx)
	case RouteDrink:
		payload, sks, err = l.Drink(ctx, key.Params["slug"])
	case RouteTags:
		payload, sks, err = l.Tags(ctx)
	case RouteTag:
		payload, sks, err = l.Tag(ctx, key.Params["tag"])
	case RouteSearch:
		payload, sks, err = l.Search(ctx, key.Params["q"])
	default:
		return nil, fmt.Errorf("unknown route %q", key.Route)
	}
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", key.Route, err)
	}
	return cache.NewEntry(data, sks, l.opts.TTL), nil
}

// Cached returns the payload for key through the cache. Search results and
// loaders without a cache always load directly. The boolean reports a hit.
func (l *Loader) Cached(ctx context.Context, key cache.Key) (*cache.Entry, bool, error) {
	if l.cache == nil || key.Route == RouteSearch {
		entry, err := l.Load(ctx, key)
		return entry, false, err
	}
	return l.cache.GetOrLoad(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		return l.Load(ctx, key)
	})
}

// Routes enumerates every cacheable route key.
func (l *Loader) Routes(ctx context.Context) ([]cache.Key, error) {
	ds, err := l.src.ListDrinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drinks: %w", err)
	}
	tags, err := l.src.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	keys := make([]cache.Key, 0, 2+len(ds)+len(tags))
	keys = append(keys, HomeKey(), TagsKey())
	for _, d := range ds {
		keys = append(keys, DrinkKey(d.Slug))
	}
	for _, t := range tags {
		keys = append(keys, TagKey(t.Tag))
	}
	return keys, nil
}

// Reindex rebuilds the search index from the content store.
func (l *Loader) Reindex(ctx context.Context) (search.Stats, error) {
	ds, err := l.src.ListDrinks(ctx)
	if err != nil {
		return search.Stats{}, fmt.Errorf("list drinks: %w", err)
	}
	l.index.Build(ds)
	stats := l.index.Stats()
	l.logger.Info().
		Int("documents", stats.Documents).
		Int("terms", stats.Terms).
		Msg("Search index rebuilt")
	return stats, nil
}

// Decode unmarshals a cached payload into v.
func Decode(entry *cache.Entry, v any) error {
	if err := json.Unmarshal(entry.Data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
