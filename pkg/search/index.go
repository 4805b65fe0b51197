// Package search implements the in-process full-text index over drinks.
//
// The index is an inverted map from token to postings built in one pass from
// the drinks table. Queries AND their tokens together; the final token of a
// query also matches as a prefix so results update while a visitor types.
// Rebuilds produce a fresh index that is swapped in atomically.
package search

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
)

var (
	searchQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drinks_search_queries_total",
		Help: "Total number of search queries",
	})

	searchIndexDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drinks_search_index_documents",
		Help: "Number of drinks in the search index",
	})

	searchIndexBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drinks_search_index_build_seconds",
		Help:    "Search index build duration in seconds",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1},
	})
)

// Field weights. A title match outranks a tag, which outranks an ingredient.
const (
	WeightTitle       = 5
	WeightTag         = 3
	WeightIngredient  = 2
	WeightDescription = 1
	WeightNotes       = 1
)

// Result is a scored search hit.
type Result struct {
	Drink drinks.Drink `json:"drink"`
	Score int          `json:"score"`
}

// Stats describes the current index.
type Stats struct {
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	BuiltAt   time.Time `json:"built_at"`
}

type snapshot struct {
	docs     []drinks.Drink
	postings map[string]map[int]int // token -> doc index -> weighted frequency
	terms    []string               // sorted tokens for prefix lookup
	builtAt  time.Time
}

// Index is safe for concurrent use; Build swaps a new snapshot in atomically.
type Index struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	idx.current.Store(&snapshot{postings: map[string]map[int]int{}})
	return idx
}

// Build replaces the index contents with ds.
func (idx *Index) Build(ds []drinks.Drink) {
	start := time.Now()

	snap := &snapshot{
		docs:     make([]drinks.Drink, len(ds)),
		postings: make(map[string]map[int]int),
		builtAt:  start,
	}
	copy(snap.docs, ds)

	for i, d := range snap.docs {
		add := func(text string, weight int) {
			for _, tok := range Tokenize(text) {
				p := snap.postings[tok]
				if p == nil {
					p = make(map[int]int)
					snap.postings[tok] = p
				}
				p[i] += weight
			}
		}
		add(d.Title, WeightTitle)
		for _, tag := range d.Tags {
			add(tag, WeightTag)
		}
		for _, ing := range d.Ingredients {
			add(ing, WeightIngredient)
		}
		add(d.Description, WeightDescription)
		add(d.Notes, WeightNotes)
	}

	snap.terms = make([]string, 0, len(snap.postings))
	for term := range snap.postings {
		snap.terms = append(snap.terms, term)
	}
	sort.Strings(snap.terms)

	idx.current.Store(snap)

	searchIndexDocuments.Set(float64(len(snap.docs)))
	searchIndexBuildSeconds.Observe(time.Since(start).Seconds())
}

// Search returns up to limit drinks matching every query token, best first.
// A limit <= 0 means no limit. An empty query returns no results.
func (idx *Index) Search(query string, limit int) []Result {
	searchQueriesTotal.Inc()

	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return []Result{}
	}
	snap := idx.current.Load()

	var scores map[int]int
	for i, tok := range tokens {
		var matches map[int]int
		if i == len(tokens)-1 {
			matches = snap.prefixMatches(tok)
		} else {
			matches = snap.postings[tok]
		}
		if len(matches) == 0 {
			return []Result{}
		}

		if scores == nil {
			scores = make(map[int]int, len(matches))
			for doc, w := range matches {
				scores[doc] = w
			}
			continue
		}
		for doc := range scores {
			w, ok := matches[doc]
			if !ok {
				delete(scores, doc)
				continue
			}
			scores[doc] += w
		}
		if len(scores) == 0 {
			return []Result{}
		}
	}

	results := make([]Result, 0, len(scores))
	for doc, score := range scores {
		results = append(results, Result{Drink: snap.docs[doc], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ti, tj := strings.ToLower(results[i].Drink.Title), strings.ToLower(results[j].Drink.Title)
		if ti != tj {
			return ti < tj
		}
		return results[i].Drink.Slug < results[j].Drink.Slug
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// prefixMatches sums the postings of every term starting with prefix, so a
// drink scores for each matching term. Terms are sorted, so the matching
// range is contiguous.
func (s *snapshot) prefixMatches(prefix string) map[int]int {
	start := sort.SearchStrings(s.terms, prefix)
	merged := map[int]int{}
	for _, term := range s.terms[start:] {
		if !strings.HasPrefix(term, prefix) {
			break
		}
		for doc, w := range s.postings[term] {
			merged[doc] += w
		}
	}
	return merged
}

// Stats reports the size of the current index.
func (idx *Index) Stats() Stats {
	snap := idx.current.Load()
	return Stats{Documents: len(snap.docs), Terms: len(snap.terms), BuiltAt: snap.builtAt}
}

// Tokenize folds accents, lower-cases and splits text on anything that is
// not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(drinks.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
