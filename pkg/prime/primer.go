package prime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/cache"
	"github.com/Sternrassler/drinks-fyi/pkg/cdn"
	"github.com/Sternrassler/drinks-fyi/pkg/drinks"
	"github.com/Sternrassler/drinks-fyi/pkg/loader"
	"github.com/Sternrassler/drinks-fyi/pkg/search"
)

var (
	primeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_prime_runs_total",
		Help: "Prime pipeline runs by scope",
	}, []string{"scope"})

	primeRoutes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drinks_prime_routes_total",
		Help: "Routes processed by the prime pipeline by result",
	}, []string{"result"})

	primeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drinks_prime_duration_seconds",
		Help:    "Prime pipeline duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

// Loader produces route payloads and rebuilds the search index.
type Loader interface {
	Routes(ctx context.Context) ([]cache.Key, error)
	Load(ctx context.Context, key cache.Key) (*cache.Entry, error)
	Reindex(ctx context.Context) (search.Stats, error)
}

// Cache stores primed payloads.
type Cache interface {
	Set(ctx context.Context, key cache.Key, entry *cache.Entry) error
	PurgeSurrogate(ctx context.Context, surrogateKeys ...string) (int, error)
}

// Config holds pipeline configuration.
type Config struct {
	// Workers is the maximum number of routes loaded in parallel.
	Workers int

	// Timeout per route load.
	Timeout time.Duration
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 8,
		Timeout: 15 * time.Second,
	}
}

// Change describes which content changed.
type Change struct {
	Slugs []string `json:"slugs,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// SurrogateKeys returns the keys invalidated by the change. Every drink
// change touches the home gallery and the tag list.
func (c Change) SurrogateKeys() []string {
	keys := []string{loader.SurrogateHome, loader.SurrogateTags}
	seen := map[string]bool{}
	for _, s := range c.Slugs {
		if s != "" && !seen["d"+s] {
			seen["d"+s] = true
			keys = append(keys, loader.DrinkSurrogate(s))
		}
	}
	for _, t := range c.Tags {
		t = drinks.NormalizeTag(t)
		if t != "" && !seen["t"+t] {
			seen["t"+t] = true
			keys = append(keys, loader.TagSurrogate(t))
		}
	}
	return keys
}

// routes returns the route keys the change affects.
func (c Change) routes() []cache.Key {
	keys := []cache.Key{loader.HomeKey(), loader.TagsKey()}
	seen := map[string]bool{}
	for _, s := range c.Slugs {
		if s != "" && !seen["d"+s] {
			seen["d"+s] = true
			keys = append(keys, loader.DrinkKey(s))
		}
	}
	for _, t := range c.Tags {
		t = drinks.NormalizeTag(t)
		if t != "" && !seen["t"+t] {
			seen["t"+t] = true
			keys = append(keys, loader.TagKey(t))
		}
	}
	return keys
}

// Report summarises a pipeline run.
type Report struct {
	Routes   int           `json:"routes"`
	Primed   int           `json:"primed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Evicted  int           `json:"evicted"`
	Purged   []string      `json:"purged"`
	PurgeAll bool          `json:"purge_all"`
	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Primer runs the prime pipeline.
type Primer struct {
	loader Loader
	cache  Cache
	purger cdn.Purger
	config Config
	logger zerolog.Logger

	// serializes runs so index rebuilds and purges never interleave
	mu sync.Mutex
}

// New creates a primer. A nil cache skips eviction and cache writes.
func New(l Loader, c Cache, p cdn.Purger, config Config, logger zerolog.Logger) *Primer {
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if p == nil {
		p = cdn.Noop{Logger: logger}
	}
	return &Primer{
		loader: l,
		cache:  c,
		purger: p,
		config: config,
		logger: logger,
	}
}

// Prime evicts, reloads and purges everything affected by change.
// A change with All set is equivalent to PrimeAll.
func (p *Primer) Prime(ctx context.Context, change Change) *Report {
	if change.All {
		return p.PrimeAll(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	primeRuns.WithLabelValues("change").Inc()
	report := &Report{}
	sks := change.SurrogateKeys()

	p.evict(ctx, sks, report)
	p.reindex(ctx, report)
	p.load(ctx, change.routes(), report)

	if err := p.purger.PurgeKeys(ctx, sks...); err != nil {
		p.fail(report, "cdn purge", err)
	} else {
		report.Purged = sks
	}

	p.finish(report, start)
	return report
}

// PrimeAll empties the payload cache, reloads every route and purges the
// whole CDN service. Entries for routes that no longer exist are dropped.
func (p *Primer) PrimeAll(ctx context.Context) *Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	primeRuns.WithLabelValues("all").Inc()
	report := &Report{}

	p.evict(ctx, []string{cache.AllEntries}, report)
	p.reindex(ctx, report)

	routes, err := p.loader.Routes(ctx)
	if err != nil {
		p.fail(report, "enumerate routes", err)
	} else {
		p.load(ctx, routes, report)
	}

	if err := p.purger.PurgeAll(ctx); err != nil {
		p.fail(report, "cdn purge all", err)
	} else {
		report.PurgeAll = true
	}

	p.finish(report, start)
	return report
}

func (p *Primer) evict(ctx context.Context, sks []string, report *Report) {
	if p.cache == nil {
		return
	}
	n, err := p.cache.PurgeSurrogate(ctx, sks...)
	if err != nil {
		p.fail(report, "cache evict", err)
		return
	}
	report.Evicted = n
}

func (p *Primer) reindex(ctx context.Context, report *Report) {
	if _, err := p.loader.Reindex(ctx); err != nil {
		p.fail(report, "search reindex", err)
	}
}

func (p *Primer) fail(report *Report, step string, err error) {
	p.logger.Warn().Err(err).Str("step", step).Msg("Prime step failed")
	report.Errors = append(report.Errors, step+": "+err.Error())
}

func (p *Primer) finish(report *Report, start time.Time) {
	report.Duration = time.Since(start)
	primeDuration.Observe(report.Duration.Seconds())

	p.logger.Info().
		Int("routes", report.Routes).
		Int("primed", report.Primed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("evicted", report.Evicted).
		Strs("purged", report.Purged).
		Bool("purge_all", report.PurgeAll).
		Dur("duration", report.Duration).
		Msg("Prime complete")
}

type routeResult struct {
	key cache.Key
	err error
}

// load primes routes in parallel using a worker pool.
func (p *Primer) load(ctx context.Context, routes []cache.Key, report *Report) {
	report.Routes += len(routes)
	if len(routes) == 0 {
		return
	}

	queue := make(chan cache.Key, len(routes))
	results := make(chan routeResult, len(routes))
	for _, k := range routes {
		queue <- k
	}
	close(queue)

	workers := min(p.config.Workers, len(routes))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		switch {
		case r.err == nil:
			report.Primed++
			primeRoutes.WithLabelValues("primed").Inc()
		case errors.Is(r.err, loader.ErrNotFound):
			// deleted drink or emptied tag; eviction already removed it
			report.Skipped++
			primeRoutes.WithLabelValues("skipped").Inc()
		default:
			report.Failed++
			primeRoutes.WithLabelValues("failed").Inc()
			p.fail(report, "load "+r.key.String(), r.err)
		}
	}

	// routes never picked up because ctx was cancelled
	if missing := report.Routes - report.Primed - report.Skipped - report.Failed; missing > 0 {
		report.Failed += missing
		p.fail(report, "load", ctx.Err())
	}
}

// worker processes routes from the queue.
func (p *Primer) worker(ctx context.Context, queue <-chan cache.Key, results chan<- routeResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for key := range queue {
		if ctx.Err() != nil {
			p.logger.Debug().
				Int("worker_id", workerID).
				Int("routes_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		results <- routeResult{key: key, err: p.primeRoute(ctx, key)}
		processed++
	}

	if processed > 0 {
		p.logger.Debug().
			Int("worker_id", workerID).
			Int("routes_processed", processed).
			Msg("Worker completed")
	}
}

func (p *Primer) primeRoute(ctx context.Context, key cache.Key) error {
	routeCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	entry, err := p.loader.Load(routeCtx, key)
	if err != nil {
		return err
	}
	if p.cache != nil {
		if err := p.cache.Set(routeCtx, key, entry); err != nil {
			return err
		}
	}
	p.logger.Debug().Str("cache_key", key.String()).Msg("Primed route")
	return nil
}
