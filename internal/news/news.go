// Package news aggregates the per-query feeds of each category into ranked,
// deduplicated sections and commits them to the section store.
package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/topicnews/internal/article"
	"github.com/deusflow/topicnews/internal/config"
	"github.com/deusflow/topicnews/internal/metrics"
	"github.com/deusflow/topicnews/internal/normalize"
	"github.com/deusflow/topicnews/internal/rss"
	"github.com/deusflow/topicnews/internal/store"
)

const DefaultMaxItems = 20

var (
	ErrUnknownCategory = errors.New("unknown category")
	// ErrSuperseded is the cancellation cause of a refresh replaced by a newer one.
	ErrSuperseded = errors.New("refresh superseded")
)

// Resolver turns a topic query into a feed URL.
type Resolver interface {
	Resolve(query string) string
}

// Fetcher resolves a feed URL to raw items; failures are carried in the result.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) rss.FetchResult
}

// CommitFunc observes every successful commit. scope is "all" or a category id.
type CommitFunc func(ctx context.Context, scope string, committed []string)

type flight struct {
	generation uint64
	cancel     context.CancelCauseFunc
}

// Aggregator owns the category configuration and runs refreshes against it.
type Aggregator struct {
	categories []config.Category
	resolver   Resolver
	fetcher    Fetcher
	store      *store.SectionStore

	MaxItems         int
	DescriptionLimit int
	Logger           *slog.Logger
	Now              func() time.Time
	OnCommit         CommitFunc

	generation atomic.Uint64

	mu       sync.Mutex
	full     *flight
	inflight map[string]*flight
}

func New(categories []config.Category, resolver Resolver, fetcher Fetcher, st *store.SectionStore) *Aggregator {
	return &Aggregator{
		categories: append([]config.Category(nil), categories...),
		resolver:   resolver,
		fetcher:    fetcher,
		store:      st,
		MaxItems:   DefaultMaxItems,
		inflight:   make(map[string]*flight),
	}
}

func (a *Aggregator) Categories() []config.Category {
	return append([]config.Category(nil), a.categories...)
}

func (a *Aggregator) Category(id string) (config.Category, bool) {
	for _, c := range a.categories {
		if c.ID == id {
			return c, true
		}
	}
	return config.Category{}, false
}

func (a *Aggregator) Store() *store.SectionStore {
	return a.store
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// RefreshAll fetches every query of every category concurrently and commits
// all categories in one swap once every fetch has resolved. A running full
// refresh is canceled by the next one.
func (a *Aggregator) RefreshAll(ctx context.Context) (map[string][]article.Article, error) {
	start := time.Now()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	a.mu.Lock()
	gen := a.generation.Add(1)
	if a.full != nil {
		a.full.cancel(ErrSuperseded)
	}
	a.full = &flight{generation: gen, cancel: cancel}
	catCtx := make([]context.Context, len(a.categories))
	for i, c := range a.categories {
		catCtx[i] = a.registerLocked(ctx, c.ID, gen)
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.full != nil && a.full.generation == gen {
			a.full = nil
		}
		for _, c := range a.categories {
			a.unregisterLocked(c.ID, gen)
		}
	}()

	log := a.logger().With("scope", "all", "generation", gen)
	log.Info("refresh started", "categories", len(a.categories))

	now := a.now()
	raw := make([][]article.Article, len(a.categories))
	failures := make([]int, len(a.categories))
	var g errgroup.Group
	for i, c := range a.categories {
		i, c := i, c
		g.Go(func() error {
			raw[i], failures[i] = a.collect(catCtx[i], c, now)
			return nil
		})
	}
	g.Wait()

	if err := context.Cause(ctx); err != nil {
		log.Warn("refresh abandoned", "error", err)
		return nil, fmt.Errorf("refresh all: %w", err)
	}

	result := make(map[string][]article.Article, len(a.categories))
	totalQueries, totalFailures := 0, 0
	for i, c := range a.categories {
		totalQueries += len(c.Queries)
		totalFailures += failures[i]
		if cause := context.Cause(catCtx[i]); cause != nil {
			log.Info("category superseded by targeted refresh", "category", c.ID, "error", cause)
			continue
		}
		result[c.ID] = a.rank(c.ID, raw[i])
	}

	committed := a.store.ReplaceAll(gen, result)
	a.afterCommit(ctx, "all", committed, result)

	metrics.Global.RecordRefresh("all", time.Since(start))
	if totalQueries > 0 && totalFailures == totalQueries {
		metrics.Global.SetError(fmt.Sprintf("all %d queries failed", totalQueries))
	}
	log.Info("refresh finished",
		"committed", len(committed),
		"failed_queries", totalFailures,
		"duration", time.Since(start))
	return result, nil
}

// RefreshOne refreshes a single category and replaces only its slice. It
// cancels any in-flight fetches for the same category, including those of a
// running full refresh.
func (a *Aggregator) RefreshOne(ctx context.Context, id string) ([]article.Article, error) {
	cat, ok := a.Category(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, id)
	}

	start := time.Now()
	a.mu.Lock()
	gen := a.generation.Add(1)
	cctx := a.registerLocked(ctx, id, gen)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.unregisterLocked(id, gen)
	}()

	log := a.logger().With("scope", id, "generation", gen)
	items, failures := a.collect(cctx, cat, a.now())
	if err := context.Cause(cctx); err != nil {
		log.Warn("refresh abandoned", "error", err)
		return nil, fmt.Errorf("refresh %s: %w", id, err)
	}

	ranked := a.rank(id, items)
	if !a.store.Replace(id, gen, ranked) {
		log.Info("newer data already stored, result discarded")
		return ranked, nil
	}
	a.afterCommit(ctx, id, []string{id}, map[string][]article.Article{id: ranked})

	metrics.Global.RecordRefresh("category", time.Since(start))
	log.Info("refresh finished", "count", len(ranked), "failed_queries", failures, "duration", time.Since(start))
	return ranked, nil
}

func (a *Aggregator) registerLocked(parent context.Context, id string, gen uint64) context.Context {
	if prev, ok := a.inflight[id]; ok {
		prev.cancel(ErrSuperseded)
	}
	ctx, cancel := context.WithCancelCause(parent)
	a.inflight[id] = &flight{generation: gen, cancel: cancel}
	return ctx
}

func (a *Aggregator) unregisterLocked(id string, gen uint64) {
	if f, ok := a.inflight[id]; ok && f.generation == gen {
		f.cancel(nil)
		delete(a.inflight, id)
	}
}

// collect resolves, fetches and normalizes every query of cat concurrently.
// Items keep query order, then feed order. It returns the number of failed queries.
func (a *Aggregator) collect(ctx context.Context, cat config.Category, now time.Time) ([]article.Article, int) {
	results := make([]rss.FetchResult, len(cat.Queries))

	var g errgroup.Group
	for i, q := range cat.Queries {
		i, q := i, q
		g.Go(func() error {
			results[i] = a.fetcher.Fetch(ctx, a.resolver.Resolve(q))
			return nil
		})
	}
	g.Wait()

	opts := normalize.Options{DescriptionLimit: a.DescriptionLimit, Now: now}
	var items []article.Article
	failures := 0
	for i, res := range results {
		if res.Err != nil {
			failures++
			metrics.QueryFailures.WithLabelValues(cat.ID).Inc()
			a.logger().Warn("query failed", "category", cat.ID, "query", cat.Queries[i], "error", res.Err)
			continue
		}
		a.logger().Debug("query fetched",
			"category", cat.ID,
			"query", cat.Queries[i],
			"transport", res.Transport,
			"count", len(res.Items))
		items = append(items, normalize.NormalizeAll(res.Items, opts)...)
	}
	return items, failures
}

func (a *Aggregator) rank(section string, items []article.Article) []article.Article {
	out, dropped := Process(items, section, a.MaxItems)
	if dropped > 0 {
		metrics.DuplicatesFiltered.WithLabelValues(section).Add(float64(dropped))
	}
	return out
}

func (a *Aggregator) afterCommit(ctx context.Context, scope string, committed []string, data map[string][]article.Article) {
	for _, id := range committed {
		metrics.SectionArticles.WithLabelValues(id).Set(float64(len(data[id])))
	}
	if a.OnCommit != nil && len(committed) > 0 {
		a.OnCommit(context.WithoutCancel(ctx), scope, committed)
	}
}

// Process deduplicates items by Article.Key (first occurrence wins, empty keys
// are dropped), assigns section, sorts newest first and keeps at most max
// items (max <= 0 keeps all). Equal dates keep their input order. It also
// returns how many items were dropped before truncation.
func Process(items []article.Article, section string, max int) ([]article.Article, int) {
	seen := make(map[string]struct{}, len(items))
	out := make([]article.Article, 0, len(items))
	dropped := 0

	for _, it := range items {
		key := it.Key()
		if key == "" {
			dropped++
			continue
		}
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it.WithSection(section))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Published.After(out[j].Published)
	})

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, dropped
}
