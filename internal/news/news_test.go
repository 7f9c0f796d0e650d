package news

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/topicnews/internal/article"
	"github.com/deusflow/topicnews/internal/config"
	"github.com/deusflow/topicnews/internal/normalize"
	"github.com/deusflow/topicnews/internal/rss"
	"github.com/deusflow/topicnews/internal/store"
)

var refreshNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type echoResolver struct{}

func (echoResolver) Resolve(q string) string { return "feed://" + q }

// fakeFetcher serves canned results keyed by feed URL. A key present in
// block makes Fetch wait until the channel is closed or ctx is done.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]rss.FetchResult
	block   map[string]chan struct{}
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string) rss.FetchResult {
	f.mu.Lock()
	f.calls = append(f.calls, feedURL)
	res, ok := f.results[feedURL]
	wait := f.block[feedURL]
	f.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return rss.FetchResult{URL: feedURL, Err: ctx.Err()}
		}
	}
	if !ok {
		return rss.FetchResult{URL: feedURL, Err: errors.New("no such feed")}
	}
	return res
}

func jsonResult(items ...normalize.JSONItem) rss.FetchResult {
	raw := make([]normalize.RawItem, len(items))
	for i, it := range items {
		raw[i] = it
	}
	return rss.FetchResult{Items: raw, Transport: "json-proxy"}
}

func newTestAggregator(cats []config.Category, f Fetcher) *Aggregator {
	a := New(cats, echoResolver{}, f, store.New())
	a.Now = func() time.Time { return refreshNow }
	return a
}

func TestEditorialScenario(t *testing.T) {
	f := &fakeFetcher{results: map[string]rss.FetchResult{
		"feed://editorial OR opinion": jsonResult(normalize.JSONItem{Title: "A", Link: "http://x.com/a", PubDate: "2024-01-02T00:00:00Z"}),
	}}
	a := newTestAggregator([]config.Category{{ID: "editorial", Label: "Editorials", Queries: []string{"editorial OR opinion"}}}, f)

	got, err := a.RefreshOne(context.Background(), "editorial")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, "x.com", got[0].Source)
	assert.Equal(t, "editorial", got[0].Section)

	stored, ok := a.Store().Get("editorial")
	require.True(t, ok)
	assert.Equal(t, got, stored)
}

func TestDuplicateAcrossQueriesCollapsed(t *testing.T) {
	f := &fakeFetcher{results: map[string]rss.FetchResult{
		"feed://q1": jsonResult(normalize.JSONItem{Title: "first copy", Link: "http://x.com/a"}),
		"feed://q2": jsonResult(normalize.JSONItem{Title: "second copy", Link: "http://x.com/a"}, normalize.JSONItem{Title: "other", Link: "http://x.com/b"}),
	}}
	a := newTestAggregator([]config.Category{{ID: "latest", Queries: []string{"q1", "q2"}}}, f)

	got, err := a.RefreshOne(context.Background(), "latest")
	require.NoError(t, err)
	require.Len(t, got, 2)

	var copies []string
	for _, it := range got {
		if it.Link == "http://x.com/a" {
			copies = append(copies, it.Title)
		}
	}
	assert.Equal(t, []string{"first copy"}, copies, "first query's item wins")
}

func TestQueryFailureDegradesCategoryOnly(t *testing.T) {
	f := &fakeFetcher{results: map[string]rss.FetchResult{
		"feed://ok":    jsonResult(normalize.JSONItem{Title: "survivor", Link: "http://x.com/s"}),
		"feed://other": jsonResult(normalize.JSONItem{Title: "pib item", Link: "http://pib.test/1"}),
	}}
	cats := []config.Category{
		{ID: "latest", Queries: []string{"broken", "ok"}},
		{ID: "pib", Queries: []string{"other"}},
		{ID: "schemes", Queries: []string{"also-broken"}},
	}
	a := newTestAggregator(cats, f)

	res, err := a.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, res["latest"], 1)
	assert.Len(t, res["pib"], 1)
	assert.Empty(t, res["schemes"])

	schemes, ok := a.Store().Get("schemes")
	assert.True(t, ok, "degraded-empty category is still committed")
	assert.Empty(t, schemes)
}

func TestRefreshAllCommitsOnlyAfterEveryQueryResolves(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{
		results: map[string]rss.FetchResult{
			"feed://fast": jsonResult(normalize.JSONItem{Title: "fast", Link: "http://x.com/fast"}),
			"feed://slow": jsonResult(normalize.JSONItem{Title: "slow", Link: "http://x.com/slow"}),
		},
		block: map[string]chan struct{}{"feed://slow": release},
	}
	cats := []config.Category{
		{ID: "latest", Queries: []string{"fast"}},
		{ID: "pib", Queries: []string{"slow"}},
	}
	a := newTestAggregator(cats, f)

	done := make(chan error, 1)
	go func() {
		_, err := a.RefreshAll(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) == 2
	}, time.Second, 5*time.Millisecond)

	_, ok := a.Store().Get("latest")
	assert.False(t, ok, "fast category must not be visible before the batch completes")

	close(release)
	require.NoError(t, <-done)

	latest, _ := a.Store().Get("latest")
	pib, _ := a.Store().Get("pib")
	assert.Len(t, latest, 1)
	assert.Len(t, pib, 1)
}

func TestTargetedRefreshSupersedesFullRefreshForCategory(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{
		results: map[string]rss.FetchResult{
			"feed://a": jsonResult(normalize.JSONItem{Title: "a", Link: "http://x.com/a"}),
			"feed://e": jsonResult(normalize.JSONItem{Title: "e", Link: "http://x.com/e"}),
		},
		block: map[string]chan struct{}{"feed://e": release},
	}
	cats := []config.Category{
		{ID: "latest", Queries: []string{"a"}},
		{ID: "editorial", Queries: []string{"e"}},
	}
	a := newTestAggregator(cats, f)

	fullDone := make(chan error, 1)
	go func() {
		_, err := a.RefreshAll(context.Background())
		fullDone <- err
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) == 2
	}, time.Second, 5*time.Millisecond)

	// The full refresh's editorial fetch is canceled; the targeted one is released.
	f.mu.Lock()
	f.block = nil
	f.mu.Unlock()

	got, err := a.RefreshOne(context.Background(), "editorial")
	require.NoError(t, err)
	require.Len(t, got, 1)
	targetedGen := a.Store().Generation("editorial")

	require.NoError(t, <-fullDone)
	close(release)

	assert.Equal(t, targetedGen, a.Store().Generation("editorial"), "older full refresh must not overwrite")
	ed, _ := a.Store().Get("editorial")
	assert.Len(t, ed, 1)
	latest, _ := a.Store().Get("latest")
	assert.Len(t, latest, 1)
	assert.Less(t, a.Store().Generation("latest"), targetedGen)
}

func TestNewerFullRefreshCancelsOlder(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{
		results: map[string]rss.FetchResult{"feed://q": jsonResult(normalize.JSONItem{Title: "q", Link: "http://x.com/q"})},
		block:   map[string]chan struct{}{"feed://q": release},
	}
	a := newTestAggregator([]config.Category{{ID: "latest", Queries: []string{"q"}}}, f)

	first := make(chan error, 1)
	go func() {
		_, err := a.RefreshAll(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	_, err := a.RefreshAll(context.Background())
	require.NoError(t, err)

	firstErr := <-first
	if firstErr != nil {
		assert.ErrorIs(t, firstErr, ErrSuperseded)
	}
	assert.Equal(t, uint64(2), a.Store().Generation("latest"))
}

func TestRefreshOneUnknownCategory(t *testing.T) {
	a := newTestAggregator(config.DefaultCategories(), &fakeFetcher{})
	_, err := a.RefreshOne(context.Background(), "sports")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestRefreshAllCanceledCommitsNothing(t *testing.T) {
	a := newTestAggregator([]config.Category{{ID: "latest", Queries: []string{"q"}}}, &fakeFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.RefreshAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := a.Store().Get("latest")
	assert.False(t, ok)
}

func TestOnCommitReceivesCommittedIDs(t *testing.T) {
	f := &fakeFetcher{results: map[string]rss.FetchResult{"feed://q": jsonResult(normalize.JSONItem{Title: "q", Link: "http://x.com/q"})}}
	a := newTestAggregator([]config.Category{{ID: "latest", Queries: []string{"q"}}, {ID: "pib", Queries: []string{"q"}}}, f)

	var scopes []string
	var ids [][]string
	a.OnCommit = func(_ context.Context, scope string, committed []string) {
		scopes = append(scopes, scope)
		ids = append(ids, committed)
	}

	_, err := a.RefreshAll(context.Background())
	require.NoError(t, err)
	_, err = a.RefreshOne(context.Background(), "pib")
	require.NoError(t, err)

	assert.Equal(t, []string{"all", "pib"}, scopes)
	assert.Equal(t, [][]string{{"latest", "pib"}, {"pib"}}, ids)
}

func TestProcessSortingWithUnparsableDate(t *testing.T) {
	opts := normalize.Options{Now: refreshNow}
	items := normalize.NormalizeAll([]normalize.RawItem{
		normalize.JSONItem{Title: "jan", Link: "http://x.com/jan", PubDate: "2024-01-01"},
		normalize.JSONItem{Title: "garbage", Link: "http://x.com/garbage", PubDate: "not a date"},
		normalize.JSONItem{Title: "jun", Link: "http://x.com/jun", PubDate: "2024-06-01"},
	}, opts)

	out, dropped := Process(items, "latest", 0)
	assert.Zero(t, dropped)
	assert.Equal(t, []string{"garbage", "jun", "jan"}, titlesOf(out), "unparsable dates sort as the refresh time")
}

func TestProcessTiesKeepInputOrder(t *testing.T) {
	same := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []article.Article{
		{Title: "one", Link: "http://x.com/1", Published: same},
		{Title: "two", Link: "http://x.com/2", Published: same},
		{Title: "three", Link: "http://x.com/3", Published: same},
	}
	out, _ := Process(items, "latest", 0)
	assert.Equal(t, []string{"one", "two", "three"}, titlesOf(out))
}

func TestProcessDedupeKeyRules(t *testing.T) {
	items := []article.Article{
		{Title: "a", Link: "http://x.com/a"},
		{Title: "a-trailing-space", Link: "http://x.com/a "},
		{Title: "A-upper", Link: "http://X.com/a"},
		{Title: "title only"},
		{Title: " title only "},
		{},
		{Link: "   "},
	}
	out, dropped := Process(items, "latest", 0)
	assert.Equal(t, []string{"a", "A-upper", "title only"}, titlesOf(out))
	assert.Equal(t, 4, dropped)
	for _, it := range out {
		assert.Equal(t, "latest", it.Section)
	}
	assert.Empty(t, items[0].Section, "input must not be mutated")
}

func TestProcessTruncatesToMostRecent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]article.Article, 50)
	for i := range items {
		items[i] = article.Article{
			Title:     fmt.Sprintf("item-%02d", i),
			Link:      fmt.Sprintf("http://x.com/%d", i),
			Published: base.Add(time.Duration(i) * time.Hour),
		}
	}

	out, _ := Process(items, "latest", 20)
	require.Len(t, out, 20)
	assert.Equal(t, "item-49", out[0].Title)
	assert.Equal(t, "item-30", out[19].Title)
}

func titlesOf(as []article.Article) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Title
	}
	return out
}
