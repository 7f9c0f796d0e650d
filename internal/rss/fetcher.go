package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/topicnews/internal/metrics"
	"github.com/deusflow/topicnews/internal/normalize"
	"github.com/deusflow/topicnews/internal/retry"
)

// FetchResult is the outcome of resolving one feed URL. Err is set only when
// every transport failed, in which case Items is empty.
type FetchResult struct {
	URL       string
	Items     []normalize.RawItem
	Transport string
	Fallback  bool
	Err       error
}

// FallbackFetcher tries Primary and, on any failure, Secondary. Each transport
// attempt runs under its own Timeout. A non-nil Limiter throttles outbound
// requests across every transport.
type FallbackFetcher struct {
	Primary   Transport
	Secondary Transport
	Timeout   time.Duration
	Retry     retry.RetryConfig
	Limiter   *rate.Limiter
	Logger    *slog.Logger
}

func (f *FallbackFetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Fetch never returns an error directly; failures are reported in FetchResult.Err.
func (f *FallbackFetcher) Fetch(ctx context.Context, feedURL string) FetchResult {
	res := FetchResult{URL: feedURL}

	var primaryErr error
	if f.Primary != nil {
		items, err := f.attempt(ctx, f.Primary, feedURL)
		if err == nil {
			res.Items = items
			res.Transport = f.Primary.Name()
			return res
		}
		primaryErr = err
		f.logger().Debug("primary transport failed", "url", feedURL, "transport", f.Primary.Name(), "error", err)
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("fetch %s: %w", feedURL, errors.Join(primaryErr, ctx.Err()))
			return res
		}
	}

	if f.Secondary == nil {
		if primaryErr == nil {
			primaryErr = errNoTransport
		}
		res.Err = fmt.Errorf("fetch %s: %w", feedURL, primaryErr)
		return res
	}

	metrics.FallbackTotal.Inc()
	res.Fallback = f.Primary != nil
	items, err := f.attempt(ctx, f.Secondary, feedURL)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s: %w", feedURL, errors.Join(primaryErr, err))
		return res
	}
	res.Items = items
	res.Transport = f.Secondary.Name()
	return res
}

func (f *FallbackFetcher) attempt(ctx context.Context, t Transport, feedURL string) ([]normalize.RawItem, error) {
	var items []normalize.RawItem
	err := retry.WithRetry(ctx, f.Retry, func(ctx context.Context) error {
		attemptCtx := ctx
		if f.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, f.Timeout)
			defer cancel()
		}

		if f.Limiter != nil {
			if err := f.Limiter.Wait(attemptCtx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
		}

		got, err := t.Fetch(attemptCtx, feedURL)
		metrics.RecordFetch(t.Name(), err)
		if err != nil {
			return err
		}
		items = got
		return nil
	})
	return items, err
}
