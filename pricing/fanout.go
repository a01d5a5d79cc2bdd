package pricing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Fan-out defaults.
const (
	DefaultTopN           = 3
	DefaultPerItemTimeout = 10 * time.Second
	DefaultMaxConcurrent  = 8
)

// Lookup runs independent, concurrently bounded price searches, one per
// item. The join is barrier-style: it waits for every search to settle
// before returning. A slow or failing item never blocks or fails its
// siblings; its entry degrades to an empty list.
type Lookup struct {
	searcher       Searcher
	topN           int
	perItemTimeout time.Duration
	maxConcurrent  int64
	logger         *slog.Logger
}

// LookupOption configures a Lookup.
type LookupOption func(*Lookup)

// WithTopN caps the results kept per item.
func WithTopN(n int) LookupOption {
	return func(l *Lookup) {
		if n > 0 {
			l.topN = n
		}
	}
}

// WithPerItemTimeout sets the deadline for a single item search, nested
// inside the caller's context.
func WithPerItemTimeout(d time.Duration) LookupOption {
	return func(l *Lookup) {
		if d > 0 {
			l.perItemTimeout = d
		}
	}
}

// WithMaxConcurrent bounds how many searches run at once.
func WithMaxConcurrent(n int) LookupOption {
	return func(l *Lookup) {
		if n > 0 {
			l.maxConcurrent = int64(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LookupOption {
	return func(l *Lookup) {
		l.logger = logger
	}
}

// NewLookup creates a fan-out lookup over the given collaborator.
func NewLookup(searcher Searcher, opts ...LookupOption) *Lookup {
	l := &Lookup{
		searcher:       searcher,
		topN:           DefaultTopN,
		perItemTimeout: DefaultPerItemTimeout,
		maxConcurrent:  DefaultMaxConcurrent,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LookupMany searches every item concurrently and returns a map with
// exactly one entry per requested item, success or not. Duplicate item
// names collapse to a single search.
func (l *Lookup) LookupMany(ctx context.Context, items []string) map[string][]Product {
	results := make(map[string][]Product, len(items))
	unique := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := results[item]; ok {
			continue
		}
		results[item] = []Product{} // every key present even if its search never runs
		unique = append(unique, item)
	}

	sem := semaphore.NewWeighted(l.maxConcurrent)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, item := range unique {
		wg.Add(1)
		go func(item string) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				l.logger.Warn("Price search skipped", "item", item, "error", err)
				return
			}
			defer sem.Release(1)

			products := l.searchOne(ctx, item)

			mu.Lock()
			results[item] = products
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return results
}

// searchOne runs a single item search under its own deadline and degrades
// any failure to an empty result.
func (l *Lookup) searchOne(ctx context.Context, item string) []Product {
	itemCtx, cancel := context.WithTimeout(ctx, l.perItemTimeout)
	defer cancel()

	started := time.Now()
	products, err := l.searcher.Search(itemCtx, item)
	if err != nil {
		l.logger.Warn("Price search degraded to empty result",
			"item", item,
			"elapsed", time.Since(started),
			"error", err)
		return []Product{}
	}

	if len(products) > l.topN {
		products = products[:l.topN]
	}
	if products == nil {
		products = []Product{}
	}
	return products
}
