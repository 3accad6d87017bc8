// Package engine binds every other component into the one call
// external callers make: ParseSite. It owns the worker pool, the
// frontier, the seen-set, the aggregator, and the stop conditions —
// nothing else in the module is allowed to coordinate a crawl.
package engine

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bk-ru/parser/internal/aggregate"
	"github.com/bk-ru/parser/internal/canon"
	"github.com/bk-ru/parser/internal/config"
	"github.com/bk-ru/parser/internal/domaingate"
	"github.com/bk-ru/parser/internal/emailx"
	"github.com/bk-ru/parser/internal/fetcher"
	"github.com/bk-ru/parser/internal/frontier"
	"github.com/bk-ru/parser/internal/htmlx"
	"github.com/bk-ru/parser/internal/obslog"
	"github.com/bk-ru/parser/internal/phonex"
)

// engine holds the state a crawl run shares across its workers: the
// frontier, the aggregator, and the dispatch counters, all guarded by
// one mutex per §5. cond lets idle workers block until either new
// work is enqueued or the run is declared done.
type engine struct {
	mu    sync.Mutex
	cond  *sync.Cond
	front *frontier.Frontier
	agg   *aggregate.Aggregator

	cfg        config.CrawlConfig
	startHost  string
	fetch      fetcher.Fetcher
	rec        *obslog.Recorder
	pagesSeen  int
	inFlight   int
}

// ParseSite is the library entry point: it fetches startURL and every
// in-scope page reachable from it, up to the budgets in cfg, and
// returns the deduplicated contacts harvested along the way.
//
// The only error ParseSite returns is an invalid start URL; every
// other failure along the way is absorbed and logged.
func ParseSite(startURL string, cfg config.CrawlConfig, rec *obslog.Recorder) (CrawlResult, error) {
	if rec == nil {
		rec = obslog.Noop()
	}
	return ParseSiteWithFetcher(startURL, cfg, rec, fetcher.NewHtmlFetcher(rec))
}

// ParseSiteWithFetcher is ParseSite with the Fetcher injected, so
// tests can drive the engine against a stub implementation instead of
// real network I/O.
func ParseSiteWithFetcher(startURL string, cfg config.CrawlConfig, rec *obslog.Recorder, fetch fetcher.Fetcher) (CrawlResult, error) {
	if rec == nil {
		rec = obslog.Noop()
	}

	start, err := canon.Canonicalize(startURL, nil, cfg.IncludeQuery())
	if err != nil {
		return CrawlResult{}, &InvalidUrlError{Raw: startURL, Cause: err}
	}

	e := &engine{
		front:     frontier.New(),
		agg:       aggregate.New(),
		cfg:       cfg,
		startHost: start.Host,
		fetch:     fetch,
		rec:       rec,
	}
	e.cond = sync.NewCond(&e.mu)

	startedAt := time.Now()
	e.front.TryEnqueue(frontier.Item{URL: start, Depth: 0, Priority: 0})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxSecondsDuration())
	defer cancel()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	}()

	numWorkers := cfg.MaxConcurrency()
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runWorker(ctx)
		}()
	}
	wg.Wait()

	emails := e.agg.Emails()
	phones := e.agg.Phones()
	rec.CrawlFinished(start.Key, e.pagesSeen, len(emails), len(phones), time.Since(startedAt).Milliseconds(), stopReason(ctx))

	return CrawlResult{
		URL:    baseOf(start),
		Emails: emails,
		Phones: phones,
	}, nil
}

func stopReason(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "time budget exhausted"
	}
	return "frontier drained"
}

// baseOf renders the CrawlResult's url field: scheme://host, no path,
// no trailing slash.
func baseOf(u canon.URL) string {
	return u.Scheme + "://" + u.Host
}

// runWorker repeatedly pops the highest-priority pending URL, fetches
// and extracts it, and feeds discovered links and contacts back into
// the shared state, until tryPop reports no more work is coming.
func (e *engine) runWorker(ctx context.Context) {
	for {
		item, ok := e.tryPop(ctx)
		if !ok {
			return
		}
		outcome := e.fetchAndExtract(ctx, item)
		e.complete(item, outcome)
	}
}

// tryPop is the single admission point a worker uses to claim a URL.
// It blocks on cond while the frontier is momentarily empty but other
// workers are still in flight (and so might enqueue more), and
// returns false once the run is genuinely done: the page budget is
// exhausted, the time budget fired, or the frontier is drained with
// nothing in flight.
func (e *engine) tryPop(ctx context.Context) (frontier.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return frontier.Item{}, false
		}
		if e.pagesSeen >= e.cfg.MaxPages() {
			return frontier.Item{}, false
		}
		if item, ok := e.front.Pop(); ok {
			e.pagesSeen++
			e.inFlight++
			return item, true
		}
		if e.inFlight == 0 {
			return frontier.Item{}, false
		}
		e.cond.Wait()
	}
}

// pageOutcome is what a worker learned from one fetch+extract cycle,
// ready to be merged back under the engine's mutex.
type pageOutcome struct {
	emails []string
	phones []string
	links  []htmlx.Link
}

func (e *engine) fetchAndExtract(ctx context.Context, item frontier.Item) pageOutcome {
	target, err := url.Parse(item.URL.Key)
	if err != nil {
		// item.URL.Key was already canonicalized; a parse failure here
		// means canon produced a key url.Parse rejects, worth surfacing.
		e.rec.Error("engine", "re-parse of canonical key failed", zap.String("key", item.URL.Key), zap.Error(err))
		return pageOutcome{}
	}

	inScope := func(host string) bool {
		return domaingate.InScope(e.startHost, host)
	}

	result, classified := e.fetch.Fetch(ctx, item.Depth, fetcher.FetchParam{
		URL:            *target,
		UserAgent:      e.cfg.UserAgent(),
		MaxBodyBytes:   e.cfg.MaxBodyBytes(),
		RequestTimeout: e.cfg.RequestTimeoutDuration(),
		InScope:        inScope,
	}, fetcher.RetryPolicy{
		Total:         e.cfg.RetryTotal(),
		BackoffFactor: e.cfg.RetryBackoffFactorDuration(),
		MaxDelay:      30 * time.Second,
		Jitter:        250 * time.Millisecond,
		RandomSeed:    int64(item.URL.Key[0]) + int64(item.Depth),
	})
	if classified != nil {
		return pageOutcome{}
	}
	if result.BodyText == "" {
		return pageOutcome{}
	}

	finalURL, err := url.Parse(result.FinalURL.String())
	if err != nil {
		finalURL = target
	}

	extraction := htmlx.Extract(result.BodyText, *finalURL, htmlx.Params{
		IncludeQuery:    e.cfg.IncludeQuery(),
		MaxLinksPerPage: e.cfg.MaxLinksPerPage(),
		InScope:         inScope,
	})

	emails := emailx.Extract(extraction.PageText, extraction.MailtoTargets, emailx.Params{
		DomainAllowlist: e.cfg.EmailDomainAllowlist(),
	})
	phones := phonex.Extract(extraction.PageText, extraction.TelTargets, phonex.Params{
		Regions: e.cfg.PhoneRegions(),
	})

	e.rec.PageParsed(item.URL.Key, item.Depth, len(extraction.Links), len(emails), len(phones))
	for _, key := range extraction.OutOfScope {
		e.rec.PageSkipped(key, "out of scope")
	}

	return pageOutcome{emails: emails, phones: phones, links: extraction.Links}
}

// complete folds one worker's outcome into the shared aggregator and
// frontier, then wakes any worker waiting in tryPop for more work to
// appear.
func (e *engine) complete(item frontier.Item, outcome pageOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inFlight--
	e.agg.Merge(outcome.emails, outcome.phones)

	childDepth := item.Depth + 1
	if childDepth > e.cfg.MaxDepth() {
		for _, link := range outcome.links {
			e.rec.PageSkipped(link.URL.Key, "depth exceeded")
		}
	} else {
		for _, link := range outcome.links {
			priority := frontier.Score(link.URL, childDepth, frontier.ScoreParams{
				FocusedCrawling: e.cfg.FocusedCrawling(),
				AnchorText:      link.AnchorText,
			})
			if !e.front.TryEnqueue(frontier.Item{URL: link.URL, Depth: childDepth, Priority: priority}) {
				e.rec.PageSkipped(link.URL.Key, "already seen")
			}
		}
	}

	e.cond.Broadcast()
}
