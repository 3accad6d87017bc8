package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bk-ru/parser/internal/config"
	"github.com/bk-ru/parser/internal/engine"
	"github.com/bk-ru/parser/internal/fetcher"
	"github.com/bk-ru/parser/pkg/failure"
	"github.com/stretchr/testify/require"
)

// stubFetcher serves canned bodies by exact URL string, simulating a
// small site graph without any real network I/O.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newStubFetcher(pages map[string]string) *stubFetcher {
	return &stubFetcher{pages: pages, hits: make(map[string]int)}
}

func (s *stubFetcher) Fetch(_ context.Context, _ int, param fetcher.FetchParam, _ fetcher.RetryPolicy) (fetcher.FetchResult, failure.ClassifiedError) {
	s.mu.Lock()
	s.hits[param.URL.String()]++
	s.mu.Unlock()

	body, ok := s.pages[param.URL.String()]
	if !ok {
		return fetcher.FetchResult{}, &stubError{msg: "404"}
	}
	return fetcher.FetchResult{
		FinalURL:    param.URL,
		StatusCode:  200,
		BodyText:    body,
		ContentType: "text/html",
	}, nil
}

func (s *stubFetcher) hitCount(u string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[u]
}

type stubError struct{ msg string }

func (e *stubError) Error() string              { return e.msg }
func (e *stubError) Severity() failure.Severity { return failure.SeverityFatal }

func mustBuild(t *testing.T, b *config.Builder) config.CrawlConfig {
	t.Helper()
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

func runWithStub(t *testing.T, startURL string, cfg config.CrawlConfig, pages map[string]string) (engine.CrawlResult, *stubFetcher) {
	t.Helper()
	stub := newStubFetcher(pages)
	result, err := engine.ParseSiteWithFetcher(startURL, cfg, nil, stub)
	require.NoError(t, err)
	return result, stub
}

func TestParseSiteInvalidStartURL(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder())
	_, err := engine.ParseSite("javascript:alert(1)", cfg, nil)
	require.Error(t, err)
}

func TestParseSiteSinglePageMailto(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder())

	result, _ := runWithStub(t, "http://a.test/", cfg, map[string]string{
		"http://a.test/": `<a href="mailto:info@A.test">x</a>`,
	})
	require.Equal(t, "http://a.test", result.URL)
	require.Equal(t, []string{"info@a.test"}, result.Emails)
	require.Empty(t, result.Phones)
}

func TestParseSiteMaxDepthZeroFetchesOnlyStart(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder().WithMaxDepth(0).WithMaxPages(1))

	_, stub := runWithStub(t, "http://a.test/", cfg, map[string]string{
		"http://a.test/":      `<a href="/about">about</a>`,
		"http://a.test/about": `no links here`,
	})
	require.Equal(t, 1, stub.hitCount("http://a.test/"))
	require.Equal(t, 0, stub.hitCount("http://a.test/about"), "max_depth=0 must not follow links")
}

func TestParseSiteDedupCycle(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder().WithMaxDepth(2).WithFocusedCrawling(false))

	result, stub := runWithStub(t, "http://a.test/", cfg, map[string]string{
		"http://a.test/":      `<a href="/about">about</a> contact@a.test`,
		"http://a.test/about": `<a href="/">home</a> second@a.test`,
	})
	require.Equal(t, 1, stub.hitCount("http://a.test/"))
	require.Equal(t, 1, stub.hitCount("http://a.test/about"))
	require.Equal(t, []string{"contact@a.test", "second@a.test"}, result.Emails)
}

func TestParseSiteOffDomainLinkIgnored(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder().WithMaxDepth(1))

	result, stub := runWithStub(t, "http://a.test/", cfg, map[string]string{
		"http://a.test/":        `<a href="http://b.test/contact">b</a>`,
		"http://b.test/contact": `foo@b.test`,
	})
	require.Empty(t, result.Emails)
	require.Equal(t, 0, stub.hitCount("http://b.test/contact"))
}

// stallingFetcher never returns on its own; every call blocks until the
// passed ctx is cancelled, simulating a hung connection.
type stallingFetcher struct{}

func (stallingFetcher) Fetch(ctx context.Context, _ int, _ fetcher.FetchParam, _ fetcher.RetryPolicy) (fetcher.FetchResult, failure.ClassifiedError) {
	<-ctx.Done()
	return fetcher.FetchResult{}, &stubError{msg: "stalled"}
}

func TestParseSiteTimeBudgetExhaustedReturnsWithinDeadline(t *testing.T) {
	const maxSeconds = 0.05
	const requestTimeout = 0.05
	cfg := mustBuild(t, config.NewDefaultBuilder().
		WithMaxSeconds(maxSeconds).
		WithRequestTimeout(requestTimeout).
		WithMaxConcurrency(1))

	deadline := cfg.MaxSecondsDuration() + cfg.RequestTimeoutDuration()

	start := time.Now()
	result, err := engine.ParseSiteWithFetcher("http://a.test/", cfg, nil, stallingFetcher{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.LessOrEqual(t, elapsed, deadline+time.Second, "ParseSiteWithFetcher took %v, want within %v of max_seconds+request_timeout", elapsed, deadline)
	require.Equal(t, "http://a.test", result.URL)
	require.Empty(t, result.Emails)
	require.Empty(t, result.Phones)
}

func TestParseSiteDomainAllowlist(t *testing.T) {
	cfg := mustBuild(t, config.NewDefaultBuilder().WithEmailDomainAllowlist([]string{"a.test"}))

	result, _ := runWithStub(t, "http://a.test/", cfg, map[string]string{
		"http://a.test/": `x@a.test y@evil.test`,
	})
	require.Equal(t, []string{"x@a.test"}, result.Emails)
}
