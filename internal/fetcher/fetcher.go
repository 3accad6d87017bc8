// Package fetcher performs the crawl's only network I/O: one GET per
// candidate URL, with bounded redirects, a capped body read, retry
// with backoff on transient failures, and charset-aware decoding.
//
// A fetch never aborts the crawl. Every failure is returned as a
// classified, possibly-retryable error for the caller to log and
// absorb; the only thing that ever reaches the Engine as a hard stop
// is an invalid start URL, decided before a Fetcher is ever invoked.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bk-ru/parser/internal/obslog"
	"github.com/bk-ru/parser/pkg/failure"
	"github.com/bk-ru/parser/pkg/retry"
	"github.com/bk-ru/parser/pkg/timeutil"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

const maxRedirects = 5

// Fetcher is the interface the Engine's workers depend on; HtmlFetcher
// is the only production implementation, but tests substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, depth int, param FetchParam, retry RetryPolicy) (FetchResult, failure.ClassifiedError)
}

// RetryPolicy mirrors cfg.retry_total / cfg.retry_backoff_factor: total
// attempts is 1+Total, and the delay before retry n is
// BackoffFactor * 2^(n-1) seconds, jittered and capped like the rest
// of the crawler's retry logic.
type RetryPolicy struct {
	Total         int
	BackoffFactor time.Duration
	MaxDelay      time.Duration
	Jitter        time.Duration
	RandomSeed    int64
}

// HtmlFetcher is the production Fetcher: a shared *http.Client per
// crawl, reused by every worker.
type HtmlFetcher struct {
	client  *http.Client
	rec     *obslog.Recorder
	sleeper timeutil.Sleeper
}

// NewHtmlFetcher builds a Fetcher whose http.Client follows redirects
// itself (Go's default behavior is disabled) so each hop can be
// domain-gated and counted against maxRedirects.
func NewHtmlFetcher(rec *obslog.Recorder) *HtmlFetcher {
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &HtmlFetcher{client: client, rec: rec, sleeper: timeutil.NewRealSleeper()}
}

// Fetch resolves param.URL through up to maxRedirects hops, retrying
// each hop's own request per retry on transient failure.
func (f *HtmlFetcher) Fetch(ctx context.Context, depth int, param FetchParam, retry RetryPolicy) (FetchResult, failure.ClassifiedError) {
	current := param.URL

	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("exceeded %d redirects", maxRedirects),
				Retryable: false,
				Cause:     ErrCauseRedirectLimit,
			}
		}

		if param.InScope != nil && !param.InScope(current.Hostname()) {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("redirect target %s out of scope", current.Hostname()),
				Retryable: false,
				Cause:     ErrCauseRedirectOOS,
			}
		}

		resp, classified := f.fetchWithRetry(ctx, current, param, retry, depth)
		if classified != nil {
			return FetchResult{}, classified
		}

		if loc := resp.redirectLocation; loc != nil {
			current = *loc
			continue
		}

		return resp.result, nil
	}
}

type attemptOutcome struct {
	result           FetchResult
	redirectLocation *url.URL
}

// fetchWithRetry runs one hop (one URL) through up to 1+policy.Total
// attempts via pkg/retry, which sleeps between them per the exponential
// backoff policy unless a response carried a usable Retry-After header.
func (f *HtmlFetcher) fetchWithRetry(ctx context.Context, target url.URL, param FetchParam, policy RetryPolicy, depth int) (attemptOutcome, failure.ClassifiedError) {
	maxAttempts := 1 + policy.Total
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := timeutil.NewBackoffParam(policy.BackoffFactor, 2.0, policy.MaxDelay)
	retryParam := retry.NewRetryParam(policy.BackoffFactor, policy.Jitter, policy.RandomSeed, maxAttempts, backoff)

	attempt := 0
	var lastErr *FetchError
	result := retry.Retry(ctx, retryParam, f.sleeper, func() (attemptOutcome, failure.ClassifiedError) {
		attempt++
		start := time.Now()
		outcome, err := f.performFetch(ctx, target, param)
		elapsed := time.Since(start)

		if err == nil {
			if f.rec != nil {
				f.rec.FetchAttempt(target.String(), depth, attempt, outcome.result.StatusCode, elapsed.Milliseconds(), outcome.result.ContentType)
			}
			return outcome, nil
		}

		lastErr = err
		if f.rec != nil {
			f.rec.FetchAttempt(target.String(), depth, attempt, err.StatusCode, elapsed.Milliseconds(), "")
		}
		return attemptOutcome{}, err
	})

	if result.IsFailure() {
		if f.rec != nil {
			f.rec.FetchFailed(target.String(), depth, attempt, string(lastErr.Cause))
		}
		return attemptOutcome{}, lastErr
	}
	return result.Value(), nil
}

// performFetch issues exactly one HTTP GET and classifies the result.
// A 3xx response is reported via attemptOutcome.redirectLocation
// rather than as an error; the caller decides whether to keep
// following it.
func (f *HtmlFetcher) performFetch(ctx context.Context, target url.URL, param FetchParam) (attemptOutcome, *FetchError) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if param.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, param.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return attemptOutcome{}, &FetchError{
			Message:   fmt.Sprintf("build request: %v", err),
			Retryable: false,
			Cause:     ErrCauseInvalidRequest,
		}
	}
	for k, v := range requestHeaders(param.UserAgent) {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cause := ErrCauseNetworkFailure
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			cause = ErrCauseTimeout
		}
		return attemptOutcome{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     cause,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, locErr := resp.Location()
		if locErr != nil {
			return attemptOutcome{}, &FetchError{
				Message:    "redirect without usable Location",
				Retryable:  false,
				Cause:      ErrCauseHTTPStatus,
				StatusCode: resp.StatusCode,
			}
		}
		return attemptOutcome{redirectLocation: loc}, nil
	}

	if retryableStatus(resp.StatusCode) {
		var retryAfter time.Duration
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return attemptOutcome{}, &FetchError{
			Message:    fmt.Sprintf("retryable status %d", resp.StatusCode),
			Retryable:  true,
			Cause:      ErrCauseHTTPStatus,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode >= 400 {
		return attemptOutcome{}, &FetchError{
			Message:    fmt.Sprintf("non-retryable status %d", resp.StatusCode),
			Retryable:  false,
			Cause:      ErrCauseHTTPStatus,
			StatusCode: resp.StatusCode,
		}
	}

	contentType := resp.Header.Get("Content-Type")
	limit := param.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	raw, truncated, readErr := readCapped(resp.Body, limit)
	if readErr != nil {
		return attemptOutcome{}, &FetchError{
			Message:    fmt.Sprintf("read body: %v", readErr),
			Retryable:  true,
			Cause:      ErrCauseReadBody,
			StatusCode: resp.StatusCode,
		}
	}

	bodyText := ""
	if isTextualContent(contentType) {
		bodyText = decodeBody(raw, contentType)
	}

	return attemptOutcome{
		result: FetchResult{
			FinalURL:    target,
			StatusCode:  resp.StatusCode,
			BodyText:    bodyText,
			ContentType: contentType,
			BytesRead:   int64(len(raw)),
			Truncated:   truncated,
			FetchedAt:   time.Now(),
		},
	}, nil
}

const defaultMaxBodyBytes = 2_000_000

// readCapped reads at most limit bytes from r, regardless of what
// Content-Length claimed, and reports whether more bytes remained.
func readCapped(r io.Reader, limit int64) ([]byte, bool, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// isTextualContent reports whether a Content-Type is one the crawler
// extracts text from; anything else yields an empty body with no
// error.
func isTextualContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml+xml") ||
		strings.Contains(ct, "text/plain")
}

// decodeBody converts raw bytes to a UTF-8 string. A charset named in
// the Content-Type header is resolved through htmlindex first, since
// that's the label a server actually declared; failing that it falls
// back to charset.DetermineEncoding's content sniff. Either way, a
// decode failure still yields the raw bytes rather than dropping the
// page.
func decodeBody(raw []byte, contentType string) string {
	if enc, ok := encodingFromLabel(contentType); ok {
		if decoded, _, err := transform.Bytes(enc.NewDecoder(), raw); err == nil {
			return string(decoded)
		}
	}
	enc, _, _ := charset.DetermineEncoding(raw, contentType)
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func encodingFromLabel(contentType string) (encoding.Encoding, bool) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return nil, false
	}
	enc, err := htmlindex.Get(params["charset"])
	if err != nil {
		return nil, false
	}
	return enc, true
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent": userAgent,
		"Accept":     "text/html, */*;q=0.1",
	}
}

// parseRetryAfter parses a Retry-After header given as a number of
// seconds (the HTTP-date form is rare enough for crawl targets that
// it is not worth the parser surface here).
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

