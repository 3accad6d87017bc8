// Package obslog is the crawl's only logging surface. Every other
// package accepts a *Recorder and never touches zap directly.
//
// Logged fields are restricted to primitives: timestamps, URLs as
// strings, status codes, durations, counts. Nothing here influences
// control flow — a fetch is retried or a page dropped because of what
// the fetcher or engine decided, never because of what got logged.
package obslog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Recorder wraps a zap.Logger with the vocabulary the crawler needs:
// fetch attempts, extraction counts, and page/crawl completion.
type Recorder struct {
	log *zap.Logger
}

// New builds a Recorder at the given level, writing structured JSON to
// stderr the way a long-running crawl should — stdout stays reserved
// for the JSON result.
func New(level string) (*Recorder, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Recorder{log: logger}, nil
}

// Noop returns a Recorder that discards everything, for tests and
// library callers that don't want crawl logs on their output.
func Noop() *Recorder {
	return &Recorder{log: zap.NewNop()}
}

// ParseLevel maps the CLI's --log-level vocabulary onto zap's levels.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "INFO", "":
		return zapcore.InfoLevel, nil
	case "WARNING", "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return 0, &UnknownLevelError{Level: level}
	}
}

// UnknownLevelError reports a --log-level value outside the accepted
// vocabulary.
type UnknownLevelError struct {
	Level string
}

func (e *UnknownLevelError) Error() string {
	return "obslog: unknown log level " + e.Level
}

func (r *Recorder) Sync() {
	_ = r.log.Sync()
}

// FetchAttempt records one HTTP round trip, successful or not.
func (r *Recorder) FetchAttempt(url string, depth, attempt, statusCode int, durationMs int64, contentType string) {
	r.log.Debug("fetch_attempt",
		zap.String("url", url),
		zap.Int("depth", depth),
		zap.Int("attempt", attempt),
		zap.Int("status", statusCode),
		zap.Int64("duration_ms", durationMs),
		zap.String("content_type", contentType),
	)
}

// FetchFailed records a fetch that was abandoned after retries, or
// was never retryable to begin with.
func (r *Recorder) FetchFailed(url string, depth int, attempts int, cause string) {
	r.log.Warn("fetch_failed",
		zap.String("url", url),
		zap.Int("depth", depth),
		zap.Int("attempts", attempts),
		zap.String("cause", cause),
	)
}

// PageParsed records a successfully parsed page: how many links,
// emails, and phone numbers were harvested from it.
func (r *Recorder) PageParsed(url string, depth, links, emails, phones int) {
	r.log.Debug("page_parsed",
		zap.String("url", url),
		zap.Int("depth", depth),
		zap.Int("links", links),
		zap.Int("emails", emails),
		zap.Int("phones", phones),
	)
}

// PageSkipped records a candidate URL dropped before fetch (out of
// scope, already seen, or past the depth limit).
func (r *Recorder) PageSkipped(url, reason string) {
	r.log.Debug("page_skipped",
		zap.String("url", url),
		zap.String("reason", reason),
	)
}

// CrawlFinished records the terminal summary of a completed crawl.
// Computed once, after the frontier drains or a stop condition fires.
func (r *Recorder) CrawlFinished(startURL string, pagesVisited, emails, phones int, elapsedMs int64, stopReason string) {
	r.log.Info("crawl_finished",
		zap.String("start_url", startURL),
		zap.Int("pages_visited", pagesVisited),
		zap.Int("emails_found", emails),
		zap.Int("phones_found", phones),
		zap.Int64("elapsed_ms", elapsedMs),
		zap.String("stop_reason", stopReason),
	)
}

// Error records an unexpected, non-fatal condition worth surfacing to
// an operator but that doesn't abort the crawl.
func (r *Recorder) Error(component, message string, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.String("component", component)}, fields...)
	r.log.Warn(message, allFields...)
}
