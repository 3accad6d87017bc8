// Package config builds the immutable CrawlConfig every other
// component receives by reference. Sources are layered in decreasing
// precedence: an explicit override object, environment variables
// prefixed PARSER_, a --config file (TOML or JSON), then built-in
// defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// CrawlConfig is immutable after Build and is passed by reference to
// every component; see the field table for units and invariants.
type CrawlConfig struct {
	maxSeconds           float64
	maxDepth             int
	maxPages             int
	maxLinksPerPage      int
	maxBodyBytes         int64
	maxConcurrency       int
	requestTimeout       float64
	retryTotal           int
	retryBackoffFactor   float64
	phoneRegions         []string
	emailDomainAllowlist []string
	focusedCrawling      bool
	includeQuery         bool
	userAgent            string
}

func (c CrawlConfig) MaxSeconds() float64      { return c.maxSeconds }
func (c CrawlConfig) MaxDepth() int            { return c.maxDepth }
func (c CrawlConfig) MaxPages() int            { return c.maxPages }
func (c CrawlConfig) MaxLinksPerPage() int     { return c.maxLinksPerPage }
func (c CrawlConfig) MaxBodyBytes() int64      { return c.maxBodyBytes }
func (c CrawlConfig) MaxConcurrency() int      { return c.maxConcurrency }
func (c CrawlConfig) RequestTimeout() float64  { return c.requestTimeout }
func (c CrawlConfig) RetryTotal() int          { return c.retryTotal }
func (c CrawlConfig) RetryBackoffFactor() float64 { return c.retryBackoffFactor }
func (c CrawlConfig) FocusedCrawling() bool    { return c.focusedCrawling }
func (c CrawlConfig) IncludeQuery() bool       { return c.includeQuery }
func (c CrawlConfig) UserAgent() string        { return c.userAgent }

func (c CrawlConfig) PhoneRegions() []string {
	out := make([]string, len(c.phoneRegions))
	copy(out, c.phoneRegions)
	return out
}

func (c CrawlConfig) EmailDomainAllowlist() []string {
	out := make([]string, len(c.emailDomainAllowlist))
	copy(out, c.emailDomainAllowlist)
	return out
}

// MaxSecondsDuration converts MaxSeconds to a time.Duration for the
// Engine's wall-clock deadline.
func (c CrawlConfig) MaxSecondsDuration() time.Duration {
	return time.Duration(c.maxSeconds * float64(time.Second))
}

// RequestTimeoutDuration converts RequestTimeout to a time.Duration
// for the Fetcher's per-attempt deadline.
func (c CrawlConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.requestTimeout * float64(time.Second))
}

// RetryBackoffFactorDuration converts RetryBackoffFactor (seconds)
// into the base duration the Fetcher's backoff doubles from.
func (c CrawlConfig) RetryBackoffFactorDuration() time.Duration {
	return time.Duration(c.retryBackoffFactor * float64(time.Second))
}

// Builder assembles a CrawlConfig field by field, starting from
// NewDefaultBuilder's built-in defaults (see §6: max_seconds=30,
// max_depth=0, max_pages=200, ...).
type Builder struct {
	cfg CrawlConfig
}

// NewDefaultBuilder seeds a Builder with the spec's built-in defaults.
func NewDefaultBuilder() *Builder {
	return &Builder{cfg: CrawlConfig{
		maxSeconds:           30,
		maxDepth:             0,
		maxPages:             200,
		maxLinksPerPage:      200,
		maxBodyBytes:         2_000_000,
		maxConcurrency:       4,
		requestTimeout:       10,
		retryTotal:           2,
		retryBackoffFactor:   0.5,
		phoneRegions:         nil,
		emailDomainAllowlist: nil,
		focusedCrawling:      true,
		includeQuery:         false,
		userAgent:            "site-parser/0.1.0",
	}}
}

func (b *Builder) WithMaxSeconds(v float64) *Builder           { b.cfg.maxSeconds = v; return b }
func (b *Builder) WithMaxDepth(v int) *Builder                 { b.cfg.maxDepth = v; return b }
func (b *Builder) WithMaxPages(v int) *Builder                 { b.cfg.maxPages = v; return b }
func (b *Builder) WithMaxLinksPerPage(v int) *Builder          { b.cfg.maxLinksPerPage = v; return b }
func (b *Builder) WithMaxBodyBytes(v int64) *Builder           { b.cfg.maxBodyBytes = v; return b }
func (b *Builder) WithMaxConcurrency(v int) *Builder           { b.cfg.maxConcurrency = v; return b }
func (b *Builder) WithRequestTimeout(v float64) *Builder       { b.cfg.requestTimeout = v; return b }
func (b *Builder) WithRetryTotal(v int) *Builder               { b.cfg.retryTotal = v; return b }
func (b *Builder) WithRetryBackoffFactor(v float64) *Builder   { b.cfg.retryBackoffFactor = v; return b }
func (b *Builder) WithPhoneRegions(v []string) *Builder        { b.cfg.phoneRegions = v; return b }
func (b *Builder) WithEmailDomainAllowlist(v []string) *Builder {
	b.cfg.emailDomainAllowlist = v
	return b
}
func (b *Builder) WithFocusedCrawling(v bool) *Builder { b.cfg.focusedCrawling = v; return b }
func (b *Builder) WithIncludeQuery(v bool) *Builder    { b.cfg.includeQuery = v; return b }
func (b *Builder) WithUserAgent(v string) *Builder     { b.cfg.userAgent = v; return b }

// Build validates the accumulated fields against §3's invariants and
// returns the immutable CrawlConfig.
func (b *Builder) Build() (CrawlConfig, error) {
	c := b.cfg
	switch {
	case c.maxSeconds < 0:
		return CrawlConfig{}, fmt.Errorf("%w: max_seconds must be >= 0", ErrInvalidConfig)
	case c.maxDepth < 0:
		return CrawlConfig{}, fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidConfig)
	case c.maxPages < 1:
		return CrawlConfig{}, fmt.Errorf("%w: max_pages must be >= 1", ErrInvalidConfig)
	case c.maxLinksPerPage < 1:
		return CrawlConfig{}, fmt.Errorf("%w: max_links_per_page must be >= 1", ErrInvalidConfig)
	case c.maxBodyBytes < 1:
		return CrawlConfig{}, fmt.Errorf("%w: max_body_bytes must be >= 1", ErrInvalidConfig)
	case c.maxConcurrency < 1:
		return CrawlConfig{}, fmt.Errorf("%w: max_concurrency must be >= 1", ErrInvalidConfig)
	case c.requestTimeout <= 0:
		return CrawlConfig{}, fmt.Errorf("%w: request_timeout must be > 0", ErrInvalidConfig)
	case c.retryTotal < 0:
		return CrawlConfig{}, fmt.Errorf("%w: retry_total must be >= 0", ErrInvalidConfig)
	case c.retryBackoffFactor < 0:
		return CrawlConfig{}, fmt.Errorf("%w: retry_backoff_factor must be >= 0", ErrInvalidConfig)
	case c.userAgent == "":
		return CrawlConfig{}, fmt.Errorf("%w: user_agent must not be empty", ErrInvalidConfig)
	}
	return c, nil
}

// Overrides is the explicit, code-level override object mentioned in
// §6, highest precedence of all config sources. A nil field means
// "don't override".
type Overrides struct {
	MaxSeconds           *float64
	MaxDepth             *int
	MaxPages             *int
	MaxLinksPerPage      *int
	MaxBodyBytes         *int64
	MaxConcurrency       *int
	RequestTimeout       *float64
	RetryTotal           *int
	RetryBackoffFactor   *float64
	PhoneRegions         []string
	EmailDomainAllowlist []string
	FocusedCrawling      *bool
	IncludeQuery         *bool
	UserAgent            *string
}

const envPrefix = "PARSER"

var fieldKeys = []string{
	"max_seconds", "max_depth", "max_pages", "max_links_per_page",
	"max_body_bytes", "max_concurrency", "request_timeout", "retry_total",
	"retry_backoff_factor", "phone_regions", "email_domain_allowlist",
	"focused_crawling", "include_query", "user_agent",
}

// Load builds a CrawlConfig by layering, in increasing precedence:
// built-in defaults, an optional config file, PARSER_-prefixed
// environment variables, then overrides.
func Load(configFile string, overrides *Overrides) (CrawlConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	def := NewDefaultBuilder().cfg
	v.SetDefault("max_seconds", def.maxSeconds)
	v.SetDefault("max_depth", def.maxDepth)
	v.SetDefault("max_pages", def.maxPages)
	v.SetDefault("max_links_per_page", def.maxLinksPerPage)
	v.SetDefault("max_body_bytes", def.maxBodyBytes)
	v.SetDefault("max_concurrency", def.maxConcurrency)
	v.SetDefault("request_timeout", def.requestTimeout)
	v.SetDefault("retry_total", def.retryTotal)
	v.SetDefault("retry_backoff_factor", def.retryBackoffFactor)
	v.SetDefault("phone_regions", def.phoneRegions)
	v.SetDefault("email_domain_allowlist", def.emailDomainAllowlist)
	v.SetDefault("focused_crawling", def.focusedCrawling)
	v.SetDefault("include_query", def.includeQuery)
	v.SetDefault("user_agent", def.userAgent)

	if configFile != "" {
		if err := mergeConfigFile(v, configFile); err != nil {
			return CrawlConfig{}, err
		}
	}

	for _, key := range fieldKeys {
		if err := v.BindEnv(key); err != nil {
			return CrawlConfig{}, fmt.Errorf("%w: bind env %s: %v", ErrInvalidConfig, key, err)
		}
	}

	builder := NewDefaultBuilder().
		WithMaxSeconds(v.GetFloat64("max_seconds")).
		WithMaxDepth(v.GetInt("max_depth")).
		WithMaxPages(v.GetInt("max_pages")).
		WithMaxLinksPerPage(v.GetInt("max_links_per_page")).
		WithMaxBodyBytes(v.GetInt64("max_body_bytes")).
		WithMaxConcurrency(v.GetInt("max_concurrency")).
		WithRequestTimeout(v.GetFloat64("request_timeout")).
		WithRetryTotal(v.GetInt("retry_total")).
		WithRetryBackoffFactor(v.GetFloat64("retry_backoff_factor")).
		WithPhoneRegions(v.GetStringSlice("phone_regions")).
		WithEmailDomainAllowlist(v.GetStringSlice("email_domain_allowlist")).
		WithFocusedCrawling(v.GetBool("focused_crawling")).
		WithIncludeQuery(v.GetBool("include_query")).
		WithUserAgent(v.GetString("user_agent"))

	applyOverrides(builder, overrides)

	return builder.Build()
}

// mergeConfigFile reads configFile and merges its values into v.
// TOML files are decoded explicitly with BurntSushi/toml so malformed
// TOML is reported with that parser's own diagnostics; JSON files use
// viper's built-in decoder.
func mergeConfigFile(v *viper.Viper, configFile string) error {
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".toml":
		var fileValues map[string]any
		if _, err := toml.DecodeFile(configFile, &fileValues); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigParsingFail, err)
		}
		if err := v.MergeConfigMap(fileValues); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigParsingFail, err)
		}
		return nil
	case ".json":
		v.SetConfigFile(configFile)
		v.SetConfigType("json")
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigParsingFail, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", ErrConfigParsingFail, filepath.Ext(configFile))
	}
}

func applyOverrides(b *Builder, o *Overrides) {
	if o == nil {
		return
	}
	if o.MaxSeconds != nil {
		b.WithMaxSeconds(*o.MaxSeconds)
	}
	if o.MaxDepth != nil {
		b.WithMaxDepth(*o.MaxDepth)
	}
	if o.MaxPages != nil {
		b.WithMaxPages(*o.MaxPages)
	}
	if o.MaxLinksPerPage != nil {
		b.WithMaxLinksPerPage(*o.MaxLinksPerPage)
	}
	if o.MaxBodyBytes != nil {
		b.WithMaxBodyBytes(*o.MaxBodyBytes)
	}
	if o.MaxConcurrency != nil {
		b.WithMaxConcurrency(*o.MaxConcurrency)
	}
	if o.RequestTimeout != nil {
		b.WithRequestTimeout(*o.RequestTimeout)
	}
	if o.RetryTotal != nil {
		b.WithRetryTotal(*o.RetryTotal)
	}
	if o.RetryBackoffFactor != nil {
		b.WithRetryBackoffFactor(*o.RetryBackoffFactor)
	}
	if o.PhoneRegions != nil {
		b.WithPhoneRegions(o.PhoneRegions)
	}
	if o.EmailDomainAllowlist != nil {
		b.WithEmailDomainAllowlist(o.EmailDomainAllowlist)
	}
	if o.FocusedCrawling != nil {
		b.WithFocusedCrawling(*o.FocusedCrawling)
	}
	if o.IncludeQuery != nil {
		b.WithIncludeQuery(*o.IncludeQuery)
	}
	if o.UserAgent != nil {
		b.WithUserAgent(*o.UserAgent)
	}
}
