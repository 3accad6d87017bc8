// Package canon canonicalises URLs into a comparable, fetchable form.
//
// Responsibilities
//   - Resolve a raw href against a base URL
//   - Accept only http/https; reject javascript:, data:, mailto:, tel:,
//     bare fragments and empty strings
//   - Lowercase scheme and host; convert Unicode host labels to ASCII
//     via Punycode; strip default ports
//   - Collapse "." / ".." path segments; path is never empty
//   - Drop the fragment always, drop the query unless the caller asked
//     to keep it
//
// Canonicalise is pure: no network access, no shared state.
package canon

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bk-ru/parser/pkg/urlutil"
	"golang.org/x/net/idna"
)

// URL is a canonicalised, comparable URL. Equality is by Key.
type URL struct {
	Scheme string
	Host   string // lowercase, ASCII, default port stripped
	Path   string // cleaned, always starts with "/"
	Query  string // empty unless IncludeQuery was set and the input had one
	Key    string
}

// String returns the fetchable form scheme://host[:port]path[?query].
func (u URL) String() string {
	return u.Key
}

var profile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Canonicalize resolves raw against base (which may be the zero value for
// an absolute raw URL) and normalises the result per §4.1. includeQuery
// controls whether query parameters survive into Key.
func Canonicalize(raw string, base *url.URL, includeQuery bool) (URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return URL{}, fmt.Errorf("canon: empty or fragment-only url")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("canon: parse %q: %w", raw, err)
	}

	var resolved *url.URL
	if base != nil && !parsed.IsAbs() {
		resolved = base.ResolveReference(parsed)
	} else {
		resolved = parsed
	}

	scheme := urlutil.LowerASCII(resolved.Scheme)
	if scheme != "http" && scheme != "https" {
		return URL{}, fmt.Errorf("canon: unsupported scheme %q", resolved.Scheme)
	}

	host, err := canonicalHost(resolved)
	if err != nil {
		return URL{}, err
	}

	path := urlutil.CleanPath(resolved.EscapedPath())

	query := ""
	if includeQuery {
		query = resolved.RawQuery
	}

	key := scheme + "://" + host + path
	if query != "" {
		key += "?" + query
	}

	return URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
		Query:  query,
		Key:    key,
	}, nil
}

// canonicalHost lowercases the hostname, converts Unicode labels to
// Punycode ASCII, and strips the port when it is the scheme default.
func canonicalHost(u *url.URL) (string, error) {
	hostname := u.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("canon: missing host")
	}

	ascii, err := profile.ToASCII(hostname)
	if err != nil {
		// Already-ASCII hosts with characters idna rejects (e.g. "_")
		// still resolve fine in practice; fall back to a plain lowercase.
		ascii = urlutil.LowerASCII(hostname)
	}
	ascii = urlutil.LowerASCII(ascii)

	port := u.Port()
	scheme := urlutil.LowerASCII(u.Scheme)
	if port == "" || urlutil.IsDefaultPort(scheme, port) {
		return ascii, nil
	}
	return ascii + ":" + port, nil
}
