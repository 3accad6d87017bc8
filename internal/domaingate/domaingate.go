// Package domaingate decides whether a candidate URL is in-scope for a
// crawl started at a given URL, by comparing registered domains
// (eTLD+1) rather than raw hostnames — so sub.example.com stays
// in-scope for a crawl seeded at example.com, while example.org does
// not.
package domaingate

import (
	"net"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RegisteredDomain returns the eTLD+1 for host, lowercased. A trailing
// ":port" is ignored. If host is a bare IP, is itself a public suffix,
// or the lookup fails (e.g. a single-label host), the lowercased host
// is returned unchanged so same-host comparisons still work.
func RegisteredDomain(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if net.ParseIP(host) != nil {
		return host
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// InScope reports whether candidateHost shares a registered domain with
// startHost.
func InScope(startHost, candidateHost string) bool {
	return RegisteredDomain(startHost) == RegisteredDomain(candidateHost)
}
