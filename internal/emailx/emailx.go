// Package emailx harvests and validates email addresses from page
// text and mailto: targets, unwrapping the common cloaking schemes
// sites use to defeat naive scrapers.
package emailx

import (
	"net/mail"
	"regexp"
	"sort"
	"strings"
)

// candidateRe matches the loose email shape the spec harvests before
// RFC-5322 validation narrows it down.
var candidateRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// cloak replacements are applied in order; each targets one common
// obfuscation of "@" or ".". The spelled-out "name AT host DOT tld"
// form is handled afterwards by unwrapJoomlaCloak; no script is
// executed.
var atCloaks = []string{" [at] ", "[at]", " (at) ", "(at)", "@AT@"}
var dotCloaks = []string{" [dot] ", "[dot]", " (dot) ", "(dot)"}

// Params configures the optional domain allow-list filter.
type Params struct {
	// DomainAllowlist, when non-empty, keeps only addresses whose
	// domain equals or is a subdomain of one of these lowercased
	// suffixes.
	DomainAllowlist []string
}

// Extract returns the deduplicated set of valid email addresses found
// in text and among mailtoTargets.
func Extract(text string, mailtoTargets []string, params Params) []string {
	cleaned := unwrapCloaks(text)

	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		addr, ok := validate(raw)
		if !ok {
			return
		}
		if len(params.DomainAllowlist) > 0 && !allowed(addr, params.DomainAllowlist) {
			return
		}
		if seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}

	for _, m := range candidateRe.FindAllString(cleaned, -1) {
		add(m)
	}
	for _, target := range mailtoTargets {
		add(unwrapCloaks(target))
	}

	sort.Strings(out)
	return out
}

// unwrapCloaks replaces the documented obfuscation patterns with the
// literal characters they stand in for, case-insensitively for the
// word-based ones.
func unwrapCloaks(s string) string {
	lower := strings.ToLower(s)
	result := s

	for _, cloak := range atCloaks {
		result = replaceCaseInsensitive(result, lower, strings.ToLower(cloak), "@")
		lower = strings.ToLower(result)
	}
	for _, cloak := range dotCloaks {
		result = replaceCaseInsensitive(result, lower, strings.ToLower(cloak), ".")
		lower = strings.ToLower(result)
	}

	return unwrapJoomlaCloak(result)
}

// replaceCaseInsensitive substitutes occurrences of needle (matched
// against lowerHaystack) in haystack with replacement, preserving the
// rest of haystack verbatim.
func replaceCaseInsensitive(haystack, lowerHaystack, needle, replacement string) string {
	if needle == "" || !strings.Contains(lowerHaystack, needle) {
		return haystack
	}
	var b strings.Builder
	remaining := haystack
	remainingLower := lowerHaystack
	for {
		idx := strings.Index(remainingLower, needle)
		if idx == -1 {
			b.WriteString(remaining)
			break
		}
		b.WriteString(remaining[:idx])
		b.WriteString(replacement)
		remaining = remaining[idx+len(needle):]
		remainingLower = remainingLower[idx+len(needle):]
	}
	return b.String()
}

// joomlaCloakRe catches the "name AT host DOT tld" form (the words AT
// and DOT surrounded by whitespace, matched case-insensitively) that
// some templates render directly into text. The ROT-13 data-rot13 span
// variant is decoded earlier, by htmlx, and arrives as a mailto target.
var joomlaCloakRe = regexp.MustCompile(`(?i)([A-Za-z0-9._%+\-]+)\s+AT\s+([A-Za-z0-9.\-]+)\s+DOT\s+([A-Za-z]{2,})`)

func unwrapJoomlaCloak(s string) string {
	return joomlaCloakRe.ReplaceAllString(s, "$1@$2.$3")
}

// validate applies RFC-5322 addr-spec validation via net/mail, then
// normalises the domain to lowercase while leaving the local-part
// untouched. Addresses with a domain lacking a dot, or with quoted
// local-parts / comments (which ParseAddress accepts but the spec
// rejects), are rejected.
func validate(raw string) (string, bool) {
	raw = strings.Trim(raw, ".,;:()[]<> \t")
	if raw == "" {
		return "", false
	}
	if strings.ContainsAny(raw, `"()`) {
		return "", false
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", false
	}

	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return "", false
	}
	local := addr.Address[:at]
	domain := strings.ToLower(addr.Address[at+1:])

	if !strings.Contains(domain, ".") {
		return "", false
	}
	if strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, ".") {
		return "", false
	}

	return local + "@" + domain, true
}

// allowed reports whether addr's domain equals or is a subdomain of
// one of the allowlist entries.
func allowed(addr string, allowlist []string) bool {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return false
	}
	domain := addr[at+1:]
	for _, entry := range allowlist {
		entry = strings.ToLower(entry)
		if domain == entry || strings.HasSuffix(domain, "."+entry) {
			return true
		}
	}
	return false
}
