// Package phonex harvests phone numbers from tel: targets and page
// text, validating and canonicalising them to E.164 via libphonenumber.
package phonex

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// bodyCandidateRe is the loose scan over page text: a leading '+' is
// optional, followed by digits interleaved with the punctuation a
// human would use to format a phone number.
var bodyCandidateRe = regexp.MustCompile(`\+?[\d][\d\s().\-]{6,}\d`)

// visualCharsRe strips the separators a tel: target or body match may
// contain before the number is handed to the parser, leaving only
// digits and a leading '+'.
var visualCharsRe = regexp.MustCompile(`[^\d+]`)

// Params configures the region fallback order.
type Params struct {
	// Regions is the ordered list of ISO-3166-1 alpha-2 codes tried,
	// in order, for numbers that don't start with '+'. May be empty.
	Regions []string
}

// Extract returns the deduplicated, sorted set of valid E.164 numbers
// found among telTargets and within text.
func Extract(text string, telTargets []string, params Params) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		e164, ok := parseCandidate(raw, params.Regions)
		if !ok {
			return
		}
		if seen[e164] {
			return
		}
		seen[e164] = true
		out = append(out, e164)
	}

	for _, target := range telTargets {
		add(target)
	}
	for _, candidate := range bodyCandidateRe.FindAllString(text, -1) {
		add(candidate)
	}

	sort.Strings(out)
	return out
}

// parseCandidate strips visual formatting, then tries the global
// parse (for numbers already carrying a '+') or each configured
// region in order. A number is accepted only if the library reports
// it both possible and valid.
func parseCandidate(raw string, regions []string) (string, bool) {
	cleaned := visualCharsRe.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "+" {
		return "", false
	}

	if strings.HasPrefix(cleaned, "+") {
		return tryParse(cleaned, "ZZ")
	}

	for _, region := range regions {
		if e164, ok := tryParse(cleaned, region); ok {
			return e164, true
		}
	}
	return "", false
}

func tryParse(number, region string) (string, bool) {
	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsPossibleNumber(parsed) || !phonenumbers.IsValidNumber(parsed) {
		return "", false
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), true
}
