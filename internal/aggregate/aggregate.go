// Package aggregate merges per-page email and phone extracts into one
// crawl-wide, deduplicated, sorted result.
package aggregate

import "sort"

// Aggregator accumulates contacts across every page of a crawl. It is
// not safe for concurrent use; the Engine serialises access through
// its single mutex alongside the Frontier and SeenSet.
type Aggregator struct {
	emails map[string]bool
	phones map[string]bool
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		emails: make(map[string]bool),
		phones: make(map[string]bool),
	}
}

// Merge folds one page's extracted emails and phones into the running
// totals.
func (a *Aggregator) Merge(emails, phones []string) {
	for _, e := range emails {
		a.emails[e] = true
	}
	for _, p := range phones {
		a.phones[p] = true
	}
}

// Emails returns the deduplicated emails sorted ascending.
func (a *Aggregator) Emails() []string {
	return sortedKeys(a.emails)
}

// Phones returns the deduplicated phones sorted ascending (E.164
// numbers sort lexicographically the same as numerically within a
// fixed country-code width, so plain string sort is stable here).
func (a *Aggregator) Phones() []string {
	return sortedKeys(a.phones)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
