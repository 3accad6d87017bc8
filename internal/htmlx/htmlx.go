// Package htmlx parses a fetched page into visible text plus the
// three kinds of candidate targets the rest of the crawler cares
// about: links to follow, mailto: addresses, and tel: numbers.
//
// Parsing is always lenient — a broken document yields whatever the
// parser could recover, never an error that would abort the crawl.
package htmlx

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bk-ru/parser/internal/canon"
	"golang.org/x/net/html"
)

// Link pairs a canonicalised in-scope URL with the anchor text that
// pointed to it, so the scheduler can score focused-crawl priority
// without re-parsing the page.
type Link struct {
	URL        canon.URL
	AnchorText string
}

// Params configures how a page is parsed, threaded through from
// CrawlConfig rather than read globally.
type Params struct {
	IncludeQuery    bool
	MaxLinksPerPage int
	// InScope reports whether a candidate link's host is in-scope; out
	// of scope links are discarded before the per-page cap is applied.
	InScope func(host string) bool
}

// Extraction is everything htmlx derives from one page body.
type Extraction struct {
	PageText      string
	Links         []Link
	MailtoTargets []string
	TelTargets    []string
	// OutOfScope holds the canonical keys of hrefs dropped by the
	// InScope check, for the caller to log; they never reach Links.
	OutOfScope []string
}

var noiseTags = map[string]bool{"script": true, "style": true, "noscript": true}

// Extract parses body (already decoded to UTF-8 text) relative to
// finalURL and returns its visible text plus candidate targets.
func Extract(body string, finalURL url.URL, params Params) Extraction {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return Extraction{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Extraction{PageText: visibleText(root)}
	}

	links, mailto, tel, outOfScope := collectTargets(doc, finalURL, params)

	return Extraction{
		PageText:      visibleText(root),
		Links:         links,
		MailtoTargets: mailto,
		TelTargets:    tel,
		OutOfScope:    outOfScope,
	}
}

// visibleText walks the parse tree depth-first, concatenating text
// nodes with whitespace separators and skipping script/style/noscript
// subtrees entirely.
func visibleText(root *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && noiseTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return b.String()
}

// collectTargets extracts every a/area href, bucketing mailto: and
// tel: targets separately and canonicalising+domain-gating the rest.
// The returned link list is deduplicated by key and truncated to
// params.MaxLinksPerPage, preserving document order.
func collectTargets(doc *goquery.Document, finalURL url.URL, params Params) ([]Link, []string, []string, []string) {
	var links []Link
	var mailto []string
	var tel []string
	var outOfScope []string
	seen := make(map[string]bool)

	doc.Find("[data-rot13]").Each(func(_ int, sel *goquery.Selection) {
		encoded, ok := sel.Attr("data-rot13")
		if !ok || encoded == "" {
			return
		}
		mailto = append(mailto, rot13(encoded))
	})

	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)

		switch {
		case strings.HasPrefix(href, "mailto:"):
			mailto = append(mailto, strings.TrimPrefix(href, "mailto:"))
			return
		case strings.HasPrefix(href, "tel:"):
			tel = append(tel, strings.TrimPrefix(href, "tel:"))
			return
		}

		candidate, err := canon.Canonicalize(href, &finalURL, params.IncludeQuery)
		if err != nil {
			return
		}
		if params.InScope != nil && !params.InScope(candidate.Host) {
			outOfScope = append(outOfScope, candidate.Key)
			return
		}
		if seen[candidate.Key] {
			return
		}
		seen[candidate.Key] = true

		if params.MaxLinksPerPage > 0 && len(links) >= params.MaxLinksPerPage {
			return
		}
		links = append(links, Link{
			URL:        candidate,
			AnchorText: strings.TrimSpace(sel.Text()),
		})
	})

	return links, mailto, tel, outOfScope
}

// rot13 reverses the Joomla contact-cloak's ROT-13 obfuscation: the
// address is rotated server-side and written into a data-rot13
// attribute, then rotated back by a tiny inline script client-side.
// Non-letter bytes (the "@" and "." the cloak leaves untouched) pass
// through unchanged.
func rot13(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = 'a' + (c-'a'+13)%26
		case c >= 'A' && c <= 'Z':
			b[i] = 'A' + (c-'A'+13)%26
		}
	}
	return string(b)
}
