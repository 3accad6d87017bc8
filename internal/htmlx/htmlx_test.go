package htmlx_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/bk-ru/parser/internal/htmlx"
)

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return *u
}

func alwaysInScope(string) bool { return true }

func TestExtractPageTextExcludesScriptAndStyle(t *testing.T) {
	body := `<html><body>
		<p>Hello World</p>
		<script>var x = "should not appear";</script>
		<style>.a{color:red}</style>
		<noscript>no-js fallback</noscript>
	</body></html>`

	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{InScope: alwaysInScope})

	if !strings.Contains(got.PageText, "Hello World") {
		t.Errorf("PageText = %q, want to contain 'Hello World'", got.PageText)
	}
	for _, banned := range []string{"should not appear", "color:red", "no-js fallback"} {
		if strings.Contains(got.PageText, banned) {
			t.Errorf("PageText = %q, should not contain %q", got.PageText, banned)
		}
	}
}

func TestExtractLinksCanonicalisedAndDeduped(t *testing.T) {
	body := `<html><body>
		<a href="/about">About us</a>
		<a href="/about">About us again</a>
		<a href="https://b.test/x">offsite</a>
		<area href="/contact">contact</area>
	</body></html>`

	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{
		InScope: func(host string) bool { return host == "a.test" },
	})

	if len(got.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2 (about, contact); got %+v", len(got.Links), got.Links)
	}
	if got.Links[0].URL.Key != "https://a.test/about" {
		t.Errorf("Links[0].URL.Key = %q", got.Links[0].URL.Key)
	}
	if got.Links[0].AnchorText != "About us" {
		t.Errorf("Links[0].AnchorText = %q, want 'About us'", got.Links[0].AnchorText)
	}
	if len(got.OutOfScope) != 1 || got.OutOfScope[0] != "https://b.test/x" {
		t.Errorf("OutOfScope = %v, want [https://b.test/x]", got.OutOfScope)
	}
}

func TestExtractMailtoAndTelSeparatedFromLinks(t *testing.T) {
	body := `<html><body>
		<a href="mailto:info@a.test">mail us</a>
		<a href="tel:+14155551234">call us</a>
		<a href="/page">page</a>
	</body></html>`

	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{InScope: alwaysInScope})

	if len(got.Links) != 1 {
		t.Fatalf("len(Links) = %d, want 1", len(got.Links))
	}
	if len(got.MailtoTargets) != 1 || got.MailtoTargets[0] != "info@a.test" {
		t.Errorf("MailtoTargets = %+v", got.MailtoTargets)
	}
	if len(got.TelTargets) != 1 || got.TelTargets[0] != "+14155551234" {
		t.Errorf("TelTargets = %+v", got.TelTargets)
	}
}

func TestExtractUnwrapsRot13CloakedSpan(t *testing.T) {
	// "vasb@n.grfg" is ROT-13 for "info@a.test".
	body := `<html><body>
		<span class="mailto-cloaked" data-rot13="vasb@n.grfg">email us</span>
	</body></html>`

	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{InScope: alwaysInScope})

	if len(got.MailtoTargets) != 1 || got.MailtoTargets[0] != "info@a.test" {
		t.Errorf("MailtoTargets = %+v, want [info@a.test]", got.MailtoTargets)
	}
}

func TestExtractTruncatesToMaxLinksPerPage(t *testing.T) {
	body := `<html><body>
		<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a>
	</body></html>`

	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{
		InScope:         alwaysInScope,
		MaxLinksPerPage: 2,
	})

	if len(got.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2", len(got.Links))
	}
	if got.Links[0].URL.Path != "/a" || got.Links[1].URL.Path != "/b" {
		t.Errorf("Links out of order: %+v", got.Links)
	}
}

func TestExtractMalformedHTMLDoesNotPanic(t *testing.T) {
	body := `<html><body><p>unclosed <div>nested <span>tags`
	got := htmlx.Extract(body, mustParse(t, "https://a.test/"), htmlx.Params{InScope: alwaysInScope})
	if !strings.Contains(got.PageText, "unclosed") {
		t.Errorf("PageText = %q, want to contain recovered text", got.PageText)
	}
}
