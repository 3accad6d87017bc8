package emailx_test

import (
	"reflect"
	"testing"

	"github.com/bk-ru/parser/internal/emailx"
)

func TestExtractPlainEmail(t *testing.T) {
	got := emailx.Extract("reach us at info@A.test for help", nil, emailx.Params{})
	want := []string{"info@a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractMailtoTarget(t *testing.T) {
	got := emailx.Extract("", []string{"Info@A.test"}, emailx.Params{})
	want := []string{"Info@a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractCloakedAtAndDot(t *testing.T) {
	tests := []struct {
		name, text, want string
	}{
		{"bracket at", "contact us at info [at] a.test", "info@a.test"},
		{"paren at", "info (at) a.test", "info@a.test"},
		{"at sandwich", "info@AT@a.test", "info@a.test"},
		{"bracket dot", "info@a [dot] test", "info@a.test"},
		{"paren dot", "info@a (dot) test", "info@a.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := emailx.Extract(tt.text, nil, emailx.Params{})
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("got %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestExtractDeduplicatesDomainCaseInsensitive(t *testing.T) {
	got := emailx.Extract("info@a.test and info@A.TEST", nil, emailx.Params{})
	if len(got) != 1 {
		t.Errorf("got %v, want 1 deduplicated entry", got)
	}
}

func TestExtractDomainAllowlist(t *testing.T) {
	got := emailx.Extract("x@a.test y@evil.test", nil, emailx.Params{DomainAllowlist: []string{"a.test"}})
	want := []string{"x@a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractAllowlistSubdomain(t *testing.T) {
	got := emailx.Extract("x@mail.a.test", nil, emailx.Params{DomainAllowlist: []string{"a.test"}})
	want := []string{"x@mail.a.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractRejectsNoDotDomain(t *testing.T) {
	got := emailx.Extract("info@localhost", nil, emailx.Params{})
	if len(got) != 0 {
		t.Errorf("got %v, want empty (no dot in domain)", got)
	}
}

func TestExtractRejectsQuotedLocalPart(t *testing.T) {
	got := emailx.Extract(`"weird name"@a.test`, nil, emailx.Params{})
	if len(got) != 0 {
		t.Errorf("got %v, want empty (quoted local-part rejected)", got)
	}
}

func TestExtractEmpty(t *testing.T) {
	got := emailx.Extract("no addresses here", nil, emailx.Params{})
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
