package urlutil

import "testing"

func TestLowerASCII(t *testing.T) {
	tests := []struct{ in, want string }{
		{"EXAMPLE.com", "example.com"},
		{"already-lower", "already-lower"},
		{"", ""},
		{"MiXeD123", "mixed123"},
	}
	for _, tt := range tests {
		if got := LowerASCII(tt.in); got != tt.want {
			t.Errorf("LowerASCII(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsDefaultPort(t *testing.T) {
	tests := []struct {
		scheme, port string
		want         bool
	}{
		{"http", "80", true},
		{"https", "443", true},
		{"http", "443", false},
		{"https", "80", false},
		{"http", "8080", false},
		{"ftp", "80", false},
	}
	for _, tt := range tests {
		if got := IsDefaultPort(tt.scheme, tt.port); got != tt.want {
			t.Errorf("IsDefaultPort(%q, %q) = %v, want %v", tt.scheme, tt.port, got, tt.want)
		}
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"/a/b/c", "/a/b/c"},
		{"/a/./b", "/a/b"},
		{"/a/b/../c", "/a/c"},
		{"/../a", "/a"},
		{"/a//b", "/a/b"},
		{"/a/b/", "/a/b/"},
		{"/a/../../b", "/b"},
	}
	for _, tt := range tests {
		if got := CleanPath(tt.in); got != tt.want {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
