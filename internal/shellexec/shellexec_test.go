package shellexec

import (
	"testing"

	"github.com/loom-editor/loom/internal/wire"
)

func TestSanitizeTermFallsBackOnGarbage(t *testing.T) {
	cases := map[string]string{
		"":                  "xterm-256color",
		"xterm-256color":    "xterm-256color",
		"screen":            "screen",
		"has=equals":        "xterm-256color",
		"has space":         "xterm-256color",
		string(make([]byte, 200)): "xterm-256color",
	}
	for in, want := range cases {
		if got := sanitizeTerm(in); got != want {
			t.Errorf("sanitizeTerm(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildEnvInjectsSanitizedTerm(t *testing.T) {
	m := wire.NewStringMap()
	m.Set("HOME", "/home/x")
	m.Set("TERM", "bogus=term")

	env := buildEnv(m)

	var home, term string
	var sawRawTerm bool
	for _, kv := range env {
		switch {
		case kv == "HOME=/home/x":
			home = kv
		case kv == "TERM=xterm-256color":
			term = kv
		case kv == "TERM=bogus=term":
			sawRawTerm = true
		}
	}
	if home == "" {
		t.Fatalf("HOME not propagated: %v", env)
	}
	if term == "" {
		t.Fatalf("expected sanitized TERM in env: %v", env)
	}
	if sawRawTerm {
		t.Fatalf("unsanitized TERM leaked into env: %v", env)
	}
}

func TestBuildEnvDefaultsTermWhenAbsent(t *testing.T) {
	env := buildEnv(nil)
	found := false
	for _, kv := range env {
		if kv == "TERM=xterm-256color" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected default TERM, got %v", env)
	}
}
