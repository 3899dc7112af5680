package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLoadErrorClasses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []string
	}{
		{name: "none", err: nil, want: nil},
		{name: "missing vars only", err: &ValidationError{Problems: []string{"GITEE_CLIENT_ID is required"}, Classes: []string{ClassMissingVars}}, want: []string{ClassMissingVars}},
		{name: "jwt and store", err: &ValidationError{Classes: []string{ClassJWT, ClassStore}}, want: []string{ClassJWT, ClassStore}},
		{name: "wrapped validation", err: fmt.Errorf("startup: %w", &ValidationError{Classes: []string{ClassJWT}}), want: []string{ClassJWT}},
		{name: "unclassified validation", err: &ValidationError{Problems: []string{"x"}}, want: []string{"validation"}},
		{name: "parse", err: fmt.Errorf("%w: JWT_TTL: invalid duration", ErrParseEnv), want: []string{ClassParse}},
		{name: "parse text without sentinel", err: errors.New("parse env: something"), want: []string{"load"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := loadErrorClasses(tc.err); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("loadErrorClasses()=%v want %v", got, tc.want)
			}
		})
	}
}

func TestProblemClassesFollowValidateGroups(t *testing.T) {
	cfg := Config{
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		GitHubRedirectURIs: []string{"http://localhost/cb"},
		GiteeClientID:      "id",
		GiteeClientSecret:  "secret",
		GiteeRedirectURIs:  []string{"http://localhost/cb"},
		N8NEndpoint:        "https://n8n.example.com/a",
		N8NConfirmEndpoint: "https://n8n.example.com/b",
		JWTAlgorithm:       "HS256",
		JWTSecret:          strings.Repeat("s", 32),
		StoreBackend:       "memory",
	}
	if got := cfg.problemClasses(); len(got) != 0 {
		t.Fatalf("expected no classes for a valid config, got %v", got)
	}

	cfg.GiteeClientSecret = ""
	cfg.JWTSecret = "short"
	cfg.StoreBackend = "postgres"
	want := []string{ClassMissingVars, ClassJWT, ClassStore}
	if got := cfg.problemClasses(); !reflect.DeepEqual(got, want) {
		t.Fatalf("problemClasses()=%v want %v", got, want)
	}
}

func TestEnvironmentLabel(t *testing.T) {
	cases := map[string]string{
		"  Production ": "production",
		"test":          "test",
		"":              "unknown",
		"   ":           "unknown",
		"qa-7":          "other",
	}
	for in, want := range cases {
		if got := environmentLabel(in); got != want {
			t.Fatalf("environmentLabel(%q)=%q want %q", in, got, want)
		}
	}
}

func FuzzEnvironmentLabelIsBounded(f *testing.F) {
	f.Add("  ProD  ")
	f.Add("")
	f.Add("🔥PROD🔥")
	f.Add(strings.Repeat("A", 4096))

	f.Fuzz(func(t *testing.T, raw string) {
		got := environmentLabel(raw)
		if got != "unknown" && got != "other" && !knownEnvironments[got] {
			t.Fatalf("label %q escapes the bounded set", got)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("label must be valid UTF-8: %q", got)
		}
	})
}
