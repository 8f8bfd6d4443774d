package internal

import (
	"strings"
	"testing"
)

func TestNewSessionIDIsCanonicalV4(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("new session id: %v", err)
		}
		parsed, err := ParseSessionID(id)
		if err != nil {
			t.Fatalf("parse %q: %v", id, err)
		}
		if parsed != id {
			t.Fatalf("expected canonical form %q, got %q", id, parsed)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestParseSessionIDRejectsNonV4(t *testing.T) {
	bad := []string{
		"",
		"not-a-uuid",
		"00000000-0000-0000-0000-000000000000",
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // v1
		"{6ba7b810-9dad-41d1-80b4-00c04fd430c8}",
	}
	for _, s := range bad {
		if _, err := ParseSessionID(s); err == nil {
			t.Fatalf("expected %q rejected", s)
		}
	}
}

func TestHashTokenEquality(t *testing.T) {
	a := HashToken("token-a")
	if !EqualHash(a, HashToken("token-a")) {
		t.Fatal("expected identical tokens to hash equal")
	}
	if EqualHash(a, HashToken("token-b")) {
		t.Fatal("expected different tokens to hash differently")
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"  Buyer@Agency.GOV ":  "buyer@agency.gov",
		"ＡＤＭＩＮ@example.org": "admin@example.org",
		"":                     "",
		"   ":                  "",
	}
	for in, want := range cases {
		if got := NormalizeEmail(in); got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("6ba7b810-9dad-41d1-80b4-00c04fd430c8")
	f.Add(strings.Repeat("a", 36))
	if id, err := NewSessionID(); err == nil {
		f.Add(id)
	}

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseSessionID(s)
		if err != nil {
			return
		}
		again, err := ParseSessionID(id)
		if err != nil || again != id {
			t.Fatalf("canonical id %q did not round-trip", id)
		}
	})
}
