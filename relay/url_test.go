package relay

import (
	"net/url"
	"testing"
)

func TestBuildURLUpgradesSchemes(t *testing.T) {
	secure, err := buildURL("https://relay.example.com/feed", "relay", 3, "linux")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, _ := url.Parse(secure)
	if parsed.Scheme != "wss" {
		t.Fatalf("expected wss scheme, got %q", parsed.Scheme)
	}
	query := parsed.Query()
	if query.Get("protocol") != "relay" || query.Get("version") != "3" || query.Get("env") != "linux" {
		t.Fatalf("unexpected query parameters: %v", query)
	}

	insecure, _ := buildURL("http://relay.example.com", "relay", 3, "linux")
	if parsed, _ := url.Parse(insecure); parsed.Scheme != "ws" {
		t.Fatalf("expected ws scheme, got %q", parsed.Scheme)
	}
}

func TestBuildURLLeavesOtherSchemes(t *testing.T) {
	built, err := buildURL("wss://relay.example.com", "relay", 1, "linux")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed, _ := url.Parse(built); parsed.Scheme != "wss" {
		t.Fatalf("expected scheme preserved, got %q", parsed.Scheme)
	}
}

func TestBuildURLPreservesExistingQuery(t *testing.T) {
	built, err := buildURL("https://relay.example.com/feed?region=eu&protocol=old", "relay", 2, "darwin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	query, _ := url.ParseQuery(mustParse(t, built).RawQuery)
	if query.Get("region") != "eu" {
		t.Fatalf("pre-existing parameter lost: %v", query)
	}
	if query.Get("protocol") != "relay" {
		t.Fatalf("protocol parameter not replaced: %v", query)
	}
}

func TestBuildURLBrowserEnvironment(t *testing.T) {
	built, err := buildURL("https://relay.example.com:8443/feed", "relay", 1, "js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	query := mustParse(t, built).Query()
	if query.Get("env") != "browser" || query.Get("host") != "relay.example.com:8443" {
		t.Fatalf("unexpected environment descriptor: %v", query)
	}
}

func TestBuildURLRejectsUnparsableEndpoint(t *testing.T) {
	if _, err := buildURL("://missing-scheme", "relay", 1, "linux"); err == nil {
		t.Fatalf("expected error for unparsable endpoint")
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("built URL does not parse: %v", err)
	}
	return parsed
}
