package utils

import (
	"testing"
)

func TestSafeEnv(t *testing.T) {
	const key = "_ESTIMATE_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestReadBuildInfo(t *testing.T) {
	t.Setenv("ESTIMATE_COMMIT", "abc123")
	t.Setenv("ESTIMATE_BUILD_TIME", "")

	got := ReadBuildInfo("", "", "")
	if got.Version != "dev" || got.Commit != "abc123" || got.BuildTime != "unknown" {
		t.Fatalf("unexpected build info: %+v", got)
	}

	got = ReadBuildInfo("1.2.0", "deadbeef", "2025-01-01")
	if got.Commit != "deadbeef" || got.Version != "1.2.0" {
		t.Fatalf("link-time values must win: %+v", got)
	}
}
