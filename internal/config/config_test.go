package config

import (
	"testing"
	"time"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("PURETRACK_TEST_UNSET", "")
	if got := getEnv("PURETRACK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGetEnvUsesSetValue(t *testing.T) {
	t.Setenv("PURETRACK_TEST_SET", "custom")
	if got := getEnv("PURETRACK_TEST_SET", "fallback"); got != "custom" {
		t.Fatalf("expected custom, got %q", got)
	}
}

func TestGetEnvIntParsesOrFallsBack(t *testing.T) {
	t.Setenv("PURETRACK_TEST_INT", "42")
	if got := getEnvInt("PURETRACK_TEST_INT", 7); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("PURETRACK_TEST_INT_BAD", "not-a-number")
	if got := getEnvInt("PURETRACK_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("expected fallback on unparseable int, got %d", got)
	}
}

func TestGetEnvDurationParsesOrFallsBack(t *testing.T) {
	t.Setenv("PURETRACK_TEST_DURATION", "5s")
	if got := getEnvDuration("PURETRACK_TEST_DURATION", time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
	t.Setenv("PURETRACK_TEST_DURATION_BAD", "not-a-duration")
	if got := getEnvDuration("PURETRACK_TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback on unparseable duration, got %v", got)
	}
}
