package config

import (
	"testing"
	"time"
)

func TestLoadRetryDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RetryAttempts != 3 {
		t.Fatalf("expected 3 total attempts by default, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryBackoff != time.Second {
		t.Fatalf("expected 1s initial backoff by default, got %s", cfg.RetryBackoff)
	}
}

func TestLoadReplayRetryDefaults(t *testing.T) {
	cfg, err := LoadReplay("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RetryAttempts != 3 {
		t.Fatalf("expected 3 total attempts by default, got %d", cfg.RetryAttempts)
	}
	if cfg.RetryBackoff != time.Second {
		t.Fatalf("expected 1s initial backoff by default, got %s", cfg.RetryBackoff)
	}
}
