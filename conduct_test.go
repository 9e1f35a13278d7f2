package conduct_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/store/memory"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := conduct.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg != conduct.DefaultConfig() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("CONDUCT_CREDIT_MULTIPLIER", "25")
	t.Setenv("CONDUCT_PACING_MIN", "100ms")
	t.Setenv("CONDUCT_PACING_MAX", "200ms")

	cfg, err := conduct.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.CreditMultiplier != 25 {
		t.Errorf("multiplier = %d, want 25", cfg.CreditMultiplier)
	}
	if cfg.PacingMin != 100*time.Millisecond || cfg.PacingMax != 200*time.Millisecond {
		t.Errorf("pacing = %s..%s, want 100ms..200ms", cfg.PacingMin, cfg.PacingMax)
	}
}

func TestConfigFromEnv_RejectsInvertedPacing(t *testing.T) {
	t.Setenv("CONDUCT_PACING_MIN", "2s")
	t.Setenv("CONDUCT_PACING_MAX", "1s")

	if _, err := conduct.ConfigFromEnv(); err == nil {
		t.Fatal("expected error for pacing max below min")
	}
}

func TestCoordinator_Lifecycle(t *testing.T) {
	c, err := conduct.New(
		conduct.WithStore(memory.New()),
		conduct.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCoordinator_StartWithoutStore(t *testing.T) {
	c, err := conduct.New(conduct.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, conduct.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}
