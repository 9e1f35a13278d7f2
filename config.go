package conduct

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for a Coordinator and the flows it drives.
type Config struct {
	// CreditMultiplier converts external amounts into accumulator credit
	// for guarded credit operations.
	CreditMultiplier int64 `env:"CONDUCT_CREDIT_MULTIPLIER"`

	// PacingMin is the lower bound for the randomized duration of a
	// cosmetic pacing sub-task.
	PacingMin time.Duration `env:"CONDUCT_PACING_MIN"`

	// PacingMax is the upper bound for the randomized duration of a
	// cosmetic pacing sub-task.
	PacingMax time.Duration `env:"CONDUCT_PACING_MAX"`

	// EffectDelay is how long an effectful sub-task animates before it
	// parks at 99% and awaits the real call.
	EffectDelay time.Duration `env:"CONDUCT_EFFECT_DELAY"`

	// EffectTimeout bounds each attempt of the effectful sub-task's
	// real call.
	EffectTimeout time.Duration `env:"CONDUCT_EFFECT_TIMEOUT"`

	// EffectAttempts is the maximum number of attempts for the effectful
	// sub-task's real call, including the first.
	EffectAttempts int `env:"CONDUCT_EFFECT_ATTEMPTS"`

	// OpTimeout bounds each guarded operation end to end, including the
	// store commit. Zero disables the deadline.
	OpTimeout time.Duration `env:"CONDUCT_OP_TIMEOUT"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `env:"CONDUCT_SHUTDOWN_TIMEOUT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CreditMultiplier: 10,
		PacingMin:        400 * time.Millisecond,
		PacingMax:        1600 * time.Millisecond,
		EffectDelay:      800 * time.Millisecond,
		EffectTimeout:    30 * time.Second,
		EffectAttempts:   3,
		OpTimeout:        10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by CONDUCT_* environment
// variables.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("conduct: parse env config: %w", err)
	}
	if cfg.PacingMax < cfg.PacingMin {
		return Config{}, fmt.Errorf("conduct: pacing max %s below min %s", cfg.PacingMax, cfg.PacingMin)
	}
	return cfg, nil
}
