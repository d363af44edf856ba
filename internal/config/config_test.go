package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/rsa"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8787", cfg.Port)
	assert.Equal(t, "adsimulator", cfg.ServiceName)
	assert.False(t, cfg.SnapshotsEnabled)
	assert.False(t, cfg.RunStoreEnabled)
	assert.Equal(t, "postgres", cfg.RunStoreDriver)
	assert.Equal(t, "adsimulator.db", cfg.SQLitePath)
	assert.False(t, cfg.AnalyticsEnabled)
	assert.Equal(t, 4, cfg.SimulationWorkers)
	assert.True(t, cfg.SimulationRateLimitEnabled)
	assert.Equal(t, 5, cfg.SimulationRateBurst)
	assert.Equal(t, 10.0, cfg.SimulationRatePerMinute)
	assert.Equal(t, 8*time.Second, cfg.SimulationTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL)

	assert.Equal(t, quality.DefaultConfig(), cfg.Engines.Quality())
	assert.Equal(t, rsa.DefaultConfig(), cfg.Engines.RSA())
	assert.Equal(t, impressionshare.DefaultConfig(), cfg.Engines.ImpressionShare())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SNAPSHOTS_ENABLED", "true")
	t.Setenv("SNAPSHOT_TTL", "90")
	t.Setenv("RUN_STORE_DRIVER", "sqlite")
	t.Setenv("QS_EVOLUTION_RATE", "0.25")
	t.Setenv("QS_MIN_DATA_POINTS", "20")
	t.Setenv("RSA_LEARNING_THRESHOLD", "500")
	t.Setenv("IS_MARKET_SIZE_MULTIPLIER", "8")
	t.Setenv("IS_EXACT_MATCH_FACTOR", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.SnapshotsEnabled)
	assert.Equal(t, 90*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, "sqlite", cfg.RunStoreDriver)
	assert.Equal(t, 0.25, cfg.Engines.Quality().EvolutionRate)
	assert.Equal(t, 20, cfg.Engines.Quality().MinDataPoints)
	assert.Equal(t, 500, cfg.Engines.RSA().LearningThreshold)
	assert.Equal(t, 8.0, cfg.Engines.ImpressionShare().MarketSizeMultiplier)
	assert.Equal(t, 1.1, cfg.Engines.ImpressionShare().ExactMatchFactor, "invalid value falls back")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_DURATION", "1500ms")
	t.Setenv("X_BOOL", "yes")
	t.Setenv("X_INT", "42")

	assert.Equal(t, 1500*time.Millisecond, envDuration("X_DURATION", time.Second))
	assert.True(t, envBool("X_BOOL_MISSING", true))
	assert.False(t, envBool("X_BOOL", false), "unparseable bool keeps default")
	assert.Equal(t, 42, envInt("X_INT", 1))
	assert.Equal(t, "fallback", getenv("X_UNSET", "fallback"))
}
