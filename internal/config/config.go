package config

import (
	"os"
	"strconv"
	"time"

	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/quality"
	"github.com/patrickwarner/adsimulator/internal/rsa"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	DebugTrace   bool
	GeoIPDB      string
	// Optional sinks. Each is only dialled when enabled.
	SnapshotsEnabled bool
	RedisAddr        string
	SnapshotTTL      time.Duration
	RunStoreEnabled  bool
	RunStoreDriver   string
	PostgresDSN      string
	SQLitePath       string
	AnalyticsEnabled bool
	ClickHouseDSN    string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
	// SimulationWorkers bounds concurrently running scenarios.
	SimulationWorkers int
	// Per-client throttling of POST /simulations
	SimulationRateLimitEnabled bool
	SimulationRateBurst        int
	SimulationRatePerMinute    float64
	// SimulationTimeout bounds one API-triggered run. Keep it below
	// WriteTimeout or the report can no longer be written.
	SimulationTimeout time.Duration
	// Engines carries the calibration constants of the simulation models.
	Engines Engines
}

// Engines groups the tunable model parameters.
type Engines struct {
	// Quality score evolution
	QSEvolutionRate        float64
	QSMinDataPoints        int
	QSHistorySize          int
	QSCTRHistorySize       int
	QSRelevanceHistorySize int
	// Responsive search ads
	RSALearningThreshold     int
	RSAOptimizationThreshold int
	RSAUniformJitter         float64
	RSAScoreJitter           float64
	RSAFreshWeight           float64
	RSAFreshJitter           float64
	// Impression share
	ISMarketSizeMultiplier float64
	ISCompetitorFactor     float64
	ISBudgetExhaustedRatio float64
	ISBudgetLossBase       float64
	ISBudgetOverspendRate  float64
	ISUnderspendLossRate   float64
	ISAdSlots              float64
	ISRankLossScale        float64
	ISTopDiscount          float64
	ISAbsTopDiscount       float64
	ISExactMatchFactor     float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "adsimulator")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)
	cfg.GeoIPDB = getenv("GEOIP_DB", "internal/geoip/testdata/fallback.json")

	cfg.SnapshotsEnabled = envBool("SNAPSHOTS_ENABLED", false)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.SnapshotTTL = envDuration("SNAPSHOT_TTL", 24*time.Hour)
	cfg.RunStoreEnabled = envBool("RUN_STORE_ENABLED", false)
	cfg.RunStoreDriver = getenv("RUN_STORE_DRIVER", "postgres")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.SQLitePath = getenv("SQLITE_PATH", "adsimulator.db")
	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Simulation events are batched per day, so ClickHouse needs fewer
	// connections than an ad server would.
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 20)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 5)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	cfg.SimulationWorkers = envInt("SIMULATION_WORKERS", 4)
	cfg.SimulationRateLimitEnabled = envBool("SIMULATION_RATE_LIMIT_ENABLED", true)
	cfg.SimulationRateBurst = envInt("SIMULATION_RATE_BURST", 5)
	cfg.SimulationRatePerMinute = envFloat("SIMULATION_RATE_PER_MINUTE", 10)
	cfg.SimulationTimeout = envDuration("SIMULATION_TIMEOUT", 8*time.Second)
	cfg.Engines = loadEngines()

	return cfg
}

func loadEngines() Engines {
	d := DefaultEngines()
	return Engines{
		QSEvolutionRate:        envFloat("QS_EVOLUTION_RATE", d.QSEvolutionRate),
		QSMinDataPoints:        envInt("QS_MIN_DATA_POINTS", d.QSMinDataPoints),
		QSHistorySize:          envInt("QS_HISTORY_SIZE", d.QSHistorySize),
		QSCTRHistorySize:       envInt("QS_CTR_HISTORY_SIZE", d.QSCTRHistorySize),
		QSRelevanceHistorySize: envInt("QS_RELEVANCE_HISTORY_SIZE", d.QSRelevanceHistorySize),

		RSALearningThreshold:     envInt("RSA_LEARNING_THRESHOLD", d.RSALearningThreshold),
		RSAOptimizationThreshold: envInt("RSA_OPTIMIZATION_THRESHOLD", d.RSAOptimizationThreshold),
		RSAUniformJitter:         envFloat("RSA_UNIFORM_JITTER", d.RSAUniformJitter),
		RSAScoreJitter:           envFloat("RSA_SCORE_JITTER", d.RSAScoreJitter),
		RSAFreshWeight:           envFloat("RSA_FRESH_WEIGHT", d.RSAFreshWeight),
		RSAFreshJitter:           envFloat("RSA_FRESH_JITTER", d.RSAFreshJitter),

		ISMarketSizeMultiplier: envFloat("IS_MARKET_SIZE_MULTIPLIER", d.ISMarketSizeMultiplier),
		ISCompetitorFactor:     envFloat("IS_COMPETITOR_FACTOR", d.ISCompetitorFactor),
		ISBudgetExhaustedRatio: envFloat("IS_BUDGET_EXHAUSTED_RATIO", d.ISBudgetExhaustedRatio),
		ISBudgetLossBase:       envFloat("IS_BUDGET_LOSS_BASE", d.ISBudgetLossBase),
		ISBudgetOverspendRate:  envFloat("IS_BUDGET_OVERSPEND_RATE", d.ISBudgetOverspendRate),
		ISUnderspendLossRate:   envFloat("IS_UNDERSPEND_LOSS_RATE", d.ISUnderspendLossRate),
		ISAdSlots:              envFloat("IS_AD_SLOTS", d.ISAdSlots),
		ISRankLossScale:        envFloat("IS_RANK_LOSS_SCALE", d.ISRankLossScale),
		ISTopDiscount:          envFloat("IS_TOP_DISCOUNT", d.ISTopDiscount),
		ISAbsTopDiscount:       envFloat("IS_ABS_TOP_DISCOUNT", d.ISAbsTopDiscount),
		ISExactMatchFactor:     envFloat("IS_EXACT_MATCH_FACTOR", d.ISExactMatchFactor),
	}
}

// Quality returns the quality score engine configuration.
func (e Engines) Quality() quality.Config {
	return quality.Config{
		EvolutionRate:        e.QSEvolutionRate,
		MinDataPoints:        e.QSMinDataPoints,
		QSHistorySize:        e.QSHistorySize,
		CTRHistorySize:       e.QSCTRHistorySize,
		RelevanceHistorySize: e.QSRelevanceHistorySize,
	}
}

// RSA returns the responsive search ad engine configuration.
func (e Engines) RSA() rsa.Config {
	return rsa.Config{
		LearningThreshold:     e.RSALearningThreshold,
		OptimizationThreshold: e.RSAOptimizationThreshold,
		UniformJitter:         e.RSAUniformJitter,
		ScoreJitter:           e.RSAScoreJitter,
		FreshWeight:           e.RSAFreshWeight,
		FreshJitter:           e.RSAFreshJitter,
	}
}

// ImpressionShare returns the impression share calculator configuration.
func (e Engines) ImpressionShare() impressionshare.Config {
	return impressionshare.Config{
		MarketSizeMultiplier: e.ISMarketSizeMultiplier,
		CompetitorFactor:     e.ISCompetitorFactor,
		BudgetExhaustedRatio: e.ISBudgetExhaustedRatio,
		BudgetLossBase:       e.ISBudgetLossBase,
		BudgetOverspendRate:  e.ISBudgetOverspendRate,
		UnderspendLossRate:   e.ISUnderspendLossRate,
		AdSlots:              e.ISAdSlots,
		RankLossScale:        e.ISRankLossScale,
		TopDiscount:          e.ISTopDiscount,
		AbsTopDiscount:       e.ISAbsTopDiscount,
		ExactMatchFactor:     e.ISExactMatchFactor,
	}
}

// DefaultEngines returns the built-in calibration without reading the
// environment.
func DefaultEngines() Engines {
	qs := quality.DefaultConfig()
	ads := rsa.DefaultConfig()
	is := impressionshare.DefaultConfig()
	return Engines{
		QSEvolutionRate:          qs.EvolutionRate,
		QSMinDataPoints:          qs.MinDataPoints,
		QSHistorySize:            qs.QSHistorySize,
		QSCTRHistorySize:         qs.CTRHistorySize,
		QSRelevanceHistorySize:   qs.RelevanceHistorySize,
		RSALearningThreshold:     ads.LearningThreshold,
		RSAOptimizationThreshold: ads.OptimizationThreshold,
		RSAUniformJitter:         ads.UniformJitter,
		RSAScoreJitter:           ads.ScoreJitter,
		RSAFreshWeight:           ads.FreshWeight,
		RSAFreshJitter:           ads.FreshJitter,
		ISMarketSizeMultiplier:   is.MarketSizeMultiplier,
		ISCompetitorFactor:       is.CompetitorFactor,
		ISBudgetExhaustedRatio:   is.BudgetExhaustedRatio,
		ISBudgetLossBase:         is.BudgetLossBase,
		ISBudgetOverspendRate:    is.BudgetOverspendRate,
		ISUnderspendLossRate:     is.UnderspendLossRate,
		ISAdSlots:                is.AdSlots,
		ISRankLossScale:          is.RankLossScale,
		ISTopDiscount:            is.TopDiscount,
		ISAbsTopDiscount:         is.AbsTopDiscount,
		ISExactMatchFactor:       is.ExactMatchFactor,
	}
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
