package observability

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions selects where and how a service logs.
type LoggerOptions struct {
	Service string
	Level   zapcore.Level
	// Stderr sends every line to stderr. Stdio servers and CLIs need stdout
	// for their own output.
	Stderr bool
	// Global installs the logger with zap.ReplaceGlobals.
	Global bool
}

// NewLogger builds a JSON logger named after the service. Every line carries
// a service field.
func NewLogger(opts LoggerOptions) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(opts.Level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.MessageKey = "msg"
	if opts.Stderr {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if opts.Service != "" {
		logger = logger.Named(opts.Service).With(zap.String("service", opts.Service))
	}
	if opts.Global {
		zap.ReplaceGlobals(logger)
	}
	return logger, nil
}

// InitLoggerWithService builds the API server logger and installs it
// globally.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	return NewLogger(LoggerOptions{Service: serviceName, Level: LevelFromEnv(), Global: true})
}

// InitStderrLogger builds a logger that keeps stdout free for protocol frames
// or command output. It is not installed globally.
func InitStderrLogger(serviceName string) (*zap.Logger, error) {
	return NewLogger(LoggerOptions{Service: serviceName, Level: LevelFromEnv(), Stderr: true})
}

// LevelFromEnv reads LOG_LEVEL, falling back to debug in development
// (ENV=dev) and info elsewhere.
func LevelFromEnv() zapcore.Level {
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if level, err := zapcore.ParseLevel(raw); err == nil {
			return level
		}
	}
	if isDevelopment() {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

func isDevelopment() bool {
	env := strings.ToLower(os.Getenv("ENV"))
	return env == "development" || env == "dev"
}

// SamplingRateFromEnv returns LOG_SAMPLE_RATE when set, otherwise 1 in
// development, 0.5 in staging and test, 0.1 in production.
func SamplingRateFromEnv() float64 {
	if raw := os.Getenv("LOG_SAMPLE_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil {
			return rate
		}
	}
	switch strings.ToLower(os.Getenv("ENV")) {
	case "development", "dev":
		return 1.0
	case "staging", "test":
		return 0.5
	default:
		return 0.1
	}
}

// LogSampler thins out per-serve log lines. It is safe for concurrent use.
type LogSampler struct {
	rate    float64
	total   atomic.Int64
	sampled atomic.Int64
}

// SamplingStats counts a sampler's decisions.
type SamplingStats struct {
	Rate    float64 `json:"rate"`
	Total   int64   `json:"total"`
	Sampled int64   `json:"sampled"`
}

// NewLogSampler keeps roughly rate of the lines offered to it. Rates are
// clamped to [0,1].
func NewLogSampler(rate float64) *LogSampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &LogSampler{rate: rate}
}

// Sample reports whether the next line should be written. A nil sampler
// keeps everything.
func (s *LogSampler) Sample() bool {
	if s == nil {
		return true
	}
	s.total.Add(1)
	keep := s.rate >= 1 || (s.rate > 0 && rand.Float64() < s.rate)
	if keep {
		s.sampled.Add(1)
	}
	return keep
}

// Stats returns the decisions made so far.
func (s *LogSampler) Stats() SamplingStats {
	return SamplingStats{Rate: s.rate, Total: s.total.Load(), Sampled: s.sampled.Load()}
}

// LogStats writes the sampler's counters to logger.
func (s *LogSampler) LogStats(logger *zap.Logger, name string) {
	st := s.Stats()
	if st.Total == 0 {
		return
	}
	logger.Info("log sampling",
		zap.String("sampler", name),
		zap.Float64("target_rate", st.Rate),
		zap.Float64("actual_rate", float64(st.Sampled)/float64(st.Total)),
		zap.Int64("offered", st.Total),
		zap.Int64("written", st.Sampled),
	)
}

// ServeSampler gates the per-combination log lines of the RSA engine and the
// combination endpoint.
var ServeSampler = NewLogSampler(SamplingRateFromEnv())
